// Command serialfmt 格式化、校验或转换 JSON 文档。
//
//	serialfmt [--config file] [--pretty] [--indent s] [--lenient] [--check] [--to json|cbor] files...
//
// 每个文件被解析为 json.Element 后重新编码：--to json 输出格式化后的 JSON，
// --to cbor 把每个文件写成一帧 CBOR 数据。--check 只列出格式不一致的文件。
// 文件在协程池中并行处理，输出保持命令行中的顺序。文件名为 "-" 时读取标准输入。
//
// 退出码：0 成功，1 存在处理失败或格式不一致的文件，2 参数或配置错误。
package main

import (
	"os"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
