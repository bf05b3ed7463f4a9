package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameModule = "module"
	FieldNameFormat = "format"
	FieldNameOp     = "op"
	FieldNamePath   = "path"
)

// FieldModule 返回一个包含模块名的 zap 字段。
func FieldModule(module string) zap.Field {
	return zap.String(FieldNameModule, module)
}

// FieldFormat 返回一个包含序列化格式名的 zap 字段。
func FieldFormat(format string) zap.Field {
	return zap.String(FieldNameFormat, format)
}

// FieldOp 返回一个包含操作类型（encode/decode）的 zap 字段。
func FieldOp(op string) zap.Field {
	return zap.String(FieldNameOp, op)
}

// FieldPath 返回一个包含数据路径（如 $.a[0].b）的 zap 字段。
func FieldPath(path string) zap.Field {
	return zap.String(FieldNamePath, path)
}
