// Package serial 定义与具体格式无关的序列化协议。
//
// 类型通过 descriptor.Descriptor 描述自身结构，通过 Serializer 驱动 Encoder/Decoder；
// 具体格式（json、cbor、protobuf 等）只需实现 Encoder/Decoder 即可复用全部结构逻辑。
//
// 一个会话（一次 Encode 或 Decode 调用）只能在单个 goroutine 中使用；
// 描述符、序列化器与 Module 构建后不可变，可以在多个会话之间共享。
package serial
