package serial

import (
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
)

const (
	// ElementDone 表示当前区域的数据已经读完。
	ElementDone = -1
	// UnknownName 表示数据中出现了描述符未声明的元素。
	UnknownName = descriptor.UnknownName
	// UnknownSize 表示集合大小事先未知。
	UnknownSize = -1
)

// Decoder 负责读取单个值，与 Encoder 对称。
type Decoder interface {
	DecodeBool() (bool, error)
	DecodeInt8() (int8, error)
	DecodeInt16() (int16, error)
	DecodeInt32() (int32, error)
	DecodeInt64() (int64, error)
	DecodeFloat32() (float32, error)
	DecodeFloat64() (float64, error)
	DecodeChar() (rune, error)
	DecodeString() (string, error)
	// DecodeEnum 读取枚举 d 的取值并返回其序号。
	DecodeEnum(d descriptor.Descriptor) (int, error)
	// DecodeNotNullMark 预读下一个值是否为非 null，不消耗输入。
	DecodeNotNullMark() (bool, error)
	// DecodeNull 消耗一个 null。
	DecodeNull() error
	// DecodeInline 返回用于读取内联值包装类型内部值的 Decoder。
	DecodeInline(d descriptor.Descriptor) (Decoder, error)
	BeginStructure(d descriptor.Descriptor) (CompositeDecoder, error)
	Module() *Module
}

// CompositeDecoder 在一个已打开的区域内按数据顺序发现元素。
//
// 典型的解码循环：
//
//	for {
//		i, err := cd.DecodeElementIndex(d)
//		if err != nil {
//			return err
//		}
//		if i == serial.ElementDone {
//			break
//		}
//		// 根据 i 读取对应元素
//	}
type CompositeDecoder interface {
	// DecodeElementIndex 返回下一个元素的下标、ElementDone 或 UnknownName。
	DecodeElementIndex(d descriptor.Descriptor) (int, error)
	// DecodeElement 返回读取第 i 个元素值的 Decoder。
	DecodeElement(d descriptor.Descriptor, i int) (Decoder, error)
	// DecodeCollectionSize 返回集合大小，未知时返回 UnknownSize。
	DecodeCollectionSize(d descriptor.Descriptor) (int, error)
	// DecodeSequentially 为 true 时，调用方可以按声明顺序直接读取所有元素，而无需 DecodeElementIndex。
	DecodeSequentially() bool
	EndStructure(d descriptor.Descriptor) error
}

func DecodeBoolElement(cd CompositeDecoder, d descriptor.Descriptor, i int) (bool, error) {
	dec, err := cd.DecodeElement(d, i)
	if err != nil {
		return false, err
	}
	return dec.DecodeBool()
}

func DecodeInt8Element(cd CompositeDecoder, d descriptor.Descriptor, i int) (int8, error) {
	dec, err := cd.DecodeElement(d, i)
	if err != nil {
		return 0, err
	}
	return dec.DecodeInt8()
}

func DecodeInt16Element(cd CompositeDecoder, d descriptor.Descriptor, i int) (int16, error) {
	dec, err := cd.DecodeElement(d, i)
	if err != nil {
		return 0, err
	}
	return dec.DecodeInt16()
}

func DecodeInt32Element(cd CompositeDecoder, d descriptor.Descriptor, i int) (int32, error) {
	dec, err := cd.DecodeElement(d, i)
	if err != nil {
		return 0, err
	}
	return dec.DecodeInt32()
}

func DecodeInt64Element(cd CompositeDecoder, d descriptor.Descriptor, i int) (int64, error) {
	dec, err := cd.DecodeElement(d, i)
	if err != nil {
		return 0, err
	}
	return dec.DecodeInt64()
}

func DecodeFloat32Element(cd CompositeDecoder, d descriptor.Descriptor, i int) (float32, error) {
	dec, err := cd.DecodeElement(d, i)
	if err != nil {
		return 0, err
	}
	return dec.DecodeFloat32()
}

func DecodeFloat64Element(cd CompositeDecoder, d descriptor.Descriptor, i int) (float64, error) {
	dec, err := cd.DecodeElement(d, i)
	if err != nil {
		return 0, err
	}
	return dec.DecodeFloat64()
}

func DecodeCharElement(cd CompositeDecoder, d descriptor.Descriptor, i int) (rune, error) {
	dec, err := cd.DecodeElement(d, i)
	if err != nil {
		return 0, err
	}
	return dec.DecodeChar()
}

func DecodeStringElement(cd CompositeDecoder, d descriptor.Descriptor, i int) (string, error) {
	dec, err := cd.DecodeElement(d, i)
	if err != nil {
		return "", err
	}
	return dec.DecodeString()
}

// DecodeSerializableElement 使用 s 读取第 i 个元素。
func DecodeSerializableElement[T any](cd CompositeDecoder, d descriptor.Descriptor, i int, s Serializer[T]) (T, error) {
	dec, err := cd.DecodeElement(d, i)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.Deserialize(dec)
}

// DecodeNullableSerializableElement 读取一个可空元素，数据为 null 时返回 nil。
func DecodeNullableSerializableElement[T any](cd CompositeDecoder, d descriptor.Descriptor, i int, s Serializer[T]) (*T, error) {
	dec, err := cd.DecodeElement(d, i)
	if err != nil {
		return nil, err
	}
	return decodeNullable(dec, s)
}

func decodeNullable[T any](dec Decoder, s Serializer[T]) (*T, error) {
	notNull, err := dec.DecodeNotNullMark()
	if err != nil {
		return nil, err
	}
	if !notNull {
		return nil, dec.DecodeNull()
	}
	v, err := s.Deserialize(dec)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
