package serial

import (
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
)

// Encoder 负责写入单个值。每种基础类型对应一个写入方法，
// 结构化的值通过 BeginStructure 打开一个区域，并在写完所有元素后调用 EndStructure 关闭。
type Encoder interface {
	EncodeBool(v bool) error
	EncodeInt8(v int8) error
	EncodeInt16(v int16) error
	EncodeInt32(v int32) error
	EncodeInt64(v int64) error
	EncodeFloat32(v float32) error
	EncodeFloat64(v float64) error
	EncodeChar(v rune) error
	EncodeString(v string) error
	// EncodeEnum 写入枚举 d 的第 index 个取值。
	EncodeEnum(d descriptor.Descriptor, index int) error
	// EncodeNull 写入 null。
	EncodeNull() error
	// EncodeNotNullMark 声明随后写入的是一个非 null 值，供需要显式标记的格式使用。
	EncodeNotNullMark() error
	// EncodeInline 返回用于写入内联值包装类型内部值的 Encoder。
	EncodeInline(d descriptor.Descriptor) (Encoder, error)
	BeginStructure(d descriptor.Descriptor) (CompositeEncoder, error)
	// BeginCollection 打开一个已知大小的集合区域，size 对映射而言为键值对的个数。
	BeginCollection(d descriptor.Descriptor, size int) (CompositeEncoder, error)
	Module() *Module
}

// CompositeEncoder 在一个已打开的区域内按元素下标写入。
// 下标而非调用顺序决定元素身份，同一区域内每个下标最多写入一次。
type CompositeEncoder interface {
	// EncodeElement 将格式定位到第 i 个元素，并返回写入该元素值的 Encoder。
	EncodeElement(d descriptor.Descriptor, i int) (Encoder, error)
	// ShouldEncodeElementDefault 判断值等于默认值的可选元素是否仍需写出。
	ShouldEncodeElementDefault(d descriptor.Descriptor, i int) bool
	EndStructure(d descriptor.Descriptor) error
}

func EncodeBoolElement(ce CompositeEncoder, d descriptor.Descriptor, i int, v bool) error {
	e, err := ce.EncodeElement(d, i)
	if err != nil {
		return err
	}
	return e.EncodeBool(v)
}

func EncodeInt8Element(ce CompositeEncoder, d descriptor.Descriptor, i int, v int8) error {
	e, err := ce.EncodeElement(d, i)
	if err != nil {
		return err
	}
	return e.EncodeInt8(v)
}

func EncodeInt16Element(ce CompositeEncoder, d descriptor.Descriptor, i int, v int16) error {
	e, err := ce.EncodeElement(d, i)
	if err != nil {
		return err
	}
	return e.EncodeInt16(v)
}

func EncodeInt32Element(ce CompositeEncoder, d descriptor.Descriptor, i int, v int32) error {
	e, err := ce.EncodeElement(d, i)
	if err != nil {
		return err
	}
	return e.EncodeInt32(v)
}

func EncodeInt64Element(ce CompositeEncoder, d descriptor.Descriptor, i int, v int64) error {
	e, err := ce.EncodeElement(d, i)
	if err != nil {
		return err
	}
	return e.EncodeInt64(v)
}

func EncodeFloat32Element(ce CompositeEncoder, d descriptor.Descriptor, i int, v float32) error {
	e, err := ce.EncodeElement(d, i)
	if err != nil {
		return err
	}
	return e.EncodeFloat32(v)
}

func EncodeFloat64Element(ce CompositeEncoder, d descriptor.Descriptor, i int, v float64) error {
	e, err := ce.EncodeElement(d, i)
	if err != nil {
		return err
	}
	return e.EncodeFloat64(v)
}

func EncodeCharElement(ce CompositeEncoder, d descriptor.Descriptor, i int, v rune) error {
	e, err := ce.EncodeElement(d, i)
	if err != nil {
		return err
	}
	return e.EncodeChar(v)
}

func EncodeStringElement(ce CompositeEncoder, d descriptor.Descriptor, i int, v string) error {
	e, err := ce.EncodeElement(d, i)
	if err != nil {
		return err
	}
	return e.EncodeString(v)
}

// EncodeSerializableElement 使用 s 写入第 i 个元素。
func EncodeSerializableElement[T any](ce CompositeEncoder, d descriptor.Descriptor, i int, s Serializer[T], v T) error {
	e, err := ce.EncodeElement(d, i)
	if err != nil {
		return err
	}
	return s.Serialize(e, v)
}

// EncodeNullableSerializableElement 写入一个可空元素，v 为 nil 时写入 null。
func EncodeNullableSerializableElement[T any](ce CompositeEncoder, d descriptor.Descriptor, i int, s Serializer[T], v *T) error {
	e, err := ce.EncodeElement(d, i)
	if err != nil {
		return err
	}
	return encodeNullable(e, s, v)
}

func encodeNullable[T any](e Encoder, s Serializer[T], v *T) error {
	if v == nil {
		return e.EncodeNull()
	}
	if err := e.EncodeNotNullMark(); err != nil {
		return err
	}
	return s.Serialize(e, *v)
}
