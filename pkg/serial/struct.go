package serial

import (
	"reflect"
	"strconv"

	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// StructField 描述 Struct[T] 的一个字段，通过存取函数访问 T 的对应成员。
type StructField[T any] struct {
	name       string
	desc       descriptor.Descriptor
	opts       []descriptor.ElementOption
	optional   bool
	isDefault  func(*T) bool
	setDefault func(*T)
	encode     func(ce CompositeEncoder, d descriptor.Descriptor, i int, v *T) error
	decode     func(cd CompositeDecoder, d descriptor.Descriptor, i int, v *T) error
}

// Field 声明一个必需字段。
func Field[T, F any](name string, s Serializer[F], get func(*T) F, set func(*T, F), opts ...descriptor.ElementOption) StructField[T] {
	return StructField[T]{
		name: name,
		desc: s.Descriptor(),
		opts: opts,
		encode: func(ce CompositeEncoder, d descriptor.Descriptor, i int, v *T) error {
			return EncodeSerializableElement(ce, d, i, s, get(v))
		},
		decode: func(cd CompositeDecoder, d descriptor.Descriptor, i int, v *T) error {
			f, err := DecodeSerializableElement(cd, d, i, s)
			if err != nil {
				return err
			}
			set(v, f)
			return nil
		},
	}
}

// OptionalField 声明一个带默认值的字段：缺失时取 def，
// 值等于 def 且格式不要求写出默认值时编码阶段跳过该字段。
func OptionalField[T, F any](name string, s Serializer[F], def F, get func(*T) F, set func(*T, F), opts ...descriptor.ElementOption) StructField[T] {
	f := Field(name, s, get, set, append(opts, descriptor.Optional())...)
	f.optional = true
	f.isDefault = func(v *T) bool { return reflect.DeepEqual(get(v), def) }
	f.setDefault = func(v *T) { set(v, def) }
	return f
}

// NullableField 声明一个可空字段，nil 对应 null。
func NullableField[T, F any](name string, s Serializer[F], get func(*T) *F, set func(*T, *F), opts ...descriptor.ElementOption) StructField[T] {
	ns := Nullable(s)
	return StructField[T]{
		name: name,
		desc: ns.Descriptor(),
		opts: opts,
		encode: func(ce CompositeEncoder, d descriptor.Descriptor, i int, v *T) error {
			return EncodeNullableSerializableElement(ce, d, i, s, get(v))
		},
		decode: func(cd CompositeDecoder, d descriptor.Descriptor, i int, v *T) error {
			f, err := DecodeNullableSerializableElement(cd, d, i, s)
			if err != nil {
				return err
			}
			set(v, f)
			return nil
		},
	}
}

// OptionalNullableField 声明一个默认值为 null 的可空字段。
func OptionalNullableField[T, F any](name string, s Serializer[F], get func(*T) *F, set func(*T, *F), opts ...descriptor.ElementOption) StructField[T] {
	f := NullableField(name, s, get, set, append(opts, descriptor.Optional())...)
	f.optional = true
	f.isDefault = func(v *T) bool { return get(v) == nil }
	f.setDefault = func(v *T) { set(v, nil) }
	return f
}

// Struct 是由字段列表手工组装的类序列化器。
type Struct[T any] struct {
	desc   descriptor.Descriptor
	fields []StructField[T]
}

// NewStruct 以声明顺序构造类序列化器，字段名重复时返回错误。
func NewStruct[T any](serialName string, fields ...StructField[T]) (*Struct[T], error) {
	return NewAnnotatedStruct(serialName, nil, fields...)
}

// NewAnnotatedStruct 与 NewStruct 相同，并为类本身附加注解。
func NewAnnotatedStruct[T any](serialName string, annotations []any, fields ...StructField[T]) (*Struct[T], error) {
	desc, err := descriptor.BuildClass(serialName, func(b *descriptor.ClassBuilder) {
		b.Annotate(annotations...)
		for _, f := range fields {
			b.Element(f.name, f.desc, f.opts...)
		}
	})
	if err != nil {
		return nil, err
	}
	return &Struct[T]{desc: desc, fields: fields}, nil
}

// MustStruct 与 NewStruct 相同，出错时 panic。
func MustStruct[T any](serialName string, fields ...StructField[T]) *Struct[T] {
	s, err := NewStruct(serialName, fields...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Struct[T]) Descriptor() descriptor.Descriptor { return s.desc }

func (s *Struct[T]) Serialize(e Encoder, v T) error {
	ce, err := e.BeginStructure(s.desc)
	if err != nil {
		return err
	}
	for i := range s.fields {
		f := &s.fields[i]
		if f.optional && f.isDefault(&v) && !ce.ShouldEncodeElementDefault(s.desc, i) {
			continue
		}
		if err := f.encode(ce, s.desc, i, &v); err != nil {
			return err
		}
	}
	return ce.EndStructure(s.desc)
}

func (s *Struct[T]) Deserialize(d Decoder) (T, error) {
	var v T
	for i := range s.fields {
		if s.fields[i].optional {
			s.fields[i].setDefault(&v)
		}
	}
	cd, err := d.BeginStructure(s.desc)
	if err != nil {
		return v, err
	}
	if cd.DecodeSequentially() {
		for i := range s.fields {
			if err := s.fields[i].decode(cd, s.desc, i, &v); err != nil {
				return v, err
			}
		}
		return v, cd.EndStructure(s.desc)
	}
	for {
		i, err := cd.DecodeElementIndex(s.desc)
		if err != nil {
			return v, err
		}
		switch {
		case i == ElementDone:
			return v, cd.EndStructure(s.desc)
		case i == UnknownName:
			return v, merr.WrapErrUnknownKey("", s.desc.SerialName(), "format reported an undeclared element")
		case i < 0 || i >= len(s.fields):
			return v, merr.WrapErrProtocolMisuse("element index out of range", s.desc.SerialName(), "index="+strconv.Itoa(i))
		}
		if err := s.fields[i].decode(cd, s.desc, i, &v); err != nil {
			return v, err
		}
	}
}
