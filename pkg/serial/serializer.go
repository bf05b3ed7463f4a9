package serial

import (
	"fmt"

	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// Serializer 将类型 T 的描述符与其编解码逻辑绑定在一起。
// 实现必须是无状态的，可以被多个会话并发使用。
type Serializer[T any] interface {
	Descriptor() descriptor.Descriptor
	Serialize(e Encoder, v T) error
	Deserialize(d Decoder) (T, error)
}

type erased[T any] struct {
	inner Serializer[T]
}

// Erase 将 Serializer[T] 转换为接受任意值的 Serializer[any]。
// 编码时传入的值必须是 T 类型。
func Erase[T any](s Serializer[T]) Serializer[any] {
	if e, ok := any(s).(Serializer[any]); ok {
		return e
	}
	return erased[T]{inner: s}
}

func (s erased[T]) Descriptor() descriptor.Descriptor {
	return s.inner.Descriptor()
}

func (s erased[T]) Serialize(e Encoder, v any) error {
	t, ok := v.(T)
	if !ok {
		return merr.WrapErrEncodeFailed(fmt.Sprintf("value of type %T is not %s", v, s.inner.Descriptor().SerialName()))
	}
	return s.inner.Serialize(e, t)
}

func (s erased[T]) Deserialize(d Decoder) (any, error) {
	v, err := s.inner.Deserialize(d)
	if err != nil {
		return nil, err
	}
	return v, nil
}

type funcSerializer[T any] struct {
	desc        descriptor.Descriptor
	serialize   func(Encoder, T) error
	deserialize func(Decoder) (T, error)
}

// SerializerFunc 由描述符与一对函数构造一个 Serializer。
func SerializerFunc[T any](d descriptor.Descriptor, serialize func(Encoder, T) error, deserialize func(Decoder) (T, error)) Serializer[T] {
	return funcSerializer[T]{desc: d, serialize: serialize, deserialize: deserialize}
}

func (s funcSerializer[T]) Descriptor() descriptor.Descriptor { return s.desc }
func (s funcSerializer[T]) Serialize(e Encoder, v T) error    { return s.serialize(e, v) }
func (s funcSerializer[T]) Deserialize(d Decoder) (T, error)  { return s.deserialize(d) }

// Transform 将 Serializer[F] 适配为 Serializer[T]，常用于以已有表示承载新类型。
// 描述符保持为 s 的描述符。
func Transform[T, F any](s Serializer[F], to func(T) (F, error), from func(F) (T, error)) Serializer[T] {
	return SerializerFunc(s.Descriptor(),
		func(e Encoder, v T) error {
			f, err := to(v)
			if err != nil {
				return err
			}
			return s.Serialize(e, f)
		},
		func(d Decoder) (T, error) {
			f, err := s.Deserialize(d)
			if err != nil {
				var zero T
				return zero, err
			}
			return from(f)
		})
}
