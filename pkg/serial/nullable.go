package serial

import (
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
)

type nullableSerializer[T any] struct {
	inner Serializer[T]
	desc  descriptor.Descriptor
}

// Nullable 以 *T 表示可空值，nil 对应 null。
func Nullable[T any](s Serializer[T]) Serializer[*T] {
	return nullableSerializer[T]{inner: s, desc: descriptor.Nullable(s.Descriptor())}
}

func (s nullableSerializer[T]) Descriptor() descriptor.Descriptor { return s.desc }

func (s nullableSerializer[T]) Serialize(e Encoder, v *T) error {
	return encodeNullable(e, s.inner, v)
}

func (s nullableSerializer[T]) Deserialize(d Decoder) (*T, error) {
	return decodeNullable(d, s.inner)
}
