package serial

import (
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
)

type inlineSerializer[T, F any] struct {
	inner  Serializer[F]
	desc   descriptor.Descriptor
	wrap   func(F) T
	unwrap func(T) F
}

// Inline 返回值包装类型的序列化器：T 在数据中直接表示为其唯一字段 F。
func Inline[T, F any](serialName string, inner Serializer[F], wrap func(F) T, unwrap func(T) F) Serializer[T] {
	return inlineSerializer[T, F]{
		inner: inner,
		desc: descriptor.MustBuildClass(serialName, func(b *descriptor.ClassBuilder) {
			b.Inline().Element("value", inner.Descriptor())
		}),
		wrap:   wrap,
		unwrap: unwrap,
	}
}

func (s inlineSerializer[T, F]) Descriptor() descriptor.Descriptor { return s.desc }

func (s inlineSerializer[T, F]) Serialize(e Encoder, v T) error {
	ie, err := e.EncodeInline(s.desc)
	if err != nil {
		return err
	}
	return s.inner.Serialize(ie, s.unwrap(v))
}

func (s inlineSerializer[T, F]) Deserialize(d Decoder) (T, error) {
	id, err := d.DecodeInline(s.desc)
	if err != nil {
		var zero T
		return zero, err
	}
	f, err := s.inner.Deserialize(id)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.wrap(f), nil
}
