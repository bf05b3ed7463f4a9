package serial

import (
	"strconv"

	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

type enumSerializer[E ~int] struct {
	desc descriptor.Descriptor
}

// EnumOf 返回以序号表示的枚举序列化器，E 的取值即 values 中的下标。
func EnumOf[E ~int](serialName string, values ...string) Serializer[E] {
	return enumSerializer[E]{desc: descriptor.Enum(serialName, values...)}
}

// EnumFor 使用已构造好的枚举描述符创建序列化器。
func EnumFor[E ~int](d descriptor.Descriptor) Serializer[E] {
	return enumSerializer[E]{desc: d}
}

func (s enumSerializer[E]) Descriptor() descriptor.Descriptor { return s.desc }

func (s enumSerializer[E]) Serialize(e Encoder, v E) error {
	if int(v) < 0 || int(v) >= s.desc.ElementsCount() {
		return merr.WrapErrEncodeFailed("enum ordinal out of range",
			s.desc.SerialName(), "ordinal="+strconv.Itoa(int(v)))
	}
	return e.EncodeEnum(s.desc, int(v))
}

func (s enumSerializer[E]) Deserialize(d Decoder) (E, error) {
	i, err := d.DecodeEnum(s.desc)
	if err != nil {
		return 0, err
	}
	return E(i), nil
}
