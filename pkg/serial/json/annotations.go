package json

import (
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// AlternativeNames 是元素注解：解码时除元素名外还接受这些键。
type AlternativeNames []string

// Names 创建 AlternativeNames 注解。
func Names(names ...string) AlternativeNames {
	return AlternativeNames(names)
}

// ClassDiscriminator 是多态描述符上的注解，为该家族单独指定鉴别字段名。
type ClassDiscriminator string

// Discriminator 创建 ClassDiscriminator 注解。
func Discriminator(key string) ClassDiscriminator {
	return ClassDiscriminator(key)
}

// nameIndex 为带别名描述符构建的键到下标映射，nil 表示该描述符没有别名。
type nameIndex map[string]int

func buildNameIndex(d descriptor.Descriptor) (nameIndex, error) {
	var idx nameIndex
	for i := 0; i < d.ElementsCount(); i++ {
		names, ok := descriptor.ElementAnnotation[AlternativeNames](d, i)
		if !ok {
			continue
		}
		if idx == nil {
			idx = make(nameIndex, d.ElementsCount())
			for j := 0; j < d.ElementsCount(); j++ {
				idx[d.ElementName(j)] = j
			}
		}
		for _, name := range names {
			if j, ok := idx[name]; ok && j != i {
				return nil, merr.WrapErrParameterInvalidMsg("alternative name %q of %s.%s is already used by %s",
					name, d.SerialName(), d.ElementName(i), d.ElementName(j))
			}
			idx[name] = i
		}
	}
	return idx, nil
}
