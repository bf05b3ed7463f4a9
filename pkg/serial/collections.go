package serial

import (
	"cmp"
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

type listSerializer[T any] struct {
	elem Serializer[T]
	desc descriptor.Descriptor
}

// List 返回元素类型为 T 的切片序列化器。
func List[T any](elem Serializer[T]) Serializer[[]T] {
	return listSerializer[T]{elem: elem, desc: descriptor.ListOf(elem.Descriptor())}
}

func (s listSerializer[T]) Descriptor() descriptor.Descriptor { return s.desc }

func (s listSerializer[T]) Serialize(e Encoder, v []T) error {
	ce, err := e.BeginCollection(s.desc, len(v))
	if err != nil {
		return err
	}
	for i := range v {
		if err := EncodeSerializableElement(ce, s.desc, i, s.elem, v[i]); err != nil {
			return err
		}
	}
	return ce.EndStructure(s.desc)
}

func (s listSerializer[T]) Deserialize(d Decoder) ([]T, error) {
	cd, err := d.BeginStructure(s.desc)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0)
	if cd.DecodeSequentially() {
		size, err := cd.DecodeCollectionSize(s.desc)
		if err != nil {
			return nil, err
		}
		out = make([]T, 0, max(size, 0))
		for i := 0; i < size; i++ {
			v, err := DecodeSerializableElement(cd, s.desc, i, s.elem)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, cd.EndStructure(s.desc)
	}
	for {
		i, err := cd.DecodeElementIndex(s.desc)
		if err != nil {
			return nil, err
		}
		if i == ElementDone {
			break
		}
		v, err := DecodeSerializableElement(cd, s.desc, i, s.elem)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, cd.EndStructure(s.desc)
}

type mapSerializer[K cmp.Ordered, V any] struct {
	key   Serializer[K]
	value Serializer[V]
	desc  descriptor.Descriptor
}

// Map 返回 map[K]V 的序列化器。编码时按键升序输出，保证结果稳定。
func Map[K cmp.Ordered, V any](key Serializer[K], value Serializer[V]) Serializer[map[K]V] {
	return mapSerializer[K, V]{
		key:   key,
		value: value,
		desc:  descriptor.MapOf(key.Descriptor(), value.Descriptor()),
	}
}

func (s mapSerializer[K, V]) Descriptor() descriptor.Descriptor { return s.desc }

func (s mapSerializer[K, V]) Serialize(e Encoder, v map[K]V) error {
	ce, err := e.BeginCollection(s.desc, len(v))
	if err != nil {
		return err
	}
	keys := lo.Keys(v)
	slices.Sort(keys)
	for i, k := range keys {
		if err := EncodeSerializableElement(ce, s.desc, 2*i, s.key, k); err != nil {
			return err
		}
		if err := EncodeSerializableElement(ce, s.desc, 2*i+1, s.value, v[k]); err != nil {
			return err
		}
	}
	return ce.EndStructure(s.desc)
}

func (s mapSerializer[K, V]) Deserialize(d Decoder) (map[K]V, error) {
	cd, err := d.BeginStructure(s.desc)
	if err != nil {
		return nil, err
	}
	out := make(map[K]V)
	if cd.DecodeSequentially() {
		size, err := cd.DecodeCollectionSize(s.desc)
		if err != nil {
			return nil, err
		}
		for i := 0; i < size; i++ {
			if err := s.decodeEntry(cd, 2*i, out); err != nil {
				return nil, err
			}
		}
		return out, cd.EndStructure(s.desc)
	}
	for {
		i, err := cd.DecodeElementIndex(s.desc)
		if err != nil {
			return nil, err
		}
		if i == ElementDone {
			break
		}
		if err := s.decodeEntry(cd, i, out); err != nil {
			return nil, err
		}
	}
	return out, cd.EndStructure(s.desc)
}

// decodeEntry 读取下标 i（键）与 i+1（值）组成的一个键值对。
func (s mapSerializer[K, V]) decodeEntry(cd CompositeDecoder, i int, out map[K]V) error {
	k, err := DecodeSerializableElement(cd, s.desc, i, s.key)
	if err != nil {
		return err
	}
	if !cd.DecodeSequentially() {
		j, err := cd.DecodeElementIndex(s.desc)
		if err != nil {
			return err
		}
		if j != i+1 {
			return errMapValueExpected(s.desc, i, j)
		}
	}
	v, err := DecodeSerializableElement(cd, s.desc, i+1, s.value)
	if err != nil {
		return err
	}
	out[k] = v
	return nil
}

func errMapValueExpected(d descriptor.Descriptor, keyIndex, got int) error {
	return merr.WrapErrMalformedInput("", -1,
		fmt.Sprintf("value for map key #%d of %s expected, got element %d", keyIndex/2, d.SerialName(), got))
}
