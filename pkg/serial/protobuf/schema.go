package protobuf

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// Number 是元素注解：指定字段号。未指定时字段号为元素下标加一。
type Number protowire.Number

// IntegerType 是元素注解：指定整数元素的编码方式。
type IntegerType int

const (
	// Varint 使用 varint，负数占 10 个字节，对应 int32/int64。
	Varint IntegerType = iota
	// Signed 使用 zigzag varint，对应 sint32/sint64。
	Signed
	// Fixed 使用定长编码，对应 sfixed32/sfixed64。
	Fixed
)

// Unpacked 是元素注解：标量列表逐个写成独立字段，而不是打包为一个字节串。
type Unpacked struct{}

// fieldInfo 是一个字段在线上的编码参数，num 为 0 表示不带标签（打包列表中的元素）。
type fieldInfo struct {
	num     protowire.Number
	integer IntegerType
	packed  bool
}

// schema 描述一个消息的字段号分配。
type schema struct {
	fields []fieldInfo
	byNum  map[protowire.Number]int
}

func buildSchema(d descriptor.Descriptor) (*schema, error) {
	n := d.ElementsCount()
	s := &schema{
		fields: make([]fieldInfo, n),
		byNum:  make(map[protowire.Number]int, n),
	}
	for i := 0; i < n; i++ {
		num := protowire.Number(i + 1)
		if v, ok := descriptor.ElementAnnotation[Number](d, i); ok {
			num = protowire.Number(v)
		}
		if !num.IsValid() {
			return nil, merr.WrapErrParameterInvalidMsg("invalid field number %d for %s.%s", num, d.SerialName(), d.ElementName(i))
		}
		if j, ok := s.byNum[num]; ok {
			return nil, merr.WrapErrParameterInvalidMsg("field number %d of %s is used by both %s and %s",
				num, d.SerialName(), d.ElementName(j), d.ElementName(i))
		}
		integer, _ := descriptor.ElementAnnotation[IntegerType](d, i)
		_, unpacked := descriptor.ElementAnnotation[Unpacked](d, i)
		s.fields[i] = fieldInfo{num: num, integer: integer, packed: !unpacked}
		s.byNum[num] = i
	}
	return s, nil
}

// 映射条目是字段号为 1（键）与 2（值）的消息。
var (
	entryKey   = fieldInfo{num: 1}
	entryValue = fieldInfo{num: 2, packed: true}
)

// packable 判断该类元素的列表能否打包编码。
func packable(k descriptor.Kind) bool {
	return k.IsPrimitive() && k != descriptor.KindString
}

// wireType 返回 k 类值在 integer 编码方式下的线上类型。
func wireType(k descriptor.Kind, integer IntegerType) protowire.Type {
	switch k {
	case descriptor.KindFloat:
		return protowire.Fixed32Type
	case descriptor.KindDouble:
		return protowire.Fixed64Type
	case descriptor.KindByte, descriptor.KindShort, descriptor.KindInt:
		if integer == Fixed {
			return protowire.Fixed32Type
		}
		return protowire.VarintType
	case descriptor.KindLong:
		if integer == Fixed {
			return protowire.Fixed64Type
		}
		return protowire.VarintType
	case descriptor.KindBoolean, descriptor.KindChar, descriptor.KindEnum:
		return protowire.VarintType
	}
	return protowire.BytesType
}

func wireTypeName(t protowire.Type) string {
	switch t {
	case protowire.VarintType:
		return "varint"
	case protowire.Fixed32Type:
		return "fixed32"
	case protowire.Fixed64Type:
		return "fixed64"
	case protowire.BytesType:
		return "length-delimited"
	case protowire.StartGroupType, protowire.EndGroupType:
		return "group"
	}
	return "unknown wire type"
}
