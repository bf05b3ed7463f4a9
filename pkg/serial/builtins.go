package serial

import (
	"strconv"

	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

type boolSerializer struct{}

func (boolSerializer) Descriptor() descriptor.Descriptor   { return descriptor.Boolean }
func (boolSerializer) Serialize(e Encoder, v bool) error   { return e.EncodeBool(v) }
func (boolSerializer) Deserialize(d Decoder) (bool, error) { return d.DecodeBool() }

type int8Serializer struct{}

func (int8Serializer) Descriptor() descriptor.Descriptor   { return descriptor.Byte }
func (int8Serializer) Serialize(e Encoder, v int8) error   { return e.EncodeInt8(v) }
func (int8Serializer) Deserialize(d Decoder) (int8, error) { return d.DecodeInt8() }

type int16Serializer struct{}

func (int16Serializer) Descriptor() descriptor.Descriptor    { return descriptor.Short }
func (int16Serializer) Serialize(e Encoder, v int16) error   { return e.EncodeInt16(v) }
func (int16Serializer) Deserialize(d Decoder) (int16, error) { return d.DecodeInt16() }

type int32Serializer struct{}

func (int32Serializer) Descriptor() descriptor.Descriptor    { return descriptor.Int }
func (int32Serializer) Serialize(e Encoder, v int32) error   { return e.EncodeInt32(v) }
func (int32Serializer) Deserialize(d Decoder) (int32, error) { return d.DecodeInt32() }

type int64Serializer struct{}

func (int64Serializer) Descriptor() descriptor.Descriptor    { return descriptor.Long }
func (int64Serializer) Serialize(e Encoder, v int64) error   { return e.EncodeInt64(v) }
func (int64Serializer) Deserialize(d Decoder) (int64, error) { return d.DecodeInt64() }

type intSerializer struct{}

func (intSerializer) Descriptor() descriptor.Descriptor { return descriptor.Long }
func (intSerializer) Serialize(e Encoder, v int) error  { return e.EncodeInt64(int64(v)) }

func (intSerializer) Deserialize(d Decoder) (int, error) {
	v, err := d.DecodeInt64()
	if err != nil {
		return 0, err
	}
	if int64(int(v)) != v {
		return 0, merr.WrapErrNumericOverflow("", strconv.FormatInt(v, 10), minInt, maxInt)
	}
	return int(v), nil
}

const (
	maxInt = int(^uint(0) >> 1)
	minInt = -maxInt - 1
)

type float32Serializer struct{}

func (float32Serializer) Descriptor() descriptor.Descriptor      { return descriptor.Float }
func (float32Serializer) Serialize(e Encoder, v float32) error   { return e.EncodeFloat32(v) }
func (float32Serializer) Deserialize(d Decoder) (float32, error) { return d.DecodeFloat32() }

type float64Serializer struct{}

func (float64Serializer) Descriptor() descriptor.Descriptor      { return descriptor.Double }
func (float64Serializer) Serialize(e Encoder, v float64) error   { return e.EncodeFloat64(v) }
func (float64Serializer) Deserialize(d Decoder) (float64, error) { return d.DecodeFloat64() }

type charSerializer struct{}

func (charSerializer) Descriptor() descriptor.Descriptor   { return descriptor.Char }
func (charSerializer) Serialize(e Encoder, v rune) error   { return e.EncodeChar(v) }
func (charSerializer) Deserialize(d Decoder) (rune, error) { return d.DecodeChar() }

type stringSerializer struct{}

func (stringSerializer) Descriptor() descriptor.Descriptor     { return descriptor.String }
func (stringSerializer) Serialize(e Encoder, v string) error   { return e.EncodeString(v) }
func (stringSerializer) Deserialize(d Decoder) (string, error) { return d.DecodeString() }

// 内置基础类型的序列化器。Int 以 64 位整数编码。
var (
	Bool    Serializer[bool]    = boolSerializer{}
	Int8    Serializer[int8]    = int8Serializer{}
	Int16   Serializer[int16]   = int16Serializer{}
	Int32   Serializer[int32]   = int32Serializer{}
	Int64   Serializer[int64]   = int64Serializer{}
	Int     Serializer[int]     = intSerializer{}
	Float32 Serializer[float32] = float32Serializer{}
	Float64 Serializer[float64] = float64Serializer{}
	Char    Serializer[rune]    = charSerializer{}
	String  Serializer[string]  = stringSerializer{}
)
