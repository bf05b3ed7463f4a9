package json

import (
	"strconv"

	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// Element 是任意 JSON 值的通用树表示，取值为 *Object、Array、String、Number、Bool 或 Null。
type Element interface {
	element()
}

// Object 是保持键插入顺序的 JSON 对象。
type Object struct {
	keys   []string
	values map[string]Element
}

func NewObject() *Object {
	return &Object{values: make(map[string]Element)}
}

// Set 设置 key 的值，已存在的键保持原有位置。
func (o *Object) Set(key string, v Element) {
	if _, ok := o.values[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.values[key] = v
}

func (o *Object) Get(key string) (Element, bool) {
	v, ok := o.values[key]
	return v, ok
}

// Keys 按插入顺序返回全部键。
func (o *Object) Keys() []string {
	return append([]string(nil), o.keys...)
}

func (o *Object) Len() int {
	return len(o.keys)
}

type (
	Array  []Element
	String string
	// Number 保留数字的原文，避免精度损失。
	Number string
	Bool   bool
	Null   struct{}
)

func (*Object) element() {}
func (Array) element()   {}
func (String) element()  {}
func (Number) element()  {}
func (Bool) element()    {}
func (Null) element()    {}

// Int64 将数字解析为 int64。
func (n Number) Int64() (int64, error) {
	return strconv.ParseInt(string(n), 10, 64)
}

// Float64 将数字解析为 float64。
func (n Number) Float64() (float64, error) {
	return strconv.ParseFloat(string(n), 64)
}

var (
	elementDescriptor = descriptor.MustBuildClass("json.Element", nil)
	elementObject     = descriptor.MapOf(descriptor.String, elementDescriptor)
	elementArray      = descriptor.ListOf(elementDescriptor)
)

// ElementSerializer 在 Element 与 JSON 之间转换。编码可以用于任何格式，解码只支持 JSON。
var ElementSerializer serial.Serializer[Element] = elementSerializer{}

type elementSerializer struct{}

func (elementSerializer) Descriptor() descriptor.Descriptor {
	return elementDescriptor
}

func (s elementSerializer) Serialize(e serial.Encoder, v Element) error {
	switch x := v.(type) {
	case nil, Null:
		return e.EncodeNull()
	case Bool:
		return e.EncodeBool(bool(x))
	case String:
		return e.EncodeString(string(x))
	case Number:
		if je, ok := e.(*encoder); ok {
			return je.rawNumber(string(x))
		}
		if i, err := x.Int64(); err == nil {
			return e.EncodeInt64(i)
		}
		f, err := x.Float64()
		if err != nil {
			return merr.WrapErrEncodeFailed("invalid number literal", string(x))
		}
		return e.EncodeFloat64(f)
	case Array:
		ce, err := e.BeginCollection(elementArray, len(x))
		if err != nil {
			return err
		}
		for i, item := range x {
			if err := serial.EncodeSerializableElement[Element](ce, elementArray, i, s, item); err != nil {
				return err
			}
		}
		return ce.EndStructure(elementArray)
	case *Object:
		ce, err := e.BeginCollection(elementObject, x.Len())
		if err != nil {
			return err
		}
		for i, key := range x.keys {
			if err := serial.EncodeStringElement(ce, elementObject, 2*i, key); err != nil {
				return err
			}
			if err := serial.EncodeSerializableElement[Element](ce, elementObject, 2*i+1, s, x.values[key]); err != nil {
				return err
			}
		}
		return ce.EndStructure(elementObject)
	}
	return merr.WrapErrEncodeFailed("unknown json element type")
}

func (elementSerializer) Deserialize(d serial.Decoder) (Element, error) {
	jd, ok := d.(*decoder)
	if !ok {
		return nil, merr.WrapErrUnsupportedShape("", elementDescriptor.SerialName(), "json elements can only be decoded from json")
	}
	if jd.key != nil {
		return String(*jd.key), nil
	}
	return parseElement(jd.sess, 0)
}

func parseElement(sess *decodeSession, depth int) (Element, error) {
	lex := sess.lex
	if depth >= lex.maxDepth {
		return nil, merr.WrapErrDepthExceeded(depth+1, lex.maxDepth)
	}
	t, err := lex.next()
	if err != nil {
		return nil, err
	}
	switch t.kind {
	case tokNull:
		return Null{}, nil
	case tokTrue, tokFalse:
		return Bool(t.kind == tokTrue), nil
	case tokNumber:
		return Number(t.text), nil
	case tokString, tokLiteral:
		return String(t.text), nil
	case tokBeginArray:
		arr := Array{}
		for first := true; ; first = false {
			ok, err := nextMember(lex, tokEndArray, first)
			if err != nil || !ok {
				return arr, err
			}
			v, err := parseElement(sess, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
	case tokBeginObject:
		obj := NewObject()
		for first := true; ; first = false {
			ok, err := nextMember(lex, tokEndObject, first)
			if err != nil || !ok {
				return obj, err
			}
			kt, err := lex.next()
			if err != nil {
				return nil, err
			}
			if !kt.stringLike(lex.lenient) {
				return nil, lex.unexpected(kt, "object key")
			}
			if _, err := lex.expect(tokColon); err != nil {
				return nil, err
			}
			v, err := parseElement(sess, depth+1)
			if err != nil {
				return nil, err
			}
			obj.Set(kt.text, v)
		}
	}
	return nil, lex.unexpected(t, "value")
}

// nextMember 处理数组或对象成员之间的逗号，遇到 end 时消费它并返回 false。
func nextMember(lex *lexer, end tokenKind, first bool) (bool, error) {
	t, err := lex.peek()
	if err != nil {
		return false, err
	}
	if !first && t.kind != end {
		if t.kind != tokComma {
			return false, lex.unexpected(t, "',' or "+end.String())
		}
		_, _ = lex.next()
		if t, err = lex.peek(); err != nil {
			return false, err
		}
		if t.kind == end && !lex.lenient {
			return false, lex.malformed(t.offset, "trailing comma")
		}
	}
	if t.kind == end {
		_, _ = lex.next()
		return false, nil
	}
	return true, nil
}

// ParseElement 将 JSON 文本解析为 Element。
func ParseElement(f *Format, data []byte) (Element, error) {
	return DecodeFromBytes(f, ElementSerializer, data)
}
