package tree

import (
	"fmt"
	"unicode/utf8"

	"github.com/samber/lo"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
	"github.com/lk2023060901/serialkit/pkg/util/typeutil"
)

type decoder struct {
	sess  *session
	value any
	// text 表示 value 来自映射的键，数值与布尔以字符串形式出现。
	text bool
}

var (
	_ serial.Decoder            = (*decoder)(nil)
	_ serial.PolymorphicDecoder = (*decoder)(nil)
)

func (d *decoder) mismatch(expected string) error {
	return merr.WrapErrUnexpectedToken(d.sess.stack.Path(), -1, expected, typeName(d.value))
}

func (d *decoder) DecodeBool() (bool, error) {
	switch x := d.value.(type) {
	case bool:
		return x, nil
	case string:
		if d.text && (x == "true" || x == "false") {
			return x == "true", nil
		}
	}
	return false, d.mismatch("boolean")
}

func decodeSigned[T constraints.Signed](d *decoder) (T, error) {
	x, ok := toInt64(d.value, d.text)
	if !ok {
		return 0, d.mismatch("integer")
	}
	v, ok := typeutil.Narrow[T](x)
	if !ok {
		lower, upper := typeutil.Bounds[T]()
		return 0, merr.WrapErrNumericOverflow(d.sess.stack.Path(), fmt.Sprint(x), lower, upper)
	}
	return v, nil
}

func (d *decoder) DecodeInt8() (int8, error)   { return decodeSigned[int8](d) }
func (d *decoder) DecodeInt16() (int16, error) { return decodeSigned[int16](d) }
func (d *decoder) DecodeInt32() (int32, error) { return decodeSigned[int32](d) }
func (d *decoder) DecodeInt64() (int64, error) { return decodeSigned[int64](d) }

func (d *decoder) DecodeFloat32() (float32, error) {
	f, err := d.DecodeFloat64()
	return float32(f), err
}

func (d *decoder) DecodeFloat64() (float64, error) {
	f, ok := toFloat64(d.value, d.text)
	if !ok {
		return 0, d.mismatch("number")
	}
	return f, nil
}

func (d *decoder) DecodeChar() (rune, error) {
	s, ok := d.value.(string)
	if !ok || utf8.RuneCountInString(s) != 1 {
		return 0, d.mismatch("single character string")
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func (d *decoder) DecodeString() (string, error) {
	s, ok := d.value.(string)
	if !ok {
		return "", d.mismatch("string")
	}
	return s, nil
}

func (d *decoder) DecodeEnum(desc descriptor.Descriptor) (int, error) {
	s, ok := d.value.(string)
	if !ok {
		return 0, d.mismatch("enum name")
	}
	i := desc.ElementIndex(s)
	if i == descriptor.UnknownName {
		return 0, merr.WrapErrMalformedInput(d.sess.stack.Path(), -1,
			fmt.Sprintf("%q is not a value of enum %s", s, desc.SerialName()))
	}
	return i, nil
}

func (d *decoder) DecodeNotNullMark() (bool, error) {
	return d.value != nil, nil
}

func (d *decoder) DecodeNull() error {
	if d.value != nil {
		return d.mismatch("null")
	}
	return nil
}

func (d *decoder) DecodeInline(descriptor.Descriptor) (serial.Decoder, error) {
	return d, nil
}

func (d *decoder) Module() *serial.Module {
	return d.sess.cfg.module
}

func (d *decoder) BeginStructure(desc descriptor.Descriptor) (serial.CompositeDecoder, error) {
	inner := desc.Unwrap()
	pending := d.sess.takePending()
	c := &compositeDecoder{sess: d.sess, kind: inner.Kind()}
	size := serial.UnknownSize
	switch c.kind {
	case descriptor.KindList:
		list, ok := d.value.([]any)
		if !ok {
			return nil, d.mismatch("array")
		}
		c.list = list
		size = len(list)
	default:
		obj, ok := d.value.(map[string]any)
		if !ok {
			return nil, d.mismatch("object")
		}
		c.obj = obj
		c.keys = lo.Keys(obj)
		slices.Sort(c.keys)
		if c.kind == descriptor.KindMap {
			size = 2 * len(obj)
		}
	}
	if pending != nil {
		c.skip = pending.key
	}
	if err := d.sess.stack.Push(inner, size); err != nil {
		return nil, err
	}
	c.depth = d.sess.stack.Depth()
	return c, nil
}

func (d *decoder) DecodePolymorphic(base descriptor.Descriptor, resolve serial.SubtypeResolver, payload func(serial.Subtype, serial.Decoder) error) error {
	obj, ok := d.value.(map[string]any)
	if !ok {
		return d.mismatch("object")
	}
	key := d.sess.cfg.discriminator
	raw, ok := obj[key]
	if !ok {
		return merr.WrapErrMissingDiscriminator(base.SerialName(), key)
	}
	disc, ok := raw.(string)
	if !ok {
		return merr.WrapErrUnexpectedToken(d.sess.stack.Path(), -1, "discriminator string", typeName(raw))
	}
	sub, err := resolve(disc)
	if err != nil {
		return err
	}
	if !sub.IsClass() {
		return serial.DecodePolymorphicDefault(d, base, resolve, payload)
	}
	d.sess.pending = &pendingDiscriminator{key: key, value: disc}
	return payload(sub, d)
}

type compositeDecoder struct {
	sess  *session
	kind  descriptor.Kind
	list  []any
	obj   map[string]any
	keys  []string
	pos   int
	skip  string
	depth int
}

func (c *compositeDecoder) DecodeSequentially() bool {
	return c.kind == descriptor.KindList
}

func (c *compositeDecoder) DecodeCollectionSize(descriptor.Descriptor) (int, error) {
	switch c.kind {
	case descriptor.KindList:
		return len(c.list), nil
	case descriptor.KindMap:
		return len(c.keys), nil
	default:
		return serial.UnknownSize, nil
	}
}

func (c *compositeDecoder) DecodeElementIndex(d descriptor.Descriptor) (int, error) {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return 0, err
	}
	switch c.kind {
	case descriptor.KindList:
		if c.pos >= len(c.list) {
			return serial.ElementDone, nil
		}
		c.pos++
		return c.pos - 1, nil
	case descriptor.KindMap:
		if c.pos >= 2*len(c.keys) {
			return serial.ElementDone, nil
		}
		c.pos++
		return c.pos - 1, nil
	}
	for c.pos < len(c.keys) {
		key := c.keys[c.pos]
		c.pos++
		if key == c.skip {
			continue
		}
		c.sess.stack.Top().SetKey(key)
		i := d.ElementIndex(key)
		if i == descriptor.UnknownName {
			if c.sess.cfg.ignoreUnknownKeys {
				continue
			}
			return 0, merr.WrapErrUnknownKey(c.sess.stack.Path(), key)
		}
		if err := c.sess.stack.MarkDecoded(i); err != nil {
			return 0, err
		}
		return i, nil
	}
	return serial.ElementDone, nil
}

func (c *compositeDecoder) DecodeElement(d descriptor.Descriptor, i int) (serial.Decoder, error) {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return nil, err
	}
	switch c.kind {
	case descriptor.KindList:
		if i < 0 || i >= len(c.list) {
			return nil, merr.WrapErrProtocolMisuse("list element index out of range", d.SerialName())
		}
		if err := c.sess.stack.MarkDecoded(i); err != nil {
			return nil, err
		}
		return &decoder{sess: c.sess, value: c.list[i]}, nil
	case descriptor.KindMap:
		if i < 0 || i/2 >= len(c.keys) {
			return nil, merr.WrapErrProtocolMisuse("map element index out of range", d.SerialName())
		}
		if err := c.sess.stack.MarkDecoded(i); err != nil {
			return nil, err
		}
		key := c.keys[i/2]
		if i%2 == 0 {
			c.sess.stack.Top().SetLabel(key)
			return &decoder{sess: c.sess, value: key, text: true}, nil
		}
		return &decoder{sess: c.sess, value: c.obj[key]}, nil
	default:
		return &decoder{sess: c.sess, value: c.obj[d.ElementName(i)]}, nil
	}
}

func (c *compositeDecoder) EndStructure(d descriptor.Descriptor) error {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return err
	}
	f, err := c.sess.stack.Pop(d)
	if err != nil {
		return err
	}
	return serial.CheckMissing(f, !c.sess.cfg.explicitNulls)
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		if _, ok := toFloat64(v, false); ok {
			return "number"
		}
		return fmt.Sprintf("%T", v)
	}
}
