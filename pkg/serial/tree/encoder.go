package tree

import (
	"strconv"

	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

type encoder struct {
	sess *session
	put  func(any)
}

var (
	_ serial.Encoder            = (*encoder)(nil)
	_ serial.PolymorphicEncoder = (*encoder)(nil)
)

func (e *encoder) value(v any) error {
	e.put(v)
	return nil
}

func (e *encoder) EncodeBool(v bool) error       { return e.value(v) }
func (e *encoder) EncodeInt8(v int8) error       { return e.value(int64(v)) }
func (e *encoder) EncodeInt16(v int16) error     { return e.value(int64(v)) }
func (e *encoder) EncodeInt32(v int32) error     { return e.value(int64(v)) }
func (e *encoder) EncodeInt64(v int64) error     { return e.value(v) }
func (e *encoder) EncodeFloat32(v float32) error { return e.value(float64(v)) }
func (e *encoder) EncodeFloat64(v float64) error { return e.value(v) }
func (e *encoder) EncodeChar(v rune) error       { return e.value(string(v)) }
func (e *encoder) EncodeString(v string) error   { return e.value(v) }
func (e *encoder) EncodeNull() error             { return e.value(nil) }
func (e *encoder) EncodeNotNullMark() error      { return nil }
func (e *encoder) Module() *serial.Module        { return e.sess.cfg.module }

func (e *encoder) EncodeEnum(d descriptor.Descriptor, index int) error {
	return e.value(d.ElementName(index))
}

func (e *encoder) EncodeInline(descriptor.Descriptor) (serial.Encoder, error) {
	return e, nil
}

func (e *encoder) BeginStructure(d descriptor.Descriptor) (serial.CompositeEncoder, error) {
	return e.begin(d, serial.UnknownSize)
}

func (e *encoder) BeginCollection(d descriptor.Descriptor, size int) (serial.CompositeEncoder, error) {
	if d.Unwrap().Kind() == descriptor.KindMap && size >= 0 {
		size *= 2
	}
	return e.begin(d, size)
}

func (e *encoder) begin(d descriptor.Descriptor, size int) (serial.CompositeEncoder, error) {
	inner := d.Unwrap()
	pending := e.sess.takePending()
	if err := e.sess.stack.Push(inner, size); err != nil {
		return nil, err
	}
	c := &compositeEncoder{sess: e.sess, kind: inner.Kind(), put: e.put, depth: e.sess.stack.Depth()}
	switch c.kind {
	case descriptor.KindList:
		c.list = make([]any, 0, max(size, 0))
	default:
		c.obj = make(map[string]any, inner.ElementsCount())
		e.put(c.obj)
	}
	if pending != nil && c.obj != nil {
		if inner.ElementIndex(pending.key) != descriptor.UnknownName {
			return nil, merr.WrapErrDiscriminatorConflict(inner.SerialName(), pending.key)
		}
		c.obj[pending.key] = pending.value
	}
	return c, nil
}

func (e *encoder) EncodePolymorphic(base descriptor.Descriptor, sub serial.Subtype, payload func(serial.Encoder) error) error {
	if !sub.IsClass() {
		return serial.EncodePolymorphicDefault(e, base, sub, payload)
	}
	e.sess.pending = &pendingDiscriminator{key: e.sess.cfg.discriminator, value: sub.Discriminator}
	return payload(e)
}

type compositeEncoder struct {
	sess  *session
	kind  descriptor.Kind
	obj   map[string]any
	list  []any
	key   string
	put   func(any)
	depth int
}

func (c *compositeEncoder) EncodeElement(d descriptor.Descriptor, i int) (serial.Encoder, error) {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return nil, err
	}
	if err := c.sess.stack.MarkEncoded(i); err != nil {
		return nil, err
	}
	switch c.kind {
	case descriptor.KindList:
		idx := len(c.list)
		c.list = append(c.list, nil)
		return &encoder{sess: c.sess, put: func(v any) { c.list[idx] = v }}, nil
	case descriptor.KindMap:
		if i%2 == 0 {
			return &encoder{sess: c.sess, put: func(v any) { c.key = keyString(v) }}, nil
		}
		key := c.key
		return &encoder{sess: c.sess, put: func(v any) { c.obj[key] = v }}, nil
	default:
		name := d.ElementName(i)
		return &encoder{sess: c.sess, put: func(v any) {
			if v == nil && !c.sess.cfg.explicitNulls {
				return
			}
			c.obj[name] = v
		}}, nil
	}
}

func (c *compositeEncoder) ShouldEncodeElementDefault(descriptor.Descriptor, int) bool {
	return c.sess.cfg.encodeDefaults
}

func (c *compositeEncoder) EndStructure(d descriptor.Descriptor) error {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return err
	}
	if _, err := c.sess.stack.Pop(d); err != nil {
		return err
	}
	if c.kind == descriptor.KindList {
		c.put(c.list)
	}
	return nil
}

func keyString(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return ""
	}
}
