package json

import (
	"bufio"
	"math"
	"strconv"

	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

type encodeSession struct {
	f     *Format
	conf  *Configuration
	out   composer
	stack *serial.RegionStack
	// pending 为下一次打开类区域时需要首先写出的鉴别字段。
	pending *discriminatorField
}

type discriminatorField struct {
	key   string
	value string
}

func (f *Format) newEncodeSession(w *bufio.Writer) *encodeSession {
	return &encodeSession{
		f:    f,
		conf: &f.conf,
		out: composer{
			w:              w,
			pretty:         f.conf.PrettyPrint,
			indent:         f.conf.PrettyPrintIndent,
			escapeNonASCII: f.conf.EscapeNonASCII,
		},
		stack: serial.NewRegionStack(f.conf.MaxDepth),
	}
}

func (s *encodeSession) root() *encoder {
	return &encoder{sess: s}
}

func (s *encodeSession) takePending() *discriminatorField {
	p := s.pending
	s.pending = nil
	return p
}

// encoder 写出一个值。位于区域内时，元素前缀（逗号、缩进与键）在第一次写入时才输出，
// 这样 explicitNulls=false 时可以完整地省略一个 null 元素。
type encoder struct {
	sess   *encodeSession
	parent *compositeEncoder
	index  int
	opened bool
	// key 表示该值是映射的键，只允许基础类型，输出时总是带引号。
	key bool
}

var (
	_ serial.Encoder            = (*encoder)(nil)
	_ serial.PolymorphicEncoder = (*encoder)(nil)
)

func (e *encoder) open() {
	if e.parent == nil || e.opened {
		return
	}
	e.opened = true
	e.parent.prefix(e.index)
}

// literal 写出基础类型的文本，映射键位置加引号。
func (e *encoder) literal(text string) error {
	e.open()
	if e.key {
		e.sess.out.char('"')
		e.sess.out.raw(text)
		e.sess.out.char('"')
		return nil
	}
	e.sess.out.raw(text)
	return nil
}

func (e *encoder) integer(v int64) error {
	if e.key {
		return e.literal(strconv.FormatInt(v, 10))
	}
	e.open()
	e.sess.out.integer(v)
	return nil
}

func (e *encoder) float(v float64, bits int) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		if !e.sess.conf.AllowSpecialFloatingPointValues {
			return merr.WrapErrSpecialFloat(e.sess.stack.Path(), v)
		}
		e.open()
		switch {
		case math.IsNaN(v):
			e.sess.out.quoted(nanLiteral)
		case v > 0:
			e.sess.out.quoted(infLiteral)
		default:
			e.sess.out.quoted(negInfLiteral)
		}
		return nil
	}
	if e.key {
		return e.literal(string(appendFloat(nil, v, bits)))
	}
	e.open()
	e.sess.out.float(v, bits)
	return nil
}

func (e *encoder) EncodeBool(v bool) error       { return e.literal(strconv.FormatBool(v)) }
func (e *encoder) EncodeInt8(v int8) error       { return e.integer(int64(v)) }
func (e *encoder) EncodeInt16(v int16) error     { return e.integer(int64(v)) }
func (e *encoder) EncodeInt32(v int32) error     { return e.integer(int64(v)) }
func (e *encoder) EncodeInt64(v int64) error     { return e.integer(v) }
func (e *encoder) EncodeFloat32(v float32) error { return e.float(float64(v), 32) }
func (e *encoder) EncodeFloat64(v float64) error { return e.float(v, 64) }
func (e *encoder) EncodeChar(v rune) error       { return e.EncodeString(string(v)) }
func (e *encoder) EncodeNotNullMark() error      { return nil }
func (e *encoder) Module() *serial.Module        { return e.sess.f.module }

func (e *encoder) EncodeString(v string) error {
	e.open()
	e.sess.out.quoted(v)
	return nil
}

func (e *encoder) EncodeEnum(d descriptor.Descriptor, index int) error {
	return e.EncodeString(d.ElementName(index))
}

func (e *encoder) EncodeNull() error {
	if e.key {
		return merr.WrapErrEncodeFailed("null is not allowed as a map key", e.sess.stack.Path())
	}
	if e.parent != nil && !e.opened && e.parent.kind == descriptor.KindClass && !e.sess.conf.ExplicitNulls {
		return nil
	}
	return e.literal("null")
}

// EncodeInline 内联值直接写为内部值本身。
func (e *encoder) EncodeInline(descriptor.Descriptor) (serial.Encoder, error) {
	return e, nil
}

// rawNumber 原样写出数字字面量，供 Element 使用。
func (e *encoder) rawNumber(text string) error {
	return e.literal(text)
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
	if e.key {
		return nil, merr.WrapErrUnsupportedShape(formatName, inner.SerialName(), "map keys must be primitive or enum values")
	}
	pending := e.sess.takePending()
	if err := e.sess.stack.Push(inner, size); err != nil {
		return nil, err
	}
	e.open()
	c := &compositeEncoder{sess: e.sess, desc: inner, kind: inner.Kind(), depth: e.sess.stack.Depth()}
	switch c.kind {
	case descriptor.KindList:
		c.array = true
	case descriptor.KindSealed, descriptor.KindOpen:
		c.array = e.sess.conf.UseArrayPolymorphism
		c.disc = e.sess.f.discriminatorKey(inner)
	}
	out := &e.sess.out
	if c.array {
		out.char('[')
	} else {
		out.char('{')
	}
	out.level++
	if pending != nil {
		if i, err := e.sess.f.elementIndex(inner, pending.key); err != nil {
			return nil, err
		} else if i != descriptor.UnknownName {
			return nil, merr.WrapErrDiscriminatorConflict(inner.SerialName(), pending.key)
		}
		c.separator()
		out.quoted(pending.key)
		out.colon()
		out.quoted(pending.value)
	}
	return c, nil
}

// EncodePolymorphic 将类子类型的鉴别值作为对象的第一个字段写出；
// 数组多态或非类负载使用 {type, value} 结构。
func (e *encoder) EncodePolymorphic(base descriptor.Descriptor, sub serial.Subtype, payload func(serial.Encoder) error) error {
	if e.sess.conf.UseArrayPolymorphism || !sub.IsClass() {
		return serial.EncodePolymorphicDefault(e, base, sub, payload)
	}
	e.sess.pending = &discriminatorField{key: e.sess.f.discriminatorKey(base), value: sub.Discriminator}
	return payload(e)
}

type compositeEncoder struct {
	sess  *encodeSession
	desc  descriptor.Descriptor
	kind  descriptor.Kind
	array bool
	// disc 为多态结构中第 0 个元素在对象形式下使用的键。
	disc  string
	count int
	depth int
}

func (c *compositeEncoder) separator() {
	if c.count > 0 {
		c.sess.out.char(',')
	}
	c.sess.out.newline()
	c.count++
}

// prefix 在第 i 个元素的值之前输出分隔符与键。
func (c *compositeEncoder) prefix(i int) {
	out := &c.sess.out
	if c.kind == descriptor.KindMap && i%2 == 1 {
		out.colon()
		return
	}
	c.separator()
	if c.array || c.kind == descriptor.KindMap {
		return
	}
	name := c.desc.ElementName(i)
	if c.disc != "" && i == 0 {
		name = c.disc
	}
	out.quoted(name)
	out.colon()
}

func (c *compositeEncoder) EncodeElement(_ descriptor.Descriptor, i int) (serial.Encoder, error) {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return nil, err
	}
	if err := c.sess.stack.MarkEncoded(i); err != nil {
		return nil, err
	}
	return &encoder{
		sess:   c.sess,
		parent: c,
		index:  i,
		key:    c.kind == descriptor.KindMap && i%2 == 0,
	}, nil
}

func (c *compositeEncoder) ShouldEncodeElementDefault(descriptor.Descriptor, int) bool {
	return c.sess.conf.EncodeDefaults
}

func (c *compositeEncoder) EndStructure(d descriptor.Descriptor) error {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return err
	}
	if _, err := c.sess.stack.Pop(d); err != nil {
		return err
	}
	out := &c.sess.out
	out.level--
	if c.count > 0 {
		out.newline()
	}
	if c.array {
		out.char(']')
	} else {
		out.char('}')
	}
	return nil
}
