package protobuf

import (
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

type encodeSession struct {
	f     *Format
	stack *serial.RegionStack
	// out 为顶层消息的编码结果。
	out []byte
}

// encoder 写入单个字段值。标量追加到 out，field.num 非零时先写字段标签。
type encoder struct {
	sess  *encodeSession
	out   *[]byte
	field fieldInfo
	root  bool
	// repeated 表示这是列表中的一个元素。
	repeated bool
}

var _ serial.Encoder = (*encoder)(nil)

func (e *encoder) tag(shape string, typ protowire.Type) error {
	if e.root {
		return merr.WrapErrUnsupportedShape(formatName, shape, "top-level value must be a message")
	}
	if e.field.num != 0 {
		*e.out = protowire.AppendTag(*e.out, e.field.num, typ)
	}
	return nil
}

func (e *encoder) varint(shape string, v uint64) error {
	if err := e.tag(shape, protowire.VarintType); err != nil {
		return err
	}
	*e.out = protowire.AppendVarint(*e.out, v)
	return nil
}

func (e *encoder) fixed32(shape string, v uint32) error {
	if err := e.tag(shape, protowire.Fixed32Type); err != nil {
		return err
	}
	*e.out = protowire.AppendFixed32(*e.out, v)
	return nil
}

func (e *encoder) fixed64(shape string, v uint64) error {
	if err := e.tag(shape, protowire.Fixed64Type); err != nil {
		return err
	}
	*e.out = protowire.AppendFixed64(*e.out, v)
	return nil
}

func (e *encoder) bytes(shape string, b []byte) error {
	if err := e.tag(shape, protowire.BytesType); err != nil {
		return err
	}
	*e.out = protowire.AppendBytes(*e.out, b)
	return nil
}

func (e *encoder) integer(k descriptor.Kind, v int64) error {
	switch e.field.integer {
	case Signed:
		return e.varint(k.String(), protowire.EncodeZigZag(v))
	case Fixed:
		if k == descriptor.KindLong {
			return e.fixed64(k.String(), uint64(v))
		}
		return e.fixed32(k.String(), uint32(int32(v)))
	}
	return e.varint(k.String(), uint64(v))
}

func (e *encoder) EncodeBool(v bool) error {
	return e.varint(descriptor.KindBoolean.String(), protowire.EncodeBool(v))
}

func (e *encoder) EncodeInt8(v int8) error   { return e.integer(descriptor.KindByte, int64(v)) }
func (e *encoder) EncodeInt16(v int16) error { return e.integer(descriptor.KindShort, int64(v)) }
func (e *encoder) EncodeInt32(v int32) error { return e.integer(descriptor.KindInt, int64(v)) }
func (e *encoder) EncodeInt64(v int64) error { return e.integer(descriptor.KindLong, v) }

func (e *encoder) EncodeFloat32(v float32) error {
	return e.fixed32(descriptor.KindFloat.String(), math.Float32bits(v))
}

func (e *encoder) EncodeFloat64(v float64) error {
	return e.fixed64(descriptor.KindDouble.String(), math.Float64bits(v))
}

func (e *encoder) EncodeChar(v rune) error {
	return e.varint(descriptor.KindChar.String(), uint64(v))
}

func (e *encoder) EncodeString(v string) error {
	if err := e.tag(descriptor.KindString.String(), protowire.BytesType); err != nil {
		return err
	}
	*e.out = protowire.AppendString(*e.out, v)
	return nil
}

func (e *encoder) EncodeEnum(d descriptor.Descriptor, index int) error {
	return e.varint(d.SerialName(), uint64(index))
}

// EncodeNull 省略该字段。顶层值与列表元素没有可以省略的字段，因此不能为 null。
func (e *encoder) EncodeNull() error {
	switch {
	case e.root:
		return merr.WrapErrUnsupportedShape(formatName, "null", "top-level value must be a message")
	case e.repeated:
		return merr.WrapErrUnsupportedShape(formatName, "null", "repeated fields cannot hold null")
	}
	return nil
}

func (e *encoder) EncodeNotNullMark() error { return nil }

func (e *encoder) EncodeInline(descriptor.Descriptor) (serial.Encoder, error) {
	return e, nil
}

func (e *encoder) Module() *serial.Module {
	return e.sess.f.module
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
	kind := inner.Kind()
	if kind == descriptor.KindList || kind == descriptor.KindMap {
		if e.root {
			return nil, merr.WrapErrUnsupportedShape(formatName, inner.SerialName(), "top-level value must be a message")
		}
		if e.repeated {
			return nil, merr.WrapErrUnsupportedShape(formatName, inner.SerialName(), "nested collections are not representable")
		}
	}
	var s *schema
	if kind == descriptor.KindClass || kind.IsPolymorphic() {
		var err error
		if s, err = e.sess.f.schema(inner); err != nil {
			return nil, err
		}
	}
	if err := e.sess.stack.Push(inner, size); err != nil {
		return nil, err
	}
	depth := e.sess.stack.Depth()
	switch kind {
	case descriptor.KindList:
		item := inner.ElementDescriptor(0).Unwrap().Kind()
		return &listEncoder{parent: e, packed: e.field.packed && packable(item), depth: depth}, nil
	case descriptor.KindMap:
		return &mapEncoder{parent: e, depth: depth}, nil
	}
	return &messageEncoder{parent: e, schema: s, depth: depth}, nil
}

// emit 将一条已编码的子消息作为当前字段写出。
func (e *encoder) emit(msg []byte) {
	if e.root {
		e.sess.out = msg
		if e.sess.out == nil {
			e.sess.out = []byte{}
		}
		return
	}
	*e.out = protowire.AppendTag(*e.out, e.field.num, protowire.BytesType)
	*e.out = protowire.AppendBytes(*e.out, msg)
}

// messageEncoder 在独立的缓冲中编码子消息，结束时整体写入父字段。
type messageEncoder struct {
	parent *encoder
	schema *schema
	buf    []byte
	depth  int
}

func (m *messageEncoder) EncodeElement(d descriptor.Descriptor, i int) (serial.Encoder, error) {
	if err := m.parent.sess.stack.Expect(m.depth); err != nil {
		return nil, err
	}
	if err := m.parent.sess.stack.MarkEncoded(i); err != nil {
		return nil, err
	}
	return &encoder{sess: m.parent.sess, out: &m.buf, field: m.schema.fields[i]}, nil
}

func (m *messageEncoder) ShouldEncodeElementDefault(descriptor.Descriptor, int) bool {
	return m.parent.sess.f.encodeDefaults
}

func (m *messageEncoder) EndStructure(d descriptor.Descriptor) error {
	if err := m.parent.sess.stack.Expect(m.depth); err != nil {
		return err
	}
	if _, err := m.parent.sess.stack.Pop(d); err != nil {
		return err
	}
	m.parent.emit(m.buf)
	return nil
}

// listEncoder 写出 repeated 字段。打包时元素不带标签地写入 packed，结束时作为一个字节串写出。
type listEncoder struct {
	parent *encoder
	packed bool
	buf    []byte
	depth  int
}

func (l *listEncoder) EncodeElement(d descriptor.Descriptor, i int) (serial.Encoder, error) {
	if err := l.parent.sess.stack.Expect(l.depth); err != nil {
		return nil, err
	}
	if err := l.parent.sess.stack.MarkEncoded(i); err != nil {
		return nil, err
	}
	if l.packed {
		return &encoder{
			sess:     l.parent.sess,
			out:      &l.buf,
			field:    fieldInfo{integer: l.parent.field.integer},
			repeated: true,
		}, nil
	}
	return &encoder{
		sess:     l.parent.sess,
		out:      l.parent.out,
		field:    fieldInfo{num: l.parent.field.num, integer: l.parent.field.integer},
		repeated: true,
	}, nil
}

func (l *listEncoder) ShouldEncodeElementDefault(descriptor.Descriptor, int) bool { return true }

func (l *listEncoder) EndStructure(d descriptor.Descriptor) error {
	if err := l.parent.sess.stack.Expect(l.depth); err != nil {
		return err
	}
	if _, err := l.parent.sess.stack.Pop(d); err != nil {
		return err
	}
	if l.packed && len(l.buf) > 0 {
		l.parent.emit(l.buf)
	}
	return nil
}

// mapEncoder 把每个键值对写成一条 {1: 键, 2: 值} 条目消息。
type mapEncoder struct {
	parent *encoder
	entry  []byte
	open   bool
	depth  int
}

func (m *mapEncoder) EncodeElement(d descriptor.Descriptor, i int) (serial.Encoder, error) {
	if err := m.parent.sess.stack.Expect(m.depth); err != nil {
		return nil, err
	}
	if err := m.parent.sess.stack.MarkEncoded(i); err != nil {
		return nil, err
	}
	field := entryValue
	if i%2 == 0 {
		m.flush()
		m.open = true
		field = entryKey
	}
	return &encoder{sess: m.parent.sess, out: &m.entry, field: field}, nil
}

func (m *mapEncoder) flush() {
	if !m.open {
		return
	}
	m.parent.emit(m.entry)
	m.entry = m.entry[:0]
	m.open = false
}

func (m *mapEncoder) ShouldEncodeElementDefault(descriptor.Descriptor, int) bool { return true }

func (m *mapEncoder) EndStructure(d descriptor.Descriptor) error {
	if err := m.parent.sess.stack.Expect(m.depth); err != nil {
		return err
	}
	if _, err := m.parent.sess.stack.Pop(d); err != nil {
		return err
	}
	m.flush()
	return nil
}
