package protobuf

import (
	"io"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
	"github.com/lk2023060901/serialkit/pkg/util/typeutil"
)

// value 是字段在线上的一次出现。
type value struct {
	typ protowire.Type
	num uint64
	raw []byte
}

type decodeSession struct {
	f     *Format
	stack *serial.RegionStack
	data  []byte
}

func (s *decodeSession) wireError(n int) error {
	err := protowire.ParseError(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return merr.WrapErrUnexpectedEOF(s.stack.Path(), -1, "truncated protobuf message")
	}
	return merr.WrapErrMalformedInput(s.stack.Path(), -1, err.Error())
}

// parse 遍历消息 b 中的字段，group 会被跳过。
func (s *decodeSession) parse(b []byte, visit func(num protowire.Number, v value)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return s.wireError(n)
		}
		b = b[n:]
		v := value{typ: typ}
		switch typ {
		case protowire.VarintType:
			v.num, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var x uint32
			x, n = protowire.ConsumeFixed32(b)
			v.num = uint64(x)
		case protowire.Fixed64Type:
			v.num, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			v.raw, n = protowire.ConsumeBytes(b)
		default:
			if n = protowire.ConsumeFieldValue(num, typ, b); n < 0 {
				return s.wireError(n)
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return s.wireError(n)
		}
		b = b[n:]
		visit(num, v)
	}
	return nil
}

// unpack 展开 repeated 字段的所有出现，打包的字节串按元素的线上类型拆分。
func (s *decodeSession) unpack(vals []value, item descriptor.Kind, integer IntegerType) ([]value, error) {
	if !packable(item) {
		return vals, nil
	}
	want := wireType(item, integer)
	out := make([]value, 0, len(vals))
	for _, v := range vals {
		if v.typ != protowire.BytesType {
			out = append(out, v)
			continue
		}
		b := v.raw
		for len(b) > 0 {
			x := value{typ: want}
			var n int
			switch want {
			case protowire.VarintType:
				x.num, n = protowire.ConsumeVarint(b)
			case protowire.Fixed32Type:
				var u uint32
				u, n = protowire.ConsumeFixed32(b)
				x.num = uint64(u)
			default:
				x.num, n = protowire.ConsumeFixed64(b)
			}
			if n < 0 {
				return nil, s.wireError(n)
			}
			b = b[n:]
			out = append(out, x)
		}
	}
	return out, nil
}

// decoder 读取一个字段的值。标量取最后一次出现，字段缺失时取零值。
type decoder struct {
	sess     *decodeSession
	vals     []value
	field    fieldInfo
	root     bool
	repeated bool
}

var _ serial.Decoder = (*decoder)(nil)

func (d *decoder) scalar(shape string, want protowire.Type) (value, error) {
	if d.root {
		return value{}, merr.WrapErrUnsupportedShape(formatName, shape, "top-level value must be a message")
	}
	if len(d.vals) == 0 {
		return value{typ: want}, nil
	}
	v := d.vals[len(d.vals)-1]
	if v.typ != want {
		return value{}, merr.WrapErrUnexpectedToken(d.sess.stack.Path(), -1, wireTypeName(want), wireTypeName(v.typ))
	}
	return v, nil
}

func decodeInteger[T int8 | int16 | int32 | int64](d *decoder, k descriptor.Kind) (T, error) {
	v, err := d.scalar(k.String(), wireType(k, d.field.integer))
	if err != nil {
		return 0, err
	}
	var x int64
	switch d.field.integer {
	case Signed:
		x = protowire.DecodeZigZag(v.num)
	case Fixed:
		if k == descriptor.KindLong {
			x = int64(v.num)
		} else {
			x = int64(int32(uint32(v.num)))
		}
	default:
		x = int64(v.num)
	}
	t, ok := typeutil.Narrow[T](x)
	if !ok {
		lower, upper := typeutil.Bounds[T]()
		return 0, merr.WrapErrNumericOverflow(d.sess.stack.Path(), strconv.FormatInt(x, 10), lower, upper)
	}
	return t, nil
}

func (d *decoder) DecodeBool() (bool, error) {
	v, err := d.scalar(descriptor.KindBoolean.String(), protowire.VarintType)
	return protowire.DecodeBool(v.num), err
}

func (d *decoder) DecodeInt8() (int8, error)   { return decodeInteger[int8](d, descriptor.KindByte) }
func (d *decoder) DecodeInt16() (int16, error) { return decodeInteger[int16](d, descriptor.KindShort) }
func (d *decoder) DecodeInt32() (int32, error) { return decodeInteger[int32](d, descriptor.KindInt) }
func (d *decoder) DecodeInt64() (int64, error) { return decodeInteger[int64](d, descriptor.KindLong) }

func (d *decoder) DecodeFloat32() (float32, error) {
	v, err := d.scalar(descriptor.KindFloat.String(), protowire.Fixed32Type)
	return math.Float32frombits(uint32(v.num)), err
}

func (d *decoder) DecodeFloat64() (float64, error) {
	v, err := d.scalar(descriptor.KindDouble.String(), protowire.Fixed64Type)
	return math.Float64frombits(v.num), err
}

func (d *decoder) DecodeChar() (rune, error) {
	v, err := d.scalar(descriptor.KindChar.String(), protowire.VarintType)
	if err != nil {
		return 0, err
	}
	if v.num > utf8.MaxRune || !utf8.ValidRune(rune(v.num)) {
		return 0, merr.WrapErrMalformedInput(d.sess.stack.Path(), -1, "invalid code point "+strconv.FormatUint(v.num, 10))
	}
	return rune(v.num), nil
}

func (d *decoder) DecodeString() (string, error) {
	v, err := d.scalar(descriptor.KindString.String(), protowire.BytesType)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(v.raw) {
		return "", merr.WrapErrMalformedInput(d.sess.stack.Path(), -1, "string field is not valid UTF-8")
	}
	return string(v.raw), nil
}

func (d *decoder) DecodeEnum(desc descriptor.Descriptor) (int, error) {
	v, err := d.scalar(desc.SerialName(), protowire.VarintType)
	if err != nil {
		return 0, err
	}
	if v.num >= uint64(desc.ElementsCount()) {
		return 0, merr.WrapErrMalformedInput(d.sess.stack.Path(), -1,
			"enum "+desc.SerialName()+" has no ordinal "+strconv.FormatUint(v.num, 10))
	}
	return int(v.num), nil
}

// DecodeNotNullMark 对字段而言，出现即非 null。
func (d *decoder) DecodeNotNullMark() (bool, error) {
	return d.root || d.repeated || len(d.vals) > 0, nil
}

func (d *decoder) DecodeNull() error { return nil }

func (d *decoder) DecodeInline(descriptor.Descriptor) (serial.Decoder, error) {
	return d, nil
}

func (d *decoder) Module() *serial.Module {
	return d.sess.f.module
}

func (d *decoder) BeginStructure(desc descriptor.Descriptor) (serial.CompositeDecoder, error) {
	inner := desc.Unwrap()
	switch kind := inner.Kind(); kind {
	case descriptor.KindList, descriptor.KindMap:
		if d.root {
			return nil, merr.WrapErrUnsupportedShape(formatName, inner.SerialName(), "top-level value must be a message")
		}
		if d.repeated {
			return nil, merr.WrapErrUnsupportedShape(formatName, inner.SerialName(), "nested collections are not representable")
		}
		if kind == descriptor.KindList {
			return d.beginList(inner)
		}
		return d.beginMap(inner)
	case descriptor.KindClass, descriptor.KindSealed, descriptor.KindOpen:
		return d.beginMessage(inner)
	}
	return nil, merr.WrapErrProtocolMisuse("beginStructure on a primitive descriptor", inner.SerialName())
}

// payload 返回子消息的字节。字段缺失时视为空消息。
func (d *decoder) payload() ([]byte, error) {
	if d.root {
		return d.sess.data, nil
	}
	v, err := d.scalar("message", protowire.BytesType)
	return v.raw, err
}

func (d *decoder) beginMessage(desc descriptor.Descriptor) (serial.CompositeDecoder, error) {
	s, err := d.sess.f.schema(desc)
	if err != nil {
		return nil, err
	}
	b, err := d.payload()
	if err != nil {
		return nil, err
	}
	if err := d.sess.stack.Push(desc, serial.UnknownSize); err != nil {
		return nil, err
	}
	m := &messageDecoder{sess: d.sess, schema: s, fields: make([][]value, len(s.fields)), depth: d.sess.stack.Depth()}
	err = d.sess.parse(b, func(num protowire.Number, v value) {
		if i, ok := s.byNum[num]; ok {
			m.fields[i] = append(m.fields[i], v)
		}
	})
	if err != nil {
		return nil, err
	}
	for i := range m.fields {
		if m.fields[i] != nil || implicitlyEmpty(desc, i) {
			m.order = append(m.order, i)
		}
	}
	return m, nil
}

// implicitlyEmpty 判断缺失的第 i 个元素是否应当按空集合读取。
func implicitlyEmpty(desc descriptor.Descriptor, i int) bool {
	if desc.Kind() != descriptor.KindClass || desc.IsElementOptional(i) || desc.IsElementNullable(i) {
		return false
	}
	k := desc.ElementDescriptor(i).Kind()
	return k == descriptor.KindList || k == descriptor.KindMap
}

func (d *decoder) beginList(desc descriptor.Descriptor) (serial.CompositeDecoder, error) {
	items, err := d.sess.unpack(d.vals, desc.ElementDescriptor(0).Unwrap().Kind(), d.field.integer)
	if err != nil {
		return nil, err
	}
	if err := d.sess.stack.Push(desc, len(items)); err != nil {
		return nil, err
	}
	return &listDecoder{
		sess:  d.sess,
		items: items,
		field: fieldInfo{num: d.field.num, integer: d.field.integer},
		depth: d.sess.stack.Depth(),
	}, nil
}

type entry struct {
	key   []value
	value []value
}

func (d *decoder) beginMap(desc descriptor.Descriptor) (serial.CompositeDecoder, error) {
	entries := make([]entry, 0, len(d.vals))
	for _, v := range d.vals {
		if v.typ != protowire.BytesType {
			return nil, merr.WrapErrUnexpectedToken(d.sess.stack.Path(), -1, wireTypeName(protowire.BytesType), wireTypeName(v.typ))
		}
		var e entry
		err := d.sess.parse(v.raw, func(num protowire.Number, v value) {
			switch num {
			case entryKey.num:
				e.key = append(e.key, v)
			case entryValue.num:
				e.value = append(e.value, v)
			}
		})
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := d.sess.stack.Push(desc, 2*len(entries)); err != nil {
		return nil, err
	}
	return &mapDecoder{sess: d.sess, entries: entries, depth: d.sess.stack.Depth()}, nil
}

// messageDecoder 按字段号顺序报告出现过的元素，与字段在线上的顺序无关。
type messageDecoder struct {
	sess   *decodeSession
	schema *schema
	fields [][]value
	order  []int
	pos    int
	depth  int
}

func (m *messageDecoder) DecodeElementIndex(descriptor.Descriptor) (int, error) {
	if err := m.sess.stack.Expect(m.depth); err != nil {
		return 0, err
	}
	if m.pos >= len(m.order) {
		return serial.ElementDone, nil
	}
	i := m.order[m.pos]
	m.pos++
	if err := m.sess.stack.MarkDecoded(i); err != nil {
		return 0, err
	}
	return i, nil
}

func (m *messageDecoder) DecodeElement(_ descriptor.Descriptor, i int) (serial.Decoder, error) {
	if err := m.sess.stack.Expect(m.depth); err != nil {
		return nil, err
	}
	return &decoder{sess: m.sess, vals: m.fields[i], field: m.schema.fields[i]}, nil
}

func (m *messageDecoder) DecodeCollectionSize(descriptor.Descriptor) (int, error) {
	return serial.UnknownSize, nil
}

func (m *messageDecoder) DecodeSequentially() bool { return false }

func (m *messageDecoder) EndStructure(d descriptor.Descriptor) error {
	if err := m.sess.stack.Expect(m.depth); err != nil {
		return err
	}
	f, err := m.sess.stack.Pop(d)
	if err != nil {
		return err
	}
	return serial.CheckMissing(f, true)
}

type listDecoder struct {
	sess  *decodeSession
	items []value
	field fieldInfo
	pos   int
	depth int
}

func (l *listDecoder) DecodeElementIndex(descriptor.Descriptor) (int, error) {
	if err := l.sess.stack.Expect(l.depth); err != nil {
		return 0, err
	}
	if l.pos >= len(l.items) {
		return serial.ElementDone, nil
	}
	l.pos++
	return l.pos - 1, nil
}

func (l *listDecoder) DecodeElement(_ descriptor.Descriptor, i int) (serial.Decoder, error) {
	if err := l.sess.stack.Expect(l.depth); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(l.items) {
		return nil, merr.WrapErrProtocolMisuse("list element index out of range", "index="+strconv.Itoa(i))
	}
	if err := l.sess.stack.MarkDecoded(i); err != nil {
		return nil, err
	}
	return &decoder{sess: l.sess, vals: l.items[i : i+1], field: l.field, repeated: true}, nil
}

func (l *listDecoder) DecodeCollectionSize(descriptor.Descriptor) (int, error) {
	return len(l.items), nil
}

func (l *listDecoder) DecodeSequentially() bool { return true }

func (l *listDecoder) EndStructure(d descriptor.Descriptor) error {
	if err := l.sess.stack.Expect(l.depth); err != nil {
		return err
	}
	_, err := l.sess.stack.Pop(d)
	return err
}

type mapDecoder struct {
	sess    *decodeSession
	entries []entry
	pos     int
	depth   int
}

func (m *mapDecoder) DecodeElementIndex(descriptor.Descriptor) (int, error) {
	if err := m.sess.stack.Expect(m.depth); err != nil {
		return 0, err
	}
	if m.pos >= 2*len(m.entries) {
		return serial.ElementDone, nil
	}
	m.pos++
	return m.pos - 1, nil
}

func (m *mapDecoder) DecodeElement(_ descriptor.Descriptor, i int) (serial.Decoder, error) {
	if err := m.sess.stack.Expect(m.depth); err != nil {
		return nil, err
	}
	if i < 0 || i >= 2*len(m.entries) {
		return nil, merr.WrapErrProtocolMisuse("map element index out of range", "index="+strconv.Itoa(i))
	}
	if err := m.sess.stack.MarkDecoded(i); err != nil {
		return nil, err
	}
	e := m.entries[i/2]
	if i%2 == 0 {
		return &decoder{sess: m.sess, vals: e.key, field: entryKey}, nil
	}
	return &decoder{sess: m.sess, vals: e.value, field: entryValue}, nil
}

func (m *mapDecoder) DecodeCollectionSize(descriptor.Descriptor) (int, error) {
	return len(m.entries), nil
}

func (m *mapDecoder) DecodeSequentially() bool { return true }

func (m *mapDecoder) EndStructure(d descriptor.Descriptor) error {
	if err := m.sess.stack.Expect(m.depth); err != nil {
		return err
	}
	_, err := m.sess.stack.Pop(d)
	return err
}
