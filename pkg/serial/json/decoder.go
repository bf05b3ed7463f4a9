package json

import (
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/exp/constraints"

	"github.com/lk2023060901/serialkit/pkg/log"
	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
	"github.com/lk2023060901/serialkit/pkg/util/typeutil"
)

type decodeSession struct {
	f     *Format
	conf  *Configuration
	lex   *lexer
	stack *serial.RegionStack
	// pending 为下一次打开类区域时需要跳过的鉴别字段名。
	pending string
}

func (f *Format) newDecodeSession(lex *lexer) *decodeSession {
	s := &decodeSession{
		f:     f,
		conf:  &f.conf,
		lex:   lex,
		stack: serial.NewRegionStack(f.conf.MaxDepth),
	}
	lex.path = s.stack.Path
	return s
}

func (s *decodeSession) root() *decoder {
	return &decoder{sess: s}
}

func (s *decodeSession) takePending() string {
	p := s.pending
	s.pending = ""
	return p
}

// swap 将会话切换到 lex 上，返回恢复原词法分析器的函数。
func (s *decodeSession) swap(lex *lexer) func() {
	old := s.lex
	lex.path = s.stack.Path
	s.lex = lex
	return func() { s.lex = old }
}

func (s *decodeSession) expectEOF() error {
	t, err := s.lex.peek()
	if err != nil {
		return err
	}
	if t.kind != tokEOF {
		return merr.WrapErrMalformedInput(s.stack.Path(), t.offset, "trailing "+t.describe()+" after top-level value")
	}
	return nil
}

// decoder 读取一个值。key 不为 nil 时读取的是映射键的文本，数值与布尔从文本中解析。
type decoder struct {
	sess *decodeSession
	key  *string
}

var (
	_ serial.Decoder            = (*decoder)(nil)
	_ serial.PolymorphicDecoder = (*decoder)(nil)
)

func (d *decoder) lex() *lexer {
	return d.sess.lex
}

func (d *decoder) keyMismatch(expected string) error {
	return merr.WrapErrMalformedInput(d.sess.stack.Path(), d.lex().offset(),
		fmt.Sprintf("map key %q is not a valid %s", truncate(*d.key), expected))
}

func (d *decoder) DecodeBool() (bool, error) {
	if d.key != nil {
		switch *d.key {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, d.keyMismatch("boolean")
	}
	t, err := d.lex().next()
	if err != nil {
		return false, err
	}
	switch t.kind {
	case tokTrue:
		return true, nil
	case tokFalse:
		return false, nil
	case tokString, tokLiteral:
		if d.sess.conf.IsLenient && (t.text == "true" || t.text == "false") {
			return t.text == "true", nil
		}
	}
	return false, d.lex().unexpected(t, "boolean")
}

// numberText 返回下一个数字的原文，宽松模式下接受带引号的数字。
func (d *decoder) numberText(expected string) (string, int64, error) {
	if d.key != nil {
		if !isNumber(*d.key) {
			return "", 0, d.keyMismatch(expected)
		}
		return *d.key, d.lex().offset(), nil
	}
	t, err := d.lex().next()
	if err != nil {
		return "", 0, err
	}
	if t.kind == tokNumber || t.kind == tokString && d.sess.conf.IsLenient && isNumber(t.text) {
		return t.text, t.offset, nil
	}
	return "", 0, d.lex().unexpected(t, expected)
}

func decodeSigned[T constraints.Signed](d *decoder) (T, error) {
	text, off, err := d.numberText("integer")
	if err != nil {
		return 0, err
	}
	x, res := parseInteger(text)
	switch res {
	case integerFraction:
		return 0, merr.WrapErrMalformedInput(d.sess.stack.Path(), off, "expected integer, got "+truncate(text))
	case integerOverflow:
		lower, upper := typeutil.Bounds[T]()
		return 0, merr.WrapErrNumericOverflow(d.sess.stack.Path(), text, lower, upper)
	}
	v, ok := typeutil.Narrow[T](x)
	if !ok {
		lower, upper := typeutil.Bounds[T]()
		return 0, merr.WrapErrNumericOverflow(d.sess.stack.Path(), text, lower, upper)
	}
	return v, nil
}

func (d *decoder) DecodeInt8() (int8, error)       { return decodeSigned[int8](d) }
func (d *decoder) DecodeInt16() (int16, error)     { return decodeSigned[int16](d) }
func (d *decoder) DecodeInt32() (int32, error)     { return decodeSigned[int32](d) }
func (d *decoder) DecodeInt64() (int64, error)     { return decodeSigned[int64](d) }
func (d *decoder) DecodeFloat64() (float64, error) { return d.decodeFloat(64) }
func (d *decoder) Module() *serial.Module          { return d.sess.f.module }

func (d *decoder) DecodeFloat32() (float32, error) {
	f, err := d.decodeFloat(32)
	return float32(f), err
}

// DecodeInline 内联值直接读取内部值本身。
func (d *decoder) DecodeInline(descriptor.Descriptor) (serial.Decoder, error) {
	return d, nil
}

func (d *decoder) decodeFloat(bits int) (float64, error) {
	if d.key == nil {
		t, err := d.lex().peek()
		if err != nil {
			return 0, err
		}
		if v, ok := specialFloat(t.text); ok && (t.kind == tokString || t.kind == tokLiteral) {
			_, _ = d.lex().next()
			if !d.sess.conf.AllowSpecialFloatingPointValues {
				return 0, merr.WrapErrSpecialFloat(d.sess.stack.Path(), v)
			}
			return v, nil
		}
	}
	text, _, err := d.numberText("number")
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(text, bits)
	if err != nil {
		limit := math.MaxFloat64
		if bits == 32 {
			limit = math.MaxFloat32
		}
		return 0, merr.WrapErrNumericOverflow(d.sess.stack.Path(), text, -limit, limit)
	}
	return v, nil
}

func specialFloat(text string) (float64, bool) {
	switch text {
	case nanLiteral:
		return math.NaN(), true
	case infLiteral:
		return math.Inf(1), true
	case negInfLiteral:
		return math.Inf(-1), true
	}
	return 0, false
}

// text 读取字符串值或映射键。
func (d *decoder) text(expected string) (string, int64, error) {
	if d.key != nil {
		return *d.key, d.lex().offset(), nil
	}
	t, err := d.lex().next()
	if err != nil {
		return "", 0, err
	}
	if !t.stringLike(d.sess.conf.IsLenient) {
		return "", 0, d.lex().unexpected(t, expected)
	}
	return t.text, t.offset, nil
}

func (d *decoder) DecodeChar() (rune, error) {
	s, off, err := d.text("character")
	if err != nil {
		return 0, err
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, merr.WrapErrMalformedInput(d.sess.stack.Path(), off, "expected single character, got "+strconv.Quote(truncate(s)))
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func (d *decoder) DecodeString() (string, error) {
	s, _, err := d.text("string")
	return s, err
}

func (d *decoder) DecodeEnum(desc descriptor.Descriptor) (int, error) {
	name, off, err := d.text("enum name")
	if err != nil {
		return 0, err
	}
	i := d.sess.f.enumIndex(desc, name)
	if i == descriptor.UnknownName {
		return 0, merr.WrapErrMalformedInput(d.sess.stack.Path(), off,
			fmt.Sprintf("%q is not a value of enum %s", truncate(name), desc.SerialName()))
	}
	return i, nil
}

func (d *decoder) DecodeNotNullMark() (bool, error) {
	if d.key != nil {
		return true, nil
	}
	t, err := d.lex().peek()
	if err != nil {
		return false, err
	}
	return t.kind != tokNull, nil
}

func (d *decoder) DecodeNull() error {
	if d.key != nil {
		return d.keyMismatch("null")
	}
	_, err := d.lex().expect(tokNull)
	return err
}

func (d *decoder) BeginStructure(desc descriptor.Descriptor) (serial.CompositeDecoder, error) {
	inner := desc.Unwrap()
	if d.key != nil {
		return nil, merr.WrapErrUnsupportedShape(formatName, inner.SerialName(), "map keys must be primitive or enum values")
	}
	c := &compositeDecoder{
		sess: d.sess,
		desc: inner,
		kind: inner.Kind(),
		skip: d.sess.takePending(),
	}
	switch c.kind {
	case descriptor.KindList:
		c.array = true
	case descriptor.KindSealed, descriptor.KindOpen:
		c.array = d.sess.conf.UseArrayPolymorphism
		if !c.array {
			c.disc = d.sess.f.discriminatorKey(inner)
		}
	}
	open := tokBeginObject
	if c.array {
		open = tokBeginArray
	}
	if _, err := d.lex().expect(open); err != nil {
		return nil, err
	}
	if err := d.sess.stack.Push(inner, serial.UnknownSize); err != nil {
		return nil, err
	}
	c.depth = d.sess.stack.Depth()
	return c, nil
}

type compositeDecoder struct {
	sess  *decodeSession
	desc  descriptor.Descriptor
	kind  descriptor.Kind
	array bool
	// disc 为对象形式的多态结构中对应第 0 个元素的键。
	disc string
	// skip 为需要跳过一次的鉴别字段名。
	skip      string
	count     int
	depth     int
	closed    bool
	wantValue bool
}

func (c *compositeDecoder) DecodeSequentially() bool {
	return false
}

func (c *compositeDecoder) DecodeCollectionSize(descriptor.Descriptor) (int, error) {
	return serial.UnknownSize, nil
}

func (c *compositeDecoder) end() tokenKind {
	if c.array {
		return tokEndArray
	}
	return tokEndObject
}

// nextEntry 处理条目之间的逗号，区域结束时返回 false。
func (c *compositeDecoder) nextEntry() (bool, error) {
	ok, err := nextMember(c.sess.lex, c.end(), c.count == 0)
	if err != nil {
		return false, err
	}
	if !ok {
		c.closed = true
		return false, nil
	}
	c.count++
	return true, nil
}

func (c *compositeDecoder) DecodeElementIndex(d descriptor.Descriptor) (int, error) {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return 0, err
	}
	if c.closed {
		return serial.ElementDone, nil
	}
	switch {
	case c.array:
		ok, err := c.nextEntry()
		if err != nil || !ok {
			return serial.ElementDone, err
		}
		i := c.count - 1
		if c.kind.IsPolymorphic() && i > 1 {
			return 0, c.sess.lex.malformed(c.sess.lex.offset(), "polymorphic array must hold exactly a discriminator and a value")
		}
		return i, c.sess.stack.MarkDecoded(i)
	case c.kind == descriptor.KindMap:
		if c.wantValue {
			c.wantValue = false
			i := 2*(c.count-1) + 1
			return i, c.sess.stack.MarkDecoded(i)
		}
		ok, err := c.nextEntry()
		if err != nil || !ok {
			return serial.ElementDone, err
		}
		i := 2 * (c.count - 1)
		return i, c.sess.stack.MarkDecoded(i)
	}
	return c.nextProperty(d)
}

// nextProperty 读取对象的下一个键，跳过鉴别字段、被忽略的未知键与被强制替换为默认值的元素。
func (c *compositeDecoder) nextProperty(d descriptor.Descriptor) (int, error) {
	lex := c.sess.lex
	for {
		ok, err := c.nextEntry()
		if err != nil || !ok {
			return serial.ElementDone, err
		}
		kt, err := lex.next()
		if err != nil {
			return 0, err
		}
		if !kt.stringLike(c.sess.conf.IsLenient) {
			return 0, lex.unexpected(kt, "object key")
		}
		c.sess.stack.Top().SetKey(kt.text)
		if _, err := lex.expect(tokColon); err != nil {
			return 0, err
		}
		if c.skip != "" && kt.text == c.skip {
			c.skip = ""
			if err := lex.skipValue(); err != nil {
				return 0, err
			}
			continue
		}
		i, err := c.index(kt.text)
		if err != nil {
			return 0, err
		}
		if i == descriptor.UnknownName {
			if !c.sess.conf.IgnoreUnknownKeys {
				return 0, merr.WrapErrUnknownKey(c.sess.stack.Path(), kt.text, "in "+d.SerialName())
			}
			c.sess.f.Logger().RatedDebug(1, "skip unknown json key",
				log.FieldPath(c.sess.stack.Path()), zap.String("key", kt.text))
			if err := lex.skipValue(); err != nil {
				return 0, err
			}
			continue
		}
		if c.sess.conf.CoerceInputValues && d.IsElementOptional(i) {
			coerce, err := c.sess.shouldCoerce(d.ElementDescriptor(i))
			if err != nil {
				return 0, err
			}
			if coerce {
				if err := lex.skipValue(); err != nil {
					return 0, err
				}
				continue
			}
		}
		if err := c.sess.stack.MarkDecoded(i); err != nil {
			return 0, err
		}
		return i, nil
	}
}

func (c *compositeDecoder) index(key string) (int, error) {
	if c.disc != "" {
		switch key {
		case c.disc:
			return 0, nil
		case c.desc.ElementName(1):
			return 1, nil
		}
		return descriptor.UnknownName, nil
	}
	return c.sess.f.elementIndex(c.desc, key)
}

func (c *compositeDecoder) DecodeElement(_ descriptor.Descriptor, i int) (serial.Decoder, error) {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return nil, err
	}
	if c.kind != descriptor.KindMap || i%2 == 1 {
		return &decoder{sess: c.sess}, nil
	}
	lex := c.sess.lex
	kt, err := lex.next()
	if err != nil {
		return nil, err
	}
	if !kt.stringLike(c.sess.conf.IsLenient) {
		return nil, lex.unexpected(kt, "map key")
	}
	if _, err := lex.expect(tokColon); err != nil {
		return nil, err
	}
	c.sess.stack.Top().SetLabel(kt.text)
	c.wantValue = true
	key := kt.text
	return &decoder{sess: c.sess, key: &key}, nil
}

func (c *compositeDecoder) EndStructure(d descriptor.Descriptor) error {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return err
	}
	if !c.closed {
		if _, err := c.sess.lex.expect(c.end()); err != nil {
			return err
		}
		c.closed = true
	}
	f, err := c.sess.stack.Pop(d)
	if err != nil {
		return err
	}
	return serial.CheckMissing(f, !c.sess.conf.ExplicitNulls)
}

// shouldCoerce 预读下一个值，判断它能否被 ed 接受；不能接受时调用方以默认值代替。
// null 只会替换不可空的元素，未知的枚举值、类型不符与整数溢出同样会被替换。
func (s *decodeSession) shouldCoerce(ed descriptor.Descriptor) (bool, error) {
	if ed == elementDescriptor {
		return false, nil
	}
	t, err := s.lex.peek()
	if err != nil {
		return false, err
	}
	if t.kind == tokNull {
		return !ed.IsNullable(), nil
	}
	inner := ed.Unwrap()
	lenient := s.conf.IsLenient
	switch k := inner.Kind(); {
	case k == descriptor.KindBoolean:
		return t.kind != tokTrue && t.kind != tokFalse &&
			!(lenient && t.stringLike(true) && (t.text == "true" || t.text == "false")), nil
	case k.IsIntegral():
		if t.kind != tokNumber && !(lenient && t.kind == tokString && isNumber(t.text)) {
			return true, nil
		}
		return !fitsInteger(t.text, k), nil
	case k == descriptor.KindFloat || k == descriptor.KindDouble:
		if _, ok := specialFloat(t.text); ok && t.stringLike(lenient) {
			return !s.conf.AllowSpecialFloatingPointValues, nil
		}
		return t.kind != tokNumber && !(lenient && t.kind == tokString && isNumber(t.text)), nil
	case k == descriptor.KindChar || k == descriptor.KindString:
		return !t.stringLike(lenient), nil
	case k == descriptor.KindEnum:
		return !t.stringLike(lenient) || s.f.enumIndex(inner, t.text) == descriptor.UnknownName, nil
	case k == descriptor.KindList:
		return t.kind != tokBeginArray, nil
	case k == descriptor.KindClass && inner.IsInline():
		return s.shouldCoerce(inner.ElementDescriptor(0))
	case k.IsPolymorphic() && s.conf.UseArrayPolymorphism:
		return t.kind != tokBeginArray, nil
	default:
		return t.kind != tokBeginObject, nil
	}
}

type integerResult int

const (
	integerOK integerResult = iota
	integerFraction
	integerOverflow
)

// parseInteger 解析整数字面量，也接受没有小数部分的浮点写法，例如 1e3 与 2.0。
func parseInteger(text string) (int64, integerResult) {
	x, err := strconv.ParseInt(text, 10, 64)
	if err == nil {
		return x, integerOK
	}
	if errors.Is(err, strconv.ErrRange) {
		return 0, integerOverflow
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, integerOverflow
	}
	if f != math.Trunc(f) {
		return 0, integerFraction
	}
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, integerOverflow
	}
	return int64(f), integerOK
}

func fitsInteger(text string, k descriptor.Kind) bool {
	x, res := parseInteger(text)
	if res != integerOK {
		return false
	}
	var ok bool
	switch k {
	case descriptor.KindByte:
		_, ok = typeutil.Narrow[int8](x)
	case descriptor.KindShort:
		_, ok = typeutil.Narrow[int16](x)
	case descriptor.KindInt:
		_, ok = typeutil.Narrow[int32](x)
	default:
		ok = true
	}
	return ok
}
