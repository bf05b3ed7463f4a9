package properties

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"golang.org/x/exp/constraints"
	"golang.org/x/exp/slices"

	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
	"github.com/lk2023060901/serialkit/pkg/util/typeutil"
)

// maxCollectionIndex 限制集合下标，避免一个很大的下标撑出巨大的列表。
const maxCollectionIndex = 1 << 20

func (s *session) load(m map[string]string) {
	s.values = m
	s.keys = lo.Keys(m)
	slices.Sort(s.keys)
	s.used = typeutil.NewSet[string]()
}

// children 返回以 "prefix." 开头的键在 keys 中的范围，根区域包含全部键。
func (s *session) children(prefix string) []string {
	if prefix == "" {
		return s.keys
	}
	p := prefix + "."
	from, _ := slices.BinarySearch(s.keys, p)
	to := from
	for to < len(s.keys) && strings.HasPrefix(s.keys[to], p) {
		to++
	}
	return s.keys[from:to]
}

func (s *session) present(key string) bool {
	if _, ok := s.values[key]; ok {
		return true
	}
	return len(s.children(key)) > 0
}

// indexCount 返回 prefix 下出现的最大下标加一。不是下标的段留给未知键检查。
func (s *session) indexCount(prefix string) (int, error) {
	n := 0
	from := len(prefix) + 1
	if prefix == "" {
		from = 0
	}
	for _, k := range s.children(prefix) {
		seg := k[from:]
		if j := strings.IndexByte(seg, '.'); j >= 0 {
			seg = seg[:j]
		}
		i, err := strconv.Atoi(seg)
		if err != nil || i < 0 {
			continue
		}
		if i >= maxCollectionIndex {
			return 0, merr.WrapErrMalformedInput(s.stack.Path(), -1,
				fmt.Sprintf("collection index %d of key %q is too large", i, k))
		}
		n = max(n, i+1)
	}
	return n, nil
}

// unused 返回第一个没有被任何元素读取的键。
func (s *session) unused() (string, bool) {
	for _, k := range s.keys {
		if !s.used.Contain(k) {
			return k, true
		}
	}
	return "", false
}

type decoder struct {
	sess *session
	key  string
}

var _ serial.Decoder = (*decoder)(nil)

func (d *decoder) raw() (string, error) {
	v, ok := d.sess.values[d.key]
	if !ok {
		return "", merr.WrapErrMalformedInput(d.sess.stack.Path(), -1, fmt.Sprintf("no value for key %q", d.key))
	}
	d.sess.used.Insert(d.key)
	return v, nil
}

func (d *decoder) mismatch(expected, actual string) error {
	return merr.WrapErrUnexpectedToken(d.sess.stack.Path(), -1, expected, strconv.Quote(actual))
}

func (d *decoder) DecodeBool() (bool, error) {
	s, err := d.raw()
	if err != nil {
		return false, err
	}
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, d.mismatch("boolean", s)
}

func decodeSigned[T constraints.Signed](d *decoder) (T, error) {
	s, err := d.raw()
	if err != nil {
		return 0, err
	}
	lower, upper := typeutil.Bounds[T]()
	x, err := strconv.ParseInt(s, 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return 0, merr.WrapErrNumericOverflow(d.sess.stack.Path(), s, lower, upper)
	}
	if err != nil {
		return 0, d.mismatch("integer", s)
	}
	v, ok := typeutil.Narrow[T](x)
	if !ok {
		return 0, merr.WrapErrNumericOverflow(d.sess.stack.Path(), s, lower, upper)
	}
	return v, nil
}

func (d *decoder) DecodeInt8() (int8, error)   { return decodeSigned[int8](d) }
func (d *decoder) DecodeInt16() (int16, error) { return decodeSigned[int16](d) }
func (d *decoder) DecodeInt32() (int32, error) { return decodeSigned[int32](d) }
func (d *decoder) DecodeInt64() (int64, error) { return decodeSigned[int64](d) }

func (d *decoder) decodeFloat(bits int) (float64, error) {
	s, err := d.raw()
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, bits)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, d.mismatch("number", s)
	}
	return f, nil
}

func (d *decoder) DecodeFloat32() (float32, error) {
	f, err := d.decodeFloat(32)
	return float32(f), err
}

func (d *decoder) DecodeFloat64() (float64, error) {
	return d.decodeFloat(64)
}

func (d *decoder) DecodeChar() (rune, error) {
	s, err := d.raw()
	if err != nil {
		return 0, err
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, d.mismatch("single character", s)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

func (d *decoder) DecodeString() (string, error) {
	return d.raw()
}

func (d *decoder) DecodeEnum(desc descriptor.Descriptor) (int, error) {
	s, err := d.raw()
	if err != nil {
		return 0, err
	}
	i := desc.ElementIndex(s)
	if i == descriptor.UnknownName {
		return 0, merr.WrapErrMalformedInput(d.sess.stack.Path(), -1,
			fmt.Sprintf("%q is not a value of enum %s", s, desc.SerialName()))
	}
	return i, nil
}

// DecodeNotNullMark 在该键本身或其下的任一键存在时返回 true。
func (d *decoder) DecodeNotNullMark() (bool, error) {
	return d.sess.present(d.key), nil
}

func (d *decoder) DecodeNull() error {
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
	c := &compositeDecoder{sess: d.sess, kind: inner.Kind(), prefix: d.key}
	size := serial.UnknownSize
	if c.kind == descriptor.KindList || c.kind == descriptor.KindMap {
		n, err := d.sess.indexCount(d.key)
		if err != nil {
			return nil, err
		}
		if c.kind == descriptor.KindMap {
			n += n % 2
		}
		c.size = n
		size = n
	}
	if err := d.sess.stack.Push(inner, size); err != nil {
		return nil, err
	}
	c.depth = d.sess.stack.Depth()
	return c, nil
}

type compositeDecoder struct {
	sess   *session
	kind   descriptor.Kind
	prefix string
	// size 为集合的元素个数，映射为键值对数目的两倍。
	size  int
	pos   int
	depth int
}

func (c *compositeDecoder) isCollection() bool {
	return c.kind == descriptor.KindList || c.kind == descriptor.KindMap
}

func (c *compositeDecoder) DecodeSequentially() bool {
	return c.isCollection()
}

func (c *compositeDecoder) DecodeCollectionSize(descriptor.Descriptor) (int, error) {
	switch c.kind {
	case descriptor.KindList:
		return c.size, nil
	case descriptor.KindMap:
		return c.size / 2, nil
	default:
		return serial.UnknownSize, nil
	}
}

// implicitlyEmpty 判断缺失的第 i 个元素是否按空集合读取：空列表与空映射不产生任何键。
func implicitlyEmpty(d descriptor.Descriptor, i int) bool {
	if d.IsElementOptional(i) || d.IsElementNullable(i) {
		return false
	}
	k := d.ElementDescriptor(i).Unwrap().Kind()
	return k == descriptor.KindList || k == descriptor.KindMap
}

func (c *compositeDecoder) DecodeElementIndex(d descriptor.Descriptor) (int, error) {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return 0, err
	}
	if c.isCollection() {
		if c.pos >= c.size {
			return serial.ElementDone, nil
		}
		c.pos++
		return c.pos - 1, nil
	}
	for c.pos < d.ElementsCount() {
		i := c.pos
		c.pos++
		if !c.sess.present(childKey(c.prefix, d.ElementName(i))) && !implicitlyEmpty(d, i) {
			continue
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
	if c.isCollection() {
		if i < 0 || i >= c.size {
			return nil, merr.WrapErrProtocolMisuse("collection element index out of range", d.SerialName())
		}
		if err := c.sess.stack.MarkDecoded(i); err != nil {
			return nil, err
		}
	}
	return &decoder{sess: c.sess, key: elementKey(c.kind, d, c.prefix, i)}, nil
}

func (c *compositeDecoder) EndStructure(d descriptor.Descriptor) error {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return err
	}
	f, err := c.sess.stack.Pop(d)
	if err != nil {
		return err
	}
	if err := serial.CheckMissing(f, true); err != nil {
		return err
	}
	if c.sess.stack.Depth() > 0 || c.sess.cfg.ignoreUnknownKeys {
		return nil
	}
	if k, ok := c.sess.unused(); ok {
		return merr.WrapErrUnknownKey("$", k)
	}
	return nil
}
