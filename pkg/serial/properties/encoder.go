package properties

import (
	"strconv"

	"github.com/magiconair/properties"

	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
	"github.com/lk2023060901/serialkit/pkg/util/typeutil"
)

type session struct {
	cfg   config
	stack *serial.RegionStack
	out   *properties.Properties

	values map[string]string
	// keys 为 values 的键，按字典序排列，用于前缀查找。
	keys []string
	used typeutil.Set[string]
}

func newSession(cfg config) *session {
	out := properties.NewProperties()
	out.DisableExpansion = true
	return &session{cfg: cfg, stack: serial.NewRegionStack(cfg.maxDepth), out: out}
}

// childKey 返回 prefix 下名为 name 的键，根区域的前缀为空串。
func childKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func elementKey(kind descriptor.Kind, d descriptor.Descriptor, prefix string, i int) string {
	if kind == descriptor.KindList || kind == descriptor.KindMap {
		return childKey(prefix, strconv.Itoa(i))
	}
	return childKey(prefix, d.ElementName(i))
}

type encoder struct {
	sess *session
	key  string
}

var _ serial.Encoder = (*encoder)(nil)

func (e *encoder) value(v string) error {
	// 顶层的标量没有键可用，例如描述符为类、实际写出标量的序列化器。
	if e.key == "" {
		return merr.WrapErrUnsupportedShape(formatName, "scalar", "top-level value must be a class, list, map or polymorphic value")
	}
	if _, _, err := e.sess.out.Set(e.key, v); err != nil {
		return merr.WrapErrEncodeFailed(err.Error(), formatName)
	}
	return nil
}

func (e *encoder) EncodeBool(v bool) error   { return e.value(strconv.FormatBool(v)) }
func (e *encoder) EncodeInt8(v int8) error   { return e.value(strconv.FormatInt(int64(v), 10)) }
func (e *encoder) EncodeInt16(v int16) error { return e.value(strconv.FormatInt(int64(v), 10)) }
func (e *encoder) EncodeInt32(v int32) error { return e.value(strconv.FormatInt(int64(v), 10)) }
func (e *encoder) EncodeInt64(v int64) error { return e.value(strconv.FormatInt(v, 10)) }
func (e *encoder) EncodeChar(v rune) error   { return e.value(string(v)) }
func (e *encoder) EncodeString(v string) error {
	return e.value(v)
}

func (e *encoder) EncodeFloat32(v float32) error {
	return e.value(strconv.FormatFloat(float64(v), 'g', -1, 32))
}

func (e *encoder) EncodeFloat64(v float64) error {
	return e.value(strconv.FormatFloat(v, 'g', -1, 64))
}

// EncodeNull 不写出任何键。
func (e *encoder) EncodeNull() error        { return nil }
func (e *encoder) EncodeNotNullMark() error { return nil }
func (e *encoder) Module() *serial.Module   { return e.sess.cfg.module }

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
	if err := e.sess.stack.Push(inner, size); err != nil {
		return nil, err
	}
	return &compositeEncoder{
		sess:   e.sess,
		kind:   inner.Kind(),
		prefix: e.key,
		depth:  e.sess.stack.Depth(),
	}, nil
}

type compositeEncoder struct {
	sess   *session
	kind   descriptor.Kind
	prefix string
	depth  int
}

func (c *compositeEncoder) EncodeElement(d descriptor.Descriptor, i int) (serial.Encoder, error) {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return nil, err
	}
	if err := c.sess.stack.MarkEncoded(i); err != nil {
		return nil, err
	}
	return &encoder{sess: c.sess, key: elementKey(c.kind, d, c.prefix, i)}, nil
}

func (c *compositeEncoder) ShouldEncodeElementDefault(descriptor.Descriptor, int) bool {
	return c.sess.cfg.encodeDefaults
}

func (c *compositeEncoder) EndStructure(d descriptor.Descriptor) error {
	if err := c.sess.stack.Expect(c.depth); err != nil {
		return err
	}
	_, err := c.sess.stack.Pop(d)
	return err
}
