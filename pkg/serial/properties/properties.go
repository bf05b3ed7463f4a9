// Package properties 将值编码为扁平的键值对，并以 Java properties 文本承载。
//
// 类元素的键为 "外层键.元素名"，列表元素为 "外层键.下标"，映射的第 i 个键值对
// 写作 "外层键.2i" 与 "外层键.2i+1"。null 不写出，解码时缺失的可空元素视为 null，
// 缺失的必需列表与映射视为空。多态值使用 {type, value} 结构，例如 "shape.type=circle"、
// "shape.value.radius=1"。顶层值必须是类、列表、映射或多态值。
//
// 文本的读写由 magiconair/properties 完成，读入时关闭 ${key} 展开。
package properties

import (
	"bytes"
	"io"

	"github.com/magiconair/properties"

	"github.com/lk2023060901/serialkit/pkg/metrics"
	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

const formatName = "properties"

type config struct {
	encodeDefaults    bool
	ignoreUnknownKeys bool
	module            *serial.Module
	maxDepth          int
	separator         string
}

// Option 修改 properties 格式的编解码行为。
type Option func(*config)

// WithEncodeDefaults 控制是否写出等于默认值的可选元素，默认写出。
func WithEncodeDefaults(v bool) Option {
	return func(c *config) {
		c.encodeDefaults = v
	}
}

// WithIgnoreUnknownKeys 忽略未被任何元素读取的键。
func WithIgnoreUnknownKeys(v bool) Option {
	return func(c *config) {
		c.ignoreUnknownKeys = v
	}
}

// WithModule 设置开放多态家族使用的模块。
func WithModule(m *serial.Module) Option {
	return func(c *config) {
		c.module = m
	}
}

// WithMaxDepth 设置最大嵌套深度，0 表示使用默认值。
func WithMaxDepth(depth int) Option {
	return func(c *config) {
		c.maxDepth = depth
	}
}

// WithSeparator 设置写出文本时键与值之间的分隔符，默认为 " = "。
func WithSeparator(sep string) Option {
	return func(c *config) {
		c.separator = sep
	}
}

// Format 持有不可变的配置，可以被多个 goroutine 同时使用。
type Format struct {
	conf config
}

// Default 写出默认值，不忽略未知键。
var Default = MustNew()

// New 创建 Format。
func New(opts ...Option) (*Format, error) {
	c := config{encodeDefaults: true, module: serial.EmptyModule}
	for _, opt := range opts {
		opt(&c)
	}
	if c.maxDepth < 0 {
		return nil, merr.WrapErrParameterInvalidMsg("maxDepth must be non-negative, got %d", c.maxDepth)
	}
	if c.module == nil {
		c.module = serial.EmptyModule
	}
	return &Format{conf: c}, nil
}

// MustNew 与 New 相同，出错时 panic。
func MustNew(opts ...Option) *Format {
	f, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return f
}

func checkRoot(d descriptor.Descriptor) error {
	switch d.Unwrap().Kind() {
	case descriptor.KindClass, descriptor.KindList, descriptor.KindMap, descriptor.KindSealed, descriptor.KindOpen:
		return nil
	}
	return merr.WrapErrUnsupportedShape(formatName, d.SerialName(), "top-level value must be a class, list, map or polymorphic value")
}

func encodeProperties[T any](f *Format, s serial.Serializer[T], v T) (*properties.Properties, error) {
	if err := checkRoot(s.Descriptor()); err != nil {
		return nil, err
	}
	sess := newSession(f.conf)
	if err := s.Serialize(&encoder{sess: sess}, v); err != nil {
		return nil, err
	}
	return sess.out, nil
}

// EncodeToMap 将 v 编码为扁平的键值映射。
func EncodeToMap[T any](f *Format, s serial.Serializer[T], v T) (map[string]string, error) {
	p, err := encodeProperties(f, s, v)
	if err != nil {
		metrics.ObserveSession(formatName, metrics.OpEncode, 0, err)
		return nil, err
	}
	m := p.Map()
	metrics.ObserveSession(formatName, metrics.OpEncode, int64(p.Len()), nil)
	return m, nil
}

// DecodeFromMap 从扁平的键值映射解码出 T。
func DecodeFromMap[T any](f *Format, s serial.Serializer[T], m map[string]string) (T, error) {
	v, err := decode(f, s, m)
	metrics.ObserveSession(formatName, metrics.OpDecode, int64(len(m)), err)
	return v, err
}

// Encode 将 v 以 UTF-8 properties 文本写入 w，键按元素的声明顺序排列。
func Encode[T any](f *Format, w io.Writer, s serial.Serializer[T], v T) error {
	n, err := encode(f, w, s, v)
	metrics.ObserveSession(formatName, metrics.OpEncode, int64(n), err)
	return err
}

func encode[T any](f *Format, w io.Writer, s serial.Serializer[T], v T) (int, error) {
	p, err := encodeProperties(f, s, v)
	if err != nil {
		return 0, err
	}
	p.WriteSeparator = f.conf.separator
	n, err := p.Write(w, properties.UTF8)
	if err != nil {
		return n, merr.WrapErrIoFailed(err)
	}
	return n, nil
}

// Marshal 将 v 编码为 properties 文本。
func Marshal[T any](f *Format, s serial.Serializer[T], v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(f, &buf, s, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal 解析 UTF-8 properties 文本并解码出 T。
func Unmarshal[T any](f *Format, s serial.Serializer[T], data []byte) (T, error) {
	v, err := unmarshal(f, s, data)
	metrics.ObserveSession(formatName, metrics.OpDecode, int64(len(data)), err)
	return v, err
}

func unmarshal[T any](f *Format, s serial.Serializer[T], data []byte) (T, error) {
	var zero T
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadBytes(data)
	if err != nil {
		return zero, merr.WrapErrMalformedInput("$", -1, err.Error())
	}
	return decode(f, s, p.Map())
}

// Decode 读取 r 的全部内容并解码出 T。
func Decode[T any](f *Format, r io.Reader, s serial.Serializer[T]) (T, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		var zero T
		err = merr.WrapErrIoFailed(err)
		metrics.ObserveSession(formatName, metrics.OpDecode, int64(len(data)), err)
		return zero, err
	}
	return Unmarshal(f, s, data)
}

func decode[T any](f *Format, s serial.Serializer[T], m map[string]string) (T, error) {
	if err := checkRoot(s.Descriptor()); err != nil {
		var zero T
		return zero, err
	}
	sess := newSession(f.conf)
	sess.load(m)
	return s.Deserialize(&decoder{sess: sess})
}
