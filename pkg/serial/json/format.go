// Package json 是序列化协议的 JSON 格式实现。
//
// 编码端直接向 io.Writer 输出文本；解码端通过分块读取的拉取式词法分析器工作，
// 不要求整个输入同时驻留内存。多态值默认以鉴别字段嵌入对象，鉴别字段可以出现在对象的任意位置。
package json

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/serialkit/pkg/log"
	"github.com/lk2023060901/serialkit/pkg/metrics"
	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
	"github.com/lk2023060901/serialkit/pkg/util/viper"
)

const (
	formatName = "json"
	// flushSize 为编码输出缓冲的大小。
	flushSize = 4096
)

// Format 是一组不可变的 JSON 配置，可以被多个 goroutine 同时使用。
// 每次 Encode/Decode 调用都会创建独立的会话。
type Format struct {
	log.Binder

	conf   Configuration
	module *serial.Module
	// names 缓存带别名描述符的键映射，key 为 descriptor.Descriptor。
	names sync.Map
}

// Default 是使用默认配置的 Format。
var Default = MustNew()

// New 创建 Format，配置不合法时返回 ErrParameterInvalid。
func New(opts ...Option) (*Format, error) {
	o := options{conf: defaultConfiguration(), module: serial.EmptyModule}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.conf.validate(); err != nil {
		return nil, err
	}
	if o.conf.MaxDepth == 0 {
		o.conf.MaxDepth = serial.DefaultMaxDepth
	}
	return &Format{conf: o.conf, module: o.module}, nil
}

// MustNew 与 New 相同，出错时 panic。
func MustNew(opts ...Option) *Format {
	f, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// LoadConfig 从 YAML/JSON 配置文件的 json 段读取配置并创建 Format，
// opts 在文件配置之后应用。
func LoadConfig(path string, opts ...Option) (*Format, error) {
	c, err := viper.Load(path)
	if err != nil {
		return nil, err
	}
	conf := defaultConfiguration()
	root := struct {
		JSON *Configuration `mapstructure:"json"`
	}{JSON: &conf}
	if err := c.Unmarshal(&root); err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("decode json section of %s: %s", path, err.Error())
	}
	return New(append([]Option{WithConfiguration(conf)}, opts...)...)
}

// Configuration 返回配置快照。
func (f *Format) Configuration() Configuration {
	return f.conf
}

func (f *Format) Module() *serial.Module {
	return f.module
}

// elementIndex 将对象中的键映射为 d 的元素下标，识别 Names 注解声明的别名。
func (f *Format) elementIndex(d descriptor.Descriptor, key string) (int, error) {
	if !f.conf.UseAlternativeNames {
		return d.ElementIndex(key), nil
	}
	cached, ok := f.names.Load(d)
	if !ok {
		idx, err := buildNameIndex(d)
		if err != nil {
			return 0, err
		}
		cached, _ = f.names.LoadOrStore(d, idx)
	}
	if idx := cached.(nameIndex); idx != nil {
		if i, ok := idx[key]; ok {
			return i, nil
		}
		return descriptor.UnknownName, nil
	}
	return d.ElementIndex(key), nil
}

// enumIndex 查找枚举值名，按配置决定是否忽略大小写。
func (f *Format) enumIndex(d descriptor.Descriptor, name string) int {
	if i := d.ElementIndex(name); i != descriptor.UnknownName || !f.conf.CaseInsensitiveEnums {
		return i
	}
	for i := 0; i < d.ElementsCount(); i++ {
		if strings.EqualFold(d.ElementName(i), name) {
			return i
		}
	}
	return descriptor.UnknownName
}

// discriminatorKey 返回多态家族 base 使用的鉴别字段名。
func (f *Format) discriminatorKey(base descriptor.Descriptor) string {
	if key, ok := descriptor.ClassAnnotation[ClassDiscriminator](base); ok && key != "" {
		return string(key)
	}
	return f.conf.ClassDiscriminator
}

func (f *Format) observe(op string, n int64, err error, stack *serial.RegionStack) {
	metrics.ObserveSession(formatName, op, n, err)
	if err != nil {
		f.Logger().Debug("json session failed",
			log.FieldFormat(formatName),
			log.FieldOp(op),
			log.FieldPath(stack.Path()),
			zap.Error(err))
	}
}

// Encode 将 v 编码为 JSON 写入 w。出错时 w 中已写入的内容不完整，应当丢弃。
func Encode[T any](f *Format, w io.Writer, s serial.Serializer[T], v T) error {
	cw := &countingWriter{w: w}
	bw := bufio.NewWriterSize(cw, flushSize)
	sess := f.newEncodeSession(bw)
	err := s.Serialize(sess.root(), v)
	if err == nil {
		if ferr := bw.Flush(); ferr != nil {
			err = merr.WrapErrIoFailed(ferr)
		}
	}
	f.observe(metrics.OpEncode, cw.n, err, sess.stack)
	return err
}

// EncodeToBytes 将 v 编码为 JSON 字节。
func EncodeToBytes[T any](f *Format, s serial.Serializer[T], v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(f, &buf, s, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeToString 将 v 编码为 JSON 字符串。
func EncodeToString[T any](f *Format, s serial.Serializer[T], v T) (string, error) {
	b, err := EncodeToBytes(f, s, v)
	return string(b), err
}

// Decode 从 r 读取一个完整的 JSON 值并解码为 T，值之后只允许出现空白。
func Decode[T any](f *Format, r io.Reader, s serial.Serializer[T]) (T, error) {
	return decodeWith(f, newReaderLexer(r, f.conf.IsLenient, f.conf.MaxDepth), s)
}

// DecodeFromBytes 从 data 解码出 T，不会修改 data。
func DecodeFromBytes[T any](f *Format, s serial.Serializer[T], data []byte) (T, error) {
	return decodeWith(f, newBytesLexer(data, 0, f.conf.IsLenient, f.conf.MaxDepth), s)
}

// DecodeFromString 从字符串 text 解码出 T。
func DecodeFromString[T any](f *Format, s serial.Serializer[T], text string) (T, error) {
	return DecodeFromBytes(f, s, []byte(text))
}

func decodeWith[T any](f *Format, lex *lexer, s serial.Serializer[T]) (T, error) {
	sess := f.newDecodeSession(lex)
	v, err := s.Deserialize(sess.root())
	if err == nil {
		err = sess.expectEOF()
	}
	f.observe(metrics.OpDecode, lex.offset(), err, sess.stack)
	if err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
