// Package protobuf 以 protocol buffers 线格式承载序列化协议。
//
// 类对应消息，元素的字段号默认为下标加一，可用 Number 注解指定。
// 列表写成 repeated 字段（标量默认打包），映射写成键值条目消息的 repeated 字段，
// 多态值写成 {1: 鉴别值, 2: 负载} 的消息。null 通过省略字段表示，因此列表中不能出现 null。
package protobuf

import (
	"bytes"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/serialkit/pkg/log"
	"github.com/lk2023060901/serialkit/pkg/metrics"
	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

const formatName = "protobuf"

// Format 是一组不可变的 protobuf 配置，可以被多个 goroutine 同时使用。
type Format struct {
	log.Binder

	encodeDefaults bool
	module         *serial.Module
	maxDepth       int
	// schemas 缓存每个消息描述符的字段号分配，key 为 descriptor.Descriptor。
	schemas sync.Map
}

type options struct {
	encodeDefaults bool
	module         *serial.Module
	maxDepth       int
}

// Option 修改 Format 的配置。
type Option func(*options)

// WithEncodeDefaults 控制是否写出等于默认值的可选元素，默认不写出。
func WithEncodeDefaults(v bool) Option {
	return func(o *options) {
		o.encodeDefaults = v
	}
}

// WithModule 设置开放多态家族使用的模块。
func WithModule(m *serial.Module) Option {
	return func(o *options) {
		o.module = m
	}
}

// WithMaxDepth 设置最大嵌套深度。
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.maxDepth = depth
	}
}

// Default 是使用默认配置的 Format。
var Default = MustNew()

// New 创建 Format。
func New(opts ...Option) (*Format, error) {
	o := options{module: serial.EmptyModule, maxDepth: serial.DefaultMaxDepth}
	for _, opt := range opts {
		opt(&o)
	}
	if o.module == nil {
		return nil, merr.WrapErrParameterInvalidMsg("module must not be nil")
	}
	if o.maxDepth < 0 {
		return nil, merr.WrapErrParameterInvalidMsg("max depth must not be negative, got %d", o.maxDepth)
	}
	return &Format{encodeDefaults: o.encodeDefaults, module: o.module, maxDepth: o.maxDepth}, nil
}

// MustNew 与 New 相同，出错时 panic。
func MustNew(opts ...Option) *Format {
	f, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Format) Module() *serial.Module {
	return f.module
}

// schema 返回消息描述符 d 的字段号分配。
func (f *Format) schema(d descriptor.Descriptor) (*schema, error) {
	if cached, ok := f.schemas.Load(d); ok {
		return cached.(*schema), nil
	}
	s, err := buildSchema(d)
	if err != nil {
		return nil, err
	}
	cached, _ := f.schemas.LoadOrStore(d, s)
	return cached.(*schema), nil
}

func (f *Format) observe(op string, n int64, err error, stack *serial.RegionStack) {
	metrics.ObserveSession(formatName, op, n, err)
	if err != nil {
		f.Logger().Debug("protobuf session failed",
			log.FieldFormat(formatName),
			log.FieldOp(op),
			log.FieldPath(stack.Path()),
			zap.Error(err))
	}
}

// Marshal 将 v 编码为一条 protobuf 消息。顶层值必须是类或多态值。
func Marshal[T any](f *Format, s serial.Serializer[T], v T) ([]byte, error) {
	sess := &encodeSession{f: f, stack: serial.NewRegionStack(f.maxDepth)}
	err := s.Serialize(&encoder{sess: sess, root: true}, v)
	f.observe(metrics.OpEncode, int64(len(sess.out)), err, sess.stack)
	if err != nil {
		return nil, err
	}
	return sess.out, nil
}

// Encode 将 v 编码后写入 w。消息本身不带长度，多条消息相接时需要由外层分帧。
func Encode[T any](f *Format, w io.Writer, s serial.Serializer[T], v T) error {
	b, err := Marshal(f, s, v)
	if err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return merr.WrapErrIoFailed(err)
	}
	return nil
}

// Unmarshal 从一条完整的消息 data 解码出 T。未声明的字段号会被跳过。
func Unmarshal[T any](f *Format, s serial.Serializer[T], data []byte) (T, error) {
	sess := &decodeSession{f: f, stack: serial.NewRegionStack(f.maxDepth), data: data}
	v, err := s.Deserialize(&decoder{sess: sess, root: true})
	f.observe(metrics.OpDecode, int64(len(data)), err, sess.stack)
	return v, err
}

// Decode 读取 r 的全部内容并作为一条消息解码。
func Decode[T any](f *Format, r io.Reader, s serial.Serializer[T]) (T, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		var zero T
		return zero, merr.WrapErrIoFailed(err)
	}
	return Unmarshal(f, s, buf.Bytes())
}
