// Package cbor 以 CBOR（RFC 8949）承载序列化协议。
//
// 值先经 tree 格式转换为通用值树，再由 fxamacker/cbor 以规范模式编码：
// 映射的键按长度与字节序排序，浮点数取最短表示，因此相同的值总是得到相同的字节。
package cbor

import (
	"bytes"
	"io"
	"iter"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/fxamacker/cbor/v2"

	"github.com/lk2023060901/serialkit/pkg/metrics"
	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/tree"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

const formatName = "cbor"

// Format 持有编解码模式与树格式选项，可以被多个 goroutine 同时使用。
type Format struct {
	enc  cbor.EncMode
	dec  cbor.DecMode
	opts []tree.Option
}

// Default 使用树格式的默认选项。
var Default = MustNew()

// New 创建 Format，opts 作用于值与值树之间的转换。
func New(opts ...tree.Option) (*Format, error) {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("cbor encode mode: %s", err.Error())
	}
	dec, err := cbor.DecOptions{
		DefaultMapType:  reflect.TypeOf(map[string]any(nil)),
		MaxNestedLevels: serial.DefaultMaxDepth + 1,
		DupMapKey:       cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("cbor decode mode: %s", err.Error())
	}
	return &Format{enc: enc, dec: dec, opts: opts}, nil
}

// MustNew 与 New 相同，出错时 panic。
func MustNew(opts ...tree.Option) *Format {
	f, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return f
}

// Marshal 将 v 编码为 CBOR 字节。
func Marshal[T any](f *Format, s serial.Serializer[T], v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(f, &buf, s, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode 将 v 编码后写入 w。
func Encode[T any](f *Format, w io.Writer, s serial.Serializer[T], v T) error {
	n, err := encode(f, w, s, v)
	metrics.ObserveSession(formatName, metrics.OpEncode, int64(n), err)
	return err
}

func encode[T any](f *Format, w io.Writer, s serial.Serializer[T], v T) (int, error) {
	t, err := tree.Encode(s, v, f.opts...)
	if err != nil {
		return 0, err
	}
	b, err := f.enc.Marshal(t)
	if err != nil {
		return 0, merr.WrapErrEncodeFailed(err.Error(), formatName)
	}
	n, err := w.Write(b)
	if err != nil {
		return n, merr.WrapErrIoFailed(err)
	}
	return n, nil
}

// Unmarshal 从 data 解码出 T，data 中只能有一个 CBOR 数据项。
func Unmarshal[T any](f *Format, s serial.Serializer[T], data []byte) (T, error) {
	var t any
	err := f.dec.Unmarshal(data, &t)
	if err != nil {
		err = decodeError(err, nil)
	}
	v, err := finish(f, s, t, err)
	metrics.ObserveSession(formatName, metrics.OpDecode, int64(len(data)), err)
	return v, err
}

// Decode 从 r 读取一个 CBOR 数据项并解码为 T。r 中该数据项之后的内容不会被检查。
func Decode[T any](f *Format, r io.Reader, s serial.Serializer[T]) (T, error) {
	rr := &recordingReader{r: r}
	dec := f.dec.NewDecoder(rr)
	var t any
	err := dec.Decode(&t)
	if err != nil {
		err = decodeError(err, rr)
	}
	v, err := finish(f, s, t, err)
	metrics.ObserveSession(formatName, metrics.OpDecode, int64(dec.NumBytesRead()), err)
	return v, err
}

// DecodeSequence 惰性地读取 r 中首尾相接的一串 CBOR 数据项（RFC 8742）。遇到第一个错误后迭代结束。
func DecodeSequence[T any](f *Format, r io.Reader, s serial.Serializer[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		rr := &recordingReader{r: r}
		dec := f.dec.NewDecoder(rr)
		var err error
		defer func() {
			metrics.ObserveSession(formatName, metrics.OpDecode, int64(dec.NumBytesRead()), err)
		}()
		for {
			var t any
			if derr := dec.Decode(&t); derr != nil {
				if errors.Is(derr, io.EOF) && rr.err == nil {
					return
				}
				err = decodeError(derr, rr)
				var zero T
				yield(zero, err)
				return
			}
			v, derr := tree.Decode(s, t, f.opts...)
			if derr != nil {
				err = derr
				yield(v, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func finish[T any](f *Format, s serial.Serializer[T], t any, err error) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}
	return tree.Decode(s, t, f.opts...)
}

// decodeError 将 cbor 库的错误归入对应的错误类别。rr 非空时优先报告底层读取错误。
func decodeError(err error, rr *recordingReader) error {
	if rr != nil && rr.err != nil {
		return merr.WrapErrIoFailed(rr.err)
	}
	var extra *cbor.ExtraneousDataError
	var depth *cbor.MaxNestedLevelError
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return merr.WrapErrUnexpectedEOF("$", -1, "cbor data item")
	case errors.As(err, &extra):
		return merr.WrapErrMalformedInput("$", -1, "trailing data after cbor data item")
	case errors.As(err, &depth):
		return merr.WrapErrDepthExceeded(serial.DefaultMaxDepth+2, serial.DefaultMaxDepth+1)
	}
	return merr.WrapErrMalformedInput("$", -1, err.Error())
}

// recordingReader 记录底层 Reader 返回的第一个非 EOF 错误。
type recordingReader struct {
	r   io.Reader
	err error
}

func (r *recordingReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err != nil && err != io.EOF && r.err == nil {
		r.err = err
	}
	return n, err
}
