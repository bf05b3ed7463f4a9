package frame

import (
	"io"
	"iter"

	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/cbor"
	"github.com/lk2023060901/serialkit/pkg/serial/json"
	"github.com/lk2023060901/serialkit/pkg/serial/protobuf"
)

// Codec 把 T 与单帧负载相互转换。Format 写入流头部，读取时用于校验。
type Codec[T any] struct {
	Format    string
	Marshal   func(v T) ([]byte, error)
	Unmarshal func(data []byte) (T, error)
}

// JSON 返回以 JSON 文本为负载的 Codec。
func JSON[T any](f *json.Format, s serial.Serializer[T]) Codec[T] {
	return Codec[T]{
		Format:    "json",
		Marshal:   func(v T) ([]byte, error) { return json.EncodeToBytes(f, s, v) },
		Unmarshal: func(data []byte) (T, error) { return json.DecodeFromBytes(f, s, data) },
	}
}

// CBOR 返回以 CBOR 数据项为负载的 Codec。
func CBOR[T any](f *cbor.Format, s serial.Serializer[T]) Codec[T] {
	return Codec[T]{
		Format:    "cbor",
		Marshal:   func(v T) ([]byte, error) { return cbor.Marshal(f, s, v) },
		Unmarshal: func(data []byte) (T, error) { return cbor.Unmarshal(f, s, data) },
	}
}

// Protobuf 返回以 protobuf 消息为负载的 Codec。
func Protobuf[T any](f *protobuf.Format, s serial.Serializer[T]) Codec[T] {
	return Codec[T]{
		Format:    "protobuf",
		Marshal:   func(v T) ([]byte, error) { return protobuf.Marshal(f, s, v) },
		Unmarshal: func(data []byte) (T, error) { return protobuf.Unmarshal(f, s, data) },
	}
}

// Encoder 逐个写出 T 类型的值。
type Encoder[T any] struct {
	w     *Writer
	codec Codec[T]
}

// NewEncoder 在 w 上创建帧流，并以 c.Format 作为流的格式名。
func NewEncoder[T any](w io.Writer, c Codec[T], opts ...Option) (*Encoder[T], error) {
	fw, err := NewWriter(w, c.Format, opts...)
	if err != nil {
		return nil, err
	}
	return &Encoder[T]{w: fw, codec: c}, nil
}

// Encode 把 v 编码为一帧写出。
func (e *Encoder[T]) Encode(v T) error {
	b, err := e.codec.Marshal(v)
	if err != nil {
		return err
	}
	return e.w.WriteFrame(b)
}

// Decoder 逐个读取 T 类型的值。
type Decoder[T any] struct {
	r     *Reader
	codec Codec[T]
}

// NewDecoder 读取流头部，要求其格式名与 c.Format 一致。
func NewDecoder[T any](r io.Reader, c Codec[T], opts ...Option) (*Decoder[T], error) {
	fr, err := NewReader(r, c.Format, opts...)
	if err != nil {
		return nil, err
	}
	return &Decoder[T]{r: fr, codec: c}, nil
}

// Reader 返回底层的帧读取器。
func (d *Decoder[T]) Reader() *Reader {
	return d.r
}

// Decode 读取下一帧并解码。流在帧边界处结束时返回 io.EOF。
func (d *Decoder[T]) Decode() (T, error) {
	b, err := d.r.ReadFrame()
	if err != nil {
		var zero T
		return zero, err
	}
	return d.codec.Unmarshal(b)
}

// All 惰性地读取剩余的所有值，遇到第一个错误后结束，流正常结束时不产生错误。
func (d *Decoder[T]) All() iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		for {
			v, err := d.Decode()
			if err == io.EOF {
				return
			}
			if !yield(v, err) || err != nil {
				return
			}
		}
	}
}

// Values 是 NewDecoder 与 All 的组合，头部校验失败时产生一个错误。
func Values[T any](r io.Reader, c Codec[T], opts ...Option) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		d, err := NewDecoder(r, c, opts...)
		if err != nil {
			var zero T
			yield(zero, err)
			return
		}
		for v, err := range d.All() {
			if !yield(v, err) {
				return
			}
		}
	}
}
