// Package frame 把编码后的值写成带版本头的帧流，用于在文件或连接上连续传输多条消息。
//
// 流以头部开始：
//
//	"SKF1" | u8 版本长度 | 版本（semver 文本） | u8 格式名长度 | 格式名
//
// 之后每一帧为：
//
//	u8 标志 | uvarint 负载长度 | 负载
//
// 负载依次经过编码、可选的 zstd 压缩与可选的加密签名。加密时帧序号与标志作为关联数据，
// 因此帧被重排、丢弃或改写标志都会导致读取失败。
package frame

import (
	"bufio"
	"encoding/binary"
	"io"
	"strconv"

	"github.com/blang/semver/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/lk2023060901/serialkit/pkg/log"
	"github.com/lk2023060901/serialkit/pkg/metrics"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

const (
	magic = "SKF1"

	// DefaultMaxFrameSize 为单帧负载（压缩与解压后）允许的最大字节数。
	DefaultMaxFrameSize = 16 << 20

	flagCompressed byte = 1 << 0
	flagSealed     byte = 1 << 1
	knownFlags          = flagCompressed | flagSealed

	metricsName = "frame"
)

// Version 是写出的流版本。读取端只接受主版本号相同的流。
var Version = semver.MustParse("1.0.0")

type options struct {
	compressor   Compressor
	minCompress  int
	sealer       Sealer
	maxFrameSize int
}

// Option 修改 Writer 或 Reader 的行为。
type Option func(*options)

// WithCompression 对不小于 minSize 字节的负载进行压缩，minSize < 0 时关闭压缩。
func WithCompression(minSize int) Option {
	return func(o *options) {
		o.minCompress = minSize
	}
}

// WithCompressor 替换默认的 zstd 实现。
func WithCompressor(c Compressor) Option {
	return func(o *options) {
		o.compressor = c
	}
}

// WithSealer 加密并签名每一帧。读取端设置后拒绝未加密的帧。
func WithSealer(s Sealer) Option {
	return func(o *options) {
		o.sealer = s
	}
}

// WithMaxFrameSize 设置单帧负载的上限。
func WithMaxFrameSize(n int) Option {
	return func(o *options) {
		o.maxFrameSize = n
	}
}

func newOptions(opts []Option) (options, error) {
	o := options{minCompress: -1, maxFrameSize: DefaultMaxFrameSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxFrameSize <= 0 {
		return o, merr.WrapErrParameterInvalidMsg("max frame size must be positive, got %d", o.maxFrameSize)
	}
	return o, nil
}

func (o *options) compressorOrDefault() (Compressor, error) {
	if o.compressor != nil {
		return o.compressor, nil
	}
	return sharedZstd()
}

// aad 返回第 seq 帧的关联数据。
func aad(seq uint64, flags byte) []byte {
	b := binary.BigEndian.AppendUint64(make([]byte, 0, 9), seq)
	return append(b, flags)
}

// Writer 向 io.Writer 写出帧流，不是并发安全的。
type Writer struct {
	w      io.Writer
	opts   options
	format string
	seq    uint64
	buf    []byte
}

// NewWriter 写出流头部并返回 Writer。format 为负载使用的格式名。
func NewWriter(w io.Writer, format string, opts ...Option) (*Writer, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	if format == "" || len(format) > 255 {
		return nil, merr.WrapErrParameterInvalidMsg("format name must be 1 to 255 bytes, got %q", format)
	}
	version := Version.String()
	header := make([]byte, 0, len(magic)+2+len(version)+len(format))
	header = append(header, magic...)
	header = append(header, byte(len(version)))
	header = append(header, version...)
	header = append(header, byte(len(format)))
	header = append(header, format...)
	if _, err := w.Write(header); err != nil {
		return nil, merr.WrapErrIoFailed(err)
	}
	return &Writer{w: w, opts: o, format: format}, nil
}

// Format 返回流头部声明的格式名。
func (w *Writer) Format() string {
	return w.format
}

// WriteFrame 把 payload 作为一帧写出。
func (w *Writer) WriteFrame(payload []byte) error {
	n, err := w.writeFrame(payload)
	metrics.ObserveSession(metricsName, metrics.OpEncode, int64(n), err)
	return err
}

func (w *Writer) writeFrame(payload []byte) (int, error) {
	if len(payload) > w.opts.maxFrameSize {
		return 0, merr.WrapErrEncodeFailed("frame exceeds size limit",
			"size="+strconv.Itoa(len(payload)), "limit="+strconv.Itoa(w.opts.maxFrameSize))
	}
	var flags byte
	body := payload
	if w.opts.minCompress >= 0 && len(payload) >= w.opts.minCompress && len(payload) > 0 {
		c, err := w.opts.compressorOrDefault()
		if err != nil {
			return 0, err
		}
		compressed, err := c.Compress(nil, payload)
		if err != nil {
			return 0, merr.WrapErrEncodeFailed(err.Error(), "compress")
		}
		// 压缩没有收益时保留原文。
		if len(compressed) < len(payload) {
			body = compressed
			flags |= flagCompressed
		}
	}
	if w.opts.sealer != nil {
		flags |= flagSealed
		sealed, err := w.opts.sealer.Seal(body, aad(w.seq, flags))
		if err != nil {
			return 0, err
		}
		body = sealed
	}
	w.buf = append(w.buf[:0], flags)
	w.buf = binary.AppendUvarint(w.buf, uint64(len(body)))
	w.buf = append(w.buf, body...)
	n, err := w.w.Write(w.buf)
	if err != nil {
		return n, merr.WrapErrIoFailed(err)
	}
	w.seq++
	return n, nil
}

// Reader 从 io.Reader 读取帧流，不是并发安全的。
type Reader struct {
	log.Binder

	r       *bufio.Reader
	src     *recordingReader
	opts    options
	format  string
	version semver.Version
	seq     uint64
}

// NewReader 读取并校验流头部。format 非空时要求流声明同一格式。
func NewReader(r io.Reader, format string, opts ...Option) (*Reader, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, err
	}
	src := &recordingReader{r: r}
	rd := &Reader{r: bufio.NewReader(src), src: src, opts: o}
	if err := rd.readHeader(format); err != nil {
		return nil, err
	}
	return rd, nil
}

func (r *Reader) readHeader(format string) error {
	var m [len(magic)]byte
	if _, err := io.ReadFull(r.r, m[:]); err != nil {
		return r.readError(err, "stream header")
	}
	if string(m[:]) != magic {
		return merr.WrapErrIncompatibleStream(strconv.Quote(string(m[:])), strconv.Quote(magic))
	}
	text, err := r.readShortString("stream version")
	if err != nil {
		return err
	}
	v, err := semver.Parse(text)
	if err != nil {
		return merr.WrapErrMalformedInput("", -1, "invalid stream version "+strconv.Quote(text))
	}
	if v.Major != Version.Major {
		return merr.WrapErrIncompatibleStream(v.String(), Version.String())
	}
	name, err := r.readShortString("stream format")
	if err != nil {
		return err
	}
	if format != "" && name != format {
		return merr.WrapErrIncompatibleStream(name, format)
	}
	r.version, r.format = v, name
	return nil
}

func (r *Reader) readShortString(what string) (string, error) {
	n, err := r.r.ReadByte()
	if err != nil {
		return "", r.readError(err, what)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		return "", r.readError(err, what)
	}
	return string(b), nil
}

// readError 把读取错误归类：任何 EOF 都意味着数据被截断。
func (r *Reader) readError(err error, what string) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return merr.WrapErrUnexpectedEOF("", -1, what)
	}
	return merr.WrapErrIoFailed(err)
}

// Format 返回流头部声明的格式名。
func (r *Reader) Format() string {
	return r.format
}

// Version 返回流头部声明的版本。
func (r *Reader) Version() semver.Version {
	return r.version
}

// ReadFrame 读取下一帧的负载。流在帧边界处结束时返回 io.EOF。
func (r *Reader) ReadFrame() ([]byte, error) {
	payload, n, err := r.readFrame()
	if err == io.EOF {
		return nil, err
	}
	metrics.ObserveSession(metricsName, metrics.OpDecode, int64(n), err)
	if err != nil {
		r.Logger().Debug("frame rejected",
			log.FieldFormat(r.format),
			zap.Uint64("seq", r.seq),
			zap.Error(err))
	}
	return payload, err
}

func (r *Reader) readFrame() ([]byte, int, error) {
	flags, err := r.r.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, io.EOF
		}
		return nil, 0, merr.WrapErrIoFailed(err)
	}
	if flags&^knownFlags != 0 {
		return nil, 1, merr.WrapErrMalformedInput("", -1, "unknown frame flags 0x"+strconv.FormatUint(uint64(flags), 16))
	}
	size, err := binary.ReadUvarint(r.r)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, 1, merr.WrapErrUnexpectedEOF("", -1, "frame length")
		}
		if r.src.err != nil {
			return nil, 1, merr.WrapErrIoFailed(err)
		}
		return nil, 1, merr.WrapErrMalformedInput("", -1, "frame length overflows")
	}
	limit := uint64(r.opts.maxFrameSize)
	if r.opts.sealer != nil {
		limit += 256
	}
	if size > limit {
		return nil, 1, merr.WrapErrMalformedInput("", -1,
			"frame of "+strconv.FormatUint(size, 10)+" bytes exceeds limit "+strconv.Itoa(r.opts.maxFrameSize))
	}
	body := make([]byte, size)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return nil, 1, r.readError(err, "frame payload")
	}
	n := 1 + len(binary.AppendUvarint(nil, size)) + int(size)

	sealed := flags&flagSealed != 0
	switch {
	case sealed && r.opts.sealer == nil:
		return nil, n, merr.WrapErrIncompatibleStream("sealed frame", "plain frame")
	case !sealed && r.opts.sealer != nil:
		return nil, n, merr.WrapErrIncompatibleStream("plain frame", "sealed frame")
	case sealed:
		if body, err = r.opts.sealer.Open(body, aad(r.seq, flags)); err != nil {
			return nil, n, err
		}
	}
	if flags&flagCompressed != 0 {
		c, err := r.opts.compressorOrDefault()
		if err != nil {
			return nil, n, err
		}
		if body, err = c.Decompress(nil, body); err != nil {
			return nil, n, merr.WrapErrMalformedInput("", -1, "decompress frame: "+err.Error())
		}
		if len(body) > r.opts.maxFrameSize {
			return nil, n, merr.WrapErrMalformedInput("", -1, "decompressed frame exceeds limit")
		}
	}
	r.seq++
	return body, n, nil
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
