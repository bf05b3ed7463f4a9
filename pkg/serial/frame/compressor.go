package frame

import (
	"runtime"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// Compressor 抽象了单次压缩与解压。帧头中的压缩标志只表示“已压缩”，
// 因此读写两端必须使用同一种算法。
type Compressor interface {
	// Compress 将 src 压缩后追加到 dst[:0]，返回完整的压缩数据。
	Compress(dst, src []byte) ([]byte, error)
	// Decompress 将 Compress 的输出 src 解压后追加到 dst[:0]。
	Decompress(dst, src []byte) ([]byte, error)
}

// ZstdCompressor 基于 klauspost/compress/zstd，EncodeAll 与 DecodeAll 可以并发调用。
type ZstdCompressor struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

var _ Compressor = (*ZstdCompressor)(nil)

// NewZstdCompressor 创建一个 ZstdCompressor。concurrency <= 0 时使用 GOMAXPROCS，
// maxDecoded 限制单帧解压后的大小，为 0 时使用 DefaultMaxFrameSize。
func NewZstdCompressor(concurrency int, maxDecoded uint64) (*ZstdCompressor, error) {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	if maxDecoded == 0 {
		maxDecoded = DefaultMaxFrameSize
	}
	enc, err := zstd.NewWriter(nil,
		zstd.WithZeroFrames(true),
		zstd.WithEncoderConcurrency(concurrency),
	)
	if err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("zstd encoder: %s", err.Error())
	}
	dec, err := zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(concurrency),
		zstd.WithDecoderMaxMemory(maxDecoded),
	)
	if err != nil {
		enc.Close()
		return nil, merr.WrapErrParameterInvalidMsg("zstd decoder: %s", err.Error())
	}
	return &ZstdCompressor{enc: enc, dec: dec}, nil
}

func (c *ZstdCompressor) Compress(dst, src []byte) ([]byte, error) {
	if c.enc == nil {
		return nil, merr.WrapErrProtocolMisuse("zstd compressor closed")
	}
	return c.enc.EncodeAll(src, dst[:0]), nil
}

func (c *ZstdCompressor) Decompress(dst, src []byte) ([]byte, error) {
	if c.dec == nil {
		return nil, merr.WrapErrProtocolMisuse("zstd compressor closed")
	}
	return c.dec.DecodeAll(src, dst[:0])
}

// Close 释放编码器与解码器，之后的调用返回 ErrProtocolMisuse。
func (c *ZstdCompressor) Close() {
	if c.enc != nil {
		_ = c.enc.Close()
		c.enc = nil
	}
	if c.dec != nil {
		c.dec.Close()
		c.dec = nil
	}
}

// sharedZstd 是未指定 Compressor 时使用的进程级实例。
var sharedZstd = sync.OnceValues(func() (Compressor, error) {
	return NewZstdCompressor(0, 0)
})
