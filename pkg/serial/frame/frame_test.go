package frame

import (
	"bytes"
	"io"
	"testing"
	"testing/iotest"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/serialkit/pkg/serial/cbor"
	"github.com/lk2023060901/serialkit/pkg/serial/internal/fixture"
	"github.com/lk2023060901/serialkit/pkg/serial/json"
	"github.com/lk2023060901/serialkit/pkg/serial/protobuf"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

func header(version, format string) []byte {
	b := []byte(magic)
	b = append(b, byte(len(version)))
	b = append(b, version...)
	b = append(b, byte(len(format)))
	return append(b, format...)
}

func testSealer(t *testing.T, macKey string) *AEADSealer {
	s, err := NewAEADSealer(bytes.Repeat([]byte{7}, 32), []byte(macKey))
	require.NoError(t, err)
	return s
}

var points = []fixture.Point{{X: 1, Y: 2}, {X: -3, Y: 4}, {X: 5, Y: 6}}

func TestRoundTrip(t *testing.T) {
	codecs := []Codec[fixture.Point]{
		JSON(json.Default, fixture.PointSerializer),
		CBOR(cbor.Default, fixture.PointSerializer),
		Protobuf(protobuf.Default, fixture.PointSerializer),
	}
	for _, c := range codecs {
		t.Run(c.Format, func(t *testing.T) {
			var buf bytes.Buffer
			enc, err := NewEncoder(&buf, c)
			require.NoError(t, err)
			for _, p := range points {
				require.NoError(t, enc.Encode(p))
			}

			var got []fixture.Point
			for p, err := range Values(iotest.OneByteReader(bytes.NewReader(buf.Bytes())), c) {
				require.NoError(t, err)
				got = append(got, p)
			}
			assert.Equal(t, points, got)
		})
	}
}

func TestHeader(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "json")
	require.NoError(t, err)
	assert.Equal(t, "json", w.Format())
	assert.Equal(t, header("1.0.0", "json"), buf.Bytes())

	r, err := NewReader(bytes.NewReader(buf.Bytes()), "")
	require.NoError(t, err)
	assert.Equal(t, "json", r.Format())
	assert.Equal(t, Version, r.Version())
	_, err = r.ReadFrame()
	assert.Equal(t, io.EOF, err)

	// 次版本号不同的流仍然可以读取。
	r, err = NewReader(bytes.NewReader(header("1.3.0", "json")), "json")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), r.Version().Minor)

	_, err = NewWriter(&buf, "")
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

func TestIncompatibleStream(t *testing.T) {
	_, err := NewReader(bytes.NewReader(header("2.0.0", "json")), "json")
	assert.ErrorIs(t, err, merr.ErrIncompatibleStream)

	_, err = NewReader(bytes.NewReader(header("1.0.0", "cbor")), "json")
	assert.ErrorIs(t, err, merr.ErrIncompatibleStream)

	_, err = NewReader(bytes.NewReader([]byte("ABCD\x051.0.0")), "")
	assert.ErrorIs(t, err, merr.ErrIncompatibleStream)

	_, err = NewReader(bytes.NewReader(header("one", "json")), "")
	assert.ErrorIs(t, err, merr.ErrMalformedInput)

	_, err = NewReader(bytes.NewReader(header("1.0.0", "json")[:7]), "")
	assert.ErrorIs(t, err, merr.ErrUnexpectedEOF)

	codec := JSON(json.Default, fixture.PointSerializer)
	var last error
	for _, err := range Values(bytes.NewReader(header("1.0.0", "cbor")), codec) {
		last = err
	}
	assert.ErrorIs(t, last, merr.ErrIncompatibleStream)
}

func TestCompression(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "raw", WithCompression(16))
	require.NoError(t, err)
	hl := buf.Len()

	big := bytes.Repeat([]byte("serialkit "), 1000)
	require.NoError(t, w.WriteFrame(big))
	assert.Equal(t, flagCompressed, buf.Bytes()[hl])
	assert.Less(t, buf.Len()-hl, len(big))

	// 低于阈值的负载不压缩。
	second := buf.Len()
	require.NoError(t, w.WriteFrame([]byte("tiny")))
	assert.Equal(t, byte(0), buf.Bytes()[second])
	require.NoError(t, w.WriteFrame(nil))

	r, err := NewReader(bytes.NewReader(buf.Bytes()), "raw")
	require.NoError(t, err)
	got, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, big, got)
	got, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("tiny"), got)
	got, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Empty(t, got)
	_, err = r.ReadFrame()
	assert.Equal(t, io.EOF, err)
}

func TestSealed(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, "raw", WithSealer(testSealer(t, "mac")), WithCompression(0))
	require.NoError(t, err)
	hl := buf.Len()
	require.NoError(t, w.WriteFrame([]byte("first")))
	mid := buf.Len()
	require.NoError(t, w.WriteFrame([]byte("second")))
	stream := buf.Bytes()

	r, err := NewReader(bytes.NewReader(stream), "raw", WithSealer(testSealer(t, "mac")))
	require.NoError(t, err)
	got, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got)
	got, err = r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	r, err = NewReader(bytes.NewReader(stream), "raw")
	require.NoError(t, err)
	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, merr.ErrIncompatibleStream)

	r, err = NewReader(bytes.NewReader(stream), "raw", WithSealer(testSealer(t, "other")))
	require.NoError(t, err)
	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, merr.ErrMalformedInput)

	tampered := append([]byte(nil), stream...)
	tampered[mid-1] ^= 0xff
	r, err = NewReader(bytes.NewReader(tampered), "raw", WithSealer(testSealer(t, "mac")))
	require.NoError(t, err)
	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, merr.ErrMalformedInput)

	// 交换两帧的顺序后序号不再匹配。
	swapped := append([]byte(nil), stream[:hl]...)
	swapped = append(swapped, stream[mid:]...)
	swapped = append(swapped, stream[hl:mid]...)
	r, err = NewReader(bytes.NewReader(swapped), "raw", WithSealer(testSealer(t, "mac")))
	require.NoError(t, err)
	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, merr.ErrMalformedInput)

	var plain bytes.Buffer
	pw, err := NewWriter(&plain, "raw")
	require.NoError(t, err)
	require.NoError(t, pw.WriteFrame([]byte("x")))
	r, err = NewReader(bytes.NewReader(plain.Bytes()), "raw", WithSealer(testSealer(t, "mac")))
	require.NoError(t, err)
	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, merr.ErrIncompatibleStream)

	_, err = NewAEADSealer([]byte("short"), []byte("mac"))
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

func TestFrameErrors(t *testing.T) {
	base := header("1.0.0", "raw")
	read := func(stream []byte, opts ...Option) error {
		r, err := NewReader(bytes.NewReader(stream), "raw", opts...)
		require.NoError(t, err)
		_, err = r.ReadFrame()
		return err
	}

	assert.ErrorIs(t, read(append(append([]byte{}, base...), 0x80, 0x01, 'x')), merr.ErrMalformedInput)
	assert.ErrorIs(t, read(append(append([]byte{}, base...), 0x00, 0x05, 'x')), merr.ErrUnexpectedEOF)
	assert.ErrorIs(t, read(append(append([]byte{}, base...), 0x00)), merr.ErrUnexpectedEOF)
	assert.ErrorIs(t, read(append(append([]byte{}, base...), 0x00, 0x05, 'a', 'b', 'c', 'd', 'e'), WithMaxFrameSize(4)),
		merr.ErrMalformedInput)
	assert.ErrorIs(t, read(append(append([]byte{}, base...), flagCompressed, 0x02, 'n', 'o')), merr.ErrMalformedInput)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, "raw", WithMaxFrameSize(4))
	require.NoError(t, err)
	assert.ErrorIs(t, w.WriteFrame([]byte("abcde")), merr.ErrEncodeFailed)

	boom := errors.New("boom")
	_, err = NewReader(iotest.ErrReader(boom), "raw")
	assert.ErrorIs(t, err, merr.ErrIoFailed)
	assert.ErrorIs(t, err, boom)

	r, err := NewReader(io.MultiReader(bytes.NewReader(base), iotest.ErrReader(boom)), "raw")
	require.NoError(t, err)
	_, err = r.ReadFrame()
	assert.ErrorIs(t, err, merr.ErrIoFailed)

	_, err = NewWriter(failingWriter{boom}, "raw")
	assert.ErrorIs(t, err, merr.ErrIoFailed)

	_, err = NewReader(bytes.NewReader(base), "raw", WithMaxFrameSize(0))
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)
}

func TestDecodeErrorStopsIteration(t *testing.T) {
	codec := JSON(json.Default, fixture.PointSerializer)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, codec.Format)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame([]byte(`{"x":1,"y":2}`)))
	require.NoError(t, w.WriteFrame([]byte(`{"x":1}`)))
	require.NoError(t, w.WriteFrame([]byte(`{"x":3,"y":4}`)))

	var (
		got  []fixture.Point
		errs []error
	)
	for p, err := range Values(bytes.NewReader(buf.Bytes()), codec) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		got = append(got, p)
	}
	assert.Equal(t, []fixture.Point{{X: 1, Y: 2}}, got)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], merr.ErrMissingField)
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }
