package protobuf

import (
	"testing"
	"testing/iotest"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/serial/internal/fixture"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

type sample struct {
	ID     int64
	Delta  int32
	Values []int32
	Flags  []bool
}

var sampleSerializer = serial.MustStruct("Sample",
	serial.Field("id", serial.Int64, func(s *sample) int64 { return s.ID }, func(s *sample, v int64) { s.ID = v },
		descriptor.WithAnnotations(Number(10), Fixed)),
	serial.Field("delta", serial.Int32, func(s *sample) int32 { return s.Delta }, func(s *sample, v int32) { s.Delta = v },
		descriptor.WithAnnotations(Signed)),
	serial.Field("values", serial.List(serial.Int32), func(s *sample) []int32 { return s.Values }, func(s *sample, v []int32) { s.Values = v }),
	serial.Field("flags", serial.List(serial.Bool), func(s *sample) []bool { return s.Flags }, func(s *sample, v []bool) { s.Flags = v },
		descriptor.WithAnnotations(Unpacked{})),
)

func TestRoundTrip(t *testing.T) {
	p := fixture.Person{
		Name:     "ann",
		Nickname: fixture.Ptr("a"),
		Age:      30,
		Tags:     []string{"x", "y"},
		Scores:   map[string]int64{"go": 3, "c": -1},
		Favorite: fixture.Green,
		Home:     &fixture.Point{X: -1, Y: 1 << 20},
	}
	b, err := Marshal(Default, fixture.PersonSerializer, p)
	require.NoError(t, err)
	got, err := Unmarshal(Default, fixture.PersonSerializer, b)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestWireShape(t *testing.T) {
	b, err := Marshal(Default, fixture.PointSerializer, fixture.Point{X: 1, Y: 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x08, 0x01, 0x10, 0x02}, b)

	s := sample{ID: -1, Delta: -2, Values: []int32{1, 2, 300}, Flags: []bool{true, false}}
	b, err = Marshal(Default, sampleSerializer, s)
	require.NoError(t, err)

	var want []byte
	want = protowire.AppendTag(want, 10, protowire.Fixed64Type)
	want = protowire.AppendFixed64(want, ^uint64(0))
	want = protowire.AppendTag(want, 2, protowire.VarintType)
	want = protowire.AppendVarint(want, protowire.EncodeZigZag(-2))
	want = protowire.AppendTag(want, 3, protowire.BytesType)
	want = protowire.AppendBytes(want, []byte{0x01, 0x02, 0xac, 0x02})
	want = protowire.AppendTag(want, 4, protowire.VarintType)
	want = protowire.AppendVarint(want, 1)
	want = protowire.AppendTag(want, 4, protowire.VarintType)
	want = protowire.AppendVarint(want, 0)
	assert.Equal(t, want, b)

	got, err := Unmarshal(Default, sampleSerializer, b)
	require.NoError(t, err)
	assert.Equal(t, s, got)
}

func TestPackedInterop(t *testing.T) {
	// values 以非打包形式出现，flags 以打包形式出现，两者都应被接受。
	var b []byte
	b = protowire.AppendTag(b, 10, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, 7)
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, 0)
	b = protowire.AppendTag(b, 3, protowire.VarintType)
	b = protowire.AppendVarint(b, 5)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte{0x06})
	b = protowire.AppendTag(b, 4, protowire.BytesType)
	b = protowire.AppendBytes(b, []byte{0x01, 0x01})

	got, err := Unmarshal(Default, sampleSerializer, b)
	require.NoError(t, err)
	assert.Equal(t, sample{ID: 7, Values: []int32{5, 6}, Flags: []bool{true, true}}, got)
}

func TestVarintAnnotation(t *testing.T) {
	type counter struct{ N int32 }
	cs := serial.MustStruct("Counter",
		serial.Field("n", serial.Int32, func(c *counter) int32 { return c.N }, func(c *counter, v int32) { c.N = v },
			descriptor.WithAnnotations(Varint)),
	)
	b, err := Marshal(Default, cs, counter{N: -1})
	require.NoError(t, err)

	want := protowire.AppendTag(nil, 1, protowire.VarintType)
	want = protowire.AppendVarint(want, ^uint64(0))
	assert.Equal(t, want, b)
	assert.Len(t, b, 11)

	got, err := Unmarshal(Default, cs, b)
	require.NoError(t, err)
	assert.Equal(t, counter{N: -1}, got)
}

func TestFieldOrder(t *testing.T) {
	got, err := Unmarshal(Default, fixture.PointSerializer, []byte{0x10, 0x02, 0x08, 0x01})
	require.NoError(t, err)
	assert.Equal(t, fixture.Point{X: 1, Y: 2}, got)

	// 标量字段重复出现时取最后一次。
	got, err = Unmarshal(Default, fixture.PointSerializer, []byte{0x08, 0x01, 0x10, 0x02, 0x08, 0x05})
	require.NoError(t, err)
	assert.Equal(t, fixture.Point{X: 5, Y: 2}, got)
}

func TestUnknownFields(t *testing.T) {
	b := []byte{0x08, 0x01, 0x10, 0x02}
	b = protowire.AppendTag(b, 99, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)
	b = protowire.AppendTag(b, 100, protowire.BytesType)
	b = protowire.AppendString(b, "ignored")
	b = protowire.AppendTag(b, 101, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, 1)

	got, err := Unmarshal(Default, fixture.PointSerializer, b)
	require.NoError(t, err)
	assert.Equal(t, fixture.Point{X: 1, Y: 2}, got)
}

func TestDefaults(t *testing.T) {
	p := fixture.Person{Name: "bob", Age: 18, Tags: []string{}, Scores: map[string]int64{}, Favorite: fixture.Blue}
	b, err := Marshal(Default, fixture.PersonSerializer, p)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x03, 'b', 'o', 'b'}, b)

	// 缺失的可空元素读作 nil，可选元素取默认值。
	got, err := Unmarshal(Default, fixture.PersonSerializer, b)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	f := MustNew(WithEncodeDefaults(true))
	b, err = Marshal(f, fixture.PersonSerializer, p)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x03, 'b', 'o', 'b', 0x18, 18, 0x30, 0x02}, b)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Unmarshal(Default, fixture.PointSerializer, []byte{0x08, 0x01, 0x10})
	assert.ErrorIs(t, err, merr.ErrUnexpectedEOF)

	_, err = Unmarshal(Default, fixture.PointSerializer, []byte{0x00, 0x01})
	assert.ErrorIs(t, err, merr.ErrMalformedInput)

	_, err = Unmarshal(Default, fixture.PointSerializer, []byte{0x08, 0x01})
	assert.ErrorIs(t, err, merr.ErrMissingField)

	_, err = Unmarshal(Default, fixture.PointSerializer, []byte{0x0a, 0x00, 0x10, 0x02})
	assert.ErrorIs(t, err, merr.ErrUnexpectedToken)

	over := protowire.AppendVarint([]byte{0x08}, 1<<40)
	_, err = Unmarshal(Default, fixture.PointSerializer, append(over, 0x10, 0x02))
	assert.ErrorIs(t, err, merr.ErrNumericOverflow)

	_, err = Unmarshal(Default, fixture.PersonSerializer, []byte{0x0a, 0x01, 'a', 0x30, 0x09})
	assert.ErrorIs(t, err, merr.ErrMalformedInput)

	_, err = Unmarshal(Default, fixture.PersonSerializer, []byte{0x0a, 0x01, 0xff})
	assert.ErrorIs(t, err, merr.ErrMalformedInput)

	boom := errors.New("boom")
	_, err = Decode(Default, iotest.ErrReader(boom), fixture.PointSerializer)
	assert.ErrorIs(t, err, merr.ErrIoFailed)
	assert.ErrorIs(t, err, boom)
}

func TestUnsupportedShapes(t *testing.T) {
	_, err := Marshal(Default, serial.Int32, 1)
	assert.ErrorIs(t, err, merr.ErrUnsupportedShape)

	_, err = Marshal(Default, serial.List(serial.Int32), []int32{1})
	assert.ErrorIs(t, err, merr.ErrUnsupportedShape)

	type holder struct{ Items []*string }
	hs := serial.MustStruct("Holder",
		serial.Field("items", serial.List(serial.Nullable(serial.String)),
			func(h *holder) []*string { return h.Items }, func(h *holder, v []*string) { h.Items = v }),
	)
	_, err = Marshal(Default, hs, holder{Items: []*string{nil}})
	assert.ErrorIs(t, err, merr.ErrUnsupportedShape)

	type grid struct{ Cells [][]int32 }
	gs := serial.MustStruct("Grid",
		serial.Field("cells", serial.List(serial.List(serial.Int32)),
			func(g *grid) [][]int32 { return g.Cells }, func(g *grid, v [][]int32) { g.Cells = v }),
	)
	_, err = Marshal(Default, gs, grid{Cells: [][]int32{{1}}})
	assert.ErrorIs(t, err, merr.ErrUnsupportedShape)
}

func TestFieldNumbers(t *testing.T) {
	type pair struct{ A, B int32 }
	get := func(p *pair) int32 { return p.A }
	set := func(p *pair, v int32) { p.A = v }

	dup := serial.MustStruct("Dup",
		serial.Field("a", serial.Int32, get, set),
		serial.Field("b", serial.Int32, get, set, descriptor.WithAnnotations(Number(1))),
	)
	_, err := Marshal(Default, dup, pair{})
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	zero := serial.MustStruct("Zero",
		serial.Field("a", serial.Int32, get, set, descriptor.WithAnnotations(Number(0))),
	)
	_, err = Unmarshal(Default, zero, nil)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	renumbered := serial.MustStruct("Renumbered",
		serial.Field("a", serial.Int32, get, set, descriptor.WithAnnotations(Number(7))),
	)
	b, err := Marshal(Default, renumbered, pair{A: 3})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x38, 0x03}, b)
}

func TestPolymorphism(t *testing.T) {
	d := fixture.Drawing{Title: "t", Shapes: []fixture.Shape{fixture.Label("hi")}}
	b, err := Marshal(Default, fixture.DrawingSerializer, d)
	require.NoError(t, err)

	var shape []byte
	shape = protowire.AppendTag(shape, 1, protowire.BytesType)
	shape = protowire.AppendString(shape, "label")
	shape = protowire.AppendTag(shape, 2, protowire.BytesType)
	shape = protowire.AppendString(shape, "hi")
	want := []byte{0x0a, 0x01, 't'}
	want = protowire.AppendTag(want, 2, protowire.BytesType)
	want = protowire.AppendBytes(want, shape)
	assert.Equal(t, want, b)

	d.Shapes = []fixture.Shape{fixture.Circle{Radius: 1.5}, fixture.Square{Side: 2}, fixture.Label("hi")}
	b, err = Marshal(Default, fixture.DrawingSerializer, d)
	require.NoError(t, err)
	got, err := Unmarshal(Default, fixture.DrawingSerializer, b)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	f := MustNew(WithModule(fixture.EventModule()))
	b, err = Marshal[fixture.Event](f, fixture.EventSerializer, fixture.Click{X: 1, Y: 2})
	require.NoError(t, err)
	ev, err := Unmarshal[fixture.Event](f, fixture.EventSerializer, b)
	require.NoError(t, err)
	assert.Equal(t, fixture.Click{X: 1, Y: 2}, ev)

	_, err = Unmarshal[fixture.Event](Default, fixture.EventSerializer, b)
	assert.ErrorIs(t, err, merr.ErrUnknownDiscriminator)

	// 负载先于鉴别值出现时同样可以解码。
	var reordered []byte
	reordered = protowire.AppendTag(reordered, 2, protowire.BytesType)
	reordered = protowire.AppendBytes(reordered, []byte{0x08, 0x01, 0x10, 0x02})
	reordered = protowire.AppendTag(reordered, 1, protowire.BytesType)
	reordered = protowire.AppendString(reordered, "click")
	ev, err = Unmarshal[fixture.Event](f, fixture.EventSerializer, reordered)
	require.NoError(t, err)
	assert.Equal(t, fixture.Click{X: 1, Y: 2}, ev)

	_, err = Unmarshal[fixture.Event](f, fixture.EventSerializer, []byte{0x12, 0x00})
	assert.ErrorIs(t, err, merr.ErrMissingDiscriminator)
}

func TestMaps(t *testing.T) {
	type table struct{ Rows map[int32]*[]bool }
	ts := serial.MustStruct("Table",
		serial.Field("rows", serial.Map(serial.Int32, serial.Nullable(serial.List(serial.Bool))),
			func(t *table) map[int32]*[]bool { return t.Rows }, func(t *table, v map[int32]*[]bool) { t.Rows = v }),
	)
	in := table{Rows: map[int32]*[]bool{1: {true, false}, 2: nil}}
	b, err := Marshal(Default, ts, in)
	require.NoError(t, err)
	got, err := Unmarshal(Default, ts, b)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	// 必需的集合元素缺失时读作空集合。
	got, err = Unmarshal(Default, ts, nil)
	require.NoError(t, err)
	assert.Empty(t, got.Rows)
	assert.NotNil(t, got.Rows)
}

func TestDepthLimit(t *testing.T) {
	f := MustNew(WithMaxDepth(1))
	d := fixture.Drawing{Title: "t", Shapes: []fixture.Shape{fixture.Circle{Radius: 1}}}
	_, err := Marshal(f, fixture.DrawingSerializer, d)
	assert.ErrorIs(t, err, merr.ErrDepthExceeded)

	b, err := Marshal(Default, fixture.DrawingSerializer, d)
	require.NoError(t, err)
	_, err = Unmarshal(f, fixture.DrawingSerializer, b)
	assert.ErrorIs(t, err, merr.ErrDepthExceeded)
}
