package serial_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/serial/internal/fixture"
	"github.com/lk2023060901/serialkit/pkg/serial/tree"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

func TestStructRoundTrip(t *testing.T) {
	p := fixture.Person{
		Name:     "ann",
		Nickname: fixture.Ptr("a"),
		Age:      30,
		Tags:     []string{"x", "y"},
		Scores:   map[string]int64{"go": 3},
		Favorite: fixture.Green,
		Home:     &fixture.Point{X: 1, Y: 2},
	}
	v, err := tree.Encode[fixture.Person](fixture.PersonSerializer, p)
	require.NoError(t, err)
	got, err := tree.Decode[fixture.Person](fixture.PersonSerializer, v)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestStructDefaults(t *testing.T) {
	p := fixture.Person{Name: "bob", Age: 18, Tags: []string{}, Scores: map[string]int64{}, Favorite: fixture.Blue}

	v, err := tree.Encode[fixture.Person](fixture.PersonSerializer, p, tree.WithEncodeDefaults(false))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "bob", "nickname": nil}, v)

	got, err := tree.Decode[fixture.Person](fixture.PersonSerializer, v)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestStructMissingRequired(t *testing.T) {
	_, err := tree.Decode[fixture.Point](fixture.PointSerializer, map[string]any{"x": int64(1)})
	require.ErrorIs(t, err, merr.ErrMissingField)
	assert.Contains(t, err.Error(), "fields=y")
}

func TestStructNullableAbsent(t *testing.T) {
	in := map[string]any{"name": "c"}
	_, err := tree.Decode[fixture.Person](fixture.PersonSerializer, in)
	assert.ErrorIs(t, err, merr.ErrMissingField)

	got, err := tree.Decode[fixture.Person](fixture.PersonSerializer, in, tree.WithExplicitNulls(false))
	require.NoError(t, err)
	assert.Nil(t, got.Nickname)
}

func TestNullForNonNullable(t *testing.T) {
	_, err := tree.Decode[fixture.Point](fixture.PointSerializer, map[string]any{"x": nil, "y": int64(1)})
	assert.ErrorIs(t, err, merr.ErrUnexpectedToken)
}

func TestUnknownKey(t *testing.T) {
	in := map[string]any{"x": int64(1), "y": int64(2), "z": int64(3)}
	_, err := tree.Decode[fixture.Point](fixture.PointSerializer, in)
	assert.ErrorIs(t, err, merr.ErrUnknownKey)

	got, err := tree.Decode[fixture.Point](fixture.PointSerializer, in, tree.WithIgnoreUnknownKeys(true))
	require.NoError(t, err)
	assert.Equal(t, fixture.Point{X: 1, Y: 2}, got)
}

func TestNumericOverflow(t *testing.T) {
	_, err := tree.Decode[fixture.Point](fixture.PointSerializer, map[string]any{"x": int64(1) << 40, "y": 0})
	require.ErrorIs(t, err, merr.ErrNumericOverflow)
	assert.Equal(t, merr.CategoryNumeric, merr.CategoryOf(err))

	v, err := tree.Decode[int8](serial.Int8, float64(-128))
	require.NoError(t, err)
	assert.Equal(t, int8(-128), v)
}

func TestSealedPolymorphism(t *testing.T) {
	d := fixture.Drawing{Title: "t", Shapes: []fixture.Shape{fixture.Circle{Radius: 1}, fixture.Square{Side: 2}, fixture.Label("hi")}}
	v, err := tree.Encode[fixture.Drawing](fixture.DrawingSerializer, d)
	require.NoError(t, err)
	shapes := v.(map[string]any)["shapes"].([]any)
	assert.Equal(t, map[string]any{"type": "circle", "radius": float64(1)}, shapes[0])
	assert.Equal(t, map[string]any{"type": "label", "value": "hi"}, shapes[2])

	got, err := tree.Decode[fixture.Drawing](fixture.DrawingSerializer, v)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestSealedErrors(t *testing.T) {
	_, err := tree.Decode[fixture.Shape](fixture.ShapeSerializer, map[string]any{"type": "triangle"})
	assert.ErrorIs(t, err, merr.ErrUnknownDiscriminator)

	_, err = tree.Decode[fixture.Shape](fixture.ShapeSerializer, map[string]any{"radius": 1.0})
	assert.ErrorIs(t, err, merr.ErrMissingDiscriminator)

	_, err = tree.Decode[fixture.Shape](fixture.ShapeSerializer, map[string]any{"type": "circle", "radius": "big"})
	assert.ErrorIs(t, err, merr.ErrPolymorphicPayload)
	assert.ErrorIs(t, err, merr.ErrUnexpectedToken)

	type triangle struct{ fixture.Square }
	_, err = tree.Encode[fixture.Shape](fixture.ShapeSerializer, triangle{})
	assert.ErrorIs(t, err, merr.ErrUnregisteredSubclass)
}

func TestSealedDeclaration(t *testing.T) {
	_, err := serial.Sealed[fixture.Shape]("Shape",
		serial.Subclass[fixture.Shape]("a", fixture.CircleSerializer),
		serial.Subclass[fixture.Shape]("a", fixture.SquareSerializer),
	)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	_, err = serial.Sealed[fixture.Shape]("Shape",
		serial.Subclass[fixture.Shape]("p", fixture.PointSerializer),
	)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	assert.Equal(t, []string{"circle", "square", "label"}, fixture.ShapeSerializer.Discriminators())
	assert.Equal(t, descriptor.KindSealed, fixture.ShapeSerializer.Descriptor().Kind())
}

func TestDiscriminatorConflict(t *testing.T) {
	type tagged struct{ Type string }
	ts := serial.MustStruct("Tagged",
		serial.Field("type", serial.String, func(v *tagged) string { return v.Type }, func(v *tagged, s string) { v.Type = s }),
	)
	family := serial.MustSealed[any]("Any", serial.Subclass[any]("tagged", ts))
	_, err := tree.Encode[any](family, tagged{Type: "x"})
	assert.ErrorIs(t, err, merr.ErrDiscriminatorConflict)

	v, err := tree.Encode[any](family, tagged{Type: "x"}, tree.WithClassDiscriminator("kind"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"kind": "tagged", "type": "x"}, v)
}

func TestOpenPolymorphism(t *testing.T) {
	m := fixture.EventModule()
	events := serial.List[fixture.Event](fixture.EventSerializer)
	in := []fixture.Event{fixture.Click{X: 1, Y: 2}, fixture.Key{Code: "k"}}

	v, err := tree.Encode(events, in, tree.WithModule(m))
	require.NoError(t, err)
	got, err := tree.Decode(events, v, tree.WithModule(m))
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = tree.Encode(events, in)
	assert.ErrorIs(t, err, merr.ErrUnregisteredSubclass)
	_, err = tree.Decode(events, v)
	assert.ErrorIs(t, err, merr.ErrUnknownDiscriminator)

	assert.Equal(t, []string{"click", "key"}, serial.Discriminators[fixture.Event](m))
}

func TestModuleBuilder(t *testing.T) {
	b := serial.NewModuleBuilder()
	require.NoError(t, serial.RegisterPolymorphic[fixture.Event](b, "click", fixture.ClickSerializer))
	assert.ErrorIs(t, serial.RegisterPolymorphic[fixture.Event](b, "click", fixture.KeySerializer), merr.ErrParameterInvalid)
	assert.ErrorIs(t, serial.RegisterPolymorphic[fixture.Event](b, "again", fixture.ClickSerializer), merr.ErrParameterInvalid)
	m := b.Build()

	// Build 之后的修改不影响已构建的模块。
	require.NoError(t, serial.RegisterPolymorphic[fixture.Event](b, "key", fixture.KeySerializer))
	assert.Equal(t, []string{"click"}, serial.Discriminators[fixture.Event](m))

	merged := serial.NewModuleBuilder()
	require.NoError(t, merged.Include(m))
	assert.Error(t, merged.Include(m))
	assert.Nil(t, serial.Discriminators[fixture.Shape](m))
}

func TestCollections(t *testing.T) {
	s := serial.Map(serial.Int32, serial.Nullable(serial.List(serial.Bool)))
	in := map[int32]*[]bool{1: {true}, 2: nil}
	v, err := tree.Encode(s, in)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"1": []any{true}, "2": nil}, v)

	got, err := tree.Decode(s, v)
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestInline(t *testing.T) {
	type userID struct{ v int64 }
	s := serial.Inline("UserID", serial.Int64, func(v int64) userID { return userID{v} }, func(u userID) int64 { return u.v })
	assert.True(t, s.Descriptor().IsInline())

	v, err := tree.Encode(s, userID{7})
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
	got, err := tree.Decode(s, v)
	require.NoError(t, err)
	assert.Equal(t, userID{7}, got)
}

func TestEnum(t *testing.T) {
	v, err := tree.Encode(fixture.ColorSerializer, fixture.Green)
	require.NoError(t, err)
	assert.Equal(t, "GREEN", v)

	_, err = tree.Encode(fixture.ColorSerializer, fixture.Color(9))
	assert.ErrorIs(t, err, merr.ErrEncodeFailed)
	_, err = tree.Decode(fixture.ColorSerializer, "PURPLE")
	assert.ErrorIs(t, err, merr.ErrMalformedInput)
}

func TestErase(t *testing.T) {
	s := serial.Erase(serial.String)
	v, err := tree.Encode(s, any("x"))
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	_, err = tree.Encode(s, any(1))
	assert.ErrorIs(t, err, merr.ErrEncodeFailed)
	assert.Same(t, descriptor.String, s.Descriptor())
}

func TestDepthLimit(t *testing.T) {
	s := serial.List(serial.List(serial.List(serial.Int)))
	_, err := tree.Encode(s, [][][]int{{{1}}}, tree.WithMaxDepth(2))
	assert.ErrorIs(t, err, merr.ErrDepthExceeded)
}
