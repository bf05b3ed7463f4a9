package json

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/iotest"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/serialkit/pkg/log"
	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/serial/internal/fixture"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

func samplePerson() fixture.Person {
	return fixture.Person{
		Name:     "Ann",
		Nickname: fixture.Ptr("A"),
		Age:      30,
		Tags:     []string{"x", "y"},
		Scores:   map[string]int64{"math": 90, "art": 80},
		Favorite: fixture.Red,
		Home:     &fixture.Point{X: 1, Y: 2},
	}
}

func TestRoundTrip(t *testing.T) {
	p := samplePerson()
	text, err := EncodeToString(Default, fixture.PersonSerializer, p)
	require.NoError(t, err)
	assert.Equal(t,
		`{"name":"Ann","nickname":"A","age":30,"tags":["x","y"],"scores":{"art":80,"math":90},"favorite":"RED","home":{"x":1,"y":2}}`,
		text)

	got, err := DecodeFromString(Default, fixture.PersonSerializer, text)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	got, err = Decode(Default, strings.NewReader(text), fixture.PersonSerializer)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestFieldOrder(t *testing.T) {
	got, err := DecodeFromString(Default, fixture.PointSerializer, `{"y":2,"x":1}`)
	require.NoError(t, err)
	assert.Equal(t, fixture.Point{X: 1, Y: 2}, got)
}

func TestDefaults(t *testing.T) {
	p := fixture.Person{Name: "Bob", Age: 18, Tags: []string{}, Scores: map[string]int64{}, Favorite: fixture.Blue}

	text, err := EncodeToString(Default, fixture.PersonSerializer, p)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Bob","nickname":null}`, text)
	assert.False(t, Default.Configuration().EncodeDefaults)

	all, err := EncodeToString(MustNew(WithEncodeDefaults(true)), fixture.PersonSerializer, p)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Bob","nickname":null,"age":18,"tags":[],"scores":{},"favorite":"BLUE","home":null}`, all)

	got, err := DecodeFromString(Default, fixture.PersonSerializer, text)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestExplicitNulls(t *testing.T) {
	f := MustNew(WithExplicitNulls(false), WithEncodeDefaults(true))
	p := fixture.Person{Name: "Bob", Age: 18, Tags: []string{}, Scores: map[string]int64{}, Favorite: fixture.Blue}

	text, err := EncodeToString(f, fixture.PersonSerializer, p)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Bob","age":18,"tags":[],"scores":{},"favorite":"BLUE"}`, text)

	got, err := DecodeFromString(f, fixture.PersonSerializer, `{"name":"Bob"}`)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = DecodeFromString(Default, fixture.PersonSerializer, `{"name":"Bob"}`)
	require.ErrorIs(t, err, merr.ErrMissingField)
	assert.Contains(t, err.Error(), "fields=nickname")

	// 集合中的 null 不受影响。
	s := serial.List(serial.Nullable(serial.Int32))
	text, err = EncodeToString(f, s, []*int32{nil, fixture.Ptr[int32](1)})
	require.NoError(t, err)
	assert.Equal(t, `[null,1]`, text)
}

func TestUnknownKeys(t *testing.T) {
	in := `{"x":1,"extra":{"a":[1,{"b":null}],"c":"}"},"y":2}`
	_, err := DecodeFromString(Default, fixture.PointSerializer, in)
	require.ErrorIs(t, err, merr.ErrUnknownKey)
	assert.Contains(t, err.Error(), "key=extra")

	ignoring := MustNew(WithIgnoreUnknownKeys(true))
	got, err := DecodeFromString(ignoring, fixture.PointSerializer, in)
	require.NoError(t, err)
	assert.Equal(t, fixture.Point{X: 1, Y: 2}, got)

	for _, bad := range []string{
		`{"x":1,"y":2,"z":{1 2 : : ,, "q"}}`,
		`{"x":1,"y":2,"z":[1 2]}`,
		`{"x":1,"y":2,"z":[1,,2]}`,
		`{"x":1,"y":2,"z":{"a" 1}}`,
		`{"x":1,"y":2,"z":{"a":1,}}`,
		`{"x":1,"y":2,"z":[1,]}`,
		`{"x":1,"y":2,"z":{"a":}}`,
	} {
		_, err := DecodeFromString(ignoring, fixture.PointSerializer, bad)
		assert.Error(t, err, bad)
		assert.False(t, merr.IsUsageError(err), bad)
	}
}

func TestUnknownKeysAcrossSessions(t *testing.T) {
	f := MustNew(WithIgnoreUnknownKeys(true))
	f.SetLogger(log.NewTestLogger(t, "debug"))

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				in := fmt.Sprintf(`{"x":%d,"k%d_%d":[true],"y":2}`, i, g, i)
				got, err := DecodeFromString(f, fixture.PointSerializer, in)
				assert.NoError(t, err)
				assert.Equal(t, fixture.Point{X: int32(i), Y: 2}, got)
			}
		}()
	}
	wg.Wait()
}

func TestMissingAndDuplicate(t *testing.T) {
	_, err := DecodeFromString(Default, fixture.PointSerializer, `{}`)
	require.ErrorIs(t, err, merr.ErrMissingField)
	assert.Contains(t, err.Error(), "fields=x,y")

	_, err = DecodeFromString(Default, fixture.PointSerializer, `{"x":1,"x":2,"y":3}`)
	assert.ErrorIs(t, err, merr.ErrDuplicateElement)
}

func TestNulls(t *testing.T) {
	got, err := DecodeFromString(Default, fixture.PersonSerializer, `{"name":"a","nickname":null,"home":null}`)
	require.NoError(t, err)
	assert.Nil(t, got.Nickname)
	assert.Nil(t, got.Home)

	_, err = DecodeFromString(Default, fixture.PersonSerializer, `{"name":null,"nickname":null}`)
	assert.ErrorIs(t, err, merr.ErrUnexpectedToken)
}

func TestMalformed(t *testing.T) {
	cases := []struct {
		name string
		in   string
		err  error
	}{
		{"trailing comma", `{"x":1,"y":2,}`, merr.ErrMalformedInput},
		{"trailing data", `{"x":1,"y":2} 3`, merr.ErrMalformedInput},
		{"unquoted key", `{x:1,y:2}`, merr.ErrMalformedInput},
		{"truncated", `{"x":1,"y":`, merr.ErrUnexpectedEOF},
		{"unterminated string", `{"x":1,"y":"2`, merr.ErrUnexpectedEOF},
		{"missing colon", `{"x" 1}`, merr.ErrUnexpectedToken},
		{"string for int", `{"x":"1","y":2}`, merr.ErrUnexpectedToken},
		{"fraction for int", `{"x":1.5,"y":2}`, merr.ErrMalformedInput},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := DecodeFromString(Default, fixture.PointSerializer, c.in)
			assert.ErrorIs(t, err, c.err)
		})
	}
}

func TestNumbers(t *testing.T) {
	_, err := DecodeFromString(Default, serial.Int8, `128`)
	require.ErrorIs(t, err, merr.ErrNumericOverflow)
	assert.Equal(t, merr.CategoryNumeric, merr.CategoryOf(err))

	v, err := DecodeFromString(Default, serial.Int8, `-128`)
	require.NoError(t, err)
	assert.Equal(t, int8(-128), v)

	n, err := DecodeFromString(Default, serial.Int64, `1e3`)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), n)

	_, err = DecodeFromString(Default, serial.Int64, `99999999999999999999`)
	assert.ErrorIs(t, err, merr.ErrNumericOverflow)

	for _, c := range []struct {
		in   float64
		want string
	}{
		{1, "1"},
		{0.1, "0.1"},
		{-2.5, "-2.5"},
		{1e21, "1e+21"},
		{1e-7, "1e-7"},
		{123456789, "123456789"},
	} {
		text, err := EncodeToString(Default, serial.Float64, c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, text)
	}

	text, err := EncodeToString(Default, serial.Float32, float32(0.1))
	require.NoError(t, err)
	assert.Equal(t, "0.1", text)
}

func TestSpecialFloats(t *testing.T) {
	_, err := EncodeToString(Default, serial.Float64, math.NaN())
	assert.ErrorIs(t, err, merr.ErrSpecialFloat)
	_, err = DecodeFromString(Default, serial.Float64, `"Infinity"`)
	assert.ErrorIs(t, err, merr.ErrSpecialFloat)

	f := MustNew(WithSpecialFloatingPointValues(true))
	text, err := EncodeToString(f, serial.List(serial.Float64), []float64{math.Inf(1), math.Inf(-1)})
	require.NoError(t, err)
	assert.Equal(t, `["Infinity","-Infinity"]`, text)

	got, err := DecodeFromString(f, serial.List(serial.Float64), text)
	require.NoError(t, err)
	assert.Equal(t, []float64{math.Inf(1), math.Inf(-1)}, got)

	nan, err := DecodeFromString(f, serial.Float64, `"NaN"`)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(nan))
}

func TestEscaping(t *testing.T) {
	s := "a\"b\\c\n\x01é😀"
	text, err := EncodeToString(Default, serial.String, s)
	require.NoError(t, err)
	assert.Equal(t, `"a\"b\\c\n\u0001é😀"`, text)

	ascii, err := EncodeToString(MustNew(WithEscapeNonASCII(true)), serial.String, s)
	require.NoError(t, err)
	assert.Equal(t, `"a\"b\\c\n\u0001\u00e9\ud83d\ude00"`, ascii)

	for _, in := range []string{text, ascii} {
		got, err := DecodeFromString(Default, serial.String, in)
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}

	_, err = DecodeFromString(Default, serial.String, "\"a\tb\"")
	assert.ErrorIs(t, err, merr.ErrMalformedInput)
	_, err = DecodeFromString(Default, serial.String, `"\x"`)
	assert.ErrorIs(t, err, merr.ErrMalformedInput)

	r, err := DecodeFromString(Default, serial.Char, `"é"`)
	require.NoError(t, err)
	assert.Equal(t, 'é', r)

	for _, f := range []*Format{Default, MustNew(WithEscapeNonASCII(true))} {
		text, err := EncodeToString(f, serial.String, "a\xffb\xc3")
		require.NoError(t, err)
		assert.Equal(t, `"a\ufffdb\ufffd"`, text)
	}

	for in, want := range map[string]string{
		`"\ud800\u0041"`:       "\ufffdA",
		`"\ud83d\ude00"`:       "😀",
		`"\ude00x"`:            "\ufffdx",
		`"\ud800"`:             "\ufffd",
		`"\ud800\ud83d\ude00"`: "\ufffd😀",
	} {
		got, err := DecodeFromString(Default, serial.String, in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err = DecodeFromString(Default, serial.String, `"\ud800\u00zz"`)
	assert.ErrorIs(t, err, merr.ErrMalformedInput)
}

func TestPrettyPrint(t *testing.T) {
	f := MustNew(WithPrettyPrint(true))
	d := fixture.Drawing{Title: "t", Shapes: []fixture.Shape{fixture.Circle{Radius: 1}}}
	text, err := EncodeToString(f, fixture.DrawingSerializer, d)
	require.NoError(t, err)
	assert.Equal(t, `{
    "title": "t",
    "shapes": [
        {
            "type": "circle",
            "radius": 1
        }
    ]
}`, text)

	got, err := DecodeFromString(Default, fixture.DrawingSerializer, text)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	p := samplePerson()
	p.Tags = []string{}
	pretty, err := EncodeToString(MustNew(WithPrettyPrint(true), WithPrettyPrintIndent("\t"), WithEncodeDefaults(true)),
		fixture.PersonSerializer, p)
	require.NoError(t, err)
	assert.Contains(t, pretty, "\n\t\"tags\": [],\n")
	back, err := DecodeFromString(Default, fixture.PersonSerializer, pretty)
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestSealedPolymorphism(t *testing.T) {
	d := fixture.Drawing{Title: "t", Shapes: []fixture.Shape{fixture.Circle{Radius: 1}, fixture.Square{Side: 2}, fixture.Label("hi")}}
	text, err := EncodeToString(Default, fixture.DrawingSerializer, d)
	require.NoError(t, err)
	assert.Equal(t,
		`{"title":"t","shapes":[{"type":"circle","radius":1},{"type":"square","side":2},{"type":"label","value":"hi"}]}`,
		text)

	got, err := DecodeFromString(Default, fixture.DrawingSerializer, text)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	shape, err := DecodeFromString(Default, fixture.ShapeSerializer, `{"radius":1.5,"type":"circle"}`)
	require.NoError(t, err)
	assert.Equal(t, fixture.Circle{Radius: 1.5}, shape)
}

func TestPolymorphicErrors(t *testing.T) {
	_, err := DecodeFromString(Default, fixture.ShapeSerializer, `{"type":"triangle"}`)
	assert.ErrorIs(t, err, merr.ErrUnknownDiscriminator)

	_, err = DecodeFromString(Default, fixture.ShapeSerializer, `{"radius":1}`)
	assert.ErrorIs(t, err, merr.ErrMissingDiscriminator)

	_, err = DecodeFromString(Default, fixture.ShapeSerializer, `{"type":1,"radius":1}`)
	assert.ErrorIs(t, err, merr.ErrUnexpectedToken)

	_, err = DecodeFromString(Default, fixture.DrawingSerializer, `{"title":"t","shapes":[{"type":"circle","radius":"x"}]}`)
	require.ErrorIs(t, err, merr.ErrPolymorphicPayload)
	assert.ErrorIs(t, err, merr.ErrUnexpectedToken)
	assert.Contains(t, err.Error(), "$.shapes[0].radius")

	_, err = DecodeFromString(Default, fixture.DrawingSerializer, `{"title":"t","shapes":[{"type":"circle","radius":1,"type":"circle"}]}`)
	require.ErrorIs(t, err, merr.ErrUnknownKey)
	assert.Contains(t, err.Error(), "$.shapes[0].type")
	assert.NotContains(t, err.Error(), "radius")
}

func TestArrayPolymorphism(t *testing.T) {
	f := MustNew(WithArrayPolymorphism(true))
	d := fixture.Drawing{Title: "t", Shapes: []fixture.Shape{fixture.Circle{Radius: 1}, fixture.Label("hi")}}
	text, err := EncodeToString(f, fixture.DrawingSerializer, d)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"t","shapes":[["circle",{"radius":1}],["label","hi"]]}`, text)

	got, err := DecodeFromString(f, fixture.DrawingSerializer, text)
	require.NoError(t, err)
	assert.Equal(t, d, got)

	_, err = DecodeFromString(f, fixture.ShapeSerializer, `["circle",{"radius":1},3]`)
	assert.ErrorIs(t, err, merr.ErrMalformedInput)
}

func TestCustomDiscriminator(t *testing.T) {
	f := MustNew(WithClassDiscriminator("kind"))
	text, err := EncodeToString[fixture.Shape](f, fixture.ShapeSerializer, fixture.Label("hi"))
	require.NoError(t, err)
	assert.Equal(t, `{"kind":"label","value":"hi"}`, text)

	shape, err := DecodeFromString(f, fixture.ShapeSerializer, `{"radius":2,"kind":"circle"}`)
	require.NoError(t, err)
	assert.Equal(t, fixture.Circle{Radius: 2}, shape)

	annotated := fixture.ShapeSerializer.Annotated(Discriminator("shape"))
	text, err = EncodeToString[fixture.Shape](Default, annotated, fixture.Circle{Radius: 1})
	require.NoError(t, err)
	assert.Equal(t, `{"shape":"circle","radius":1}`, text)
	shape, err = DecodeFromString[fixture.Shape](Default, annotated, text)
	require.NoError(t, err)
	assert.Equal(t, fixture.Circle{Radius: 1}, shape)
}

func TestDiscriminatorConflict(t *testing.T) {
	type tagged struct{ Type string }
	ts := serial.MustStruct("Tagged",
		serial.Field("type", serial.String, func(v *tagged) string { return v.Type }, func(v *tagged, s string) { v.Type = s }),
	)
	family := serial.MustSealed[any]("Any", serial.Subclass[any]("tagged", ts))

	_, err := EncodeToString[any](Default, family, tagged{Type: "x"})
	assert.ErrorIs(t, err, merr.ErrDiscriminatorConflict)

	text, err := EncodeToString[any](MustNew(WithArrayPolymorphism(true)), family, tagged{Type: "x"})
	require.NoError(t, err)
	assert.Equal(t, `["tagged",{"type":"x"}]`, text)
}

func TestOpenPolymorphism(t *testing.T) {
	f := MustNew(WithModule(fixture.EventModule()))
	events := serial.List[fixture.Event](fixture.EventSerializer)
	in := []fixture.Event{fixture.Click{X: 1, Y: 2}, fixture.Key{Code: "k"}}

	text, err := EncodeToString(f, events, in)
	require.NoError(t, err)
	assert.Equal(t, `[{"type":"click","x":1,"y":2},{"type":"key","code":"k"}]`, text)

	got, err := DecodeFromString(f, events, text)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = EncodeToString(Default, events, in)
	assert.ErrorIs(t, err, merr.ErrUnregisteredSubclass)
	_, err = DecodeFromString(Default, events, text)
	assert.ErrorIs(t, err, merr.ErrUnknownDiscriminator)
}

func TestLenient(t *testing.T) {
	in := `{name:Ann, nickname:null, age:"31", tags:[a,b,],}`
	_, err := DecodeFromString(Default, fixture.PersonSerializer, in)
	require.ErrorIs(t, err, merr.ErrMalformedInput)

	got, err := DecodeFromString(MustNew(WithLenient(true)), fixture.PersonSerializer, in)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
	assert.Nil(t, got.Nickname)
	assert.Equal(t, int32(31), got.Age)
	assert.Equal(t, []string{"a", "b"}, got.Tags)
}

func TestCoerceInputValues(t *testing.T) {
	in := `{"name":"A","nickname":null,"age":"old","tags":null,"favorite":"PURPLE","home":5}`
	_, err := DecodeFromString(Default, fixture.PersonSerializer, in)
	require.Error(t, err)

	got, err := DecodeFromString(MustNew(WithCoerceInputValues(true)), fixture.PersonSerializer, in)
	require.NoError(t, err)
	assert.Equal(t, fixture.Person{Name: "A", Age: 18, Tags: []string{}, Scores: map[string]int64{}, Favorite: fixture.Blue}, got)

	overflow := `{"name":"A","nickname":null,"age":99999999999}`
	_, err = DecodeFromString(Default, fixture.PersonSerializer, overflow)
	assert.ErrorIs(t, err, merr.ErrNumericOverflow)
	got, err = DecodeFromString(MustNew(WithCoerceInputValues(true)), fixture.PersonSerializer, overflow)
	require.NoError(t, err)
	assert.Equal(t, int32(18), got.Age)

	// 必填元素不会被替换。
	_, err = DecodeFromString(MustNew(WithCoerceInputValues(true)), fixture.PersonSerializer, `{"name":1,"nickname":null}`)
	assert.ErrorIs(t, err, merr.ErrUnexpectedToken)
}

func TestEnums(t *testing.T) {
	_, err := DecodeFromString(Default, fixture.ColorSerializer, `"red"`)
	assert.ErrorIs(t, err, merr.ErrMalformedInput)

	c, err := DecodeFromString(MustNew(WithCaseInsensitiveEnums(true)), fixture.ColorSerializer, `"red"`)
	require.NoError(t, err)
	assert.Equal(t, fixture.Red, c)
}

func TestAlternativeNames(t *testing.T) {
	type book struct{ Title string }
	s := serial.MustStruct("Book",
		serial.Field("title", serial.String, func(b *book) string { return b.Title }, func(b *book, v string) { b.Title = v },
			descriptor.WithAnnotations(Names("name", "label"))),
	)
	got, err := DecodeFromString(Default, s, `{"label":"go"}`)
	require.NoError(t, err)
	assert.Equal(t, book{Title: "go"}, got)

	_, err = DecodeFromString(MustNew(WithAlternativeNames(false)), s, `{"label":"go"}`)
	assert.ErrorIs(t, err, merr.ErrUnknownKey)

	text, err := EncodeToString(Default, s, got)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"go"}`, text)
}

func TestMapsAndInline(t *testing.T) {
	s := serial.Map(serial.Int32, serial.Nullable(serial.List(serial.Bool)))
	in := map[int32]*[]bool{2: nil, 1: {true}}
	text, err := EncodeToString(Default, s, in)
	require.NoError(t, err)
	assert.Equal(t, `{"1":[true],"2":null}`, text)

	got, err := DecodeFromString(Default, s, text)
	require.NoError(t, err)
	assert.Equal(t, in, got)

	_, err = DecodeFromString(Default, s, `{"a":null}`)
	assert.Error(t, err)

	type userID struct{ v int64 }
	u := serial.Inline("UserID", serial.Int64, func(v int64) userID { return userID{v} }, func(u userID) int64 { return u.v })
	text, err = EncodeToString(Default, u, userID{7})
	require.NoError(t, err)
	assert.Equal(t, "7", text)
	back, err := DecodeFromString(Default, u, text)
	require.NoError(t, err)
	assert.Equal(t, userID{7}, back)
}

func TestDepthLimit(t *testing.T) {
	s := serial.List(serial.List(serial.List(serial.Int32)))
	f := MustNew(WithMaxDepth(2))
	_, err := DecodeFromString(f, s, `[[[1]]]`)
	assert.ErrorIs(t, err, merr.ErrDepthExceeded)
	_, err = EncodeToString(f, s, [][][]int32{{{1}}})
	assert.ErrorIs(t, err, merr.ErrDepthExceeded)

	ignoring := MustNew(WithMaxDepth(2), WithIgnoreUnknownKeys(true))
	_, err = DecodeFromString(ignoring, fixture.PointSerializer, `{"x":1,"y":2,"z":[[[0]]]}`)
	assert.ErrorIs(t, err, merr.ErrDepthExceeded)
	_, err = ParseElement(f, []byte(`[[[1]]]`))
	assert.ErrorIs(t, err, merr.ErrDepthExceeded)
}

func TestOuterRegionUsedWhileInnerOpen(t *testing.T) {
	inner := descriptor.MustBuildClass("Inner", func(b *descriptor.ClassBuilder) {
		b.Element("a", descriptor.Int)
	})
	outer := descriptor.MustBuildClass("Outer", func(b *descriptor.ClassBuilder) {
		b.Element("x", inner)
		b.Element("y", descriptor.Int)
	})
	s := serial.SerializerFunc(outer,
		func(e serial.Encoder, v int32) error {
			ce, err := e.BeginStructure(outer)
			if err != nil {
				return err
			}
			child, err := ce.EncodeElement(outer, 0)
			if err != nil {
				return err
			}
			if _, err := child.BeginStructure(inner); err != nil {
				return err
			}
			return serial.EncodeInt32Element(ce, outer, 1, v)
		},
		func(d serial.Decoder) (int32, error) {
			cd, err := d.BeginStructure(outer)
			if err != nil {
				return 0, err
			}
			i, err := cd.DecodeElementIndex(outer)
			if err != nil {
				return 0, err
			}
			child, err := cd.DecodeElement(outer, i)
			if err != nil {
				return 0, err
			}
			if _, err := child.BeginStructure(inner); err != nil {
				return 0, err
			}
			if _, err := cd.DecodeElementIndex(outer); err != nil {
				return 0, err
			}
			return 0, cd.EndStructure(outer)
		})

	_, err := EncodeToString(Default, s, 7)
	assert.ErrorIs(t, err, merr.ErrProtocolMisuse)
	assert.True(t, merr.IsUsageError(err))

	_, err = DecodeFromString(Default, s, `{"x":{"a":1},"y":7}`)
	assert.ErrorIs(t, err, merr.ErrProtocolMisuse)
}

func TestElement(t *testing.T) {
	in := `{"b":[1,2.5,"x",true,null],"a":{},"c":12345678901234567890}`
	el, err := ParseElement(Default, []byte(in))
	require.NoError(t, err)

	obj, ok := el.(*Object)
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a", "c"}, obj.Keys())
	arr, _ := obj.Get("b")
	assert.Equal(t, Array{Number("1"), Number("2.5"), String("x"), Bool(true), Null{}}, arr)
	big, _ := obj.Get("c")
	assert.Equal(t, Number("12345678901234567890"), big)

	text, err := EncodeToString(Default, ElementSerializer, el)
	require.NoError(t, err)
	assert.Equal(t, in, text)

	// Element 可以作为结构体元素使用。
	type envelope struct{ Data Element }
	s := serial.MustStruct("Envelope",
		serial.Field("data", ElementSerializer, func(e *envelope) Element { return e.Data }, func(e *envelope, v Element) { e.Data = v }),
	)
	env, err := DecodeFromString(Default, s, `{"data":{"k":[1]}}`)
	require.NoError(t, err)
	text, err = EncodeToString(Default, s, env)
	require.NoError(t, err)
	assert.Equal(t, `{"data":{"k":[1]}}`, text)
}

func TestDecodeSequence(t *testing.T) {
	collect := func(in string) ([]int32, error) {
		var out []int32
		for v, err := range DecodeSequence(Default, strings.NewReader(in), serial.Int32) {
			if err != nil {
				return out, err
			}
			out = append(out, v)
		}
		return out, nil
	}

	got, err := collect("1 2\n3")
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, got)

	got, err = collect(" [1, 2, 3] ")
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, got)

	got, err = collect("")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = collect(`1 "x" 3`)
	assert.ErrorIs(t, err, merr.ErrUnexpectedToken)
	assert.Equal(t, []int32{1}, got)

	_, err = collect(`[1,2] 3`)
	assert.ErrorIs(t, err, merr.ErrMalformedInput)

	// 提前结束迭代。
	n := 0
	for range DecodeSequence(Default, strings.NewReader("1 2 3"), serial.Int32) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestChunkBoundaries(t *testing.T) {
	f := MustNew(WithModule(fixture.EventModule()))
	long := strings.Repeat("é", 3*chunkSize)
	in := `[{"code":"` + long + `","type":"key"},{"type":"click","y":2,"x":1}]`
	events := serial.List[fixture.Event](fixture.EventSerializer)

	got, err := Decode(f, iotest.OneByteReader(strings.NewReader(in)), events)
	require.NoError(t, err)
	assert.Equal(t, []fixture.Event{fixture.Key{Code: long}, fixture.Click{X: 1, Y: 2}}, got)

	got, err = Decode(f, iotest.HalfReader(bytes.NewReader([]byte(in))), events)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestIoErrors(t *testing.T) {
	boom := errors.New("boom")
	_, err := Decode(Default, iotest.ErrReader(boom), fixture.PointSerializer)
	require.ErrorIs(t, err, merr.ErrIoFailed)
	assert.ErrorIs(t, err, boom)

	w := &failingWriter{err: boom}
	err = Encode(Default, w, serial.String, "x")
	require.ErrorIs(t, err, merr.ErrIoFailed)
	assert.ErrorIs(t, err, boom)
}

type failingWriter struct{ err error }

func (w *failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestConfiguration(t *testing.T) {
	for _, opts := range [][]Option{
		{WithPrettyPrintIndent("  ")},
		{WithPrettyPrint(true), WithPrettyPrintIndent("ab")},
		{WithClassDiscriminator("")},
		{WithArrayPolymorphism(true), WithClassDiscriminator("kind")},
		{WithMaxDepth(-1)},
	} {
		_, err := New(opts...)
		assert.ErrorIs(t, err, merr.ErrParameterInvalid)
	}

	f, err := New(WithPrettyPrint(true), WithPrettyPrintIndent("  "))
	require.NoError(t, err)
	assert.Equal(t, "  ", f.Configuration().PrettyPrintIndent)
	assert.Equal(t, serial.DefaultMaxDepth, f.Configuration().MaxDepth)
	assert.Panics(t, func() { MustNew(WithMaxDepth(-1)) })
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "serialkit.yaml")
	content := "json:\n  prettyPrint: true\n  prettyPrintIndent: \"  \"\n  classDiscriminator: kind\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	f, err := LoadConfig(path, WithLenient(true))
	require.NoError(t, err)
	conf := f.Configuration()
	assert.True(t, conf.PrettyPrint)
	assert.Equal(t, "  ", conf.PrettyPrintIndent)
	assert.Equal(t, "kind", conf.ClassDiscriminator)
	assert.True(t, conf.IsLenient)
	assert.True(t, conf.ExplicitNulls)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("json:\n  classDiscriminator: \"\"\n"), 0o600))
	_, err = LoadConfig(bad)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
