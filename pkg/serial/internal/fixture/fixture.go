// Package fixture 提供各格式测试共用的示例类型与序列化器。
package fixture

import (
	"github.com/lk2023060901/serialkit/pkg/serial"
)

type Point struct {
	X int32
	Y int32
}

var PointSerializer = serial.MustStruct("Point",
	serial.Field("x", serial.Int32, func(p *Point) int32 { return p.X }, func(p *Point, v int32) { p.X = v }),
	serial.Field("y", serial.Int32, func(p *Point) int32 { return p.Y }, func(p *Point, v int32) { p.Y = v }),
)

type Color int

const (
	Red Color = iota
	Green
	Blue
)

var ColorSerializer = serial.EnumOf[Color]("Color", "RED", "GREEN", "BLUE")

type Person struct {
	Name     string
	Nickname *string
	Age      int32
	Tags     []string
	Scores   map[string]int64
	Favorite Color
	Home     *Point
}

// PersonSerializer 中 Age 默认 18，Tags 默认空，Favorite 默认 Blue，Home 默认 null。
var PersonSerializer = serial.MustStruct("Person",
	serial.Field("name", serial.String,
		func(p *Person) string { return p.Name }, func(p *Person, v string) { p.Name = v }),
	serial.NullableField("nickname", serial.String,
		func(p *Person) *string { return p.Nickname }, func(p *Person, v *string) { p.Nickname = v }),
	serial.OptionalField("age", serial.Int32, 18,
		func(p *Person) int32 { return p.Age }, func(p *Person, v int32) { p.Age = v }),
	serial.OptionalField("tags", serial.List(serial.String), []string{},
		func(p *Person) []string { return p.Tags }, func(p *Person, v []string) { p.Tags = v }),
	serial.OptionalField("scores", serial.Map(serial.String, serial.Int64), map[string]int64{},
		func(p *Person) map[string]int64 { return p.Scores }, func(p *Person, v map[string]int64) { p.Scores = v }),
	serial.OptionalField("favorite", ColorSerializer, Blue,
		func(p *Person) Color { return p.Favorite }, func(p *Person, v Color) { p.Favorite = v }),
	serial.OptionalNullableField("home", PointSerializer,
		func(p *Person) *Point { return p.Home }, func(p *Person, v *Point) { p.Home = v }),
)

// Shape 是一个封闭多态家族。
type Shape interface {
	Area() float64
}

type Circle struct {
	Radius float64
}

func (c Circle) Area() float64 { return 3 * c.Radius * c.Radius }

type Square struct {
	Side float64
}

func (s Square) Area() float64 { return s.Side * s.Side }

// Label 以字符串为负载，用于验证非对象负载的多态表示。
type Label string

func (Label) Area() float64 { return 0 }

var (
	CircleSerializer = serial.MustStruct("Circle",
		serial.Field("radius", serial.Float64, func(c *Circle) float64 { return c.Radius }, func(c *Circle, v float64) { c.Radius = v }),
	)
	SquareSerializer = serial.MustStruct("Square",
		serial.Field("side", serial.Float64, func(s *Square) float64 { return s.Side }, func(s *Square, v float64) { s.Side = v }),
	)
	LabelSerializer = serial.Transform(serial.String,
		func(l Label) (string, error) { return string(l), nil },
		func(s string) (Label, error) { return Label(s), nil })

	ShapeSerializer = serial.MustSealed[Shape]("Shape",
		serial.Subclass[Shape]("circle", CircleSerializer),
		serial.Subclass[Shape]("square", SquareSerializer),
		serial.Subclass[Shape]("label", LabelSerializer),
	)
)

// Drawing 在类元素中嵌套多态值。
type Drawing struct {
	Title  string
	Shapes []Shape
}

var DrawingSerializer = serial.MustStruct("Drawing",
	serial.Field("title", serial.String, func(d *Drawing) string { return d.Title }, func(d *Drawing, v string) { d.Title = v }),
	serial.Field("shapes", serial.List[Shape](ShapeSerializer), func(d *Drawing) []Shape { return d.Shapes }, func(d *Drawing, v []Shape) { d.Shapes = v }),
)

// Event 是一个开放多态家族，子类型通过 Module 注册。
type Event interface {
	Name() string
}

type Click struct {
	X, Y int32
}

func (Click) Name() string { return "click" }

type Key struct {
	Code string
}

func (Key) Name() string { return "key" }

var (
	ClickSerializer = serial.MustStruct("Click",
		serial.Field("x", serial.Int32, func(c *Click) int32 { return c.X }, func(c *Click, v int32) { c.X = v }),
		serial.Field("y", serial.Int32, func(c *Click) int32 { return c.Y }, func(c *Click, v int32) { c.Y = v }),
	)
	KeySerializer = serial.MustStruct("Key",
		serial.Field("code", serial.String, func(k *Key) string { return k.Code }, func(k *Key, v string) { k.Code = v }),
	)
	EventSerializer = serial.Open[Event]("Event")
)

// EventModule 注册 Click 与 Key。
func EventModule() *serial.Module {
	b := serial.NewModuleBuilder()
	if err := serial.RegisterPolymorphic[Event](b, "click", ClickSerializer); err != nil {
		panic(err)
	}
	if err := serial.RegisterPolymorphic[Event](b, "key", KeySerializer); err != nil {
		panic(err)
	}
	return b.Build()
}

// Ptr 返回 v 的指针。
func Ptr[T any](v T) *T {
	return &v
}
