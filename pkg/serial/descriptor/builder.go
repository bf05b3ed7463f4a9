package descriptor

import (
	"github.com/lk2023060901/serialkit/pkg/util/merr"
	"github.com/lk2023060901/serialkit/pkg/util/typeutil"
)

// ElementOption 修改单个元素的声明。
type ElementOption func(*element)

// Optional 标记元素可以缺省，解码时缺失不会报错。
func Optional() ElementOption {
	return func(e *element) {
		e.optional = true
	}
}

// WithAnnotations 为元素附加格式相关的注解。
func WithAnnotations(annotations ...any) ElementOption {
	return func(e *element) {
		e.annotations = append(e.annotations, annotations...)
	}
}

// ClassBuilder 用于按声明顺序构造类描述符。
type ClassBuilder struct {
	serialName  string
	inline      bool
	elements    []element
	annotations []any
	seen        typeutil.Set[string]
	duplicates  []string
}

// Element 追加一个元素。
func (b *ClassBuilder) Element(name string, desc Descriptor, opts ...ElementOption) *ClassBuilder {
	if b.seen.Contain(name) {
		b.duplicates = append(b.duplicates, name)
		return b
	}
	b.seen.Insert(name)
	e := element{name: name, desc: desc}
	for _, opt := range opts {
		opt(&e)
	}
	b.elements = append(b.elements, e)
	return b
}

// Annotate 为类本身附加注解。
func (b *ClassBuilder) Annotate(annotations ...any) *ClassBuilder {
	b.annotations = append(b.annotations, annotations...)
	return b
}

// Inline 标记该类为单元素的内联值包装。
func (b *ClassBuilder) Inline() *ClassBuilder {
	b.inline = true
	return b
}

// BuildClass 构造一个类描述符。元素名重复时返回错误。
func BuildClass(serialName string, fn func(b *ClassBuilder)) (Descriptor, error) {
	b := &ClassBuilder{serialName: serialName, seen: typeutil.NewSet[string]()}
	if fn != nil {
		fn(b)
	}
	if len(b.duplicates) > 0 {
		return nil, merr.WrapErrDuplicateElement(serialName, b.duplicates[0])
	}
	if b.inline && len(b.elements) != 1 {
		return nil, merr.WrapErrParameterInvalidMsg("inline class %s must declare exactly one element, got %d", serialName, len(b.elements))
	}
	return &descriptor{
		serialName:  serialName,
		kind:        KindClass,
		inline:      b.inline,
		elements:    b.elements,
		index:       indexOf(b.elements),
		annotations: b.annotations,
	}, nil
}

// MustBuildClass 与 BuildClass 相同，出错时 panic，适用于包级变量初始化。
func MustBuildClass(serialName string, fn func(b *ClassBuilder)) Descriptor {
	d, err := BuildClass(serialName, fn)
	if err != nil {
		panic(err)
	}
	return d
}

// Enum 构造一个枚举描述符，元素名即枚举值名，顺序即序号。
func Enum(serialName string, values ...string) Descriptor {
	d, err := BuildEnum(serialName, values...)
	if err != nil {
		panic(err)
	}
	return d
}

// BuildEnum 构造一个枚举描述符，枚举值重复时返回错误。
func BuildEnum(serialName string, values ...string) (Descriptor, error) {
	elements := make([]element, 0, len(values))
	seen := typeutil.NewSet[string]()
	for _, v := range values {
		if seen.Contain(v) {
			return nil, merr.WrapErrDuplicateElement(serialName, v)
		}
		seen.Insert(v)
		elements = append(elements, element{name: v, desc: &descriptor{serialName: serialName + "." + v, kind: KindClass}})
	}
	return &descriptor{
		serialName: serialName,
		kind:       KindEnum,
		elements:   elements,
		index:      indexOf(elements),
	}, nil
}

// Sealed 构造一个封闭多态描述符，包含 "type" 与 "value" 两个元素。
// value 元素的描述符是所有子类型名字的上下文描述，具体子类型由解析器决定。
func Sealed(serialName string, subclasses ...Descriptor) Descriptor {
	return polymorphic(serialName, KindSealed, subclasses)
}

// Open 构造一个开放多态描述符，子类型在运行时通过模块查找。
func Open(serialName string) Descriptor {
	return polymorphic(serialName, KindOpen, nil)
}

func polymorphic(serialName string, kind Kind, subclasses []Descriptor) Descriptor {
	subs := make([]element, 0, len(subclasses))
	for _, s := range subclasses {
		subs = append(subs, element{name: s.SerialName(), desc: s})
	}
	value := &descriptor{
		serialName: "polymorphic<" + serialName + ">",
		kind:       KindClass,
		elements:   subs,
		index:      indexOf(subs),
	}
	elements := []element{
		{name: "type", desc: String},
		{name: "value", desc: value},
	}
	return &descriptor{
		serialName: serialName,
		kind:       kind,
		elements:   elements,
		index:      indexOf(elements),
	}
}

// Annotated 返回附加了类级注解的 d 的副本，d 本身不变。
// 可空包装、基础类型与集合描述符不支持类级注解，原样返回。
func Annotated(d Descriptor, annotations ...any) Descriptor {
	src, ok := d.(*descriptor)
	if !ok || len(annotations) == 0 {
		return d
	}
	cp := *src
	cp.annotations = append(append([]any(nil), src.annotations...), annotations...)
	return &cp
}

// Subclasses 返回封闭多态描述符声明的子类型描述符。
func Subclasses(d Descriptor) []Descriptor {
	d = d.Unwrap()
	if d.Kind() != KindSealed {
		return nil
	}
	value := d.ElementDescriptor(1)
	out := make([]Descriptor, value.ElementsCount())
	for i := range out {
		out[i] = value.ElementDescriptor(i)
	}
	return out
}

func indexOf(elements []element) map[string]int {
	idx := make(map[string]int, len(elements))
	for i, e := range elements {
		idx[e.name] = i
	}
	return idx
}
