package descriptor

import (
	"fmt"
	"strconv"
	"strings"
)

// UnknownName 在元素名不存在时由 ElementIndex 返回。
const UnknownName = -3

// Descriptor 是类型结构的不可变描述。
// 任何在 [0, ElementsCount()) 范围之外的元素索引都属于编程错误，会直接 panic。
type Descriptor interface {
	// SerialName 为类型的稳定名字，多态场景下用作默认鉴别值。
	SerialName() string
	Kind() Kind
	// IsNullable 判断该描述符是否允许 null。
	IsNullable() bool
	// IsInline 判断该描述符是否为内联的值包装类型。
	IsInline() bool
	ElementsCount() int
	ElementName(i int) string
	ElementIndex(name string) int
	ElementDescriptor(i int) Descriptor
	IsElementOptional(i int) bool
	// IsElementNullable 判断第 i 个元素是否允许 null。
	IsElementNullable(i int) bool
	ElementAnnotations(i int) []any
	Annotations() []any
	// Unwrap 对可空包装返回内部描述符，其他情况返回自身。
	Unwrap() Descriptor
}

type element struct {
	name        string
	desc        Descriptor
	optional    bool
	annotations []any
}

type descriptor struct {
	serialName  string
	kind        Kind
	inline      bool
	elements    []element
	index       map[string]int
	annotations []any
}

func (d *descriptor) SerialName() string { return d.serialName }
func (d *descriptor) Kind() Kind         { return d.kind }
func (d *descriptor) IsNullable() bool   { return false }
func (d *descriptor) IsInline() bool     { return d.inline }
func (d *descriptor) ElementsCount() int { return len(d.elements) }
func (d *descriptor) Annotations() []any { return d.annotations }
func (d *descriptor) Unwrap() Descriptor { return d }

func (d *descriptor) element(i int) *element {
	if i < 0 || i >= len(d.elements) {
		panic(fmt.Sprintf("element index %d out of range [0, %d) for %s", i, len(d.elements), d.serialName))
	}
	return &d.elements[i]
}

func (d *descriptor) ElementName(i int) string {
	return d.element(i).name
}

func (d *descriptor) ElementIndex(name string) int {
	if i, ok := d.index[name]; ok {
		return i
	}
	return UnknownName
}

func (d *descriptor) ElementDescriptor(i int) Descriptor {
	return d.element(i).desc
}

func (d *descriptor) IsElementOptional(i int) bool {
	return d.element(i).optional
}

func (d *descriptor) IsElementNullable(i int) bool {
	return d.element(i).desc.IsNullable()
}

func (d *descriptor) ElementAnnotations(i int) []any {
	return d.element(i).annotations
}

func (d *descriptor) String() string {
	if len(d.elements) == 0 {
		return d.serialName
	}
	parts := make([]string, 0, len(d.elements))
	for _, e := range d.elements {
		parts = append(parts, e.name+": "+e.desc.SerialName())
	}
	return d.serialName + "(" + strings.Join(parts, ", ") + ")"
}

// nullable 包装内部描述符，仅修改 SerialName 与 IsNullable。
type nullable struct {
	inner Descriptor
}

func (n *nullable) SerialName() string                 { return n.inner.SerialName() + "?" }
func (n *nullable) Kind() Kind                         { return KindNullable }
func (n *nullable) IsNullable() bool                   { return true }
func (n *nullable) IsInline() bool                     { return n.inner.IsInline() }
func (n *nullable) ElementsCount() int                 { return n.inner.ElementsCount() }
func (n *nullable) ElementName(i int) string           { return n.inner.ElementName(i) }
func (n *nullable) ElementIndex(name string) int       { return n.inner.ElementIndex(name) }
func (n *nullable) ElementDescriptor(i int) Descriptor { return n.inner.ElementDescriptor(i) }
func (n *nullable) IsElementOptional(i int) bool       { return n.inner.IsElementOptional(i) }
func (n *nullable) IsElementNullable(i int) bool       { return n.inner.IsElementNullable(i) }
func (n *nullable) ElementAnnotations(i int) []any     { return n.inner.ElementAnnotations(i) }
func (n *nullable) Annotations() []any                 { return n.inner.Annotations() }
func (n *nullable) Unwrap() Descriptor                 { return n.inner }
func (n *nullable) String() string                     { return n.SerialName() }

// Nullable 返回 d 的可空版本。对已可空的描述符直接返回自身。
func Nullable(d Descriptor) Descriptor {
	if d.IsNullable() {
		return d
	}
	return &nullable{inner: d}
}

// StructuralKind 返回剥离可空包装后的形态。
func StructuralKind(d Descriptor) Kind {
	return d.Unwrap().Kind()
}

// Equal 按结构比较两个描述符：名字、形态、可空性与元素逐一相等。
func Equal(a, b Descriptor) bool {
	if a == b {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	if a.SerialName() != b.SerialName() || a.Kind() != b.Kind() || a.IsNullable() != b.IsNullable() {
		return false
	}
	if a.ElementsCount() != b.ElementsCount() {
		return false
	}
	for i := 0; i < a.ElementsCount(); i++ {
		if a.ElementName(i) != b.ElementName(i) || a.IsElementOptional(i) != b.IsElementOptional(i) {
			return false
		}
		// 多态描述符只比较子类型名字，避免递归类型导致无限比较。
		if a.ElementDescriptor(i).SerialName() != b.ElementDescriptor(i).SerialName() {
			return false
		}
	}
	return true
}

var primitives = newPrimitives()

func newPrimitives() map[Kind]*descriptor {
	out := make(map[Kind]*descriptor)
	for k, name := range map[Kind]string{
		KindBoolean: "bool",
		KindByte:    "int8",
		KindShort:   "int16",
		KindInt:     "int32",
		KindLong:    "int64",
		KindFloat:   "float32",
		KindDouble:  "float64",
		KindChar:    "char",
		KindString:  "string",
	} {
		out[k] = &descriptor{serialName: name, kind: k}
	}
	return out
}

// Primitive 返回内置基础类型的描述符。kind 必须是非枚举的叶子形态。
func Primitive(kind Kind) Descriptor {
	d, ok := primitives[kind]
	if !ok {
		panic("not a primitive kind: " + kind.String())
	}
	return d
}

var (
	Boolean = Primitive(KindBoolean)
	Byte    = Primitive(KindByte)
	Short   = Primitive(KindShort)
	Int     = Primitive(KindInt)
	Long    = Primitive(KindLong)
	Float   = Primitive(KindFloat)
	Double  = Primitive(KindDouble)
	Char    = Primitive(KindChar)
	String  = Primitive(KindString)
)

// ListOf 构造一个列表描述符。
// 列表只声明一个元素，但任意非负下标都映射到该元素，元素名为下标本身。
func ListOf(elem Descriptor) Descriptor {
	return &collection{
		serialName: "list<" + elem.SerialName() + ">",
		kind:       KindList,
		elements:   []Descriptor{elem},
	}
}

// MapOf 构造一个映射描述符。偶数下标对应键，奇数下标对应值。
func MapOf(key, value Descriptor) Descriptor {
	return &collection{
		serialName: "map<" + key.SerialName() + "," + value.SerialName() + ">",
		kind:       KindMap,
		elements:   []Descriptor{key, value},
	}
}

type collection struct {
	serialName string
	kind       Kind
	elements   []Descriptor
}

func (c *collection) SerialName() string { return c.serialName }
func (c *collection) Kind() Kind         { return c.kind }
func (c *collection) IsNullable() bool   { return false }
func (c *collection) IsInline() bool     { return false }
func (c *collection) ElementsCount() int { return len(c.elements) }
func (c *collection) Annotations() []any { return nil }
func (c *collection) Unwrap() Descriptor { return c }
func (c *collection) String() string     { return c.serialName }

func (c *collection) checkIndex(i int) {
	if i < 0 {
		panic(fmt.Sprintf("element index %d out of range for %s", i, c.serialName))
	}
}

func (c *collection) ElementName(i int) string {
	c.checkIndex(i)
	return strconv.Itoa(i)
}

func (c *collection) ElementIndex(name string) int {
	i, err := strconv.Atoi(name)
	if err != nil || i < 0 {
		return UnknownName
	}
	return i
}

func (c *collection) ElementDescriptor(i int) Descriptor {
	c.checkIndex(i)
	return c.elements[i%len(c.elements)]
}

func (c *collection) IsElementOptional(i int) bool {
	c.checkIndex(i)
	return false
}

func (c *collection) IsElementNullable(i int) bool {
	return c.ElementDescriptor(i).IsNullable()
}

func (c *collection) ElementAnnotations(i int) []any {
	c.checkIndex(i)
	return nil
}

// CollectionElementName 返回集合中第 i 个元素的名字。
func CollectionElementName(i int) string {
	return strconv.Itoa(i)
}
