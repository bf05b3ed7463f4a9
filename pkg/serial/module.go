package serial

import (
	"reflect"
)

// Module 保存开放多态家族的子类型注册表，构建后只读。
// nil *Module 等价于空模块。
type Module struct {
	families map[reflect.Type]*family
}

// EmptyModule 是不包含任何注册项的模块。
var EmptyModule = NewModuleBuilder().Build()

func (m *Module) family(base reflect.Type) *family {
	if m == nil {
		return nil
	}
	return m.families[base]
}

// Discriminators 返回 Base 家族已注册的鉴别值，按注册顺序排列。
func Discriminators[Base any](m *Module) []string {
	f := m.family(reflect.TypeFor[Base]())
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.order))
	for _, sc := range f.order {
		out = append(out, sc.discriminator)
	}
	return out
}

// ModuleBuilder 用于构造 Module，不是并发安全的。
type ModuleBuilder struct {
	families map[reflect.Type]*family
}

func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{
		families: make(map[reflect.Type]*family),
	}
}

// RegisterPolymorphic 在 Base 家族中注册类型为 T 的子类型。
// discriminator 为空时使用 s 描述符的 SerialName。
func RegisterPolymorphic[Base, T any](b *ModuleBuilder, discriminator string, s Serializer[T]) error {
	base := reflect.TypeFor[Base]()
	f, ok := b.families[base]
	if !ok {
		f = newFamily(base)
		b.families[base] = f
	}
	return f.add(Subclass[Base, T](discriminator, s).sc)
}

// Include 合并另一个模块的全部注册项，冲突时返回错误。
func (b *ModuleBuilder) Include(m *Module) error {
	if m == nil {
		return nil
	}
	for base, src := range m.families {
		dst, ok := b.families[base]
		if !ok {
			dst = newFamily(base)
			b.families[base] = dst
		}
		for _, sc := range src.order {
			if err := dst.add(sc); err != nil {
				return err
			}
		}
	}
	return nil
}

// Build 返回不可变的 Module，之后对 builder 的修改不会影响它。
func (b *ModuleBuilder) Build() *Module {
	m := &Module{
		families: make(map[reflect.Type]*family, len(b.families)),
	}
	for base, src := range b.families {
		dst := newFamily(base)
		for _, sc := range src.order {
			dst.byDisc[sc.discriminator] = sc
			dst.byType[sc.typ] = sc
			dst.order = append(dst.order, sc)
		}
		m.families[base] = dst
	}
	return m
}
