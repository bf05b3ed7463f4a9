package serial

import (
	"reflect"

	"github.com/lk2023060901/serialkit/pkg/serial/descriptor"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// Subtype 是多态值解析出的具体子类型。
type Subtype struct {
	Discriminator string
	Descriptor    descriptor.Descriptor
}

// IsClass 判断子类型是否以类结构表示，此时格式可以把鉴别值嵌入同一个对象。
func (s Subtype) IsClass() bool {
	d := s.Descriptor.Unwrap()
	return d.Kind() == descriptor.KindClass && !d.IsInline()
}

// SubtypeResolver 通过鉴别值查找具体子类型，未注册的鉴别值返回 ErrUnknownDiscriminator。
type SubtypeResolver func(discriminator string) (Subtype, error)

// PolymorphicEncoder 是格式的可选能力，用于自定义多态值的表示方式，
// 例如将鉴别值写成对象内的一个字段。payload 写出具体子类型的值。
type PolymorphicEncoder interface {
	EncodePolymorphic(base descriptor.Descriptor, sub Subtype, payload func(Encoder) error) error
}

// PolymorphicDecoder 是格式的可选能力。实现必须在读取负载前确定鉴别值，
// 并以解析出的子类型调用 payload。
type PolymorphicDecoder interface {
	DecodePolymorphic(base descriptor.Descriptor, resolve SubtypeResolver, payload func(sub Subtype, d Decoder) error) error
}

// EncodePolymorphicDefault 以两元素结构 {type, value} 写出多态值。
func EncodePolymorphicDefault(e Encoder, base descriptor.Descriptor, sub Subtype, payload func(Encoder) error) error {
	ce, err := e.BeginStructure(base)
	if err != nil {
		return err
	}
	if err := EncodeStringElement(ce, base, 0, sub.Discriminator); err != nil {
		return err
	}
	pe, err := ce.EncodeElement(base, 1)
	if err != nil {
		return err
	}
	if err := payload(pe); err != nil {
		return err
	}
	return ce.EndStructure(base)
}

// DecodePolymorphicDefault 读取 EncodePolymorphicDefault 写出的结构。
// 鉴别值必须先于负载出现。
func DecodePolymorphicDefault(d Decoder, base descriptor.Descriptor, resolve SubtypeResolver, payload func(sub Subtype, d Decoder) error) error {
	cd, err := d.BeginStructure(base)
	if err != nil {
		return err
	}
	var (
		sub     Subtype
		hasType bool
		hasBody bool
	)
	readBody := func() error {
		if !hasType {
			return merr.WrapErrMissingDiscriminator(base.SerialName(), base.ElementName(0))
		}
		pd, err := cd.DecodeElement(base, 1)
		if err != nil {
			return err
		}
		hasBody = true
		return payload(sub, pd)
	}
	readType := func() error {
		disc, err := DecodeStringElement(cd, base, 0)
		if err != nil {
			return err
		}
		sub, err = resolve(disc)
		if err != nil {
			return err
		}
		hasType = true
		return nil
	}

	if cd.DecodeSequentially() {
		if err := readType(); err != nil {
			return err
		}
		if err := readBody(); err != nil {
			return err
		}
		return cd.EndStructure(base)
	}
	for {
		i, err := cd.DecodeElementIndex(base)
		if err != nil {
			return err
		}
		switch i {
		case ElementDone:
			if !hasType {
				return merr.WrapErrMissingDiscriminator(base.SerialName(), base.ElementName(0))
			}
			if !hasBody {
				return merr.WrapErrMissingField(base.SerialName(), base.ElementName(1))
			}
			return cd.EndStructure(base)
		case 0:
			err = readType()
		case 1:
			err = readBody()
		default:
			err = merr.WrapErrUnknownKey("", base.SerialName(), "polymorphic structure has only type and value")
		}
		if err != nil {
			return err
		}
	}
}

type subclass struct {
	discriminator string
	typ           reflect.Type
	serializer    Serializer[any]
}

func (sc *subclass) subtype() Subtype {
	return Subtype{Discriminator: sc.discriminator, Descriptor: sc.serializer.Descriptor()}
}

// family 是一个多态家族的子类型表，构建完成后只读。
type family struct {
	base   reflect.Type
	byDisc map[string]*subclass
	byType map[reflect.Type]*subclass
	order  []*subclass
}

func newFamily(base reflect.Type) *family {
	return &family{
		base:   base,
		byDisc: make(map[string]*subclass),
		byType: make(map[reflect.Type]*subclass),
	}
}

func (f *family) add(sc *subclass) error {
	if sc.typ.Kind() == reflect.Interface {
		return merr.WrapErrParameterInvalidMsg("subclass %s of %s must be a concrete type", sc.typ, f.base)
	}
	if !sc.typ.AssignableTo(f.base) {
		return merr.WrapErrParameterInvalidMsg("subclass %s is not assignable to %s", sc.typ, f.base)
	}
	if _, ok := f.byDisc[sc.discriminator]; ok {
		return merr.WrapErrParameterInvalidMsg("duplicate discriminator %q in family %s", sc.discriminator, f.base)
	}
	if _, ok := f.byType[sc.typ]; ok {
		return merr.WrapErrParameterInvalidMsg("subclass %s registered twice in family %s", sc.typ, f.base)
	}
	f.byDisc[sc.discriminator] = sc
	f.byType[sc.typ] = sc
	f.order = append(f.order, sc)
	return nil
}

func (f *family) byValue(baseName string, v any) (*subclass, error) {
	if v == nil {
		return nil, merr.WrapErrUnregisteredSubclass(baseName, v)
	}
	sc, ok := f.byType[reflect.TypeOf(v)]
	if !ok {
		return nil, merr.WrapErrUnregisteredSubclass(baseName, v)
	}
	return sc, nil
}

func (f *family) byDiscriminator(baseName string, disc string) (*subclass, error) {
	sc, ok := f.byDisc[disc]
	if !ok {
		return nil, merr.WrapErrUnknownDiscriminator(baseName, disc)
	}
	return sc, nil
}

func encodePolymorphic(e Encoder, base descriptor.Descriptor, sc *subclass, v any) error {
	payload := func(pe Encoder) error {
		return sc.serializer.Serialize(pe, v)
	}
	if pe, ok := e.(PolymorphicEncoder); ok {
		return pe.EncodePolymorphic(base, sc.subtype(), payload)
	}
	return EncodePolymorphicDefault(e, base, sc.subtype(), payload)
}

func decodePolymorphic(d Decoder, base descriptor.Descriptor, lookup func(disc string) (*subclass, error)) (any, error) {
	var out any
	resolve := func(disc string) (Subtype, error) {
		sc, err := lookup(disc)
		if err != nil {
			return Subtype{}, err
		}
		return sc.subtype(), nil
	}
	payload := func(sub Subtype, pd Decoder) error {
		sc, err := lookup(sub.Discriminator)
		if err != nil {
			return err
		}
		v, err := sc.serializer.Deserialize(pd)
		if err != nil {
			return merr.WrapErrPolymorphicPayload(sub.Discriminator, err)
		}
		out = v
		return nil
	}
	var err error
	if pd, ok := d.(PolymorphicDecoder); ok {
		err = pd.DecodePolymorphic(base, resolve, payload)
	} else {
		err = DecodePolymorphicDefault(d, base, resolve, payload)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SubclassOf 是多态家族 Base 中的一个具体子类型声明。
type SubclassOf[Base any] struct {
	sc *subclass
}

// Subclass 声明 Base 家族中类型为 T 的子类型。
// discriminator 为空时使用 s 描述符的 SerialName。
func Subclass[Base, T any](discriminator string, s Serializer[T]) SubclassOf[Base] {
	if discriminator == "" {
		discriminator = s.Descriptor().SerialName()
	}
	return SubclassOf[Base]{sc: &subclass{
		discriminator: discriminator,
		typ:           reflect.TypeFor[T](),
		serializer:    Erase(s),
	}}
}

// SealedSerializer 是封闭多态家族的序列化器，子类型在声明时全部给出。
type SealedSerializer[Base any] struct {
	desc   descriptor.Descriptor
	family *family
}

// Sealed 声明一个封闭多态家族。鉴别值重复或子类型不能赋值给 Base 时返回错误。
func Sealed[Base any](serialName string, subclasses ...SubclassOf[Base]) (*SealedSerializer[Base], error) {
	f := newFamily(reflect.TypeFor[Base]())
	descs := make([]descriptor.Descriptor, 0, len(subclasses))
	for _, s := range subclasses {
		if err := f.add(s.sc); err != nil {
			return nil, err
		}
		descs = append(descs, s.sc.serializer.Descriptor())
	}
	return &SealedSerializer[Base]{
		desc:   descriptor.Sealed(serialName, descs...),
		family: f,
	}, nil
}

// MustSealed 与 Sealed 相同，出错时 panic。
func MustSealed[Base any](serialName string, subclasses ...SubclassOf[Base]) *SealedSerializer[Base] {
	s, err := Sealed(serialName, subclasses...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *SealedSerializer[Base]) Descriptor() descriptor.Descriptor { return s.desc }

// Annotated 返回描述符附加了注解的序列化器副本，例如格式相关的鉴别字段名。
func (s *SealedSerializer[Base]) Annotated(annotations ...any) *SealedSerializer[Base] {
	return &SealedSerializer[Base]{desc: descriptor.Annotated(s.desc, annotations...), family: s.family}
}

// Discriminators 按声明顺序返回全部鉴别值。
func (s *SealedSerializer[Base]) Discriminators() []string {
	out := make([]string, 0, len(s.family.order))
	for _, sc := range s.family.order {
		out = append(out, sc.discriminator)
	}
	return out
}

func (s *SealedSerializer[Base]) Serialize(e Encoder, v Base) error {
	sc, err := s.family.byValue(s.desc.SerialName(), any(v))
	if err != nil {
		return err
	}
	return encodePolymorphic(e, s.desc, sc, any(v))
}

func (s *SealedSerializer[Base]) Deserialize(d Decoder) (Base, error) {
	v, err := decodePolymorphic(d, s.desc, func(disc string) (*subclass, error) {
		return s.family.byDiscriminator(s.desc.SerialName(), disc)
	})
	if err != nil {
		var zero Base
		return zero, err
	}
	return asBase[Base](s.desc, v)
}

// OpenSerializer 是开放多态家族的序列化器，子类型在会话的 Module 中查找。
type OpenSerializer[Base any] struct {
	desc descriptor.Descriptor
	base reflect.Type
}

// Open 声明一个开放多态家族。
func Open[Base any](serialName string) *OpenSerializer[Base] {
	return &OpenSerializer[Base]{
		desc: descriptor.Open(serialName),
		base: reflect.TypeFor[Base](),
	}
}

func (s *OpenSerializer[Base]) Descriptor() descriptor.Descriptor { return s.desc }

// Annotated 返回描述符附加了注解的序列化器副本。
func (s *OpenSerializer[Base]) Annotated(annotations ...any) *OpenSerializer[Base] {
	return &OpenSerializer[Base]{desc: descriptor.Annotated(s.desc, annotations...), base: s.base}
}

func (s *OpenSerializer[Base]) Serialize(e Encoder, v Base) error {
	f := e.Module().family(s.base)
	if f == nil {
		return merr.WrapErrUnregisteredSubclass(s.desc.SerialName(), any(v))
	}
	sc, err := f.byValue(s.desc.SerialName(), any(v))
	if err != nil {
		return err
	}
	return encodePolymorphic(e, s.desc, sc, any(v))
}

func (s *OpenSerializer[Base]) Deserialize(d Decoder) (Base, error) {
	f := d.Module().family(s.base)
	v, err := decodePolymorphic(d, s.desc, func(disc string) (*subclass, error) {
		if f == nil {
			return nil, merr.WrapErrUnknownDiscriminator(s.desc.SerialName(), disc)
		}
		return f.byDiscriminator(s.desc.SerialName(), disc)
	})
	if err != nil {
		var zero Base
		return zero, err
	}
	return asBase[Base](s.desc, v)
}

func asBase[Base any](d descriptor.Descriptor, v any) (Base, error) {
	b, ok := v.(Base)
	if !ok {
		var zero Base
		return zero, merr.WrapErrMissingField(d.SerialName(), d.ElementName(1))
	}
	return b, nil
}
