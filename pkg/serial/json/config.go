package json

import (
	"strings"

	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

const (
	defaultIndent        = "    "
	defaultDiscriminator = "type"
)

// Configuration 是 Format 的配置快照，Format 创建后不再改变。
// mapstructure 标签用于 LoadConfig 从配置文件读取。
type Configuration struct {
	PrettyPrint       bool   `mapstructure:"prettyPrint"`
	PrettyPrintIndent string `mapstructure:"prettyPrintIndent"`
	// IsLenient 放宽语法：允许不带引号的键与字符串、结尾多余的逗号以及带引号的数字。
	IsLenient         bool `mapstructure:"isLenient"`
	IgnoreUnknownKeys bool `mapstructure:"ignoreUnknownKeys"`
	// CoerceInputValues 对可选元素，把 null、类型不符、未知枚举值与溢出的数字替换为默认值。
	CoerceInputValues bool `mapstructure:"coerceInputValues"`
	// ExplicitNulls 为 false 时编码省略 null 元素，解码时缺失的可空元素视为 null。
	ExplicitNulls bool `mapstructure:"explicitNulls"`
	// EncodeDefaults 为 true 时写出等于默认值的可选元素，默认不写出。
	EncodeDefaults     bool   `mapstructure:"encodeDefaults"`
	ClassDiscriminator string `mapstructure:"classDiscriminator"`
	// UseArrayPolymorphism 使用 [鉴别值, 负载] 的数组形式表示多态值。
	UseArrayPolymorphism            bool `mapstructure:"useArrayPolymorphism"`
	AllowSpecialFloatingPointValues bool `mapstructure:"allowSpecialFloatingPointValues"`
	// EscapeNonASCII 以 \uXXXX 输出所有非 ASCII 字符。
	EscapeNonASCII       bool `mapstructure:"escapeNonASCII"`
	CaseInsensitiveEnums bool `mapstructure:"caseInsensitiveEnums"`
	// UseAlternativeNames 在解码时识别 Names 注解声明的别名。
	UseAlternativeNames bool `mapstructure:"useAlternativeNames"`
	MaxDepth            int  `mapstructure:"maxDepth"`
}

func defaultConfiguration() Configuration {
	return Configuration{
		PrettyPrintIndent:   defaultIndent,
		ExplicitNulls:       true,
		ClassDiscriminator:  defaultDiscriminator,
		UseAlternativeNames: true,
		MaxDepth:            serial.DefaultMaxDepth,
	}
}

func (c *Configuration) validate() error {
	if !c.PrettyPrint && c.PrettyPrintIndent != defaultIndent {
		return merr.WrapErrParameterInvalidMsg("indent should not be specified when pretty printing is disabled")
	}
	if strings.Trim(c.PrettyPrintIndent, " \t\r\n") != "" {
		return merr.WrapErrParameterInvalidMsg("only whitespace is allowed in indent, got %q", c.PrettyPrintIndent)
	}
	if c.ClassDiscriminator == "" {
		return merr.WrapErrParameterInvalidMsg("class discriminator must not be empty")
	}
	if c.UseArrayPolymorphism && c.ClassDiscriminator != defaultDiscriminator {
		return merr.WrapErrParameterInvalidMsg("class discriminator %q has no effect with array polymorphism", c.ClassDiscriminator)
	}
	if c.MaxDepth < 0 {
		return merr.WrapErrParameterInvalidMsg("maxDepth must be non-negative, got %d", c.MaxDepth)
	}
	return nil
}

type options struct {
	conf   Configuration
	module *serial.Module
}

// Option 修改 Format 的配置。
type Option func(*options)

// WithConfiguration 以 c 整体替换当前配置，通常与 LoadConfig 配合使用。
func WithConfiguration(c Configuration) Option {
	return func(o *options) {
		o.conf = c
	}
}

func WithPrettyPrint(v bool) Option {
	return func(o *options) {
		o.conf.PrettyPrint = v
	}
}

// WithPrettyPrintIndent 设置缩进，只能由空白字符组成，默认为四个空格。
func WithPrettyPrintIndent(indent string) Option {
	return func(o *options) {
		o.conf.PrettyPrintIndent = indent
	}
}

func WithLenient(v bool) Option {
	return func(o *options) {
		o.conf.IsLenient = v
	}
}

func WithIgnoreUnknownKeys(v bool) Option {
	return func(o *options) {
		o.conf.IgnoreUnknownKeys = v
	}
}

func WithCoerceInputValues(v bool) Option {
	return func(o *options) {
		o.conf.CoerceInputValues = v
	}
}

func WithExplicitNulls(v bool) Option {
	return func(o *options) {
		o.conf.ExplicitNulls = v
	}
}

func WithEncodeDefaults(v bool) Option {
	return func(o *options) {
		o.conf.EncodeDefaults = v
	}
}

// WithClassDiscriminator 设置多态鉴别字段名，默认为 "type"。
func WithClassDiscriminator(key string) Option {
	return func(o *options) {
		o.conf.ClassDiscriminator = key
	}
}

func WithArrayPolymorphism(v bool) Option {
	return func(o *options) {
		o.conf.UseArrayPolymorphism = v
	}
}

// WithSpecialFloatingPointValues 允许 NaN 与 ±Infinity，它们以带引号的字符串表示。
func WithSpecialFloatingPointValues(v bool) Option {
	return func(o *options) {
		o.conf.AllowSpecialFloatingPointValues = v
	}
}

func WithEscapeNonASCII(v bool) Option {
	return func(o *options) {
		o.conf.EscapeNonASCII = v
	}
}

func WithCaseInsensitiveEnums(v bool) Option {
	return func(o *options) {
		o.conf.CaseInsensitiveEnums = v
	}
}

func WithAlternativeNames(v bool) Option {
	return func(o *options) {
		o.conf.UseAlternativeNames = v
	}
}

// WithMaxDepth 设置最大嵌套深度，0 表示使用默认值。
func WithMaxDepth(depth int) Option {
	return func(o *options) {
		o.conf.MaxDepth = depth
	}
}

// WithModule 设置开放多态家族使用的模块。
func WithModule(m *serial.Module) Option {
	return func(o *options) {
		o.module = m
	}
}
