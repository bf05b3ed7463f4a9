package tree

import (
	"github.com/lk2023060901/serialkit/pkg/serial"
)

const defaultDiscriminator = "type"

type config struct {
	discriminator     string
	encodeDefaults    bool
	explicitNulls     bool
	ignoreUnknownKeys bool
	module            *serial.Module
	maxDepth          int
}

func defaultConfig() config {
	return config{
		discriminator:  defaultDiscriminator,
		encodeDefaults: true,
		explicitNulls:  true,
		module:         serial.EmptyModule,
	}
}

// Option 修改树格式的编解码行为。
type Option func(*config)

// WithClassDiscriminator 设置多态鉴别字段名，默认为 "type"。
func WithClassDiscriminator(key string) Option {
	return func(c *config) {
		c.discriminator = key
	}
}

// WithEncodeDefaults 控制是否写出等于默认值的可选元素，默认写出。
func WithEncodeDefaults(v bool) Option {
	return func(c *config) {
		c.encodeDefaults = v
	}
}

// WithExplicitNulls 为 false 时省略值为 null 的元素，解码时缺失的可空元素视为 null。
func WithExplicitNulls(v bool) Option {
	return func(c *config) {
		c.explicitNulls = v
	}
}

// WithIgnoreUnknownKeys 忽略未声明的键。
func WithIgnoreUnknownKeys(v bool) Option {
	return func(c *config) {
		c.ignoreUnknownKeys = v
	}
}

// WithModule 设置开放多态家族使用的模块。
func WithModule(m *serial.Module) Option {
	return func(c *config) {
		c.module = m
	}
}

// WithMaxDepth 设置最大嵌套深度。
func WithMaxDepth(depth int) Option {
	return func(c *config) {
		c.maxDepth = depth
	}
}

func newConfig(opts []Option) config {
	c := defaultConfig()
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
