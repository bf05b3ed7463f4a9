package viper

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	spfviper "github.com/spf13/viper"

	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// EnvPrefix 是环境变量覆盖配置项时使用的前缀，例如 SERIALKIT_JSON_PRETTYPRINT。
const EnvPrefix = "SERIALKIT"

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口。
// 已加载的配置项可以被带 EnvPrefix 前缀的环境变量覆盖。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config。
func New() *Config {
	v := spfviper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Config{v: v}
}

// Load 是 New 与 LoadFile 的组合。
func Load(path string) (*Config, error) {
	c := New()
	if err := c.LoadFile(path); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中。
// 文件类型通过扩展名（.yaml/.yml/.json）推断。
func (c *Config) LoadFile(path string) error {
	c.v.SetConfigFile(path)

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		c.v.SetConfigType("yaml")
	case ".json":
		c.v.SetConfigType("json")
	default:
		return merr.WrapErrParameterInvalidMsg("unsupported config file extension %q", ext)
	}

	if err := c.v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "load config %s", path)
	}
	return nil
}

// SetDefault 设置 key 的默认值，文件与环境变量中都未出现时生效。
func (c *Config) SetDefault(key string, value any) {
	c.v.SetDefault(key, value)
}

// IsSet 判断 key 是否在文件、环境变量或默认值中出现过。
func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) Unmarshal(dst any) error {
	return c.v.Unmarshal(dst)
}

// UnmarshalKey 将指定 key 对应的子配置反序列化到 dst。
// dst 应为结构体或 map 的指针。
func (c *Config) UnmarshalKey(key string, dst any) error {
	return c.v.UnmarshalKey(key, dst)
}
