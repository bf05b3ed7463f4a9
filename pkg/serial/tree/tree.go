// Package tree 在 Go 的通用值树（map[string]any、[]any 与标量）与序列化协议之间转换。
//
// 数值统一为 int64 与 float64，枚举与字符使用字符串，映射的键总是字符串。
// 解码时接受由 encoding/json、cbor 等库产生的宽松数值类型。
package tree

import (
	"github.com/lk2023060901/serialkit/internal/json"
	"github.com/lk2023060901/serialkit/pkg/serial"
	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// Encode 将 v 编码为值树。
func Encode[T any](s serial.Serializer[T], v T, opts ...Option) (any, error) {
	sess := newSession(newConfig(opts))
	var out any
	enc := &encoder{sess: sess, put: func(x any) { out = x }}
	if err := s.Serialize(enc, v); err != nil {
		return nil, err
	}
	return out, nil
}

// Decode 从值树 in 解码出 T。
func Decode[T any](s serial.Serializer[T], in any, opts ...Option) (T, error) {
	sess := newSession(newConfig(opts))
	return s.Deserialize(&decoder{sess: sess, value: in})
}

// ToJSON 将值树编码为 JSON 文本。
func ToJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, merr.WrapErrEncodeFailed(err.Error(), "tree to json")
	}
	return b, nil
}

// FromJSON 将 JSON 文本解析为值树，数字保留为 json.Number。
func FromJSON(data []byte) (any, error) {
	var v any
	if err := json.UnmarshalUseNumber(data, &v); err != nil {
		return nil, merr.WrapErrMalformedInput("$", -1, err.Error())
	}
	return v, nil
}

type session struct {
	cfg   config
	stack *serial.RegionStack
	// pending 为下一次打开类区域时需要注入或跳过的鉴别字段。
	pending *pendingDiscriminator
}

type pendingDiscriminator struct {
	key   string
	value string
}

func newSession(cfg config) *session {
	return &session{cfg: cfg, stack: serial.NewRegionStack(cfg.maxDepth)}
}

func (s *session) takePending() *pendingDiscriminator {
	p := s.pending
	s.pending = nil
	return p
}
