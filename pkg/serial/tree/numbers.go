package tree

import (
	"math"
	"strconv"

	"github.com/lk2023060901/serialkit/internal/json"
)

// toInt64 将宽松数值（各种整数宽度、整值浮点、json.Number）归一为 int64。
// text 为 true 时还接受十进制字符串，用于映射的键。
func toInt64(v any, text bool) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return uintToInt64(uint64(x))
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return uintToInt64(x)
	case float32:
		return floatToInt64(float64(x))
	case float64:
		return floatToInt64(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
		if f, err := x.Float64(); err == nil {
			return floatToInt64(f)
		}
	case string:
		if text {
			i, err := strconv.ParseInt(x, 10, 64)
			return i, err == nil
		}
	}
	return 0, false
}

func toFloat64(v any, text bool) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		if text {
			f, err := strconv.ParseFloat(x, 64)
			return f, err == nil
		}
		return 0, false
	}
	if i, ok := toInt64(v, false); ok {
		return float64(i), true
	}
	return 0, false
}

func uintToInt64(x uint64) (int64, bool) {
	if x > math.MaxInt64 {
		return 0, false
	}
	return int64(x), true
}

func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
