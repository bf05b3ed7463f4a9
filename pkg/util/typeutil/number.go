package typeutil

import (
	"golang.org/x/exp/constraints"
)

// Narrow 将 x 收窄到 T，溢出时返回 false。
func Narrow[T constraints.Signed](x int64) (T, bool) {
	t := T(x)
	return t, int64(t) == x
}

// Bounds 返回有符号整数类型 T 的取值范围。
func Bounds[T constraints.Signed]() (T, T) {
	var zero T
	bits := 8
	switch any(zero).(type) {
	case int16:
		bits = 16
	case int32:
		bits = 32
	case int64, int:
		bits = 64
	}
	upper := int64(1)<<(bits-1) - 1
	return T(-upper - 1), T(upper)
}
