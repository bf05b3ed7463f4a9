package typeutil

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNarrow(t *testing.T) {
	v, ok := Narrow[int8](127)
	assert.True(t, ok)
	assert.Equal(t, int8(127), v)

	_, ok = Narrow[int8](128)
	assert.False(t, ok)
	_, ok = Narrow[int16](-32769)
	assert.False(t, ok)
	_, ok = Narrow[int64](math.MinInt64)
	assert.True(t, ok)
}

func TestBounds(t *testing.T) {
	lo8, hi8 := Bounds[int8]()
	assert.Equal(t, int8(math.MinInt8), lo8)
	assert.Equal(t, int8(math.MaxInt8), hi8)

	lo32, hi32 := Bounds[int32]()
	assert.Equal(t, int32(math.MinInt32), lo32)
	assert.Equal(t, int32(math.MaxInt32), hi32)

	lo64, hi64 := Bounds[int64]()
	assert.Equal(t, int64(math.MinInt64), lo64)
	assert.Equal(t, int64(math.MaxInt64), hi64)
}
