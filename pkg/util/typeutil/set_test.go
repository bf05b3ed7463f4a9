package typeutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := NewSet("b", "a")
	assert.True(t, s.Contain("a", "b"))
	assert.False(t, s.Contain("a", "c"))
	assert.False(t, s.TryInsert("a"))
	assert.True(t, s.TryInsert("c"))
	assert.ElementsMatch(t, []string{"a", "b", "c"}, s.Collect())

	s.Remove("b")
	assert.Equal(t, 2, s.Len())
	assert.ElementsMatch(t, []string{"a", "c"}, s.Collect())
}
