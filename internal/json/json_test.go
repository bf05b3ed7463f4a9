package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalSortsKeys(t *testing.T) {
	b, err := Marshal(map[string]any{"b": 1, "a": []any{true, nil}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null],"b":1}`, string(b))
}

func TestUnmarshalUseNumber(t *testing.T) {
	var v any
	require.NoError(t, UnmarshalUseNumber([]byte(`{"big":9007199254740993}`), &v))
	m := v.(map[string]any)
	assert.Equal(t, Number("9007199254740993"), m["big"])
}

func TestValid(t *testing.T) {
	assert.True(t, Valid([]byte(`[1,2]`)))
	assert.False(t, Valid([]byte(`[1,`)))
}
