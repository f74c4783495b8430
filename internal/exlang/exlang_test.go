package exlang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvalBool(t *testing.T) {
	e := New()
	ok, err := e.EvalBool("status == \"active\"", map[string]any{"status": "active"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.EvalBool("age > 18", map[string]any{"age": 10})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvalBool_CompileError(t *testing.T) {
	e := New()
	_, err := e.EvalBool("this is not valid &&&", nil)
	assert.Error(t, err)
}

func TestEvalList(t *testing.T) {
	e := New()
	items, err := e.EvalList("items", map[string]any{"items": []any{1, 2, 3}})
	require.NoError(t, err)
	assert.Equal(t, []any{1, 2, 3}, items)
}

func TestEvalList_CachesCompiledProgram(t *testing.T) {
	e := New()
	_, err := e.EvalBool("true", nil)
	require.NoError(t, err)
	assert.Len(t, e.cache, 1)
	_, err = e.EvalBool("true", nil)
	require.NoError(t, err)
	assert.Len(t, e.cache, 1)
}
