package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCode_JavaScriptReturnsObject(t *testing.T) {
	c := NewCode()
	out, err := c.Execute(context.Background(), map[string]any{
		"language": "javascript",
		"source": "({ doubled: input.value * 2 })",
	}, map[string]any{"value": float64(21)}, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 42, out["doubled"])
}

func TestCode_JavaScriptRejectsForbiddenPattern(t *testing.T) {
	c := NewCode()
	_, err := c.Execute(context.Background(), map[string]any{
		"language": "javascript",
		"source": "eval('1')",
	}, nil, nil)
	assert.Error(t, err)
}

func TestCode_PythonLooksUpScopeVariable(t *testing.T) {
	c := NewCode()
	out, err := c.Execute(context.Background(), map[string]any{
		"language": "python",
		"source": "greeting",
	}, map[string]any{"greeting": "hi"}, newTestExecCtx(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, "hi", out["result"])
}

func TestCode_BlankSourceReturnsInputUnchanged(t *testing.T) {
	c := NewCode()
	input := map[string]any{"value": float64(21), "greeting": "hi"}
	out, err := c.Execute(context.Background(), map[string]any{
		"language": "javascript",
		"source": "",
	}, input, nil)
	require.NoError(t, err)
	assert.Equal(t, input, out)
}
