package execctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_VariablePrecedence(t *testing.T) {
	c := New("e1", "w1", nil, map[string]any{"x": "global"}, map[string]any{"x": "workflow"})
	v, ok := c.GetVariable("x")
	require.True(t, ok)
	assert.Equal(t, "workflow", v)

	c.SetVariable("x", "execution")
	v, ok = c.GetVariable("x")
	require.True(t, ok)
	assert.Equal(t, "execution", v)
}

func TestContext_AllVariablesMerged(t *testing.T) {
	c := New("e1", "w1", nil, map[string]any{"a": 1}, map[string]any{"b": 2})
	c.SetVariable("c", 3)
	all := c.AllVariables()
	assert.Equal(t, 1, all["a"])
	assert.Equal(t, 2, all["b"])
	assert.Equal(t, 3, all["c"])
}

func TestContext_SubworkflowDepthCap(t *testing.T) {
	c := New("e1", "w1", nil, nil, nil)
	for i := 0; i < maxSubworkflowDepth; i++ {
		require.NoError(t, c.EnterSubworkflow())
	}
	assert.Error(t, c.EnterSubworkflow())
}

func TestContext_CancelStepExecutionReleasesAwaitStep(t *testing.T) {
	c := New("e1", "w1", nil, nil, nil)
	c.StepMode = true
	done := make(chan error, 1)
	go func() { done <- c.AwaitStep(context.Background()) }()

	c.CancelStepExecution()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("AwaitStep did not return after CancelStepExecution")
	}
	assert.True(t, c.Cancelled())
}
