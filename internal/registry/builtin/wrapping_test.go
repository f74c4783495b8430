package builtin

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"
)

type fakeRunner struct {
	runNode func(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error)
	runFrom func(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error)
}

func (f *fakeRunner) RunNode(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error) {
	return f.runNode(ctx, nodeID, input)
}

func (f *fakeRunner) RunFrom(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error) {
	return f.runFrom(ctx, nodeID, input)
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	var calls int32
	runner := &fakeRunner{
		runNode: func(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error) {
			n := atomic.AddInt32(&calls, 1)
			if n < 3 {
				return nil, &domainerrors.ExternalAPIError{APIName: "x", Transient: true, Message: "boom"}
			}
			return map[string]any{"ok": true}, nil
		},
	}
	execCtx := newTestExecCtx(nil, nil)
	execCtx.Runner = runner

	r := NewRetry()
	out, err := r.Execute(context.Background(), map[string]any{
		"targetNodeId": "n1",
		"maxAttempts": float64(5),
		"delayMs": float64(1),
		"backoff": "fixed",
	}, nil, execCtx)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestRetry_NonRetryableFailsImmediately(t *testing.T) {
	var calls int32
	runner := &fakeRunner{
		runNode: func(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error) {
			atomic.AddInt32(&calls, 1)
			return nil, errors.New("permanent")
		},
	}
	execCtx := newTestExecCtx(nil, nil)
	execCtx.Runner = runner

	r := NewRetry()
	_, err := r.Execute(context.Background(), map[string]any{
		"targetNodeId": "n1",
		"maxAttempts": float64(5),
		"delayMs": float64(1),
	}, nil, execCtx)
	assert.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestTryCatch_RoutesToCatchOnFailure(t *testing.T) {
	runner := &fakeRunner{
		runFrom: func(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error) {
			return nil, errors.New("subgraph failed")
		},
	}
	execCtx := newTestExecCtx(nil, nil)
	execCtx.Runner = runner

	tc := NewTryCatch()
	out, err := tc.Execute(context.Background(), map[string]any{"tryNodeId": "n1"}, nil, execCtx)
	require.NoError(t, err)
	assert.Equal(t, "catch", out[HandleKey])
	assert.Equal(t, "n1", out["nodeId"])
}

func TestTryCatch_PassesThroughOnSuccess(t *testing.T) {
	runner := &fakeRunner{
		runFrom: func(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error) {
			return map[string]any{"value": 42}, nil
		},
	}
	execCtx := newTestExecCtx(nil, nil)
	execCtx.Runner = runner

	tc := NewTryCatch()
	out, err := tc.Execute(context.Background(), map[string]any{"tryNodeId": "n1"}, nil, execCtx)
	require.NoError(t, err)
	assert.Equal(t, "main", out[HandleKey])
	assert.Equal(t, 42, out["value"])
}

func TestParallel_JoinsBranchOutputs(t *testing.T) {
	runner := &fakeRunner{
		runFrom: func(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error) {
			return map[string]any{"from": nodeID}, nil
		},
	}
	execCtx := newTestExecCtx(nil, nil)
	execCtx.Runner = runner

	p := NewParallel()
	out, err := p.Execute(context.Background(), map[string]any{
		"branchNodeIds": []any{"a", "b"},
	}, nil, execCtx)
	require.NoError(t, err)
	a := out["a"].(map[string]any)
	b := out["b"].(map[string]any)
	assert.Equal(t, "a", a["from"])
	assert.Equal(t, "b", b["from"])
}

func TestParallel_FailFastReturnsError(t *testing.T) {
	runner := &fakeRunner{
		runFrom: func(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error) {
			if nodeID == "bad" {
				return nil, errors.New("branch failure")
			}
			return map[string]any{"ok": true}, nil
		},
	}
	execCtx := newTestExecCtx(nil, nil)
	execCtx.Runner = runner

	p := NewParallel()
	_, err := p.Execute(context.Background(), map[string]any{
		"branchNodeIds": []any{"bad", "good"},
		"failFast": true,
	}, nil, execCtx)
	assert.Error(t, err)
}

func TestLoop_RunsBodyPerItem(t *testing.T) {
	var seen []any
	runner := &fakeRunner{
		runFrom: func(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error) {
			seen   = append(seen, input["item"])
			return map[string]any{"item": input["item"]}, nil
		},
	}
	execCtx := newTestExecCtx(nil, nil)
	execCtx.Runner = runner

	l := NewLoop()
	out, err := l.Execute(context.Background(), map[string]any{
		"items": "[1, 2, 3]",
		"bodyNodeId": "body",
	}, nil, execCtx)
	require.NoError(t, err)
	assert.Equal(t, 3, out["_iterationCount"])
	assert.Len(t, seen, 3)
}

func TestSubworkflow_DelegatesToWorkflowRunner(t *testing.T) {
	execCtx := newTestExecCtx(nil, nil)
	execCtx.Workflows = workflowRunnerFunc(func(ctx context.Context, workflowID string, input map[string]any) (map[string]any, error) {
		assert.Equal(t, "wf-2", workflowID)
		return map[string]any{"done": true}, nil
	})

	sw := NewSubworkflow()
	out, err := sw.Execute(context.Background(), map[string]any{"workflowId": "wf-2"}, nil, execCtx)
	require.NoError(t, err)
	assert.Equal(t, true, out["done"])
}

type workflowRunnerFunc func(ctx context.Context, workflowID string, input map[string]any) (map[string]any, error)

func (f workflowRunnerFunc) RunWorkflow(ctx context.Context, workflowID string, input map[string]any) (map[string]any, error) {
	return f(ctx, workflowID, input)
}

func TestRateLimit_DelegatesAfterAcquire(t *testing.T) {
	runner := &fakeRunner{
		runNode: func(ctx context.Context, nodeID string, input map[string]any) (map[string]any, error) {
			return map[string]any{"ran": true}, nil
		},
	}
	execCtx := newTestExecCtx(nil, nil)
	execCtx.Runner = runner

	rl := NewRateLimit()
	out, err := rl.Execute(context.Background(), map[string]any{
		"bucketId": "test-bucket-1",
		"targetNodeId": "n1",
		"permitsPerInterval": float64(100),
		"intervalMs": float64(1000),
	}, nil, execCtx)
	require.NoError(t, err)
	assert.Equal(t, true, out["ran"])
}
