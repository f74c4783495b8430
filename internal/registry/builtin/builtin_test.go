package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
)

func newTestExecCtx(global, workflow map[string]any) *execctx.Context {
	return execctx.New("exec-1", "wf-1", nil, global, workflow)
}

func TestSet_AssignsLiteralsAndExpressions(t *testing.T) {
	s := NewSet()
	execCtx := newTestExecCtx(map[string]any{"base": "10"}, nil)
	out, err := s.Execute(context.Background(), map[string]any{
		"values": map[string]any{
			"greeting": "hello",
			"count": float64(3),
			"computed": "${toNumber(${base})}",
		},
	}, map[string]any{"existing": "kept"}, execCtx)
	require.NoError(t, err)
	assert.Equal(t, "hello", out["greeting"])
	assert.Equal(t, float64(3), out["count"])
	assert.Equal(t, "kept", out["existing"])
	assert.Equal(t, int64(10), out["computed"])
}

func TestFilter_CountInvariantHolds(t *testing.T) {
	f := NewFilter()
	items := []any{
		map[string]any{"age": float64(10)},
		map[string]any{"age": float64(25)},
		map[string]any{"age": float64(30)},
	}
	out, err := f.Execute(context.Background(), map[string]any{
		"inputField": "people",
		"outputField": "adults",
		"keepMatching": true,
		"conditions": []any{
			map[string]any{"field": "age", "operator": "gte", "value": float64(18)},
		},
	}, map[string]any{"people": items}, nil)
	require.NoError(t, err)

	original := out["_originalCount"].(int)
	kept := out["_filteredCount"].(int)
	removed := out["_removedCount"].(int)
	assert.Equal(t, original, kept+removed)
	assert.Equal(t, 3, original)
	assert.Equal(t, 2, kept)

	adults, ok := out["adults"].([]any)
	require.True(t, ok)
	assert.Len(t, adults, 2)
}

func TestFilter_KeepMatchingFalseInverts(t *testing.T) {
	f := NewFilter()
	items := []any{
		map[string]any{"status": "active"},
		map[string]any{"status": "inactive"},
	}
	out, err := f.Execute(context.Background(), map[string]any{
		"inputField": "rows",
		"outputField": "rows",
		"keepMatching": false,
		"conditions": []any{
			map[string]any{"field": "status", "operator": "equals", "value": "active"},
		},
	}, map[string]any{"rows": items}, nil)
	require.NoError(t, err)
	rows := out["rows"].([]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "inactive", rows[0].(map[string]any)["status"])
}

func TestSort_StableOnTies(t *testing.T) {
	s := NewSort()
	items := []any{
		map[string]any{"name": "b", "rank": float64(1)},
		map[string]any{"name": "a", "rank": float64(1)},
		map[string]any{"name": "c", "rank": float64(0)},
	}
	out, err := s.Execute(context.Background(), map[string]any{
		"inputField": "items",
		"keys": []any{map[string]any{"field": "rank"}},
	}, map[string]any{"items": items}, nil)
	require.NoError(t, err)
	sorted := out["items"].([]any)
	require.Len(t, sorted, 3)
	assert.Equal(t, "c", sorted[0].(map[string]any)["name"])
	assert.Equal(t, "b", sorted[1].(map[string]any)["name"])
	assert.Equal(t, "a", sorted[2].(map[string]any)["name"])
}

func TestIf_RoutesOnCondition(t *testing.T) {
	i := NewIf()
	execCtx := newTestExecCtx(nil, nil)
	out, err := i.Execute(context.Background(), map[string]any{
		"condition": "${flag}",
	}, map[string]any{"flag": "true"}, execCtx)
	require.NoError(t, err)
	assert.Equal(t, "true", out[HandleKey])

	out, err = i.Execute(context.Background(), map[string]any{
		"condition": "${flag}",
	}, map[string]any{"flag": "no"}, execCtx)
	require.NoError(t, err)
	assert.Equal(t, "false", out[HandleKey])
}

func TestSwitch_FirstMatchWins(t *testing.T) {
	sw := NewSwitch()
	execCtx := newTestExecCtx(nil, nil)
	out, err := sw.Execute(context.Background(), map[string]any{
		"cases": []any{
			map[string]any{"condition": "${isA}", "handle": "a"},
			map[string]any{"condition": "${isB}", "handle": "b"},
		},
		"defaultHandle": "fallback",
	}, map[string]any{"isA": "false", "isB": "true"}, execCtx)
	require.NoError(t, err)
	assert.Equal(t, "b", out[HandleKey])
}

func TestSwitch_FallsBackToDefault(t *testing.T) {
	sw := NewSwitch()
	execCtx := newTestExecCtx(nil, nil)
	out, err := sw.Execute(context.Background(), map[string]any{
		"cases": []any{
			map[string]any{"condition": "${isA}", "handle": "a"},
		},
	}, map[string]any{"isA": "false"}, execCtx)
	require.NoError(t, err)
	assert.Equal(t, "default", out[HandleKey])
}

func TestMerge_ConcatMode(t *testing.T) {
	m := NewMerge()
	out, err := m.Execute(context.Background(), map[string]any{
		"mode": "concat",
		"field": "items",
	}, map[string]any{
		"nodeA.items": []any{"x", "y"},
		"nodeB.items": []any{"z"},
	}, nil)
	require.NoError(t, err)
	merged := out["items"].([]any)
	assert.Len(t, merged, 3)
}

func TestMerge_ObjectModeIsPassthrough(t *testing.T) {
	m := NewMerge()
	out, err := m.Execute(context.Background(), map[string]any{}, map[string]any{"a": 1, "b": 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, out["a"])
	assert.Equal(t, 2, out["b"])
}
