package exec

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolgayilmaz86/nervemind/internal/domain"
	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/logging"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
	"github.com/tolgayilmaz86/nervemind/internal/registry/builtin"
	"github.com/tolgayilmaz86/nervemind/internal/storage/memstore"
)

// testExecutor adapts a plain function to registry.NodeExecutor so tests can
// stand up minimal node types without pulling in the full builtin set.
type testExecutor struct {
	typeID string
	fn func(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error)
}

func (e testExecutor) Identity() registry.Handle {
	return registry.Handle{TypeID: e.typeID, DisplayName: e.typeID}
}
func (e testExecutor) Validate(map[string]any) map[string]string { return nil }
func (e testExecutor) Execute(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	return e.fn(ctx, config, input, execCtx)
}

func newTestRegistry(t *testing.T, extra ...registry.NodeExecutor) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, e := range builtin.All() {
		require.NoError(t, reg.RegisterBuiltin(e))
	}
	for _, e := range extra {
		require.NoError(t, reg.RegisterBuiltin(e))
	}
	return reg
}

func mustNode(t *testing.T, nodeType, name string, params map[string]any, disabled bool) *domain.Node {
	t.Helper()
	n, err := domain.NewNode(uuid.Nil, nodeType, name, params, nil, disabled, "")
	require.NoError(t, err)
	return n
}

func mustConnect(t *testing.T, wf *domain.Workflow, from, to *domain.Node, sourceOutput, targetInput string) *domain.Connection {
	t.Helper()
	c, err := domain.NewConnection(uuid.Nil, from.ID(), sourceOutput, to.ID(), targetInput)
	require.NoError(t, err)
	require.NoError(t, wf.AddConnection(c))
	return c
}

func TestEngine_TwoNodeHappyPath(t *testing.T) {
	wf, err := domain.NewWorkflow(uuid.Nil, "two-node", nil, domain.TriggerManual)
	require.NoError(t, err)

	a := mustNode(t, "set", "A", map[string]any{"values": map[string]any{"fromA": "hello"}}, false)
	b := mustNode(t, "set", "B", map[string]any{"values": map[string]any{"fromB": "${fromA}"}}, false)
	require.NoError(t, wf.AddNode(a))
	require.NoError(t, wf.AddNode(b))
	mustConnect(t, wf, a, b, "", "")

	reg := newTestRegistry(t)
	engine := New(reg, logging.NewBus(), DefaultConfig(), nil, nil, nil, nil)

	execution, err := engine.Submit(context.Background(), wf, domain.TriggerManual, nil, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, execution.Status())

	records := execution.NodeExecutions()
	require.Len(t, records, 2)
	assert.Equal(t, domain.NodeStatusSuccess, records[0].Status)
	assert.Equal(t, domain.NodeStatusSuccess, records[1].Status)
	assert.Equal(t, "hello", records[1].OutputData["fromB"])
}

func TestEngine_IfRoutesOnlyTrueBranch(t *testing.T) {
	wf, err := domain.NewWorkflow(uuid.Nil, "branching", nil, domain.TriggerManual)
	require.NoError(t, err)

	cond := mustNode(t, "if", "Cond", map[string]any{"condition": "true"}, false)
	onTrue := mustNode(t, "set", "OnTrue", map[string]any{"values": map[string]any{"taken": "true-branch"}}, false)
	onFalse := mustNode(t, "set", "OnFalse", map[string]any{"values": map[string]any{"taken": "false-branch"}}, false)
	require.NoError(t, wf.AddNode(cond))
	require.NoError(t, wf.AddNode(onTrue))
	require.NoError(t, wf.AddNode(onFalse))
	mustConnect(t, wf, cond, onTrue, "true", "")
	mustConnect(t, wf, cond, onFalse, "false", "")

	reg := newTestRegistry(t)
	engine := New(reg, logging.NewBus(), DefaultConfig(), nil, nil, nil, nil)

	execution, err := engine.Submit(context.Background(), wf, domain.TriggerManual, nil, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, execution.Status())

	byName := map[string]*domain.NodeExecution{}
	for _, ne := range execution.NodeExecutions() {
		byName[ne.NodeName] = ne
	}
	assert.Equal(t, domain.NodeStatusSuccess, byName["OnTrue"].Status)
	assert.Equal(t, domain.NodeStatusSkipped, byName["OnFalse"].Status)
}

func TestEngine_DisabledNodeIsSkipped(t *testing.T) {
	wf, err := domain.NewWorkflow(uuid.Nil, "disabled", nil, domain.TriggerManual)
	require.NoError(t, err)

	a := mustNode(t, "set", "A", map[string]any{"values": map[string]any{"k": "v"}}, false)
	b := mustNode(t, "set", "B", map[string]any{"values": map[string]any{}}, true)
	require.NoError(t, wf.AddNode(a))
	require.NoError(t, wf.AddNode(b))
	mustConnect(t, wf, a, b, "", "")

	var skipped []string
	bus := logging.NewBus()
	bus.Subscribe(logging.ObserverFunc(func(entry logging.LogEntry) {
		if entry.Category == logging.CategoryNodeSkip {
			skipped = append(skipped, entry.NodeID)
		}
	}))

	reg := newTestRegistry(t)
	engine := New(reg, bus, DefaultConfig(), nil, nil, nil, nil)

	execution, err := engine.Submit(context.Background(), wf, domain.TriggerManual, nil, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, execution.Status())
	assert.Equal(t, []string{b.ID().String()}, skipped)
}

// TestEngine_RetrySucceedsAfterFailures wires a retry node whose target is a
// flaky executor that fails twice before succeeding. The target node is
// disabled (so the wave scheduler's own layering skips it rather than
// double-dispatching it) and invoked exclusively through retry's
// execctx.SubgraphRunner.RunNode call.
func TestEngine_RetrySucceedsAfterFailures(t *testing.T) {
	wf, err := domain.NewWorkflow(uuid.Nil, "retry-flow", nil, domain.TriggerManual)
	require.NoError(t, err)

	var calls int32
	flaky := testExecutor{typeID: "flaky", fn: func(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return nil, &domainerrors.ExternalAPIError{APIName: "flaky", Transient: true, Message: "boom"}
		}
		return map[string]any{"ok": true}, nil
	}}

	target := mustNode(t, "flaky", "Target", nil, true)
	require.NoError(t, wf.AddNode(target))

	retry := mustNode(t, "retry", "Retry", map[string]any{
		"targetNodeId": target.ID().String(),
		"maxAttempts": float64(5),
		"delayMs": float64(1),
		"backoff": "fixed",
	}, false)
	require.NoError(t, wf.AddNode(retry))

	reg := newTestRegistry(t, flaky)
	engine := New(reg, logging.NewBus(), DefaultConfig(), nil, nil, nil, nil)

	execution, err := engine.Submit(context.Background(), wf, domain.TriggerManual, nil, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, execution.Status())
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	byName := map[string]*domain.NodeExecution{}
	for _, ne := range execution.NodeExecutions() {
		byName[ne.NodeName] = ne
	}
	assert.Equal(t, domain.NodeStatusSuccess, byName["Retry"].Status)
	assert.Equal(t, true, byName["Retry"].OutputData["ok"])
}

// TestEngine_TryCatchRecoversFromFailure mirrors the retry test's "body node
// disabled, reached only via SubgraphRunner" convention but exercises
// tryCatch's catch-handle routing instead.
func TestEngine_TryCatchRecoversFromFailure(t *testing.T) {
	wf, err := domain.NewWorkflow(uuid.Nil, "trycatch-flow", nil, domain.TriggerManual)
	require.NoError(t, err)

	failing := testExecutor{typeID: "alwaysFails", fn: func(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
		return nil, errors.New("permanent failure")
	}}

	body := mustNode(t, "alwaysFails", "Body", nil, true)
	require.NoError(t, wf.AddNode(body))

	tc := mustNode(t, "tryCatch", "TryCatch", map[string]any{"tryNodeId": body.ID().String()}, false)
	require.NoError(t, wf.AddNode(tc))

	recovered := mustNode(t, "set", "Recovered", map[string]any{"values": map[string]any{"recoveredFrom": "${nodeId}"}}, false)
	require.NoError(t, wf.AddNode(recovered))
	mustConnect(t, wf, tc, recovered, "catch", "")

	notTaken := mustNode(t, "set", "NotTaken", nil, false)
	require.NoError(t, wf.AddNode(notTaken))
	mustConnect(t, wf, tc, notTaken, "main", "")

	reg := newTestRegistry(t, failing)
	engine := New(reg, logging.NewBus(), DefaultConfig(), nil, nil, nil, nil)

	execution, err := engine.Submit(context.Background(), wf, domain.TriggerManual, nil, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, execution.Status())

	byName := map[string]*domain.NodeExecution{}
	for _, ne := range execution.NodeExecutions() {
		byName[ne.NodeName] = ne
	}
	assert.Equal(t, domain.NodeStatusSuccess, byName["TryCatch"].Status)
	assert.Equal(t, domain.NodeStatusSuccess, byName["Recovered"].Status)
	assert.Equal(t, domain.NodeStatusSkipped, byName["NotTaken"].Status)
}

func TestEngine_CancellationStopsBeforeLaterLayer(t *testing.T) {
	wf, err := domain.NewWorkflow(uuid.Nil, "cancel-flow", nil, domain.TriggerManual)
	require.NoError(t, err)

	var secondRan atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())

	slow := testExecutor{typeID: "slow", fn: func(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
		cancel()
		return map[string]any{}, nil
	}}
	tripwire := testExecutor{typeID: "tripwire", fn: func(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
		secondRan.Store(true)
		return map[string]any{}, nil
	}}

	a := mustNode(t, "slow", "A", nil, false)
	b := mustNode(t, "tripwire", "B", nil, false)
	require.NoError(t, wf.AddNode(a))
	require.NoError(t, wf.AddNode(b))
	mustConnect(t, wf, a, b, "", "")

	reg := newTestRegistry(t, slow, tripwire)
	engine := New(reg, logging.NewBus(), DefaultConfig(), nil, nil, nil, nil)

	execution, err := engine.Submit(ctx, wf, domain.TriggerManual, nil, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, execution.Status())
	assert.False(t, secondRan.Load())
}

// TestEngine_SubworkflowDepthCapSpansSeparateExecutions wires a
// self-referential workflow (a subworkflow node whose target is its own
// workflow id) through a real WorkflowStore-backed engine.Submit, so each
// nesting level is a genuinely separate Execution/Context pair rather than
// one Context's EnterSubworkflow called in a loop. Without threading the
// parent's depth into the child Context (via SeedSubworkflowDepth), this
// would recurse past the documented cap of 16 until the goroutine stack is
// exhausted instead of failing cleanly.
func TestEngine_SubworkflowDepthCapSpansSeparateExecutions(t *testing.T) {
	store := memstore.New()

	wf, err := domain.NewWorkflow(uuid.Nil, "recursive", nil, domain.TriggerManual)
	require.NoError(t, err)

	sw := mustNode(t, "subworkflow", "Recurse", map[string]any{"workflowId": wf.ID().String()}, false)
	require.NoError(t, wf.AddNode(sw))

	require.NoError(t, store.SaveWorkflow(context.Background(), wf))

	reg := newTestRegistry(t)
	engine := New(reg, logging.NewBus(), DefaultConfig(), store, nil, nil, nil)

	execution, err := engine.Submit(context.Background(), wf, domain.TriggerManual, nil, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, execution.Status())
	assert.True(t, strings.Contains(execution.ErrorMessage(), "subworkflow nesting exceeds maximum depth"),
		"expected depth-cap error, got: %s", execution.ErrorMessage())
}

func TestEngine_GetMetricsReportsStatusCounts(t *testing.T) {
	wf, err := domain.NewWorkflow(uuid.Nil, "metrics-flow", nil, domain.TriggerManual)
	require.NoError(t, err)
	a := mustNode(t, "set", "A", map[string]any{"values": map[string]any{}}, false)
	require.NoError(t, wf.AddNode(a))

	reg := newTestRegistry(t)
	engine := New(reg, logging.NewBus(), DefaultConfig(), nil, nil, nil, nil)

	execution, err := engine.Submit(context.Background(), wf, domain.TriggerManual, nil, false)
	require.NoError(t, err)
	require.Equal(t, domain.StatusSuccess, execution.Status())

	m, ok := engine.GetMetrics(execution.ID().String())
	require.True(t, ok)
	assert.Equal(t, 1, m.StatusCounts["SUCCESS"])
	assert.GreaterOrEqual(t, m.TotalDurationMs, int64(0))
}

// Driving the pause/resume handshake itself needs a controller holding the
// *execctx.Context, which belongs to internal/stepdebug; here we only check
// that StepMode=false (every other test in this file) never emits a pause.
func TestEngine_NonStepModeNeverPauses(t *testing.T) {
	wf, err := domain.NewWorkflow(uuid.Nil, "step-flow", nil, domain.TriggerManual)
	require.NoError(t, err)
	a := mustNode(t, "set", "A", map[string]any{"values": map[string]any{"x": float64(1)}}, false)
	b := mustNode(t, "set", "B", map[string]any{"values": map[string]any{"y": float64(2)}}, false)
	require.NoError(t, wf.AddNode(a))
	require.NoError(t, wf.AddNode(b))
	mustConnect(t, wf, a, b, "", "")

	var paused int32
	bus := logging.NewBus()
	bus.Subscribe(logging.ObserverFunc(func(entry logging.LogEntry) {
		if entry.Category == logging.CategoryPause {
			atomic.AddInt32(&paused, 1)
		}
	}))

	reg := newTestRegistry(t)
	engine := New(reg, bus, DefaultConfig(), nil, nil, nil, nil)

	execution, err := engine.Submit(context.Background(), wf, domain.TriggerManual, nil, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuccess, execution.Status())
	assert.Equal(t, int32(0), atomic.LoadInt32(&paused))
}
