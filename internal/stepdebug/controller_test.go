package stepdebug

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tolgayilmaz86/nervemind/internal/domain"
	"github.com/tolgayilmaz86/nervemind/internal/exec"
	"github.com/tolgayilmaz86/nervemind/internal/logging"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
	"github.com/tolgayilmaz86/nervemind/internal/registry/builtin"
)

func mustTestNode(t *testing.T, nodeType, name string, params map[string]any) *domain.Node {
	t.Helper()
	n, err := domain.NewNode(uuid.Nil, nodeType, name, params, nil, false, "")
	require.NoError(t, err)
	return n
}

// TestController_DrivesPauseResumeAcrossTwoNodes exercises the full
// pause/resume handshake the exec package's own tests deliberately leave to
// this package: a step-mode execution pauses after every node, the
// Controller observes the pause over the bus, and calling Continue
// releases it.
func TestController_DrivesPauseResumeAcrossTwoNodes(t *testing.T) {
	wf, err := domain.NewWorkflow(uuid.Nil, "step-flow", nil, domain.TriggerManual)
	require.NoError(t, err)
	a := mustTestNode(t, "set", "A", map[string]any{"values": map[string]any{"x": float64(1)}})
	b := mustTestNode(t, "set", "B", map[string]any{"values": map[string]any{"y": float64(2)}})
	require.NoError(t, wf.AddNode(a))
	require.NoError(t, wf.AddNode(b))
	c, err := domain.NewConnection(uuid.Nil, a.ID(), "", b.ID(), "")
	require.NoError(t, err)
	require.NoError(t, wf.AddConnection(c))

	reg := registry.New()
	for _, ex := range builtin.All() {
		require.NoError(t, reg.RegisterBuiltin(ex))
	}

	bus := logging.NewBus()
	hub := NewHub(nil)
	go hub.Run()
	engine := exec.New(reg, bus, exec.DefaultConfig(), nil, nil, nil, nil)
	controller := NewController(engine, bus, hub)

	type paused struct{ executionID, nodeID string }
	pauseCh := make(chan paused, 4)
	bus.Subscribe(logging.ObserverFunc(func(entry logging.LogEntry) {
		if entry.Category == logging.CategoryPause {
			pauseCh <- paused{executionID: entry.ExecutionID, nodeID: entry.NodeID}
		}
	}))

	resultCh := make(chan *domain.Execution, 1)
	errCh := make(chan error, 1)
	go func() {
		execution, err := engine.Submit(context.Background(), wf, domain.TriggerManual, nil, true)
		resultCh <- execution
		errCh    <- err
	}()

	select {
	case p := <-pauseCh:
		assert.Equal(t, a.ID().String(), p.nodeID)
		assert.True(t, controller.Continue(p.executionID))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for first pause")
	}

	select {
	case p := <-pauseCh:
		assert.Equal(t, b.ID().String(), p.nodeID)
		assert.True(t, controller.Continue(p.executionID))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for second pause")
	}

	var execution *domain.Execution
	select {
	case execution = <-resultCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for execution to finish")
	}
	require.NoError(t, <-errCh)
	require.NotNil(t, execution)
	assert.Equal(t, domain.StatusSuccess, execution.Status())

	ribbon := controller.Ribbon(execution.ID().String())
	assert.Empty(t, ribbon, "ribbon is cleared once execution-end has been observed")
}

// TestController_CancelStopsAStepModeExecution verifies Cancel maps to
// cooperative cancellation rather than merely releasing the current
// suspension.
func TestController_CancelStopsAStepModeExecution(t *testing.T) {
	wf, err := domain.NewWorkflow(uuid.Nil, "cancel-flow", nil, domain.TriggerManual)
	require.NoError(t, err)
	a := mustTestNode(t, "set", "A", map[string]any{"values": map[string]any{"x": float64(1)}})
	b := mustTestNode(t, "set", "B", map[string]any{"values": map[string]any{"y": float64(2)}})
	require.NoError(t, wf.AddNode(a))
	require.NoError(t, wf.AddNode(b))
	c, err := domain.NewConnection(uuid.Nil, a.ID(), "", b.ID(), "")
	require.NoError(t, err)
	require.NoError(t, wf.AddConnection(c))

	reg := registry.New()
	for _, ex := range builtin.All() {
		require.NoError(t, reg.RegisterBuiltin(ex))
	}

	bus := logging.NewBus()
	hub := NewHub(nil)
	go hub.Run()
	engine := exec.New(reg, bus, exec.DefaultConfig(), nil, nil, nil, nil)
	controller := NewController(engine, bus, hub)

	pauseCh := make(chan string, 4)
	bus.Subscribe(logging.ObserverFunc(func(entry logging.LogEntry) {
		if entry.Category == logging.CategoryPause {
			pauseCh <- entry.ExecutionID
		}
	}))

	resultCh := make(chan *domain.Execution, 1)
	go func() {
		execution, _ := engine.Submit(context.Background(), wf, domain.TriggerManual, nil, true)
		resultCh <- execution
	}()

	select {
	case executionID := <-pauseCh:
		assert.True(t, controller.Cancel(executionID))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pause")
	}

	select {
	case execution := <-resultCh:
		assert.Equal(t, domain.StatusCancelled, execution.Status())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for execution to finish")
	}
}
