package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversInOrder(t *testing.T) {
	bus := NewBus()
	var seen []Category
	bus.Subscribe(ObserverFunc(func(e LogEntry) { seen = append(seen, e.Category) }))

	bus.Emit(NewExecutionStart("exec-1", "wf-1"))
	bus.Emit(NewNodeStart("exec-1", "n1", "Node 1", "set"))
	bus.Emit(NewNodeEnd("exec-1", "n1", "SUCCESS", time.Millisecond))

	require.Equal(t, []Category{CategoryExecutionStart, CategoryNodeStart, CategoryNodeEnd}, seen)
}

func TestBus_PanickingObserverDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()
	var secondCalled bool
	bus.Subscribe(ObserverFunc(func(e LogEntry) { panic("boom") }))
	bus.Subscribe(ObserverFunc(func(e LogEntry) { secondCalled = true }))

	assert.NotPanics(t, func() { bus.Emit(NewExecutionStart("e", "w")) })
	assert.True(t, secondCalled)
}

func TestNewDataEntry_PreviewTruncated(t *testing.T) {
	big := make([]byte, maxPreviewBytes+500)
	for i := range big {
		big[i] = 'a'
	}
	entry := NewDataEntry(CategoryNodeOutput, "e", "n", string(big))
	assert.Len(t, entry.Preview, maxPreviewBytes)
	assert.Len(t, entry.Full, maxPreviewBytes+500)
}

func TestMetricsObserver_Snapshot(t *testing.T) {
	mo := NewMetricsObserver()
	bus := NewBus()
	bus.Subscribe(mo)

	bus.Emit(NewExecutionStart("e1", "w1"))
	bus.Emit(NewNodeEnd("e1", "n1", "SUCCESS", 5*time.Millisecond))
	bus.Emit(NewNodeSkip("e1", "n2", "disabled"))
	bus.Emit(NewRetry("e1", "n1", 2, 3, time.Second))
	bus.Emit(NewExecutionEnd("e1", "SUCCESS", 10*time.Millisecond))

	snap, ok := mo.Snapshot("e1")
	require.True(t, ok)
	assert.Equal(t, 1, snap.NodeCounts["SUCCESS"])
	assert.Equal(t, 1, snap.NodeCounts["SKIPPED"])
	assert.Equal(t, 1, snap.RetryCount)
}

func TestTraceObserver_Ribbon(t *testing.T) {
	to := NewTraceObserver()
	bus := NewBus()
	bus.Subscribe(to)

	bus.Emit(NewNodeStart("e1", "n1", "Node 1", "set"))
	bus.Emit(NewNodeEnd("e1", "n1", "SUCCESS", time.Millisecond))

	ribbon := to.Ribbon("e1")
	require.Len(t, ribbon, 2)
	assert.Equal(t, "n1", ribbon[0].NodeID)
}
