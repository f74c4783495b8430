package logging

import (
	"sync"
	"time"
)

// TraceEvent is one entry in an execution's history ribbon.
type TraceEvent struct {
	Timestamp time.Time
	NodeID    string
	Category  Category
	Message   string
}

// TraceObserver accumulates a per-execution, read-only history ribbon
// backing step-back navigation support. It is UI-facing
// plumbing only: the engine never reads it back to make decisions.
type TraceObserver struct {
	mu     sync.Mutex
	ribbon map[string][]TraceEvent // keyed by executionID
}

func NewTraceObserver() *TraceObserver {
	return &TraceObserver{ribbon: map[string][]TraceEvent{}}
}

func (t *TraceObserver) Observe(entry LogEntry) {
	if entry.ExecutionID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ribbon[entry.ExecutionID] = append(t.ribbon[entry.ExecutionID], TraceEvent{
		Timestamp: entry.Timestamp,
		NodeID:    entry.NodeID,
		Category:  entry.Category,
		Message:   entry.Message,
	})
}

// Ribbon returns a snapshot copy of the recorded trace for executionID.
func (t *TraceObserver) Ribbon(executionID string) []TraceEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	src := t.ribbon[executionID]
	out := make([]TraceEvent, len(src))
	copy(out, src)
	return out
}

// Forget discards the ribbon for a terminal execution, reclaiming memory
// once nothing can read it back. No durable replay is kept.
func (t *TraceObserver) Forget(executionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ribbon, executionID)
}
