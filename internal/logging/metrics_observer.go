package logging

import (
	"sync"
	"time"
)

// ExecutionMetrics is a read-only per-execution snapshot: counts of node
// executions by status, total duration, per-node-type latency, and AI token
// usage. A derived observability artifact, not part of the Execution
// entity itself.
type ExecutionMetrics struct {
	ExecutionID      string
	NodeCounts       map[string]int           // by NodeExecutionStatus string
	NodeTypeDuration map[string]time.Duration
	RetryCount       int
	RateLimitWaits   int
	PromptTokens     int
	CompletionTokens int
	StartedAt        time.Time
	EndedAt          time.Time
}

// MetricsObserver aggregates LogEntry traffic into per-execution
// ExecutionMetrics snapshots: node counts by status, retry and rate-limit
// wait counts, and AI token usage. NodeTypeDuration is filled only from
// node-end entries whose Context carries a "nodeType", which NewNodeEnd
// does not add. Engine.GetMetrics does not read this observer; it returns
// the engine's own per-run metrics.
type MetricsObserver struct {
	mu      sync.Mutex
	metrics map[string]*ExecutionMetrics
}

func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{metrics: map[string]*ExecutionMetrics{}}
}

func (m *MetricsObserver) entry(executionID string) *ExecutionMetrics {
	em, ok := m.metrics[executionID]
	if !ok {
		em = &ExecutionMetrics{
			ExecutionID:      executionID,
			NodeCounts:       map[string]int{},
			NodeTypeDuration: map[string]time.Duration{},
		}
		m.metrics[executionID] = em
	}
	return em
}

func (m *MetricsObserver) Observe(entry LogEntry) {
	if entry.ExecutionID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	em := m.entry(entry.ExecutionID)

	switch entry.Category {
	case CategoryExecutionStart:
		em.StartedAt = entry.Timestamp
	case CategoryExecutionEnd:
		em.EndedAt = entry.Timestamp
	case CategoryNodeEnd:
		status, _ := entry.Context["status"].(string)
		em.NodeCounts[status]++
		if ms, ok := entry.Context["durationMs"].(int64); ok {
			if nodeType, ok := entry.Context["nodeType"].(string); ok {
				em.NodeTypeDuration[nodeType] += time.Duration(ms) * time.Millisecond
			}
		}
	case CategoryNodeSkip:
		em.NodeCounts["SKIPPED"]++
	case CategoryRetry:
		em.RetryCount++
	case CategoryRateLimit:
		em.RateLimitWaits++
	}

	if pt, ok := entry.Context["promptTokens"].(int); ok {
		em.PromptTokens += pt
	}
	if ct, ok := entry.Context["completionTokens"].(int); ok {
		em.CompletionTokens += ct
	}
}

// Snapshot returns a copy of the metrics recorded for executionID, or
// false if nothing has been recorded yet.
func (m *MetricsObserver) Snapshot(executionID string) (ExecutionMetrics, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	em, ok := m.metrics[executionID]
	if !ok {
		return ExecutionMetrics{}, false
	}
	out := *em
	out.NodeCounts = make(map[string]int, len(em.NodeCounts))
	for k, v := range em.NodeCounts {
		out.NodeCounts[k] = v
	}
	out.NodeTypeDuration = make(map[string]time.Duration, len(em.NodeTypeDuration))
	for k, v := range em.NodeTypeDuration {
		out.NodeTypeDuration[k] = v
	}
	return out, true
}

// Forget discards metrics for a terminal execution.
func (m *MetricsObserver) Forget(executionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.metrics, executionID)
}
