// Package logging implements the Execution Logger: a sink-agnostic,
// synchronous multicast event bus. go (single flexible event
// struct, many NewXxxEvent constructors) and observer.go (synchronous
// in-order multicast), extended with the preview/full field split 
// requires for variable/expression-eval/node-input/node-output categories.
package logging

import "time"

// Category enumerates the event categories named in 
type Category string

const (
	CategoryExecutionStart Category = "execution-start"
	CategoryExecutionEnd   Category = "execution-end"
	CategoryNodeStart      Category = "node-start"
	CategoryNodeEnd        Category = "node-end"
	CategoryNodeSkip       Category = "node-skip"
	CategoryNodeInput      Category = "node-input"
	CategoryNodeOutput     Category = "node-output"
	CategoryVariable       Category = "variable"
	CategoryExpressionEval Category = "expression-eval"
	CategoryError          Category = "error"
	CategoryRetry          Category = "retry"
	CategoryRateLimit      Category = "rate-limit"
	CategoryDataFlow       Category = "data-flow"
	// CategoryPause is not in enumerated list but is needed to
	// carry step-debug pause notification over the same bus rather
	// than inventing a second channel for it.
	CategoryPause Category = "pause"
)

// Level is the event's severity, independent of its Category.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// maxPreviewBytes bounds the Preview field per the ("Implementers
// must keep previews <= 1 KiB").
const maxPreviewBytes = 1024

// LogEntry is the structured event emitted on every component transition
//. Context carries category-specific structured detail (node
// id/type, attempt number, rate-limit bucket, etc.) as a loosely-typed map
// so new categories don't require bus-wide schema changes.
type LogEntry struct {
	Timestamp   time.Time
	Level       Level
	Category    Category
	ExecutionID string
	NodeID      string
	Message     string
	Context     map[string]any

	// Preview/Full apply only to CategoryVariable, CategoryExpressionEval,
	// CategoryNodeInput and CategoryNodeOutput. Preview is
	// truncated to maxPreviewBytes; Full is unbounded for debug-view
	// consumers.
	Preview string
	Full    string
}

// NewExecutionStart builds the execution-start event.
func NewExecutionStart(executionID, workflowID string) LogEntry {
	return LogEntry{
		Timestamp:   time.Now(),
		Level:       LevelInfo,
		Category:    CategoryExecutionStart,
		ExecutionID: executionID,
		Message:     "execution started",
		Context:     map[string]any{"workflowId": workflowID},
	}
}

// NewExecutionEnd builds the execution-end event, carrying the terminal
// status and duration.
func NewExecutionEnd(executionID, status string, duration time.Duration) LogEntry {
	return LogEntry{
		Timestamp:   time.Now(),
		Level:       LevelInfo,
		Category:    CategoryExecutionEnd,
		ExecutionID: executionID,
		Message:     "execution " + status,
		Context:     map[string]any{"status": status, "durationMs": duration.Milliseconds()},
	}
}

// NewNodeStart builds the node-start event.
func NewNodeStart(executionID, nodeID, nodeName, nodeType string) LogEntry {
	return LogEntry{
		Timestamp:   time.Now(),
		Level:       LevelInfo,
		Category:    CategoryNodeStart,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Message:     "node started",
		Context:     map[string]any{"nodeName": nodeName, "nodeType": nodeType},
	}
}

// NewNodeEnd builds the node-end event for a terminal node status.
func NewNodeEnd(executionID, nodeID, status string, duration time.Duration) LogEntry {
	level := LevelInfo
	if status == "FAILED" {
		level = LevelError
	}
	return LogEntry{
		Timestamp:   time.Now(),
		Level:       level,
		Category:    CategoryNodeEnd,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Message:     "node " + status,
		Context:     map[string]any{"status": status, "durationMs": duration.Milliseconds()},
	}
}

// NewNodeSkip builds the node-skip event.
func NewNodeSkip(executionID, nodeID, reason string) LogEntry {
	return LogEntry{
		Timestamp:   time.Now(),
		Level:       LevelInfo,
		Category:    CategoryNodeSkip,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Message:     "node skipped: " + reason,
	}
}

// NewDataEntry builds a preview/full-carrying event for node-input,
// node-output, variable and expression-eval categories.
func NewDataEntry(category Category, executionID, nodeID, full string) LogEntry {
	return LogEntry{
		Timestamp:   time.Now(),
		Level:       LevelDebug,
		Category:    category,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Preview:     truncatePreview(full),
		Full:        full,
	}
}

func truncatePreview(s string) string {
	if len(s) <= maxPreviewBytes {
		return s
	}
	return s[:maxPreviewBytes]
}

// NewError builds the error event.
func NewError(executionID, nodeID, message string, err error) LogEntry {
	ctx := map[string]any{}
	if err != nil {
		ctx["error"] = err.Error()
	}
	return LogEntry{
		Timestamp:   time.Now(),
		Level:       LevelError,
		Category:    CategoryError,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Message:     message,
		Context:     ctx,
	}
}

// NewRetry builds the retry event.
func NewRetry(executionID, nodeID string, attempt, maxAttempts int, delay time.Duration) LogEntry {
	return LogEntry{
		Timestamp:   time.Now(),
		Level:       LevelWarn,
		Category:    CategoryRetry,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Message:     "retrying node",
		Context:     map[string]any{"attempt": attempt, "maxAttempts": maxAttempts, "delayMs": delay.Milliseconds()},
	}
}

// NewRateLimit builds the rate-limit event.
func NewRateLimit(executionID, nodeID, bucketID string, wait time.Duration) LogEntry {
	return LogEntry{
		Timestamp:   time.Now(),
		Level:       LevelWarn,
		Category:    CategoryRateLimit,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Message:     "rate limited",
		Context:     map[string]any{"bucketId": bucketID, "estimatedWaitMs": wait.Milliseconds()},
	}
}

// NewDataFlow builds a data-flow event describing a value moving across a
// Connection from one node's output handle to another's input handle.
func NewDataFlow(executionID, sourceNodeID, targetNodeID, handle string) LogEntry {
	return LogEntry{
		Timestamp:   time.Now(),
		Level:       LevelDebug,
		Category:    CategoryDataFlow,
		ExecutionID: executionID,
		Message:     "data flow",
		Context:     map[string]any{"sourceNodeId": sourceNodeID, "targetNodeId": targetNodeID, "handle": handle},
	}
}

// NewPause builds the step-debug pause notification.
func NewPause(executionID, nodeID, nodeName string, nodeIndex, totalNodes int) LogEntry {
	return LogEntry{
		Timestamp:   time.Now(),
		Level:       LevelInfo,
		Category:    CategoryPause,
		ExecutionID: executionID,
		NodeID:      nodeID,
		Message:     "paused after node",
		Context:     map[string]any{"nodeName": nodeName, "nodeIndex": nodeIndex, "totalNodes": totalNodes},
	}
}
