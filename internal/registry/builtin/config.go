// Package builtin implements the built-in node executors
// (httpRequest, code, if, switch, loop, merge, set, filter, sort, llmChat,
// subworkflow, parallel, tryCatch, retry, rateLimit, executeCommand, and the
// manual/schedule/webhook/fileEvent triggers), each following the same
// per-executor shape: typed config structs decoded via parseConfig,
// execution-context variable substitution, NodeExecutionError/
// ExternalAPIError on failure.
package builtin

import (
	"encoding/json"
	"fmt"
)

// parseConfig converts a map[string]any node configuration to a typed
// struct via a JSON marshal/unmarshal round-trip, so float64-from-JSON/YAML
// values land on the right Go field types without per-executor hand-rolled
// type assertions.
func parseConfig[T any](config map[string]any) (*T, error) {
	data, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &result, nil
}

// mergeInput returns a shallow copy of input so executors can freely build
// their output map by copying-then-overwriting without mutating the
// caller's map.
func mergeInput(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}
	return out
}
