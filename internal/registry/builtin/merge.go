package builtin

import (
	"context"
	"fmt"

	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// MergeConfig controls how a merge node combines multiple incoming paths.
type MergeConfig struct {
	// Mode is "concat" (append list fields across inputs) or "object"
	// (shallow key merge, declaration order last-wins per the engine's
	// predecessor ordering).
	Mode  string `json:"mode"`
	Field string `json:"field"` // item-list field name, required for concat mode
}

// Merge operates on a single input-map convention: the engine has already
// merged predecessor outputs by the time Execute runs, so Merge's job is
// reshaping that merged map rather than joining N distinct payloads itself.
// The engine keeps one value per key when predecessors write the same
// field (the later predecessor wins) and adds no per-source-node-qualified
// keys; concat reads Field plus whichever "<prefix>.<Field>" keys are
// already present in the input.
type Merge struct{}

func NewMerge() *Merge { return &Merge{} }

func (Merge) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "merge",
		DisplayName: "Merge",
		Category:    "data",
		Description: "Combines multiple incoming paths into one map or concatenated list",
	}
}

func (Merge) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[MergeConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	if cfg.Mode == "concat" && cfg.Field == "" {
		return map[string]string{"field": "field is required when mode is concat"}
	}
	return nil
}

func (Merge) Execute(_ context.Context, config, input map[string]any, _ *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[MergeConfig](config)
	if err != nil {
		return nil, err
	}
	out := mergeInput(input)
	switch cfg.Mode {
	case "", "object":
		return out, nil
	case "concat":
		var merged []any
		for k, v := range input {
			if k != cfg.Field && !hasFieldSuffix(k, cfg.Field) {
				continue
			}
			list, ok := v.([]any)
			if !ok {
				continue
			}
			merged = append(merged, list...)
		}
		out[cfg.Field] = merged
		return out, nil
	default:
		return nil, fmt.Errorf("merge: unknown mode %q", cfg.Mode)
	}
}

func hasFieldSuffix(key, field string) bool {
	if len(key) <= len(field) {
		return false
	}
	return key[len(key)-len(field):] == field && key[len(key)-len(field)-1] == '.'
}
