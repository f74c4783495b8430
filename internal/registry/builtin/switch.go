package builtin

import (
	"context"

	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/expr"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// SwitchCase is one entry of a switch node's routing table.
type SwitchCase struct {
	Condition string `json:"condition"`
	Handle    string `json:"handle"`
}

// SwitchConfig configures the switch executor.
type SwitchConfig struct {
	Cases         []SwitchCase `json:"cases"`
	DefaultHandle string       `json:"defaultHandle"`
}

// Switch evaluates each case's condition in declared order and routes to
// the first match's handle, falling back to DefaultHandle (or "default")
// when none match: If's single-condition routing generalised to a full
// table.
type Switch struct{}

func NewSwitch() *Switch { return &Switch{} }

func (Switch) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "switch",
		DisplayName: "Switch",
		Category:    "flow",
		Description: "Routes to the first matching case's output handle, or default",
	}
}

func (Switch) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[SwitchConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	if len(cfg.Cases) == 0 {
		return map[string]string{"cases": "at least one case is required"}
	}
	return nil
}

func (Switch) Execute(_ context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[SwitchConfig](config)
	if err != nil {
		return nil, err
	}
	scope := mergedScope(input, execCtx)

	out := mergeInput(input)
	handle := cfg.DefaultHandle
	if handle == "" {
		handle = "default"
	}
	for _, c := range cfg.Cases {
		if expr.EvaluateCondition(c.Condition, scope) {
			handle = c.Handle
			break
		}
	}
	out[HandleKey] = handle
	return out, nil
}
