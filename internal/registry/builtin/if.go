package builtin

import (
	"context"

	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/expr"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// IfConfig is the if node's configuration: a single condition string
// evaluated through internal/expr's truthy rules.
type IfConfig struct {
	Condition string `json:"condition"`
}

// HandleKey is the reserved output-map key the engine reads to pick which
// of a node's output handles to follow (see DESIGN.md "output handle
// routing"). Absent or empty means the default "main" handle.
const HandleKey = "_handle"

// If evaluates Condition through internal/expr's truthy rules and routes
// to the "true" or "false" output handle.
type If struct{}

func NewIf() *If { return &If{} }

func (If) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "if",
		DisplayName: "If",
		Category:    "flow",
		Description: "Routes to the true or false output handle based on a condition",
	}
}

func (If) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[IfConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	if cfg.Condition == "" {
		return map[string]string{"condition": "condition must not be blank"}
	}
	return nil
}

func (If) Execute(_ context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[IfConfig](config)
	if err != nil {
		return nil, err
	}
	result := expr.EvaluateCondition(cfg.Condition, mergedScope(input, execCtx))

	out := mergeInput(input)
	if result {
		out[HandleKey] = "true"
	} else {
		out[HandleKey] = "false"
	}
	return out, nil
}

// mergedScope combines the node's input map over the execution's variable
// scope: input wins on key collision, since parameters are interpolated
// against input merged over variables.
func mergedScope(input map[string]any, execCtx *execctx.Context) map[string]any {
	scope := execCtx.AllVariables()
	for k, v := range input {
		scope[k] = v
	}
	return scope
}
