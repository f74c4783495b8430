package builtin

import (
	"context"

	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/expr"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// SetConfig assigns literal or expression-derived values into the input map.
// Values are strings evaluated through internal/expr so ${var} interpolation
// and the function library apply the same as any other parameter;
// non-string values are assigned as literals unchanged.
type SetConfig struct {
	Values map[string]any `json:"values"`
}

// Set assigns SetConfig.Values into the input map, interpolating string
// values and passing everything else through as a literal.
type Set struct{}

func NewSet() *Set { return &Set{} }

func (Set) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "set",
		DisplayName: "Set",
		Category:    "data",
		Description: "Assigns literal or expression-derived values into the input map",
	}
}

func (Set) Validate(config map[string]any) map[string]string { return nil }

func (Set) Execute(_ context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[SetConfig](config)
	if err != nil {
		return nil, err
	}
	out := mergeInput(input)
	vars := mergedScope(input, execCtx)
	for k, v := range cfg.Values {
		if s, ok := v.(string); ok {
			out[k] = expr.EvaluateToObject(s, vars)
			continue
		}
		out[k] = v
	}
	return out, nil
}
