package exec

import (
	"strings"

	"github.com/tolgayilmaz86/nervemind/internal/expr"
)

// interpolateParams walks a node's parameter map and recursively runs every
// string leaf through internal/expr.
// Executors additionally call expr.Evaluate themselves on fields they parse
// out of their own typed config (e.g. httpRequest's url/headers); this pass
// covers the generic case of untyped parameter maps so every built-in gets
// ${var} substitution for free even before its own parseConfig step, and
// plugin executors that don't do their own interpolation still see
// resolved values.
func interpolateParams(params map[string]any, scope map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = interpolateValue(v, scope)
	}
	return out
}

func interpolateValue(v any, scope map[string]any) any {
	switch val := v.(type) {
	case string:
		if looksInterpolatable(val) {
			return expr.Evaluate(val, scope)
		}
		return val
	case map[string]any:
		return interpolateParams(val, scope)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = interpolateValue(item, scope)
		}
		return out
	default:
		return v
	}
}

// looksInterpolatable avoids running every literal string through the
// evaluator's regex/function passes when it plainly contains neither a
// variable reference nor a function call.
func looksInterpolatable(s string) bool {
	return strings.Contains(s, "${") || strings.ContainsAny(s, "(")
}
