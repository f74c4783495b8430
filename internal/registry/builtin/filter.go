package builtin

import (
	"fmt"
	"strconv"
	"strings"

	"context"

	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// FilterCondition is one clause of a filter node's condition list.
type FilterCondition struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    any    `json:"value"`
}

// FilterConfig is the filter node's configuration.
type FilterConfig struct {
	InputField   string            `json:"inputField"`
	OutputField  string            `json:"outputField"`
	Conditions   []FilterCondition `json:"conditions"`
	CombineWith  string            `json:"combineWith"` // "and" | "or"
	KeepMatching bool              `json:"keepMatching"`
}

// Filter keeps (or drops, per KeepMatching) items matching Conditions and
// reports `_originalCount == _filteredCount + _removedCount`.
type Filter struct{}

func NewFilter() *Filter { return &Filter{} }

func (Filter) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "filter",
		DisplayName: "Filter",
		Category:    "data",
		Description: "Filters a list of items by a combination of field conditions",
	}
}

func (Filter) Validate(config map[string]any) map[string]string {
	errs := map[string]string{}
	cfg, err := parseConfig[FilterConfig](config)
	if err != nil {
		errs["_"] = err.Error()
		return errs
	}
	if cfg.InputField == "" {
		errs["inputField"] = "inputField must not be blank"
	}
	if cfg.OutputField == "" {
		errs["outputField"] = "outputField must not be blank"
	}
	return errs
}

func (Filter) Execute(_ context.Context, config, input map[string]any, _ *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[FilterConfig](config)
	if err != nil {
		return nil, err
	}
	if cfg.InputField == "" || cfg.OutputField == "" {
		return nil, fmt.Errorf("filter: inputField and outputField are required")
	}
	combine := strings.ToLower(cfg.CombineWith)
	if combine == "" {
		combine = "and"
	}

	raw, _ := input[cfg.InputField].([]any)
	originalCount := len(raw)

	var kept []any
	for _, item := range raw {
		matched := evaluateConditions(item, cfg.Conditions, combine)
		if matched == cfg.KeepMatching {
			kept = append(kept, item)
		}
	}

	out := mergeInput(input)
	out[cfg.OutputField] = kept
	out["_originalCount"] = originalCount
	out["_filteredCount"] = len(kept)
	out["_removedCount"] = originalCount - len(kept)
	return out, nil
}

func evaluateConditions(item any, conditions []FilterCondition, combine string) bool {
	if len(conditions) == 0 {
		return true
	}
	m, _ := item.(map[string]any)
	results := make([]bool, len(conditions))
	for i, c := range conditions {
		results[i] = evaluateCondition(m[c.Field], c.Operator, c.Value)
	}
	if combine == "or" {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}
	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

func evaluateCondition(fieldValue any, operator string, target any) bool {
	switch operator {
	case "equals":
		return fmt.Sprintf("%v", fieldValue) == fmt.Sprintf("%v", target)
	case "ne":
		return fmt.Sprintf("%v", fieldValue) != fmt.Sprintf("%v", target)
	case "contains":
		return strings.Contains(toStr(fieldValue), toStr(target))
	case "startsWith":
		return strings.HasPrefix(toStr(fieldValue), toStr(target))
	case "endsWith":
		return strings.HasSuffix(toStr(fieldValue), toStr(target))
	case "gt", "lt", "gte", "lte":
		a, okA := toFloat(fieldValue)
		b, okB := toFloat(target)
		if !okA || !okB {
			return false
		}
		switch operator {
		case "gt":
			return a > b
		case "lt":
			return a < b
		case "gte":
			return a >= b
		default:
			return a <= b
		}
	default:
		return false
	}
}

func toStr(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
