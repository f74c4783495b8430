package builtin

import (
	"context"
	"fmt"
	"sort"

	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// SortKey is one level of a sort node's ordering.
type SortKey struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending"`
}

// SortConfig configures the sort executor.
type SortConfig struct {
	InputField  string    `json:"inputField"`
	OutputField string    `json:"outputField"`
	Keys        []SortKey `json:"keys"`
}

// Sort orders InputField's items by Keys; stability is provided by
// sort.SliceStable so ties keep their original insertion order.
type Sort struct{}

func NewSort() *Sort { return &Sort{} }

func (Sort) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "sort",
		DisplayName: "Sort",
		Category:    "data",
		Description: "Stably sorts a list of items by one or more fields",
	}
}

func (Sort) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[SortConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	errs := map[string]string{}
	if cfg.InputField == "" {
		errs["inputField"] = "inputField must not be blank"
	}
	if len(cfg.Keys) == 0 {
		errs["keys"] = "at least one sort key is required"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (Sort) Execute(_ context.Context, config, input map[string]any, _ *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[SortConfig](config)
	if err != nil {
		return nil, err
	}
	if cfg.InputField == "" || len(cfg.Keys) == 0 {
		return nil, fmt.Errorf("sort: inputField and at least one key are required")
	}
	outField := cfg.OutputField
	if outField == "" {
		outField = cfg.InputField
	}

	raw, _ := input[cfg.InputField].([]any)
	items := make([]any, len(raw))
	copy(items, raw)

	sort.SliceStable(items, func(i, j int) bool {
		a, _ := items[i].(map[string]any)
		b, _ := items[j].(map[string]any)
		for _, key := range cfg.Keys {
			cmp := compareValues(a[key.Field], b[key.Field])
			if cmp == 0 {
				continue
			}
			if key.Descending {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	out := mergeInput(input)
	out[outField] = items
	return out, nil
}

// compareValues orders numbers numerically and everything else by string
// form, returning -1/0/1.
func compareValues(a, b any) int {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, bs := toStr(a), toStr(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	default:
		return 0
	}
}
