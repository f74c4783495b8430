package builtin

import (
	"context"
	"fmt"

	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/exlang"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// LoopConfig configures the loop node.
type LoopConfig struct {
	Items         string `json:"items"`
	BodyNodeID    string `json:"bodyNodeId"`
	ItemVarName   string `json:"itemVarName"`
	MaxIterations int    `json:"maxIterations"`
}

// loopExprs is the shared expr-lang evaluator instance for loop item-list
// expressions, caching compiled programs across every loop node in the
// process the way internal/exlang is designed to be used.
var loopExprs = exlang.New()

const defaultLoopMaxIterations = 10000

// Loop evaluates Items into a list and runs BodyNodeID's subgraph once
// per item, collecting each iteration's output.
type Loop struct{}

func NewLoop() *Loop { return &Loop{} }

func (Loop) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "loop",
		DisplayName: "Loop",
		Category:    "flow",
		Description: "Runs a body subgraph once per item of an evaluated list",
	}
}

func (Loop) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[LoopConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	errs := map[string]string{}
	if cfg.Items == "" {
		errs["items"] = "items must not be blank"
	}
	if cfg.BodyNodeID == "" {
		errs["bodyNodeId"] = "bodyNodeId must not be blank"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (Loop) Execute(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[LoopConfig](config)
	if err != nil {
		return nil, err
	}
	if cfg.Items == "" || cfg.BodyNodeID == "" {
		return nil, domainerrors.NewConfigurationError("loop", "items and bodyNodeId are required")
	}
	if execCtx == nil || execCtx.Runner == nil {
		return nil, domainerrors.NewConfigurationError("loop", "no subgraph runner available in this execution context")
	}
	itemVar := cfg.ItemVarName
	if itemVar == "" {
		itemVar = "item"
	}
	maxIterations := cfg.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultLoopMaxIterations
	}

	items, err := loopExprs.EvalList(cfg.Items, mergedScope(input, execCtx))
	if err != nil {
		return nil, fmt.Errorf("loop: evaluate items: %w", err)
	}
	if len(items) > maxIterations {
		return nil, fmt.Errorf("loop: item count %d exceeds maxIterations %d", len(items), maxIterations)
	}

	results := make([]any, 0, len(items))
	for i, item := range items {
		if execCtx.Cancelled() {
			return nil, ctx.Err()
		}
		iterInput := mergeInput(input)
		iterInput[itemVar] = item
		iterInput["_index"] = i
		out, runErr := execCtx.Runner.RunFrom(ctx, cfg.BodyNodeID, iterInput)
		if runErr != nil {
			return nil, fmt.Errorf("loop: iteration %d: %w", i, runErr)
		}
		results = append(results, out)
	}

	out := mergeInput(input)
	out["results"] = results
	out["_iterationCount"] = len(results)
	return out, nil
}
