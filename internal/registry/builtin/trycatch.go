package builtin

import (
	"context"

	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// TryCatchConfig configures the tryCatch node.
type TryCatchConfig struct {
	TryNodeID string `json:"tryNodeId"`
}

// TryCatch runs the subgraph rooted at TryNodeID via SubgraphRunner.RunFrom.
// On success it passes the subgraph's output through on the "main" handle;
// on failure it routes to "catch" carrying {error, nodeId}.
type TryCatch struct{}

func NewTryCatch() *TryCatch { return &TryCatch{} }

func (TryCatch) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "tryCatch",
		DisplayName: "Try/Catch",
		Category:    "flow",
		Description: "Runs a subgraph and routes to catch on failure instead of failing the execution",
	}
}

func (TryCatch) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[TryCatchConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	if cfg.TryNodeID == "" {
		return map[string]string{"tryNodeId": "tryNodeId must not be blank"}
	}
	return nil
}

func (TryCatch) Execute(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[TryCatchConfig](config)
	if err != nil {
		return nil, err
	}
	if cfg.TryNodeID == "" {
		return nil, domainerrors.NewConfigurationError("tryCatch", "tryNodeId must not be blank")
	}
	if execCtx == nil || execCtx.Runner == nil {
		return nil, domainerrors.NewConfigurationError("tryCatch", "no subgraph runner available in this execution context")
	}

	result, runErr := execCtx.Runner.RunFrom(ctx, cfg.TryNodeID, input)
	if runErr == nil {
		out := mergeInput(result)
		out[HandleKey] = "main"
		return out, nil
	}

	out := mergeInput(input)
	out[HandleKey] = "catch"
	out["error"] = runErr.Error()
	out["nodeId"] = cfg.TryNodeID
	return out, nil
}
