package builtin

import (
	"context"

	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// SubworkflowConfig configures the subworkflow node.
type SubworkflowConfig struct {
	WorkflowID string `json:"workflowId"`
}

// Subworkflow recursively submits a separately stored workflow through the
// same engine that runs the parent; depth is capped via
// execctx.Context.EnterSubworkflow/ExitSubworkflow.
type Subworkflow struct{}

func NewSubworkflow() *Subworkflow { return &Subworkflow{} }

func (Subworkflow) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "subworkflow",
		DisplayName: "Subworkflow",
		Category:    "flow",
		Description: "Recursively runs another stored workflow to completion and returns its output",
	}
}

func (Subworkflow) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[SubworkflowConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	if cfg.WorkflowID == "" {
		return map[string]string{"workflowId": "workflowId must not be blank"}
	}
	return nil
}

func (Subworkflow) Execute(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[SubworkflowConfig](config)
	if err != nil {
		return nil, err
	}
	if cfg.WorkflowID == "" {
		return nil, domainerrors.NewConfigurationError("subworkflow", "workflowId must not be blank")
	}
	if execCtx == nil || execCtx.Workflows == nil {
		return nil, domainerrors.NewConfigurationError("subworkflow", "no workflow runner available in this execution context")
	}

	if err := execCtx.EnterSubworkflow(); err != nil {
		return nil, err
	}
	defer execCtx.ExitSubworkflow()

	result, err := execCtx.Workflows.RunWorkflow(ctx, cfg.WorkflowID, mergeInput(input))
	if err != nil {
		return nil, err
	}
	return result, nil
}
