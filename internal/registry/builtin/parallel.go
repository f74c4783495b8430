package builtin

import (
	"context"
	"fmt"
	"sync"

	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// ParallelConfig configures the parallel node: an explicit, statically
// declared branch list rather than graph-layer inference, since a parallel
// node's branches are exactly its declared config, not discovered from
// connections.
type ParallelConfig struct {
	BranchNodeIDs []string `json:"branchNodeIds"`
	// FailFast cancels the other branches' context as soon as any branch
	// fails, waits for every branch to return, and returns the error of the
	// first failing branch in declared order; when false, all branches
	// complete and partial
	// results are still joined with per-branch errors recorded under
	// "_errors".
	FailFast bool `json:"failFast"`
}

// branchResult is one branch's concurrent outcome.
type branchResult struct {
	nodeID string
	output map[string]any
	err    error
}

// Parallel fans out to each configured branch concurrently and joins
// their outputs by node id under that id's key.
type Parallel struct{}

func NewParallel() *Parallel { return &Parallel{} }

func (Parallel) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "parallel",
		DisplayName: "Parallel",
		Category:    "flow",
		Description: "Runs a fixed set of branches concurrently and joins their outputs",
	}
}

func (Parallel) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[ParallelConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	if len(cfg.BranchNodeIDs) == 0 {
		return map[string]string{"branchNodeIds": "at least one branch is required"}
	}
	return nil
}

func (Parallel) Execute(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[ParallelConfig](config)
	if err != nil {
		return nil, err
	}
	if len(cfg.BranchNodeIDs) == 0 {
		return nil, domainerrors.NewConfigurationError("parallel", "at least one branch is required")
	}
	if execCtx == nil || execCtx.Runner == nil {
		return nil, domainerrors.NewConfigurationError("parallel", "no subgraph runner available in this execution context")
	}

	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]branchResult, len(cfg.BranchNodeIDs))
	var wg sync.WaitGroup
	for i, nodeID := range cfg.BranchNodeIDs {
		wg.Add(1)
		go func(i int, nodeID string) {
			defer wg.Done()
			out, branchErr := execCtx.Runner.RunFrom(branchCtx, nodeID, input)
			results[i] = branchResult{nodeID: nodeID, output: out, err: branchErr}
			if branchErr != nil && cfg.FailFast {
				cancel()
			}
		}(i, nodeID)
	}
	wg.Wait()

	out := mergeInput(input)
	branchErrors := map[string]any{}
	for _, r := range results {
		if r.err != nil {
			if cfg.FailFast {
				return nil, fmt.Errorf("parallel: branch %s failed: %w", r.nodeID, r.err)
			}
			branchErrors[r.nodeID] = r.err.Error()
			continue
		}
		out[r.nodeID] = r.output
	}
	if len(branchErrors) > 0 {
		out["_errors"] = branchErrors
	}
	return out, nil
}
