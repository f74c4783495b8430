package builtin

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/logging"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// RetryConfig configures the retry node: max attempts, delay and backoff
// policy for a single wrapped child, shaped as a node config rather than an
// executor-wrapping struct since retry is an ordinary node whose executor
// manages iteration internally via execctx.SubgraphRunner.
type RetryConfig struct {
	TargetNodeID string `json:"targetNodeId"`
	MaxAttempts  int    `json:"maxAttempts"`
	DelayMs      int    `json:"delayMs"`
	Backoff      string `json:"backoff"` // "fixed" | "linear" | "exponential"
	Jitter       bool   `json:"jitter"`
}

// Retry re-invokes a single downstream node via SubgraphRunner.RunNode up
// to MaxAttempts times, backing off between attempts per Backoff.
type Retry struct{}

func NewRetry() *Retry { return &Retry{} }

func (Retry) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "retry",
		DisplayName: "Retry",
		Category:    "flow",
		Description: "Retries a single downstream node with configurable backoff",
	}
}

func (Retry) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[RetryConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	errs := map[string]string{}
	if cfg.TargetNodeID == "" {
		errs["targetNodeId"] = "targetNodeId must not be blank"
	}
	if cfg.MaxAttempts <= 0 {
		errs["maxAttempts"] = "maxAttempts must be positive"
	}
	switch cfg.Backoff {
	case "", "fixed", "linear", "exponential":
	default:
		errs["backoff"] = fmt.Sprintf("unknown backoff %q", cfg.Backoff)
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (Retry) Execute(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[RetryConfig](config)
	if err != nil {
		return nil, err
	}
	if cfg.TargetNodeID == "" || cfg.MaxAttempts <= 0 {
		return nil, domainerrors.NewConfigurationError("retry", "targetNodeId and a positive maxAttempts are required")
	}
	if execCtx == nil || execCtx.Runner == nil {
		return nil, domainerrors.NewConfigurationError("retry", "no subgraph runner available in this execution context")
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if execCtx.Cancelled() {
			return nil, ctx.Err()
		}
		if attempt > 1 {
			if !execCtx.ConsumeRetryBudget() {
				return nil, fmt.Errorf("retry: execution-wide retry budget exhausted")
			}
			delay := calculateRetryDelay(cfg, attempt)
			if execCtx.Bus != nil {
				execCtx.Bus.Emit(logging.NewRetry(execCtx.ExecutionID, cfg.TargetNodeID, attempt, cfg.MaxAttempts, delay))
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		out, runErr := execCtx.Runner.RunNode(ctx, cfg.TargetNodeID, input)
		if runErr == nil {
			return out, nil
		}
		lastErr = runErr
		if !domainerrors.IsRetryable(runErr) {
			return nil, runErr
		}
	}
	return nil, fmt.Errorf("retry: max attempts (%d) exhausted: %w", cfg.MaxAttempts, lastErr)
}

// calculateRetryDelay computes the wait before the next attempt for each of
// the three supported backoff shapes, applying up to ±10% jitter to any of
// them when Jitter is set so a stampede of retrying nodes doesn't resync.
func calculateRetryDelay(cfg *RetryConfig, attempt int) time.Duration {
	base := float64(cfg.DelayMs) * float64(time.Millisecond)
	var delay float64
	switch cfg.Backoff {
	case "linear":
		delay = base * float64(attempt-1)
	case "exponential":
		delay = base * math.Pow(2, float64(attempt-2))
	default:
		delay = base
	}
	if cfg.Jitter && delay > 0 {
		jitterAmount := delay * 0.1
		delay += (2*rand.Float64() - 1) * jitterAmount
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}
