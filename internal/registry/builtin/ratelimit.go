package builtin

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	domainerrors "github.com/tolgayilmaz86/nervemind/internal/domain/errors"
	"github.com/tolgayilmaz86/nervemind/internal/execctx"
	"github.com/tolgayilmaz86/nervemind/internal/logging"
	"github.com/tolgayilmaz86/nervemind/internal/registry"
)

// RateLimitConfig configures the rateLimit node: a wrapping executor gating
// a child via shared state keyed by name, implemented as a token bucket
// since the desired semantics are throughput-limiting rather than
// failure-tripping.
type RateLimitConfig struct {
	BucketID           string `json:"bucketId"`
	TargetNodeID       string `json:"targetNodeId"`
	PermitsPerInterval int    `json:"permitsPerInterval"`
	IntervalMs         int    `json:"intervalMs"`
}

type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64    // tokens per nanosecond
	lastRefill time.Time
}

func (b *tokenBucket) acquire() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.lastRefill)
	b.tokens += float64(elapsed) * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return 0
	}
	deficit := 1 - b.tokens
	wait := time.Duration(deficit / b.refillRate)
	b.tokens = 0
	return wait
}

// buckets is the process-scoped registry of token buckets keyed by
// bucketId, shared across every concurrent execution in this runner
// process.
var buckets = xsync.NewMapOf[string, *tokenBucket]()

// RateLimit gates a single downstream node behind a process-wide token
// bucket identified by BucketID.
type RateLimit struct{}

func NewRateLimit() *RateLimit { return &RateLimit{} }

func (RateLimit) Identity() registry.Handle {
	return registry.Handle{
		TypeID:      "rateLimit",
		DisplayName: "Rate Limit",
		Category:    "flow",
		Description: "Gates a downstream node behind a process-wide token bucket",
	}
}

func (RateLimit) Validate(config map[string]any) map[string]string {
	cfg, err := parseConfig[RateLimitConfig](config)
	if err != nil {
		return map[string]string{"_": err.Error()}
	}
	errs := map[string]string{}
	if cfg.BucketID == "" {
		errs["bucketId"] = "bucketId must not be blank"
	}
	if cfg.TargetNodeID == "" {
		errs["targetNodeId"] = "targetNodeId must not be blank"
	}
	if cfg.PermitsPerInterval <= 0 {
		errs["permitsPerInterval"] = "permitsPerInterval must be positive"
	}
	if cfg.IntervalMs <= 0 {
		errs["intervalMs"] = "intervalMs must be positive"
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (RateLimit) Execute(ctx context.Context, config, input map[string]any, execCtx *execctx.Context) (map[string]any, error) {
	cfg, err := parseConfig[RateLimitConfig](config)
	if err != nil {
		return nil, err
	}
	if cfg.BucketID == "" || cfg.TargetNodeID == "" || cfg.PermitsPerInterval <= 0 || cfg.IntervalMs <= 0 {
		return nil, domainerrors.NewConfigurationError("rateLimit", "bucketId, targetNodeId, permitsPerInterval and intervalMs are required")
	}
	if execCtx == nil || execCtx.Runner == nil {
		return nil, domainerrors.NewConfigurationError("rateLimit", "no subgraph runner available in this execution context")
	}

	capacity := float64(cfg.PermitsPerInterval)
	refillRate := capacity / (float64(cfg.IntervalMs) * float64(time.Millisecond))
	bucket, _ := buckets.LoadOrStore(cfg.BucketID, &tokenBucket{
		tokens: capacity, capacity: capacity, refillRate: refillRate, lastRefill: time.Now(),
	})

	wait := bucket.acquire()
	if wait > 0 {
		if execCtx.Bus != nil {
			execCtx.Bus.Emit(logging.NewRateLimit(execCtx.ExecutionID, cfg.TargetNodeID, cfg.BucketID, wait))
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return execCtx.Runner.RunNode(ctx, cfg.TargetNodeID, input)
}
