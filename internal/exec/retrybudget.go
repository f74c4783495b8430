package exec

import "sync/atomic"

// RetryBudget is an optional execution-wide cap on total retry attempts
// across every retry-wrapped node in a single run , preventing a pathological workflow
// with many retry nodes from looping indefinitely under sustained
// transient failure. A per-node retry node's own maxAttempts still applies
// unconditionally; the budget is an additional, coarser ceiling.
type RetryBudget struct {
	limit int64        // 0 means unlimited
	spent atomic.Int64
}

// NewRetryBudget constructs a budget; limit <= 0 means unlimited.
func NewRetryBudget(limit int) *RetryBudget {
	return &RetryBudget{limit: int64(limit)}
}

// Allow reports whether one more retry attempt may be spent, consuming it
// if so.
func (b *RetryBudget) Allow() bool {
	if b == nil || b.limit <= 0 {
		return true
	}
	for {
		cur := b.spent.Load()
		if cur >= b.limit {
			return false
		}
		if b.spent.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Spent reports how many retry attempts have been consumed so far.
func (b *RetryBudget) Spent() int64 {
	if b == nil {
		return 0
	}
	return b.spent.Load()
}
