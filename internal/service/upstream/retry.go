package upstream

import (
	"context"
	"sync/atomic"
)

// RetryCounter tallies retry attempts for one job. The orchestrator plants one
// in the context before a walk so retries performed inside the caller show up
// in the job's progress snapshots.
type RetryCounter struct {
	n atomic.Int64
}

func NewRetryCounter() *RetryCounter { return &RetryCounter{} }

func (r *RetryCounter) Inc()       { r.n.Add(1) }
func (r *RetryCounter) Count() int { return int(r.n.Load()) }

type retryCounterKey struct{}

// ContextWithRetryCounter attaches a retry counter to ctx.
func ContextWithRetryCounter(ctx context.Context, rc *RetryCounter) context.Context {
	return context.WithValue(ctx, retryCounterKey{}, rc)
}

// RetryCounterFrom returns the counter attached to ctx, or nil.
func RetryCounterFrom(ctx context.Context) *RetryCounter {
	rc, _ := ctx.Value(retryCounterKey{}).(*RetryCounter)
	return rc
}
