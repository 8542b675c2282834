// Package taskpool bounds the number of CPU-heavy media jobs that may run
// concurrently across the whole process.
package taskpool

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool is a counting semaphore gating concurrent CPU-heavy work. A single
// Pool is shared across every artifact generator so the total number of
// concurrent transcodes, thumbnail extractions, and sprite-sheet builds
// cannot exceed its configured capacity.
type Pool struct {
	sem *semaphore.Weighted
}

// New creates a Pool allowing up to concurrency simultaneous jobs.
func New(concurrency int) *Pool {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(concurrency))}
}

// Execute runs fn while holding one permit from the pool for its entire
// duration. If ctx is cancelled while waiting for a permit, Execute returns
// ctx.Err() without ever calling fn and without leaking a permit.
func Execute[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer p.sem.Release(1)
	return fn(ctx)
}
