package design

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool limits concurrent upstream generation attempts. Backoff waits happen
// outside the pool so a sleeping retry does not hold a slot.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool that allows at most limit concurrent attempts.
// A non-positive limit disables the pool.
func NewPool(limit int) *Pool {
	if limit < 1 {
		return nil
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot.
// Returns ctx.Err() if the context is cancelled while waiting.
// A nil pool runs fn directly.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
