package throttle

import (
	"context"
	"runtime"
)

// Pool caps the number of concurrently executing tasks process-wide.
// It exists to protect remote servers and local descriptor limits, not for
// correctness; both feed and icon downloads go through the same pool.
type Pool struct {
	sem chan struct{}
}

// NewPool creates a pool with the given number of slots, defaulting to the
// logical CPU count when size is not positive.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	return &Pool{sem: make(chan struct{}, size)}
}

// Size returns the pool capacity
func (p *Pool) Size() int { return cap(p.sem) }

// Do runs fn once a slot is free, blocking until then or until ctx is done.
// A task's failure is returned to its own caller only and doesn't affect
// other queued tasks.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.sem }()

	return fn()
}
