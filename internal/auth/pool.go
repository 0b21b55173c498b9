package auth

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// HashPool bounds how many bcrypt computations run at once.
//
// Each hash or verify pins a CPU for tens of milliseconds. Without a bound a
// burst of sign-ins can occupy every core and stall unrelated requests.
// Callers wait for a slot, or give up when their request context ends.
//
// A nil *HashPool imposes no limit.
type HashPool struct {
	sem  *semaphore.Weighted
	size int
}

// NewHashPool allows size concurrent computations. size <= 0 means one per
// available CPU (GOMAXPROCS).
func NewHashPool(size int) *HashPool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &HashPool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Size returns the number of slots.
func (p *HashPool) Size() int {
	if p == nil {
		return 0
	}
	return p.size
}

// Do runs fn once a slot is free. It blocks until then or until ctx is
// done, in which case fn is not run and the context error is returned.
func (p *HashPool) Do(ctx context.Context, fn func()) error {
	if p == nil {
		fn()
		return nil
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("auth: waiting for hash slot: %w", err)
	}
	defer p.sem.Release(1)

	fn()
	return nil
}
