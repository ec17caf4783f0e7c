package routing

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/minh/wayloop/internal/model"
)

// Pool bounds how many route constructions run at once so a burst of
// planning requests cannot saturate every core and starve I/O-bound
// handlers. Acquisition honors request cancellation.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a construction pool with the given number of slots.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers))}
}

// Build runs BuildRoutes under a pool slot.
func (p *Pool) Build(ctx context.Context, in Input) ([]model.Route, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)
	return BuildRoutes(in), nil
}
