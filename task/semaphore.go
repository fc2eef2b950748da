package task

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Semaphore bounds concurrent access to a resource with a fixed number of
// slots, the same role as the original's Semaphore. Backed directly by
// golang.org/x/sync/semaphore instead of reimplementing one on top of
// Waitlist: it already provides the FIFO-fair, context-cancellable
// acquire/release this package would otherwise have to hand-roll.
type Semaphore struct {
	sem *semaphore.Weighted
}

// NewSemaphore creates a semaphore with n available slots.
func NewSemaphore(n int64) *Semaphore {
	return &Semaphore{sem: semaphore.NewWeighted(n)}
}

// Acquire blocks until a slot is available or ctx is done.
func (s *Semaphore) Acquire(ctx context.Context) error {
	return s.sem.Acquire(ctx, 1)
}

// TryAcquire claims a slot without blocking, reporting whether it succeeded.
func (s *Semaphore) TryAcquire() bool {
	return s.sem.TryAcquire(1)
}

// Release returns a slot.
func (s *Semaphore) Release() {
	s.sem.Release(1)
}
