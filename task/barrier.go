package task

import "context"

// Barrier lets one or more waiters block until a value of type T is
// contributed, then delivers that same value to all of them at once.
// Mirrors the original's Barrier<T>, used where several coroutines need to
// observe the same completion payload (e.g. a flash write's result).
type Barrier[T any] struct {
	wl *Waitlist[T]
}

// NewBarrier creates an empty barrier.
func NewBarrier[T any]() *Barrier[T] {
	return &Barrier[T]{wl: NewWaitlist[T]()}
}

// Wait blocks until the next ResumeAll, or ctx is done.
func (b *Barrier[T]) Wait(ctx context.Context) (T, error) {
	return b.wl.Wait(ctx)
}

// ResumeAll delivers v to every waiter currently parked on the barrier,
// returning how many were resumed.
func (b *Barrier[T]) ResumeAll(v T) int {
	return b.wl.ResumeAll(v)
}
