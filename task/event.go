package task

import (
	"context"
	"sync"
)

// Event is a level-triggered signal: Set latches it open, Wait returns
// immediately for as long as it stays set, Reset closes it again. Mirrors
// the original's Event (a Waitlist specialization with no payload).
type Event struct {
	mu sync.Mutex
	ch chan struct{}
}

// NewEvent creates an initially-unset Event.
func NewEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

// Set latches the event open, resuming every current and future waiter
// until Reset.
func (e *Event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.ch:
	default:
		close(e.ch)
	}
}

// Reset closes the event again.
func (e *Event) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.ch:
		e.ch = make(chan struct{})
	default:
	}
}

// Wait blocks until the event is set or ctx is done.
func (e *Event) Wait(ctx context.Context) error {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// C returns the event's current underlying channel, for use as a Select
// case. The channel identity changes on Reset, so callers that Select in a
// loop across Resets should re-fetch C() each iteration.
func (e *Event) C() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch
}
