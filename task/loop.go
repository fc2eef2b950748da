package task

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Driver is the contract every hardware-facing component implements to
// participate in the event loop (spec §4.E, §9 Design Notes): a Poll method
// the Loop calls once per tick, in which the driver checks whatever flags or
// state an ISR set since the last tick and resumes the relevant waitlists
// from task context. Drivers never touch waitlists from interrupt context
// directly, which is what makes the runtime race-free without locks.
type Driver interface {
	Poll(ctx context.Context) error
}

// Loop drains every registered Driver once per tick until ctx is cancelled
// or a driver returns an error.
type Loop struct {
	log     *zap.Logger
	tick    time.Duration
	drivers []Driver
}

// NewLoop creates a Loop that polls its drivers every tick.
func NewLoop(tick time.Duration, log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{log: log, tick: tick}
}

// AddDriver registers d to be polled every tick, in registration order.
func (l *Loop) AddDriver(d Driver) {
	l.drivers = append(l.drivers, d)
}

// Run polls every driver in a loop until ctx is done or a driver errors.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.tick)
	defer ticker.Stop()
	for {
		for _, d := range l.drivers {
			if err := d.Poll(ctx); err != nil {
				l.log.Error("task: driver poll failed, stopping loop", zap.Error(err))
				return err
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Sleep blocks for d or until ctx is done, whichever comes first. The
// timer-backed equivalent of co_await'ing a delay.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
