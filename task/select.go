package task

import (
	"context"
	"reflect"
)

// Select blocks until at least one of chans has a value ready, then returns
// the lowest index among those ready (spec's documented tie-break when
// several awaitables resolve in the same scheduling step), or -1 and ctx's
// error if ctx is done first. Each channel in chans must be safe to poll
// non-blockingly (a receive-only channel that is never written to after
// becoming ready, e.g. Event.C() or Task.Done()).
func Select(ctx context.Context, chans ...<-chan struct{}) (int, error) {
	for {
		for i, ch := range chans {
			select {
			case <-ch:
				return i, nil
			default:
			}
		}

		cases := make([]reflect.SelectCase, len(chans)+1)
		for i, ch := range chans {
			cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)}
		}
		cases[len(chans)] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ctx.Done())}

		chosen, _, _ := reflect.Select(cases)
		if chosen == len(chans) {
			return -1, ctx.Err()
		}
		// Re-poll in index order instead of trusting chosen directly: if
		// several channels became ready in the same instant, reflect.Select
		// picks among them uniformly at random, but callers rely on the
		// lowest-index one winning.
	}
}
