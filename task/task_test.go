package task_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jochen0x90h/roomnode/task"
)

func TestWaitlistResumesFIFO(t *testing.T) {
	wl := task.NewWaitlist[int]()
	ctx := context.Background()

	order := make(chan int, 3)
	for i := 0; i < 3; i++ {
		i := i
		go func() {
			v, err := wl.Wait(ctx)
			require.NoError(t, err)
			require.Equal(t, i, v)
			order <- i
		}()
	}

	// give goroutines time to park, in registration order
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 3, wl.Len())

	for i := 0; i < 3; i++ {
		require.True(t, wl.ResumeFirst(i))
	}
	for i := 0; i < 3; i++ {
		require.Equal(t, i, <-order)
	}
}

func TestWaitlistCancelViaContext(t *testing.T) {
	wl := task.NewWaitlist[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := wl.Wait(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, wl.Len())
}

func TestSelectPicksLowestIndexOnTie(t *testing.T) {
	ch0 := make(chan struct{})
	ch1 := make(chan struct{})
	close(ch0)
	close(ch1)

	ctx := context.Background()
	i, err := task.Select(ctx, ch0, ch1)
	require.NoError(t, err)
	require.Equal(t, 0, i)
}

func TestSelectReturnsContextErrorWhenNothingReady(t *testing.T) {
	ch0 := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := task.Select(ctx, ch0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEventLatchesUntilReset(t *testing.T) {
	e := task.NewEvent()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, e.Wait(ctx), context.DeadlineExceeded)

	e.Set()
	require.NoError(t, e.Wait(context.Background()))
	require.NoError(t, e.Wait(context.Background())) // still set

	e.Reset()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel2()
	require.ErrorIs(t, e.Wait(ctx2), context.DeadlineExceeded)
}

func TestBarrierDeliversToAllWaiters(t *testing.T) {
	b := task.NewBarrier[string]()
	ctx := context.Background()
	results := make(chan string, 2)
	for i := 0; i < 2; i++ {
		go func() {
			v, err := b.Wait(ctx)
			require.NoError(t, err)
			results <- v
		}()
	}
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 2, b.ResumeAll("done"))
	require.Equal(t, "done", <-results)
	require.Equal(t, "done", <-results)
}

func TestTaskWaitReturnsFnError(t *testing.T) {
	boom := errTest("boom")
	ctx := context.Background()
	tk := task.Spawn(ctx, func(ctx context.Context) error { return boom })
	require.ErrorIs(t, tk.Wait(ctx), boom)
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestSemaphoreBoundsConcurrency(t *testing.T) {
	sem := task.NewSemaphore(1)
	ctx := context.Background()
	require.NoError(t, sem.Acquire(ctx))
	require.False(t, sem.TryAcquire())
	sem.Release()
	require.True(t, sem.TryAcquire())
}
