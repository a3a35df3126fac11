package asyncwake

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nondescript-dev/uvio/loop"
)

// startLoop creates a Loop, runs it on a new goroutine, and returns a stop
// func that cancels the loop, waits for Run to return, and closes the loop.
// With no handle started the loop has no work, so Run may already have
// returned by the time the caller uses it. Start/Close are loop-thread-only
// operations (spec.md §5); Send is the one safe to call concurrently with
// Run.
func startLoop(t *testing.T) (*loop.Loop, func()) {
	t.Helper()
	l, err := loop.New()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	return l, func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("loop did not shut down")
		}
		require.NoError(t, l.Close())
	}
}

func TestHandleSendInvokesCallback(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	fired := make(chan struct{}, 1)
	h := Init(l, func(*Handle) {
		fired <- struct{}{}
	})
	require.NoError(t, h.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.NoError(t, h.Send())

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, h.Close())
}

func TestHandleSendCoalescesConcurrentCalls(t *testing.T) {
	l, err := loop.New()
	require.NoError(t, err)
	defer l.Close()

	var callbacks atomic.Int64
	h := Init(l, func(*Handle) {
		callbacks.Add(1)
	})
	require.NoError(t, h.Start())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	const sends = 200
	var sendsDone atomic.Bool
	go func() {
		for i := 0; i < sends; i++ {
			_ = h.Send()
		}
		sendsDone.Store(true)
	}()

	require.Eventually(t, sendsDone.Load, time.Second, time.Millisecond)
	// Give the loop a moment to drain whatever coalesced wakes resulted
	// from the burst above before inspecting the counter.
	time.Sleep(50 * time.Millisecond)

	n := callbacks.Load()
	require.Greater(t, n, int64(0))
	require.LessOrEqual(t, n, int64(sends))

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, h.Close())
}

func TestHandleSendAfterCloseFails(t *testing.T) {
	l, stop := startLoop(t)
	defer stop()

	h := Init(l, func(*Handle) {})
	// Closing immediately after construction without Starting is the one
	// operation that's safe to do from outside the loop goroutine here:
	// there's no list membership or ref count to race against yet.
	require.NoError(t, h.Close())

	require.ErrorIs(t, h.Send(), loop.ErrHandleClosing)
}
