package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopRunExitsWithNoWork(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return with no timers and no refs")
	}
	require.Equal(t, StateClosed, l.State())
}

func TestLoopRunRespectsContextCancellation(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	l.Ref() // keep the loop alive so it would otherwise block forever
	defer l.Unref()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestLoopTimerFires(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	fired := make(chan struct{}, 1)
	var timer TimerHandle
	InitTimer(l, &timer)
	timer.Start(10, func() {
		fired <- struct{}{}
	})

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
	<-done
}

func TestLoopRunStatWorkerBoundsConcurrency(t *testing.T) {
	l, err := New(WithStatWorkers(2))
	require.NoError(t, err)
	defer l.Close()

	var cur, max atomic.Int64
	var wg sync.WaitGroup
	const jobs = 10
	wg.Add(jobs)
	for i := 0; i < jobs; i++ {
		l.RunStatWorker(func() {
			defer wg.Done()
			n := cur.Add(1)
			for {
				m := max.Load()
				if n <= m || max.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			cur.Add(-1)
		})
	}
	wg.Wait()

	require.LessOrEqual(t, max.Load(), int64(2))
}

func TestLoopFork(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Fork())

	fired := make(chan struct{}, 1)
	var timer TimerHandle
	InitTimer(l, &timer)
	timer.Start(5, func() { fired <- struct{}{} })

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timer never fired after Fork")
	}
	<-done
}

func TestLoopStop(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	defer l.Close()

	l.Ref()
	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	l.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Stop did not unblock Run")
	}
}
