// Package loop implements a minimal single-threaded event loop hosting two
// handle kinds ported from libuv: a cross-thread wake channel (see package
// asyncwake) and a filesystem stat-polling watcher (see package fspoll).
// The loop itself owns the timer heap, the I/O poller, and the wake
// channel's kernel descriptor; handle packages build on top of it rather
// than duplicating that plumbing.
package loop

import (
	"container/heap"
	"container/list"
	"context"
	"math"
	"sync"
	"time"
)

// AsyncObserver is implemented by handles registered on a loop's wake
// channel (spec.md §4.1.3). Observe runs the handle's consumer-side of the
// three-state handshake and invokes its callback if a signal was pending.
type AsyncObserver interface {
	Observe()
}

// Loop is a single-threaded event loop. All methods except Wake, Stop,
// RunStatWorker and Metrics must be called from the goroutine running Run;
// those four are safe to call from any goroutine.
type Loop struct {
	state *atomicState
	epoch time.Time

	timers timerHeap

	deferred []func()

	poller ioPoller

	// wakeRFD, wakeWFD and asyncHandles are created eagerly in New (rather
	// than lazily on first AsyncHandle init, as spec.md §3's WakeChannel
	// describes) specifically so that Stop, documented safe to call from
	// any goroutine, never has to mutate them concurrently with the loop
	// goroutine reading them in Run/onWakeReadable. After New returns, only
	// Fork (loop goroutine only) replaces wakeRFD/wakeWFD.
	wakeRFD      int
	wakeWFD      int
	asyncHandles *list.List // of AsyncObserver

	refCount int

	// statSem bounds concurrent off-loop blocking work (fspoll's stat
	// calls): a buffered channel used as a counting semaphore, the same
	// pattern gaio's watcher pool and the teacher's worker-bounded ingress
	// both use for "goroutine per call, backed by a semaphore" (spec.md
	// §4.2.2's asynchronous stat contract).
	statSem chan struct{}

	logger    *Logger
	metrics   *Metrics
	fatalHook FatalHook

	closeOnce sync.Once
}

// New constructs a Loop. The returned Loop is inert until Run is called.
func New(opts ...Option) (*Loop, error) {
	cfg := resolveOptions(opts)

	p, err := newIOPoller()
	if err != nil {
		return nil, WrapError("loop: create poller", err)
	}

	rfd, wfd, err := createWakeFd()
	if err != nil {
		_ = p.close()
		return nil, WrapError("loop: create wake channel", err)
	}
	if err := p.add(rfd); err != nil {
		closeWake(rfd, wfd)
		_ = p.close()
		return nil, WrapError("loop: register wake channel", err)
	}

	return &Loop{
		state:        newAtomicState(StateCreated),
		epoch:        time.Now(),
		poller:       p,
		wakeRFD:      rfd,
		wakeWFD:      wfd,
		asyncHandles: list.New(),
		statSem:      make(chan struct{}, cfg.statWorkers),
		logger:       cfg.logger,
		metrics:      newMetrics(),
		fatalHook:    cfg.fatalHook,
	}, nil
}

// RunStatWorker runs fn on a goroutine bounded by the loop's stat-worker
// semaphore: at most the configured number (see WithStatWorkers) run
// concurrently across every fspoll.Handle sharing this loop, rather than
// one unbounded goroutine per in-flight poll. fn is expected to deliver its
// result back to the loop goroutine itself (fspoll does this via its
// asyncwake.Handle), matching spec.md §4.2.2's "loop executes it off-thread
// and calls back on the loop thread" contract.
func (l *Loop) RunStatWorker(fn func()) {
	go func() {
		l.statSem <- struct{}{}
		defer func() { <-l.statSem }()
		fn()
	}()
}

// Fork re-creates the wake channel's kernel descriptors after the process
// forks (spec.md §4.1.4): the descriptors inherited from the parent must
// not be reused in the child. Must be called from the loop's own
// goroutine, before Run resumes in the child, and leaves the async handle
// list untouched so already-registered handles keep working once the
// channel is rebuilt.
//
// Go offers no safe raw fork() for a multi-threaded runtime — only
// fork+exec via os/exec or syscall.ForkExec, which never reaches this
// code path at all. This method exists for the rarer case of a caller
// that performs a raw fork through cgo (or inherits a forked process some
// other way) and needs the loop's wake channel rebuilt in the child, the
// same role libuv's own fork hook plays for uv_loop_fork.
func (l *Loop) Fork() error {
	if err := l.poller.remove(l.wakeRFD); err != nil {
		return WrapError("loop: fork: deregister old wake channel", err)
	}
	closeWake(l.wakeRFD, l.wakeWFD)

	rfd, wfd, err := createWakeFd()
	if err != nil {
		return WrapError("loop: fork: create wake channel", err)
	}
	if err := l.poller.add(rfd); err != nil {
		closeWake(rfd, wfd)
		return WrapError("loop: fork: register wake channel", err)
	}
	l.wakeRFD = rfd
	l.wakeWFD = wfd
	return nil
}

// Now returns milliseconds elapsed since the loop was constructed. It is
// the clock timers and FsPoll's drift compensation measure against; it is
// not wall-clock time and has no relation to the system clock.
func (l *Loop) Now() int64 {
	return time.Since(l.epoch).Milliseconds()
}

// State reports the loop's current run state.
func (l *Loop) State() RunState { return l.state.Load() }

// Ref marks the loop as kept alive by an active handle. Run will not
// return while the ref count is positive, even with an empty timer heap
// (this is how AsyncWake, which has no timer, keeps the loop running).
func (l *Loop) Ref() { l.refCount++ }

// Unref reverses a prior Ref.
func (l *Loop) Unref() {
	if l.refCount > 0 {
		l.refCount--
	}
}

// Stop requests that Run return after the current tick. Safe to call from
// any goroutine; wakes the loop if it is blocked in the poller.
func (l *Loop) Stop() {
	l.state.Store(StateClosing)
	_ = l.Wake()
}

// Run drives the loop until ctx is done, Stop is called, or there is no
// remaining work (no armed timers, no positive ref count, and no pending
// deferred close callbacks).
func (l *Loop) Run(ctx context.Context) error {
	if !l.state.TryTransition(StateCreated, StateRunning) {
		return ErrAlreadyRunning
	}

	// A blocked poller only wakes on a wake-channel write or a timer
	// deadline; watch ctx independently and route cancellation through
	// Stop so it reaches the poller the same way any other caller's Stop
	// would.
	if done := ctx.Done(); done != nil {
		stopWatch := make(chan struct{})
		defer close(stopWatch)
		go func() {
			select {
			case <-done:
				l.Stop()
			case <-stopWatch:
			}
		}()
	}

	for {
		if l.state.Load() == StateClosing {
			break
		}
		if l.refCount == 0 && len(l.timers) == 0 && len(l.deferred) == 0 {
			break
		}

		timeout := l.computeTimeout()

		// CAS rather than Store: a Stop that lands between the check above
		// and this point must not have its StateClosing overwritten.
		l.state.TryTransition(StateRunning, StatePolling)
		ready, err := l.poller.wait(timeout)
		l.state.TryTransition(StatePolling, StateRunning)
		if err != nil {
			return WrapError("loop: poll wait", err)
		}

		for _, fd := range ready {
			if fd == l.wakeRFD {
				l.onWakeReadable()
			}
		}

		l.runTimers()
		l.runDeferred()
	}

	l.state.Store(StateClosed)
	return nil
}

// computeTimeout returns the epoll/kqueue timeout in milliseconds: -1
// (block indefinitely) if no timer is armed, otherwise the time remaining
// until the earliest deadline, clamped to a non-negative int32 range.
func (l *Loop) computeTimeout() int {
	if len(l.timers) == 0 {
		return -1
	}
	d := l.timers[0].deadline - l.Now()
	if d < 0 {
		d = 0
	}
	if d > math.MaxInt32 {
		d = math.MaxInt32
	}
	return int(d)
}

// runTimers fires every timer whose deadline has elapsed. Lazily-deleted
// entries (handle == nil, left behind by TimerHandle.invalidate) are
// discarded without firing.
func (l *Loop) runTimers() {
	now := l.Now()
	for len(l.timers) > 0 {
		entry := l.timers[0]
		if entry.deadline > now {
			return
		}
		heap.Pop(&l.timers)
		if entry.handle == nil {
			continue
		}
		h := entry.handle
		h.entry = nil
		h.MarkInactive()
		cb := h.cb
		if cb != nil {
			l.metrics.TimersFired.Add(1)
			cb()
		}
	}
}

// deferClose schedules fn to run on a later tick, after the current one
// finishes dispatching. Used by handle Close methods so a callback never
// runs synchronously with the call that scheduled it, matching libuv's
// uv_close semantics.
func (l *Loop) deferClose(fn func()) {
	l.deferred = append(l.deferred, fn)
}

// DeferClose schedules fn to run on a later tick, after the current one
// finishes dispatching. Exported for handle packages outside loop (e.g.
// fspoll) whose Close needs the same never-synchronous-with-the-caller
// guarantee TimerHandle.Close gets from the unexported deferClose.
func (l *Loop) DeferClose(fn func()) {
	l.deferClose(fn)
}

func (l *Loop) runDeferred() {
	if len(l.deferred) == 0 {
		return
	}
	batch := l.deferred
	l.deferred = nil
	for _, fn := range batch {
		fn()
	}
}

// RegisterAsync adds o to the loop's async-handle list. Must be called
// from the loop's own goroutine. The returned token must be passed to
// UnregisterAsync when the handle closes.
func (l *Loop) RegisterAsync(o AsyncObserver) *list.Element {
	return l.asyncHandles.PushBack(o)
}

// UnregisterAsync removes a handle previously added by RegisterAsync. Must
// be called from the loop's own goroutine.
func (l *Loop) UnregisterAsync(token *list.Element) {
	if token != nil {
		l.asyncHandles.Remove(token)
	}
}

// Wake increments the wake channel's counter, causing the loop (if
// currently blocked in the poller) to wake and dispatch pending async
// handles on its next tick. Safe to call from any goroutine, any number of
// times concurrently; repeated calls before the loop drains coalesce into
// a single wake (spec.md §4.1, the point of the three-state handshake
// async handles layer on top of this).
func (l *Loop) Wake() error {
	l.metrics.WakeSends.Add(1)
	return writeWake(l.wakeWFD, l.wakeRFD)
}

// Metrics returns the loop's atomic activity counters.
func (l *Loop) Metrics() *Metrics { return l.metrics }

// onWakeReadable drains the wake channel's kernel descriptor and dispatches
// to every registered async handle exactly once (spec.md §4.1.3): the
// handle list is walked front-to-back, each entry moved to the tail as it
// is processed so handles added mid-dispatch are not visited twice in the
// same pass, while the original snapshot length bounds the loop so newly
// added handles wait for the next wake.
func (l *Loop) onWakeReadable() {
	if err := drainWake(l.wakeRFD); err != nil {
		l.logError("drain wake channel", err)
	}
	n := l.asyncHandles.Len()
	e := l.asyncHandles.Front()
	for i := 0; i < n && e != nil; i++ {
		next := e.Next()
		l.asyncHandles.MoveToBack(e)
		if o, ok := e.Value.(AsyncObserver); ok {
			o.Observe()
		}
		e = next
	}
}

// Close releases the loop's kernel resources (the I/O poller and the wake
// channel). It must be called after Run returns. Close is idempotent.
func (l *Loop) Close() error {
	var err error
	l.closeOnce.Do(func() {
		closeWake(l.wakeRFD, l.wakeWFD)
		err = l.poller.close()
	})
	return err
}
