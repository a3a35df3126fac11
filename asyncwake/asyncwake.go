// Package asyncwake implements a cross-thread wake-up handle hosted by a
// loop.Loop: any goroutine may call Send to request that the handle's
// callback run on the loop's own goroutine, with concurrent sends that
// arrive before the callback has had a chance to run coalescing into a
// single invocation. It is a Go rendering of libuv's uv_async_t.
package asyncwake

import (
	"container/list"
	"runtime"
	"sync/atomic"

	"github.com/nondescript-dev/uvio/loop"
)

// spinIterations bounds the observer's and Close's busy-wait before
// yielding the scheduler: the same anti-resonance prime libuv's
// uv__async_spin uses so a busy-waiter doesn't synchronize with the
// scheduler's own timeslice.
const spinIterations = 997

// pending states (spec.md §4.1.2). A Handle occupies exactly one at a time.
const (
	pendingIdle    uint32 = iota // not signalled
	pendingSending               // a sender has claimed the transition, still publishing
	pendingReady                 // signal posted, sender has exited its critical section
)

// Handle is a cross-thread wake-up. Send is safe to call from any
// goroutine; every other method must be called from the goroutine running
// the owning Loop.
type Handle struct {
	loop.Handle

	cb func(*Handle)

	// pending implements the three-state send/observe handshake. See
	// Send's doc comment for the full protocol.
	pending atomic.Uint32

	token *list.Element
}

// Init creates a Handle bound to l. The handle is inert until Start.
func Init(l *loop.Loop, cb func(*Handle)) *Handle {
	h := &Handle{cb: cb}
	h.Loop = l
	h.Kind = loop.KindAsync
	return h
}

// Start registers the handle with its loop's wake channel and refs the
// loop, keeping Run from returning while the handle is active. Must be
// called from the loop's own goroutine.
func (h *Handle) Start() error {
	if h.IsClosing() {
		return loop.ErrHandleClosing
	}
	if h.IsActive() {
		return nil
	}
	h.token = h.Loop.RegisterAsync(h)
	h.Loop.Ref()
	h.MarkActive()
	return nil
}

// Send requests invocation of the handle's callback on the loop goroutine.
// Infallible from the caller's perspective in the sense spec.md §4.1.1
// describes: under the default FatalHook the only error returned is
// loop.ErrHandleClosing, once Close has been called. A failed wake write
// and a violated handshake go to the loop's FatalHook, and return an error
// only when a substituted hook returns. Safe to call from any goroutine,
// including concurrently with itself; any number of sends that arrive
// before the loop has
// dispatched a pending one coalesce into a single callback invocation.
//
// Sender protocol (spec.md §4.1.2):
//  1. Relaxed read of pending; non-zero means some other send already
//     claimed this batch, so return (coalesced).
//  2. CAS idle -> sending. Losing the race means another sender got there
//     first; return.
//  3. Write the wake byte, retrying on EINTR, tolerating EAGAIN as success.
//  4. CAS sending -> ready. Must succeed: nothing else may have touched
//     pending between steps 2 and 4 while it holds the sending state. A
//     failure here means the invariant was violated elsewhere and is fatal.
func (h *Handle) Send() error {
	if h.HasFlag(loop.FlagClosing) {
		return loop.ErrHandleClosing
	}
	if h.pending.Load() != pendingIdle {
		return nil
	}
	if !h.pending.CompareAndSwap(pendingIdle, pendingSending) {
		return nil
	}
	if err := h.Loop.Wake(); err != nil {
		err = loop.WrapError("asyncwake: send", err)
		h.Loop.Fatal(err)
		return err
	}
	if !h.pending.CompareAndSwap(pendingSending, pendingReady) {
		h.Loop.Fatal(loop.WrapError("asyncwake: send handshake violated", loop.ErrClosed))
		return loop.ErrClosed
	}
	return nil
}

// Observe implements loop.AsyncObserver. It is called once per loop wake
// for every registered handle, regardless of whether a send landed on this
// particular one.
//
// Observer protocol (spec.md §4.1.2, loop thread only): spin on CAS
// ready -> idle. A failed CAS means either the handle isn't actually
// pending (read back idle: skip it) or a sender is still between its own
// CAS idle->sending and sending->ready (read back sending: busy-wait,
// yielding every spinIterations rounds). The CAS succeeding is what makes
// it safe to read any handle field the sender may still be finalising.
func (h *Handle) Observe() {
	if h.HasFlag(loop.FlagClosed) {
		// Reachable only if UnregisterAsync failed to take this handle out
		// of the wake channel's list before Close finished: a corrupt
		// chain, not a recoverable condition.
		h.Loop.Fatal(loop.WrapError("asyncwake: observed after close", loop.ErrClosed))
		return
	}

	iterations := 0
	for {
		if h.pending.CompareAndSwap(pendingReady, pendingIdle) {
			break
		}
		if h.pending.Load() == pendingIdle {
			return
		}
		iterations++
		if iterations%spinIterations == 0 {
			runtime.Gosched()
		}
	}

	if h.cb != nil {
		h.Loop.Metrics().WakeCallbacks.Add(1)
		h.cb(h)
	}
}

// Close detaches the handle from its loop. Must be called from the loop's
// own goroutine (Send is the only cross-thread-safe operation). Spins
// (bounded, yielding the same way the observer protocol does) until any
// in-flight Send on this handle has finished publishing, per spec.md
// §4.1.1, before the handle is detached and its storage made safe to
// release.
func (h *Handle) Close() error {
	if h.HasFlag(loop.FlagClosing) {
		return loop.ErrHandleClosing
	}
	h.BeginClosing()

	iterations := 0
	for h.pending.Load() == pendingSending {
		iterations++
		if iterations%spinIterations == 0 {
			runtime.Gosched()
		}
	}

	if h.IsActive() {
		h.Loop.UnregisterAsync(h.token)
		h.Loop.Unref()
		h.MarkInactive()
	}
	h.FinishClosing()
	return nil
}
