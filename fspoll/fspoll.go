// Package fspoll implements a portable filesystem change watcher that
// polls a path's stat snapshot on an interval rather than relying on any
// kernel notification API, so it works identically over network
// filesystems where inotify-style mechanisms don't. It is a Go rendering
// of libuv's uv_fs_poll_t.
package fspoll

import (
	"errors"

	"github.com/nondescript-dev/uvio/asyncwake"
	"github.com/nondescript-dev/uvio/loop"
)

// ErrNotStarted is returned by GetPath on a handle that was never started.
var ErrNotStarted = errors.New("fspoll: handle not started")

// Event is delivered to a Handle's callback on every poll that changes the
// observed stat snapshot, and on a stat error unless it repeats the
// previous poll's error.
type Event struct {
	Prev Stat
	Curr Stat
	Err  error
}

// Handle watches one path's stat snapshot on an interval. Every method
// must be called from the goroutine running the owning loop.Loop.
type Handle struct {
	loop.Handle

	cb       func(*Handle, *Event)
	path     string
	interval int64

	waker *asyncwake.Handle

	// ctx is the live poll context, nil when stopped. chainHead links every
	// context ever created for this handle, including ones whose stat is
	// still in flight after Stop (spec.md §4.2's teardown decoupling): a
	// context only leaves the chain once its in-flight stat, if any, has
	// completed.
	ctx       *pollCtx
	chainHead *pollCtx
}

// Init creates a Handle bound to l. The handle is inert until Start.
func Init(l *loop.Loop) *Handle {
	h := &Handle{}
	h.Loop = l
	h.Kind = loop.KindFsPoll
	return h
}

// Start begins polling path every intervalMs milliseconds, invoking cb on
// every detected change and on each stat error that differs from the
// previous poll's error. A baseline sample is taken
// immediately and never itself triggers cb (spec.md §4.2: first-sample
// suppression). Calling Start on an already-started handle restarts it
// against the new path/interval.
func (h *Handle) Start(path string, intervalMs int64, cb func(*Handle, *Event)) error {
	if h.IsClosing() {
		return loop.ErrHandleClosing
	}
	if intervalMs <= 0 {
		intervalMs = 1
	}
	if err := h.Stop(); err != nil {
		return err
	}

	if h.waker == nil {
		h.waker = asyncwake.Init(h.Loop, h.onWake)
		if err := h.waker.Start(); err != nil {
			return loop.WrapError("fspoll: start waker", err)
		}
	}

	ctx := &pollCtx{
		owner:     h,
		path:      path,
		interval:  intervalMs,
		startTime: h.Loop.Now(),
		previous:  h.chainHead,
	}
	loop.InitTimer(h.Loop, &ctx.timer)
	h.chainHead = ctx
	h.ctx = ctx
	h.cb = cb
	h.path = path
	h.interval = intervalMs

	h.Loop.Ref()
	h.MarkActive()
	ctx.fire()
	return nil
}

// Stop halts polling. If a stat is currently in flight for the active
// context, teardown completes asynchronously once it returns; Stop itself
// never blocks.
func (h *Handle) Stop() error {
	if h.ctx == nil {
		return nil
	}
	ctx := h.ctx
	h.ctx = nil
	ctx.stopped.Store(true)

	h.Loop.Unref()
	h.MarkInactive()

	if !ctx.busy.Load() {
		ctx.timer.Close(func() {
			h.unlinkCtx(ctx)
		})
	}
	return nil
}

// GetPath returns the path currently being watched.
func (h *Handle) GetPath() (string, error) {
	if h.ctx == nil {
		return "", ErrNotStarted
	}
	return h.path, nil
}

// Close stops polling (if active) and schedules closeCb to run on a later
// tick, after any in-flight stat for the current context has been
// abandoned.
func (h *Handle) Close(closeCb func()) error {
	if h.HasFlag(loop.FlagClosing) {
		return loop.ErrHandleClosing
	}
	h.BeginClosing()
	_ = h.Stop()
	if h.waker != nil {
		_ = h.waker.Close()
	}
	h.Loop.DeferClose(func() {
		h.FinishClosing()
		if closeCb != nil {
			closeCb()
		}
	})
	return nil
}

// onWake runs on the loop goroutine once per wake-channel drain. It
// collects every context in the chain with a completed stat result and
// processes each: live contexts compare against their previous snapshot
// and rearm; stopped contexts are spliced out of the chain.
func (h *Handle) onWake(*asyncwake.Handle) {
	for ctx := h.chainHead; ctx != nil; ctx = ctx.previous {
		if res := ctx.result.Swap(nil); res != nil {
			h.handleResult(ctx, res)
		}
	}
}

func (h *Handle) handleResult(ctx *pollCtx, res *statResult) {
	ctx.busy.Store(false)

	if ctx.stopped.Load() {
		h.unlinkCtx(ctx)
		return
	}

	// Mirrors original_source/src/fs-poll.c's poll_cb busy_polling dance:
	// an error only fires when it differs from the last reported one, and
	// a success only fires once a baseline exists, either because the
	// prior state was itself an error (recovery) or because the snapshot
	// actually changed.
	if res.err != nil {
		dup := ctx.busyPolling == pollError && sameError(ctx.lastErr, res.err)
		ctx.busyPolling = pollError
		ctx.lastErr = res.err
		if !dup {
			h.Loop.Metrics().StatErrors.Add(1)
			if h.cb != nil {
				h.cb(h, &Event{Err: res.err})
			}
		}
	} else {
		wasInitial := ctx.busyPolling == pollInitial
		recovering := ctx.busyPolling == pollError
		prev := ctx.prevStat
		changed := !wasInitial && (recovering || !prev.Equal(res.stat))
		ctx.prevStat = res.stat
		ctx.busyPolling = pollSteady
		ctx.lastErr = nil

		if changed {
			h.Loop.Metrics().PollFires.Add(1)
			if h.cb != nil {
				h.cb(h, &Event{Prev: prev, Curr: res.stat})
			}
		} else if !wasInitial {
			h.Loop.Metrics().PollSuppressed.Add(1)
		}
	}

	ctx.rearm()
}

// unlinkCtx splices ctx out of the handle's context chain, wherever in the
// chain it happens to sit: Stop/Start cycles can leave a stopped context
// behind a newer live one, so teardown can't assume ctx is the head.
func (h *Handle) unlinkCtx(ctx *pollCtx) {
	if h.chainHead == ctx {
		h.chainHead = ctx.previous
		return
	}
	for cur := h.chainHead; cur != nil; cur = cur.previous {
		if cur.previous == ctx {
			cur.previous = ctx.previous
			return
		}
	}
}
