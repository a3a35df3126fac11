package fspoll

import (
	"sync/atomic"

	"github.com/nondescript-dev/uvio/loop"
)

// statResult carries a completed stat call back to the loop goroutine.
type statResult struct {
	stat Stat
	err  error
}

// busyPolling mirrors original_source/src/fs-poll.c's ctx->busy_polling
// tri-state: pollInitial before the first sample has resolved, pollError
// while the most recent sample failed, pollSteady once at least one
// successful sample has been recorded.
const (
	pollInitial = 0
	pollError   = -1
	pollSteady  = 1
)

// pollCtx is one watch cycle's state: the path and interval it was started
// with, the timer driving its next sample, and the previous snapshot it
// compares against. A new pollCtx is created on every Start; the old one
// (if its stat is still in flight) outlives its own Stop until that stat
// returns, linked into the handle's chain via previous.
//
// Grounded on original_source/src/fs-poll.c's struct poll_ctx, adapted
// from single-threaded-callback (libuv's uv_fs_stat running on its
// thread pool, delivered via a completion queue) to an explicit goroutine
// reporting through the owner's asyncwake.Handle.
type pollCtx struct {
	owner     *Handle
	path      string
	interval  int64
	startTime int64

	timer loop.TimerHandle

	busy    atomic.Bool
	stopped atomic.Bool
	result  atomic.Pointer[statResult]

	prevStat    Stat
	busyPolling int
	lastErr     error

	previous *pollCtx
}

// sameError reports whether a and b represent the same failure, for the
// purposes of the error-dedup state above. Go's os errors for a repeated
// stat on the same path are distinct *PathError instances wrapping the
// same errno, so string equality (not errors.Is, which doesn't unwrap its
// target) is what actually compares "the same error code" here.
func sameError(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Error() == b.Error()
}

// fire runs one stat sample on the loop's bounded stat-worker pool
// (standing in for libuv's thread-pool uv_fs_stat) and wakes the loop once
// it completes.
func (ctx *pollCtx) fire() {
	ctx.busy.Store(true)
	ctx.owner.Loop.RunStatWorker(func() {
		st, err := statPath(ctx.path)
		ctx.result.Store(&statResult{stat: st, err: err})
		_ = ctx.owner.waker.Send()
	})
}

// rearm schedules the next sample, compensating for drift accumulated
// since the watch started: the delay is interval minus how far past the
// last interval boundary "now" already is, so a slow callback doesn't push
// every subsequent sample later by the same amount (original_source's
// poll_cb: "interval -= (uv_now(loop) - ctx->start_time) % interval").
func (ctx *pollCtx) rearm() {
	if ctx.stopped.Load() {
		return
	}
	now := ctx.owner.Loop.Now()
	elapsed := now - ctx.startTime
	delay := ctx.interval - elapsed%ctx.interval
	ctx.timer.Start(delay, ctx.fire)
}
