package loop

import "container/heap"

// TimerHandle is a one-shot timer sub-handle, embedded by handles that need
// drift-free periodic scheduling (FsPoll's PollCtx embeds one per spec.md
// §3).
type TimerHandle struct {
	Handle
	cb      func()
	closeCb func()
	entry   *timerEntry
}

// InitTimer initializes a TimerHandle against loop. The timer starts
// inactive; callers must call Start to arm it.
func InitTimer(l *Loop, h *TimerHandle) {
	h.Loop = l
	h.Kind = KindTimer
}

// Start arms the timer to fire cb once, after delay. Calling Start while
// already armed re-arms it (the prior entry is invalidated).
func (h *TimerHandle) Start(delayMs int64, cb func()) {
	if delayMs < 0 {
		delayMs = 0
	}
	h.invalidate()
	h.cb = cb
	entry := &timerEntry{handle: h, deadline: h.Loop.Now() + delayMs}
	h.entry = entry
	h.MarkActive()
	heap.Push(&h.Loop.timers, entry)
}

// Close disarms the timer (if armed) and schedules closeCb to run on a
// later tick, mirroring libuv's asynchronous uv_close semantics: the
// callback never runs synchronously with Close.
func (h *TimerHandle) Close(closeCb func()) {
	h.invalidate()
	h.BeginClosing()
	h.closeCb = closeCb
	h.Loop.deferClose(func() {
		h.FinishClosing()
		if h.closeCb != nil {
			h.closeCb()
		}
	})
}

// invalidate detaches the timer's current heap entry, if any, without
// touching the heap itself (lazy deletion: fired entries are skipped by
// runTimers when their handle is no longer armed).
func (h *TimerHandle) invalidate() {
	if h.entry != nil {
		h.entry.handle = nil
		h.entry = nil
	}
	h.MarkInactive()
}

// timerEntry is a min-heap node. handle is nil once the timer has been
// invalidated or re-armed elsewhere (lazy deletion avoids O(n) heap
// removal, the same tradeoff gaio's aiocb/timedHeap and the teacher's
// timerHeap make by storing a back-index instead; here the back-index is
// replaced with a tombstone since only one entry per handle is ever live).
type timerEntry struct {
	handle   *TimerHandle
	deadline int64
	index    int
}

type timerHeap []*timerEntry

func (q timerHeap) Len() int            { return len(q) }
func (q timerHeap) Less(i, j int) bool  { return q[i].deadline < q[j].deadline }
func (q timerHeap) Swap(i, j int)       { q[i], q[j] = q[j], q[i]; q[i].index = i; q[j].index = j }
func (q *timerHeap) Push(x interface{}) {
	e := x.(*timerEntry)
	e.index = len(*q)
	*q = append(*q, e)
}
func (q *timerHeap) Pop() interface{} {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return e
}
