package loop

import (
	"container/list"
	"sync/atomic"
)

// Flag is a bitset of handle lifecycle flags.
type Flag uint8

const (
	// FlagActive marks a handle as actively participating in the loop
	// (e.g. a timer armed, a poll in flight).
	FlagActive Flag = 1 << iota
	// FlagClosing marks a handle that has begun closing; no new
	// operations may be initiated on it.
	FlagClosing
	// FlagClosed marks a handle whose teardown is complete: no pending
	// callback references it any longer.
	FlagClosed
	// FlagRef marks a handle that keeps the loop alive/referenced while
	// active. Handles created internally (e.g. FsPoll's timer) clear
	// this flag.
	FlagRef
	// FlagInternal marks handles the loop itself owns rather than the
	// caller, mirroring libuv's UV_HANDLE_INTERNAL.
	FlagInternal
)

// Kind tags the concrete type of a Handle for diagnostics.
type Kind uint8

const (
	KindAsync Kind = iota
	KindFsPoll
	KindTimer
)

func (k Kind) String() string {
	switch k {
	case KindAsync:
		return "async"
	case KindFsPoll:
		return "fspoll"
	case KindTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// Handle is the base embedded by every handle kind hosted by a Loop.
//
// Invariants (spec.md §3):
//   - FlagClosed implies FlagClosing.
//   - FlagActive transitions are monotone within one start/stop cycle.
//   - once FlagClosing is set, no new operations may be initiated.
//   - FlagClosed implies no pending callback references the handle.
type Handle struct {
	Loop *Loop
	Kind Kind

	// flags is atomic because asyncwake.Handle.Send reads FlagClosing from
	// arbitrary goroutines while the loop goroutine concurrently mutates it
	// via BeginClosing/MarkActive/etc.; every write still originates on the
	// loop goroutine, so a plain atomic load/store (no CAS) is sufficient.
	flags atomic.Uint32

	// elem is reserved for this handle's node in one of the loop's
	// intrusive lists. No handle kind in this module sets it: it stays nil,
	// and asyncwake.Handle keeps its async-list node in its own token field.
	elem *list.Element
}

func (h *Handle) HasFlag(f Flag) bool { return Flag(h.flags.Load())&f != 0 }

func (h *Handle) setFlag(f Flag)   { h.flags.Store(h.flags.Load() | uint32(f)) }
func (h *Handle) clearFlag(f Flag) { h.flags.Store(h.flags.Load() &^ uint32(f)) }

// IsActive reports whether the handle is currently active.
func (h *Handle) IsActive() bool { return h.HasFlag(FlagActive) }

// IsClosing reports whether the handle has begun (or finished) closing.
func (h *Handle) IsClosing() bool { return h.HasFlag(FlagClosing) }

// MarkActive marks the handle active. Monotone: calling it twice is a
// no-op. Exported so handle kinds defined in other packages (asyncwake,
// fspoll) can drive their own embedded Handle's lifecycle.
func (h *Handle) MarkActive() { h.setFlag(FlagActive) }

// MarkInactive clears the active flag.
func (h *Handle) MarkInactive() { h.clearFlag(FlagActive) }

// BeginClosing marks the handle as closing; callers must not initiate new
// operations on it afterward.
func (h *Handle) BeginClosing() { h.setFlag(FlagClosing) }

// FinishClosing marks the handle fully closed.
func (h *Handle) FinishClosing() { h.setFlag(FlagClosed); h.clearFlag(FlagActive) }
