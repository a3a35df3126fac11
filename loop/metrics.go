package loop

import "sync/atomic"

// Metrics holds atomic counters for loop activity. It deliberately does not
// attempt the teacher's P-Square streaming-percentile latency tracking
// (eventloop/metrics.go): this loop's handle set (async wakeups, fs polls,
// timers) is low-cardinality enough that simple counters, inspected with
// whatever aggregation the caller prefers, are a better fit than an
// in-process percentile estimator.
type Metrics struct {
	WakeSends      atomic.Uint64
	WakeCallbacks  atomic.Uint64
	PollFires      atomic.Uint64
	PollSuppressed atomic.Uint64
	StatErrors     atomic.Uint64
	TimersFired    atomic.Uint64
}

func newMetrics() *Metrics { return &Metrics{} }

// Snapshot is a point-in-time copy of Metrics' counters.
type Snapshot struct {
	WakeSends      uint64
	WakeCallbacks  uint64
	PollFires      uint64
	PollSuppressed uint64
	StatErrors     uint64
	TimersFired    uint64
}

// Snapshot reads all counters. Safe for concurrent use.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		WakeSends:      m.WakeSends.Load(),
		WakeCallbacks:  m.WakeCallbacks.Load(),
		PollFires:      m.PollFires.Load(),
		PollSuppressed: m.PollSuppressed.Load(),
		StatErrors:     m.StatErrors.Load(),
		TimersFired:    m.TimersFired.Load(),
	}
}
