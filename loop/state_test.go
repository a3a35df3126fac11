package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomicStateTryTransition(t *testing.T) {
	s := newAtomicState(StateCreated)
	assert.Equal(t, StateCreated, s.Load())

	assert.True(t, s.TryTransition(StateCreated, StateRunning))
	assert.Equal(t, StateRunning, s.Load())

	// Wrong "from" fails and leaves the state untouched.
	assert.False(t, s.TryTransition(StateCreated, StateClosed))
	assert.Equal(t, StateRunning, s.Load())

	s.Store(StateClosed)
	assert.Equal(t, StateClosed, s.Load())
}

func TestRunStateString(t *testing.T) {
	for _, tt := range []struct {
		state RunState
		want  string
	}{
		{StateCreated, "created"},
		{StateRunning, "running"},
		{StatePolling, "polling"},
		{StateClosing, "closing"},
		{StateClosed, "closed"},
		{RunState(99), "unknown"},
	} {
		assert.Equal(t, tt.want, tt.state.String())
	}
}
