package loop

import (
	"errors"
	"fmt"
)

// Standard errors returned by the loop and its handles.
var (
	// ErrClosed is the cause asyncwake wraps into the errors it passes to
	// the FatalHook for a corrupted handle state. No Loop method returns
	// it; operations on a loop after Close are not checked.
	ErrClosed = errors.New("loop: closed")

	// ErrAlreadyRunning is returned when Run is called on a loop that is
	// already running.
	ErrAlreadyRunning = errors.New("loop: already running")

	// ErrHandleClosing is returned when an operation is attempted on a
	// handle that has entered its closing phase.
	ErrHandleClosing = errors.New("loop: handle is closing")
)

// WrapError wraps an error with a message, preserving it as the cause for
// errors.Is/errors.As.
func WrapError(message string, cause error) error {
	return fmt.Errorf("%s: %w", message, cause)
}
