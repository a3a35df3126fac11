package loop

import (
	"log/slog"
	"os"
)

// FatalHook is invoked when the loop detects a violation of one of its
// invariants that it cannot safely continue past (spec.md §7's
// process-terminating class, e.g. a corrupt wake-channel state transition).
// Each Loop holds its own hook, set with WithFatalHook, rather than a
// hardwired os.Exit call so tests can substitute a panic-and-recover in
// its place, mirroring the replaceable exit hook
// logrus.StandardLogger().ExitFunc offers for the same reason.
type FatalHook func(error)

// defaultFatalHook logs the error and terminates the process, matching
// libuv's abort() on an unrecoverable handle-state violation.
func defaultFatalHook(err error) {
	slog.Default().Error("loop: fatal invariant violation", "error", err)
	os.Exit(2)
}

// fatal invokes the loop's configured FatalHook. It never returns under the
// default hook; callers should treat it as noreturn but may still fall
// through for hooks substituted in tests.
func (l *Loop) fatal(err error) {
	if l.fatalHook == nil {
		defaultFatalHook(err)
		return
	}
	l.fatalHook(err)
}

// Fatal invokes the loop's configured FatalHook. Exported so handle
// packages outside loop (asyncwake, fspoll) can report an invariant
// violation they detect in their own state machines through the same
// replaceable hook the loop itself uses.
func (l *Loop) Fatal(err error) {
	l.fatal(err)
}
