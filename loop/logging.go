package loop

import (
	"log/slog"

	"github.com/joeycumines/logiface"
	logifaceslog "github.com/joeycumines/logiface-slog"
)

// Logger is the structured logger used throughout the loop and its
// handles. It is a thin alias so callers importing this package never
// need to reference logiface's Event type parameter directly.
type Logger = logiface.Logger[*logifaceslog.Event]

// defaultLogger returns a Logger backed by log/slog's default handler, used
// when no WithLogger option is supplied.
func defaultLogger() *Logger {
	return logiface.New[*logifaceslog.Event](
		logifaceslog.NewLogger(slog.Default().Handler()),
	)
}

// logError logs err at warning level with the given message, a no-op if no
// logger was configured.
func (l *Loop) logError(msg string, err error) {
	if l.logger == nil {
		return
	}
	if b := l.logger.Warning(); b.Enabled() {
		b.Err(err).Log(msg)
	}
}

// logDebug logs a debug-level message, a no-op if no logger was configured.
func (l *Loop) logDebug(msg string) {
	if l.logger == nil {
		return
	}
	l.logger.Debug().Log(msg)
}
