package vidcomp

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine,
// including the decode/upload thread.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for vidcomp and all its sub-packages.
// By default, vidcomp produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by vidcomp:
//   - [slog.LevelDebug]: internal diagnostics (slot publishes, pipeline state)
//   - [slog.LevelInfo]: important lifecycle events (stream reconfiguration)
//   - [slog.LevelWarn]: non-fatal issues (fence wait timeout retries,
//     dropped frames, YCbCr parameter discrepancies)
//   - [slog.LevelError]: failures that abort a stream configuration
//
// Example:
//
//	// Enable info-level logging to stderr:
//	vidcomp.SetLogger(slog.Default())
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
}

// Logger returns the current logger used by vidcomp.
// Sub-packages (backend/gpu, backend/software) call this to share the same
// logger configuration without introducing import cycles.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
