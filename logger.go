package meshload

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// Enabled returns false so the caller skips message formatting entirely,
// making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for meshload and its sub-packages.
// By default meshload produces no log output. Pass nil to restore the
// silent default.
//
// Log levels used:
//   - [slog.LevelDebug]: internal diagnostics (chunk plans, buffer sizes)
//   - [slog.LevelInfo]: lifecycle events (GPU adapter selected, job done)
//   - [slog.LevelWarn]: silent degradations (CPU fallback, invalid records)
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	// Propagate to the GPU processor if it accepts a logger.
	if p := Processor(); p != nil {
		propagateLogger(p, l)
	}
}

// Logger returns the current logger. Sub-packages call this to share the
// same configuration without import cycles.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSetter is implemented by processors that accept a logger.
type loggerSetter interface {
	SetLogger(*slog.Logger)
}

func propagateLogger(p GPUProcessor, l *slog.Logger) {
	if ls, ok := p.(loggerSetter); ok {
		ls.SetLogger(l)
	}
}
