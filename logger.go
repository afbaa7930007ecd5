package cmdemu

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/cmdemu/internal/hazard"
	"github.com/gogpu/cmdemu/native/trace"
	"github.com/gogpu/cmdemu/queue"
	"github.com/gogpu/cmdemu/resource"
)

// nopHandler is a slog.Handler that discards all records. Enabled returns
// false so callers skip formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(newNopLogger())
}

// SetLogger configures the logger for cmdemu and all its sub-packages.
// By default cmdemu produces no log output. Pass nil to restore the silent
// default.
//
// Log levels used:
//   - [slog.LevelDebug]: per-submission and per-resource diagnostics
//   - [slog.LevelInfo]: device and queue lifecycle
//   - [slog.LevelWarn]: device loss and rejected submissions
//
// Example:
//
//	cmdemu.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)
	resource.SetLogger(l)
	hazard.SetLogger(l)
	queue.SetLogger(l)
	trace.SetLogger(l)
}

// Logger returns the current logger.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

func logger() *slog.Logger { return loggerPtr.Load() }
