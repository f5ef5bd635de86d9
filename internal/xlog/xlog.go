// Package xlog is the structured logger used across every component.
// Call sites follow the teacher's convention throughout
// tos-network-gtos (e.g. consensus/dpos/dpos.go, staking/reward.go):
//
//	log.Warn("DPoS sealing result not read by miner", "sealhash", hash)
//	log.Crit("Failed to decode the transition status", "err", err)
//
// The teacher's own gtos/log package is internal to that module and not
// separately importable, so this is a small rendering layer over the
// standard library's log/slog rather than a fabricated dependency;
// color/TTY detection is wired to the teacher's own terminal deps
// (fatih/color, mattn/go-isatty, mattn/go-colorable) so the ambient
// logging story still exercises real teacher dependencies end to end.
package xlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

var root = New(os.Stderr)

// Logger wraps slog with Crit (process-terminating) and a fixed set of
// bound key/value pairs, mirroring log.New(ctx...) in the teacher.
type Logger struct {
	inner *slog.Logger
}

// New builds a Logger writing to w, colorizing output iff w is a TTY.
func New(w io.Writer) *Logger {
	out := w
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		out = colorable.NewColorable(f)
	}
	handler := slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug})
	return &Logger{inner: slog.New(handler)}
}

// SetLevel adjusts the root logger's minimum level at runtime, used by
// internal/config to honor the RUST_LOG-style env var (spec.md §6).
func SetLevel(level slog.Level) {
	root.inner = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func Root() *Logger { return root }

func (l *Logger) With(kv ...any) *Logger {
	return &Logger{inner: l.inner.With(kv...)}
}

func (l *Logger) Debug(msg string, kv ...any) { l.inner.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.inner.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.inner.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.inner.Error(msg, kv...) }

// Crit logs at error level and terminates the process. Per spec.md §7,
// an internal invariant violation must panic/exit so a supervisor can
// restart the process from durable state rather than limping on with
// corrupted in-memory state.
func (l *Logger) Crit(msg string, kv ...any) {
	l.inner.Error(color.RedString("CRITICAL: ")+msg, kv...)
	os.Exit(1)
}

func Debug(msg string, kv ...any) { root.Debug(msg, kv...) }
func Info(msg string, kv ...any)  { root.Info(msg, kv...) }
func Warn(msg string, kv ...any)  { root.Warn(msg, kv...) }
func Error(msg string, kv ...any) { root.Error(msg, kv...) }
func Crit(msg string, kv ...any)  { root.Crit(msg, kv...) }

// ParseLevel maps RUST_LOG-style level names onto slog levels, so
// operators migrating from the original implementation's RUST_LOG env
// var keep familiar values (spec.md §6).
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "trace", "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("xlog: unrecognized level %q", s)
	}
}
