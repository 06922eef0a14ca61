// Package logging is the node's structured, leveled logger. It follows the
// key/value call convention used throughout the teacher codebase
// (log.Info("msg", "k", v, ...)) but is built directly on log/slog instead
// of vendoring a bespoke handler.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

// levelCrit sits above slog.LevelError; go-ethereum's log.Crit terminates
// the process after logging, which Logger.Crit preserves below.
const levelCrit = slog.Level(12)

var levelColor = map[slog.Level]*color.Color{
	slog.LevelDebug: color.New(color.FgHiBlack),
	slog.LevelInfo:  color.New(color.FgGreen),
	slog.LevelWarn:  color.New(color.FgYellow),
	slog.LevelError: color.New(color.FgRed),
	levelCrit:       color.New(color.FgHiRed, color.Bold),
}

// colorHandler wraps a slog.Handler and colorizes each record's message by
// level when the destination is a terminal, mirroring the coloring go-ethereum applies to
// its own console log output.
type colorHandler struct {
	slog.Handler
	tty bool
}

func (h colorHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.tty {
		if c, ok := levelColor[r.Level]; ok {
			r.Message = c.Sprint(r.Message)
		}
	}
	return h.Handler.Handle(ctx, r)
}

// Logger mirrors the small subset of go-ethereum's log.Logger API this
// repository uses.
type Logger struct {
	slog *slog.Logger
}

var root = New(os.Stderr)

// New builds a Logger writing to w, colorizing output only when w looks
// like a terminal (via go-isatty/go-colorable, matching the teacher's
// console logger).
func New(w io.Writer) *Logger {
	tty := false
	out := w
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd())
		if tty {
			out = colorable.NewColorable(f)
		}
	}
	h := colorHandler{
		Handler: slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}),
		tty:     tty,
	}
	return &Logger{slog: slog.New(h)}
}

// NewRotating builds a Logger that writes through lumberjack rotation, used
// for the node's on-disk log file (ambient stack, SPEC_FULL.md §1.1).
func NewRotating(path string, maxSizeMB, maxBackups, maxAgeDays int) *Logger {
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	return New(lj)
}

// SetRoot replaces the package-level default logger used by Debug/Info/...
func SetRoot(l *Logger) { root = l }

func Debug(msg string, kv ...any) { root.Debug(msg, kv...) }
func Info(msg string, kv ...any)  { root.Info(msg, kv...) }
func Warn(msg string, kv ...any)  { root.Warn(msg, kv...) }
func Error(msg string, kv ...any) { root.Error(msg, kv...) }

// Crit logs at the highest level and terminates the process, matching
// go-ethereum's log.Crit semantics. Reserved for initialization tampering
// (spec.md §7) and other unrecoverable startup failures.
func Crit(msg string, kv ...any) { root.Crit(msg, kv...) }

func (l *Logger) Debug(msg string, kv ...any) { l.slog.Debug(msg, kv...) }
func (l *Logger) Info(msg string, kv ...any)  { l.slog.Info(msg, kv...) }
func (l *Logger) Warn(msg string, kv ...any)  { l.slog.Warn(msg, kv...) }
func (l *Logger) Error(msg string, kv ...any) { l.slog.Error(msg, kv...) }

func (l *Logger) Crit(msg string, kv ...any) {
	l.slog.Log(context.Background(), levelCrit, msg, kv...)
	os.Exit(1)
}

// With returns a child logger carrying a fixed set of key/value context
// fields, matching log.New(ctx...) in the teacher codebase.
func (l *Logger) With(kv ...any) *Logger {
	return &Logger{slog: l.slog.With(kv...)}
}
