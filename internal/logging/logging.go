// Package logging builds the run logger: a colourised console handler plus
// a debug-level text log under the project's logs directory. Every record
// written to the console also lands in the run log.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// Options configures Setup
type Options struct {
	// Console receives human-oriented output, normally os.Stderr
	Console io.Writer
	// Quiet raises the console level to Warn
	Quiet bool
	// LogDir receives provision_<timestamp>.log; empty disables the run log
	LogDir string
	// Now stamps the run log name; defaults to time.Now
	Now func() time.Time
}

// Run is a configured logger and the file backing it
type Run struct {
	Logger  *slog.Logger
	LogPath string
	file    *os.File
}

// Close flushes and closes the run log
func (r *Run) Close() error {
	if r.file == nil {
		return nil
	}
	if err := r.file.Sync(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}

// CommandOutput is where child process output goes: the run log when open,
// otherwise fallback
func (r *Run) CommandOutput(fallback io.Writer) io.Writer {
	if r.file == nil {
		return fallback
	}
	return r.file
}

// LogFileName returns the run log name for t
func LogFileName(t time.Time) string {
	return fmt.Sprintf("provision_%s.log", t.UTC().Format("20060102T150405Z"))
}

// Setup creates the console handler and, when possible, the run log. A run
// log that cannot be opened is reported on the console and skipped.
func Setup(opts Options) *Run {
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	level := slog.LevelInfo
	if opts.Quiet {
		level = slog.LevelWarn
	}
	console := NewConsoleHandler(opts.Console, level)

	run := &Run{}
	if opts.LogDir == "" {
		run.Logger = slog.New(console)
		return run
	}

	path := filepath.Join(opts.LogDir, LogFileName(opts.Now()))
	file, err := openRunLog(path)
	if err != nil {
		run.Logger = slog.New(console)
		run.Logger.Warn("run log disabled", "path", path, "error", err)
		return run
	}

	run.file = file
	run.LogPath = path
	run.Logger = slog.New(fanoutHandler{
		console,
		slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})
	return run
}

// NewConsoleHandler returns a tint handler; colour is disabled when w is not
// a terminal
func NewConsoleHandler(w io.Writer, level slog.Leveler) slog.Handler {
	return tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    !isTerminal(w),
	})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func openRunLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o775); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// fanoutHandler sends each record to every handler enabled for its level
type fanoutHandler []slog.Handler

func (handlers fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (handlers fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (handlers fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithAttrs(attrs)
	}
	return derived
}

func (handlers fanoutHandler) WithGroup(name string) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithGroup(name)
	}
	return derived
}
