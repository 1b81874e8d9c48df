// Package log is warden's structured logger.
//
// Records never go to stdout. In protocol hosting mode stdout carries only
// the hosted agent's bytes, so every diagnostic is written to stderr and,
// when configured, to a daily JSONL file.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu         sync.RWMutex
	logger     *slog.Logger
	fileWriter *DailyFile
)

// Options configures the logger.
type Options struct {
	// Verbose lowers the stderr threshold to debug.
	Verbose bool
	// JSONFormat writes stderr records as JSON instead of text.
	JSONFormat bool
	// Quiet raises the stderr threshold to error. Used while a terminal is in
	// raw mode so warnings do not tear the interactive display.
	Quiet bool
	// DebugDir enables the JSONL file sink when non-empty.
	DebugDir string
	// RetentionDays prunes older JSONL files at Init (0 keeps everything).
	RetentionDays int
	// Stderr overrides the diagnostic writer (defaults to os.Stderr).
	Stderr io.Writer
}

// Init installs the process-wide logger.
func Init(opts Options) error {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	level := slog.LevelWarn
	switch {
	case opts.Quiet:
		level = slog.LevelError
	case opts.Verbose:
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if opts.JSONFormat {
		handlers = append(handlers, slog.NewJSONHandler(stderr, handlerOpts))
	} else {
		handlers = append(handlers, slog.NewTextHandler(stderr, handlerOpts))
	}

	var fw *DailyFile
	if opts.DebugDir != "" {
		if opts.RetentionDays > 0 {
			Prune(opts.DebugDir, opts.RetentionDays)
		}
		var err error
		fw, err = OpenDailyFile(opts.DebugDir)
		if err != nil {
			return err
		}
		handlers = append(handlers, slog.NewJSONHandler(fw, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	mu.Lock()
	defer mu.Unlock()
	if fileWriter != nil {
		fileWriter.Close()
	}
	fileWriter = fw
	logger = slog.New(fanout(handlers))
	slog.SetDefault(logger)
	return nil
}

// Close releases the file sink, if any.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if fileWriter != nil {
		fileWriter.Close()
		fileWriter = nil
	}
}

// fanout sends each record to every handler that accepts its level.
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var firstErr error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) { current().Debug(msg, args...) }

// Info logs at info level.
func Info(msg string, args ...any) { current().Info(msg, args...) }

// Warn logs at warn level.
func Warn(msg string, args ...any) { current().Warn(msg, args...) }

// Error logs at error level.
func Error(msg string, args ...any) { current().Error(msg, args...) }

// With returns a child logger carrying args on every record.
func With(args ...any) *slog.Logger { return current().With(args...) }

// WithSession returns a child logger tagged with a session id.
func WithSession(id string) *slog.Logger {
	return current().With(slog.String("session_id", id))
}

// SetOutput routes all levels to w as text. Tests use this.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)
}

func init() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
