package pagetree

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with pagetree-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithTree adds a tree name field to the logger.
func (l *Logger) WithTree(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("tree", name),
	}
}

// LogOpen logs opening a page space. created reports whether this opener
// wrote the master record.
func (l *Logger) LogOpen(ctx context.Context, pageSize int, pageCount uint64, created bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "open failed",
			"page_size", pageSize,
			"page_count", pageCount,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "store opened",
			"page_size", pageSize,
			"page_count", pageCount,
			"bootstrapped", created,
		)
	}
}

// LogTreeCreated logs the registration of a new named tree.
func (l *Logger) LogTreeCreated(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "tree creation failed",
			"tree", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "tree created",
			"tree", name,
		)
	}
}

// LogRootInstalled logs the first data page of a tree.
func (l *Logger) LogRootInstalled(ctx context.Context, name string, page uint64) {
	l.DebugContext(ctx, "tree root installed",
		"tree", name,
		"page", page,
	)
}

// LogCapacity logs an out-of-space condition.
func (l *Logger) LogCapacity(ctx context.Context, name string, err error) {
	l.WarnContext(ctx, "capacity exceeded",
		"tree", name,
		"error", err,
	)
}

// LogSnapshot logs a snapshot export or import.
func (l *Logger) LogSnapshot(ctx context.Context, op, target string, pages uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"op", op,
			"target", target,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot completed",
			"op", op,
			"target", target,
			"pages", pages,
		)
	}
}
