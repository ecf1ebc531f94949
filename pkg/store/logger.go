package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with store-specific helpers so that every
// component logs with the same field names.
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

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(w io.Writer, level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// WithTxn tags the logger with a write transaction id.
func (l *Logger) WithTxn(id string) *Logger {
	return &Logger{Logger: l.Logger.With("txn", id)}
}

// LogCommit logs the outcome of a write transaction.
func (l *Logger) LogCommit(ctx context.Context, inserted, removed int, version uint64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"inserted", inserted,
			"removed", removed,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "commit completed",
		"inserted", inserted,
		"removed", removed,
		"commit", version,
	)
}

// LogRollback logs an aborted write transaction.
func (l *Logger) LogRollback(ctx context.Context, minted int) {
	l.DebugContext(ctx, "transaction rolled back", "forgotten_terms", minted)
}

// LogBulkLoad logs a finished bulk load.
func (l *Logger) LogBulkLoad(ctx context.Context, stats BulkStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "bulk load failed",
			"quads", stats.Quads,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "bulk load completed",
		"quads", stats.Quads,
		"terms", stats.NewTerms,
		"duration", stats.Duration.Round(time.Millisecond),
	)
}

// LogVacuum logs a finished vacuum pass.
func (l *Logger) LogVacuum(ctx context.Context, stats VacuumStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "vacuum failed", "error", err)
		return
	}
	l.InfoContext(ctx, "vacuum completed",
		"scanned_terms", stats.ScannedTerms,
		"live_terms", stats.LiveTerms,
		"reclaimed_terms", stats.ReclaimedTerms,
		"duration", stats.Duration.Round(time.Millisecond),
	)
}
