package bitdb

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with bitdb-specific context.
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
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, nil))
}

// WithCollection adds a collection field to the logger.
func (l *Logger) WithCollection(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("collection", name),
	}
}

// LogQuery logs an evaluated query.
func (l *Logger) LogQuery(ctx context.Context, t Telemetry, returned int, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "query completed",
		"hash", t.Hash,
		"nodes", t.Nodes,
		"cached_nodes", t.FlattenedNodes,
		"estimated_cost", t.EstimatedCost,
		"actual_cost", t.ActualCost,
		"matched", t.ActualCardinality,
		"returned", returned,
		"duration", duration,
	)
}

// LogCommit logs a transaction commit.
func (l *Logger) LogCommit(ctx context.Context, version uint64, layers int, duration time.Duration, err error) {
	if err != nil {
		l.WarnContext(ctx, "commit failed",
			"layers", layers,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "commit completed",
		"version", version,
		"layers", layers,
		"duration", duration,
	)
}

// LogRollback logs a discarded transaction.
func (l *Logger) LogRollback(ctx context.Context, layers int) {
	l.DebugContext(ctx, "transaction rolled back",
		"layers", layers,
	)
}

// LogCachePersistence logs a cache save or load.
func (l *Logger) LogCachePersistence(ctx context.Context, op string, payloads int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "cache "+op+" failed",
			"payloads", payloads,
			"error", err,
		)
		return
	}
	l.InfoContext(ctx, "cache "+op+" completed",
		"payloads", payloads,
	)
}
