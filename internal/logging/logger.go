// Package logging defines a minimal structured-logging interface used across
// silosync. The default implementation wraps log/slog; NewFileLogger adds a
// size-rotated file sink for long-running client processes.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "sync finished", "processed", n, "failed", f)
type Logger interface {
	// Debug logs low-level diagnostics (skipped triggers, per-action outcomes).
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}
