// Package logging defines the structured-logging interface used across
// gohs. The slog-backed implementation lives in slog.go; library packages
// accept a *slog.Logger from callers and wrap it here.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "index opened", "table", table, "index", index)
type Logger interface {
	// Debug logs chatty protocol-level details (index opens, reconnects).
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
