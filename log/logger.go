// Package log is the application logger used by the server binary.
// Library packages log through zerolog's global logger directly.
package log

import "context"

// Fields are structured key/value pairs attached to one entry.
type Fields = map[string]any

// Logger is a context-aware structured logger.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Fields)
	Info(ctx context.Context, msg string, fields ...Fields)
	Warn(ctx context.Context, msg string, fields ...Fields)
	Error(ctx context.Context, msg string, err error, fields ...Fields)
	Fatal(ctx context.Context, msg string, err error, fields ...Fields) // exits the process
	With(fields Fields) Logger
}
