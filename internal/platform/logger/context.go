package logger

import (
	"context"
	"log/slog"
)

// loggerKey is the context key under which a request- or task-scoped
// logger is stored. An unexported struct type avoids collisions with
// keys defined by other packages.
type loggerKey struct{}

// WithLogger returns a copy of the parent context carrying the given logger.
// Components that enrich the logger with scoped fields (correlation id,
// chunk id, worker name) use this to make the enriched logger available
// to everything downstream without threading it through every signature.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored in the context by WithLogger,
// or the process-default logger if none is present. It never returns nil.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return slog.Default()
}
