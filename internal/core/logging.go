package core

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithLogger attaches a slog logger to the context.
// Callers should prefer passing a logger with useful correlation fields (e.g. cycle_id, store).
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// LoggerFromContext returns the logger attached to the context, or slog.Default() if absent.
// The cycle id and store carried by the context are added when the logger lacks them.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}
	if logger, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}
	logger := slog.Default()
	if id := CycleIDFromContext(ctx); id != "" {
		logger = logger.With("cycle_id", id)
	}
	if store := StoreFromContext(ctx); store != "" {
		logger = logger.With("store", string(store))
	}
	return logger
}
