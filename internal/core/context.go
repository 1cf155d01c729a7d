package core

import "context"

type cycleIDKey struct{}
type storeKey struct{}

func WithCycleID(ctx context.Context, cycleID string) context.Context {
	if ctx == nil || cycleID == "" {
		return ctx
	}
	return context.WithValue(ctx, cycleIDKey{}, cycleID)
}

func WithStore(ctx context.Context, store Store) context.Context {
	if ctx == nil || store == "" {
		return ctx
	}
	return context.WithValue(ctx, storeKey{}, store)
}

func CycleIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(cycleIDKey{}).(string); ok {
		return v
	}
	return ""
}

func StoreFromContext(ctx context.Context) Store {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(storeKey{}).(Store); ok {
		return v
	}
	return ""
}
