package logging

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	traversalIDKey ctxKey = iota
	actionIDKey
	actorIDKey
)

// WithTraversalID returns a context with the traversal ID set.
func WithTraversalID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traversalIDKey, id)
}

// WithActionID returns a context with the start action ID set.
func WithActionID(ctx context.Context, id uint32) context.Context {
	return context.WithValue(ctx, actionIDKey, id)
}

// WithActorID returns a context with the actor ID set.
func WithActorID(ctx context.Context, id uint32) context.Context {
	return context.WithValue(ctx, actorIDKey, id)
}

// TraversalID extracts the traversal ID from the context, or "" if absent.
func TraversalID(ctx context.Context) string {
	v, _ := ctx.Value(traversalIDKey).(string)
	return v
}

// ActionID extracts the start action ID from the context, or 0 if absent.
func ActionID(ctx context.Context) uint32 {
	v, _ := ctx.Value(actionIDKey).(uint32)
	return v
}

// ActorID extracts the actor ID from the context, or 0 if absent.
func ActorID(ctx context.Context) uint32 {
	v, _ := ctx.Value(actorIDKey).(uint32)
	return v
}

// WithIDs sets all three correlation IDs on the context at once.
func WithIDs(ctx context.Context, traversalID string, actionID, actorID uint32) context.Context {
	ctx = WithTraversalID(ctx, traversalID)
	ctx = WithActionID(ctx, actionID)
	ctx = WithActorID(ctx, actorID)
	return ctx
}

// LogWith returns a logger enriched with correlation IDs from the context.
// Only non-empty values are added as attributes.
func LogWith(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if a := attrs(ctx); len(a) > 0 {
		return logger.With(a...)
	}
	return logger
}

func attrs(ctx context.Context) []any {
	var out []any
	if v := TraversalID(ctx); v != "" {
		out = append(out, slog.String("traversal_id", v))
	}
	if v := ActionID(ctx); v != 0 {
		out = append(out, slog.Uint64("action_id", uint64(v)))
	}
	if v := ActorID(ctx); v != 0 {
		out = append(out, slog.Uint64("actor_id", uint64(v)))
	}
	return out
}

// CorrelationHandler wraps an slog.Handler, automatically injecting
// correlation IDs from the context into every log record.
// Use with slog.New(NewCorrelationHandler(inner)) so callers can use
// logger.InfoContext(ctx, ...) and IDs appear automatically.
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with automatic correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	if ch, ok := inner.(*CorrelationHandler); ok {
		return ch
	}
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	if v := TraversalID(ctx); v != "" {
		r.AddAttrs(slog.String("traversal_id", v))
	}
	if v := ActionID(ctx); v != 0 {
		r.AddAttrs(slog.Uint64("action_id", uint64(v)))
	}
	if v := ActorID(ctx); v != 0 {
		r.AddAttrs(slog.Uint64("actor_id", uint64(v)))
	}
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}
