// Package reqctx carries request-scoped tracing ids through context.
package reqctx

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	correlationIDKey contextKey = "correlation_id"
	causationIDKey   contextKey = "causation_id"
)

func WithCorrelationID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

func WithCausationID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, causationIDKey, id)
}

// CorrelationID returns nil when none was attached.
func CorrelationID(ctx context.Context) *uuid.UUID {
	return lookup(ctx, correlationIDKey)
}

func CausationID(ctx context.Context) *uuid.UUID {
	return lookup(ctx, causationIDKey)
}

func lookup(ctx context.Context, key contextKey) *uuid.UUID {
	if ctx == nil {
		return nil
	}
	id, ok := ctx.Value(key).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return nil
	}
	return &id
}
