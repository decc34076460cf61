package logging

import (
	"context"

	"github.com/google/uuid"
)

// NewTraceID generates a fresh trace identifier for a request that arrived
// without one.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID attaches a traceId to ctx for subsequent logging.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID reads the traceId previously attached with WithTraceID.
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(TraceIDKey).(string); ok {
		return v
	}
	return ""
}
