package context

import (
	"context"

	"certflow/internal/core/id"
)

// TraceContext carries the correlation IDs for one request or one worker
// pass. TraceID groups everything done on behalf of the request, SpanID
// narrows it to a single hop, and RequestID echoes the caller-supplied
// request identifier.
type TraceContext struct {
	TraceID   string
	SpanID    string
	RequestID string
}

type traceContextKey struct{}

// WithTrace returns a context carrying trace.
func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns the TraceContext, or nil when the context has none.
func GetTrace(ctx context.Context) *TraceContext {
	trace, _ := ctx.Value(traceContextKey{}).(*TraceContext)
	return trace
}

// GetTraceID returns the trace ID, or a fresh one for an untraced context.
func GetTraceID(ctx context.Context) string {
	if trace := GetTrace(ctx); trace != nil {
		return trace.TraceID
	}
	return NewID()
}

// GetRequestID returns the request ID, or "" for an untraced context.
func GetRequestID(ctx context.Context) string {
	if trace := GetTrace(ctx); trace != nil {
		return trace.RequestID
	}
	return ""
}

// NewID generates a correlation ID. IDs are UUIDv7 so traces sort by
// creation time in the log store.
func NewID() string {
	return id.New().String()
}

// NewSpanID generates a short per-hop identifier.
func NewSpanID() string {
	return id.New().String()[:16]
}

// NewTraceContext generates a fresh set of correlation IDs, for traces
// that start outside an HTTP request (workers, seeders).
func NewTraceContext() *TraceContext {
	traceID := NewID()
	return &TraceContext{
		TraceID:   traceID,
		SpanID:    NewSpanID(),
		RequestID: traceID,
	}
}
