package middleware

import (
	"github.com/gin-gonic/gin"

	appctx "certflow/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Trace middleware adds request tracing context. Incoming trace headers
// are honored; missing ones are generated.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = appctx.NewID()
		}

		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = appctx.NewID()
		}

		trace := &appctx.TraceContext{
			TraceID:   traceID,
			SpanID:    appctx.NewSpanID(),
			RequestID: requestID,
		}

		ctx := appctx.WithTrace(c.Request.Context(), trace)
		c.Request = c.Request.WithContext(ctx)

		c.Set("trace_id", traceID)
		c.Set("request_id", requestID)

		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}
