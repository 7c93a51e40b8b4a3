package context

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceRoundTrip(t *testing.T) {
	trace := NewTraceContext()
	ctx := WithTrace(context.Background(), trace)

	assert.Equal(t, trace, GetTrace(ctx))
	assert.Equal(t, trace.TraceID, GetTraceID(ctx))
	assert.Equal(t, trace.RequestID, GetRequestID(ctx))
}

func TestUntracedContext(t *testing.T) {
	ctx := context.Background()

	assert.Nil(t, GetTrace(ctx))
	assert.Empty(t, GetRequestID(ctx))
	// A trace ID is still minted so log lines stay correlatable.
	assert.NotEmpty(t, GetTraceID(ctx))
}

func TestGeneratedIDsAreTimeOrdered(t *testing.T) {
	first, err := uuid.Parse(NewID())
	require.NoError(t, err)
	second, err := uuid.Parse(NewID())
	require.NoError(t, err)

	assert.Equal(t, uuid.Version(7), first.Version())
	assert.Equal(t, uuid.Version(7), second.Version())
	assert.Less(t, first.String(), second.String())

	assert.Len(t, NewSpanID(), 16)
}
