package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "seekd", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, PeerAddr("192.168.1.1"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("PeerUsername", func(t *testing.T) {
		attr := PeerUsername("alice")
		assert.Equal(t, AttrPeerUsername, string(attr.Key))
		assert.Equal(t, "alice", attr.Value.AsString())
	})

	t.Run("ServerAddr", func(t *testing.T) {
		attr := ServerAddr("overlay.example:2271")
		assert.Equal(t, AttrServerAddr, string(attr.Key))
		assert.Equal(t, "overlay.example:2271", attr.Value.AsString())
	})

	t.Run("TransferID", func(t *testing.T) {
		attr := TransferID("id-123")
		assert.Equal(t, AttrTransferID, string(attr.Key))
		assert.Equal(t, "id-123", attr.Value.AsString())
	})

	t.Run("Direction", func(t *testing.T) {
		attr := Direction("download")
		assert.Equal(t, AttrDirection, string(attr.Key))
		assert.Equal(t, "download", attr.Value.AsString())
	})

	t.Run("Size", func(t *testing.T) {
		attr := Size(1048576)
		assert.Equal(t, AttrSize, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("SearchToken", func(t *testing.T) {
		attr := SearchToken(0x12345678)
		assert.Equal(t, AttrSearchToken, string(attr.Key))
		assert.Equal(t, int64(0x12345678), attr.Value.AsInt64())
	})

	t.Run("AgentName", func(t *testing.T) {
		attr := AgentName("shed")
		assert.Equal(t, AttrAgentName, string(attr.Key))
		assert.Equal(t, "shed", attr.Value.AsString())
	})
}

func TestStartTransferSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartTransferSpan(ctx, SpanTransferEnqueue, "id-1", "download")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartTransferSpan(ctx, SpanTransferRun, "id-2", "upload",
		PeerUsername("bob"), Size(4096))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartAgentSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartAgentSpan(ctx, SpanAgentFileInfo, "shed")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartAgentSpan(ctx, SpanAgentGetFile, "attic", Filename("music\\x.flac"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}
