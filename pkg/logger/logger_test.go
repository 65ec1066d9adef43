package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextAddsRequestFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithFields(ctx, zap.Int64("tenant_id", 7))
	ctx = ContextWithFields(ctx, zap.String("caller", "u-1"))

	FromContext(ctx, base).Info("approved")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, int64(7), fields["tenant_id"])
	assert.Equal(t, "u-1", fields["caller"])
}

func TestFromContextWithoutValues(t *testing.T) {
	base := zap.NewNop()

	assert.Same(t, base, FromContext(context.Background(), base))
	assert.Equal(t, "", RequestID(context.Background()))
}

func TestNewFallsBackToInfo(t *testing.T) {
	l, err := New(Config{Level: "nonsense", Encoding: "console"})

	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.InfoLevel))
	assert.False(t, l.Core().Enabled(zap.DebugLevel))
}
