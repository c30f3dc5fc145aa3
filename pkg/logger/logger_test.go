package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestGatedDropsEverythingButErrors(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Gated(NewFromZap(zap.New(core)), false)
	ctx := context.Background()

	l.Debugf(ctx, "debug %d", 1)
	l.Infof(ctx, "info %d", 2)
	l.Warnf(ctx, "warn %d", 3)
	l.Errorf(ctx, "error %d", 4)

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "error 4", logs.All()[0].Message)
}

func TestGatedPassesThroughInDebug(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := Gated(NewFromZap(zap.New(core)), true)

	l.Debugf(context.Background(), "hello")
	assert.Equal(t, 1, logs.Len())
}

func TestContextFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewFromZap(zap.New(core))

	ctx := WithInstanceID(WithTraceID(context.Background(), "abc"), 7)
	l.Infof(ctx, "quote")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "abc", fields["trace_id"])
	assert.Equal(t, int64(7), fields["instance_id"])
	assert.Equal(t, "abc", TraceID(ctx))
}
