package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	testTraceID = trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36}
	testSpanID  = trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7}
)

func contextWithSpan() context.Context {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    testTraceID,
		SpanID:     testSpanID,
		TraceFlags: trace.FlagsSampled,
	})
	return trace.ContextWithSpanContext(context.Background(), sc)
}

func observed(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, recorded := observer.New(level)
	return zap.New(core), recorded
}

func TestFromContext(t *testing.T) {
	t.Run("returns stored logger", func(t *testing.T) {
		logger := zap.NewExample()
		assert.Equal(t, logger, FromContext(WithContext(context.Background(), logger)))
	})

	t.Run("returns nop when missing or wrong type", func(t *testing.T) {
		assert.NotNil(t, FromContext(context.Background()))
		ctx := context.WithValue(context.Background(), LoggerKey, "not a logger")
		assert.NotNil(t, FromContext(ctx))
	})
}

func TestIdentifierHelpers(t *testing.T) {
	base, recorded := observed(zapcore.InfoLevel)

	ctx, l := WithRequestID(context.Background(), base, "req-1")
	ctx, l = WithActorID(ctx, l, "actor-7")
	ctx, l = WithCustomerID(ctx, l, "cust-3")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "actor-7", GetActorID(ctx))
	assert.Equal(t, "cust-3", GetCustomerID(ctx))
	assert.Equal(t, l, FromContext(ctx))

	l.Info("hello")
	entries := recorded.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "actor-7", fields["actor_id"])
	assert.Equal(t, "cust-3", fields["customer_id"])
}

func TestIdentifierHelpers_Missing(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetActorID(ctx))
	assert.Empty(t, GetCustomerID(ctx))
}

func TestTraceHelpers(t *testing.T) {
	t.Run("no span", func(t *testing.T) {
		ctx := context.Background()
		assert.Empty(t, GetTraceID(ctx))
		assert.Empty(t, GetSpanID(ctx))
		base := zap.NewNop()
		assert.Same(t, base, WithTraceContext(ctx, base))
	})

	t.Run("valid span", func(t *testing.T) {
		ctx := contextWithSpan()
		assert.Equal(t, testTraceID.String(), GetTraceID(ctx))
		assert.Equal(t, testSpanID.String(), GetSpanID(ctx))

		base, recorded := observed(zapcore.InfoLevel)
		WithTraceContext(ctx, base).Info("traced")
		fields := recorded.All()[0].ContextMap()
		assert.Equal(t, testTraceID.String(), fields["trace_id"])
		assert.Equal(t, testSpanID.String(), fields["span_id"])
	})
}

func TestContextLogger_EnrichesEntries(t *testing.T) {
	base, recorded := observed(zapcore.DebugLevel)

	ctx := WithContext(contextWithSpan(), base)
	ctx = context.WithValue(ctx, RequestIDKey, "req-9")
	ctx = context.WithValue(ctx, ActorIDKey, "actor-1")

	cl := L(ctx)
	cl.Debug("d")
	cl.Info("i")
	cl.Warn("w")
	cl.Error("e")

	entries := recorded.All()
	require.Len(t, entries, 4)
	for _, e := range entries {
		fields := e.ContextMap()
		assert.Equal(t, testTraceID.String(), fields["trace_id"])
		assert.Equal(t, "req-9", fields["request_id"])
		assert.Equal(t, "actor-1", fields["actor_id"])
		assert.NotContains(t, fields, "customer_id")
	}
	assert.Equal(t, zapcore.ErrorLevel, entries[3].Level)
}

func TestContextLogger_With(t *testing.T) {
	base, recorded := observed(zapcore.InfoLevel)

	cl := WithLogger(context.Background(), base).With(zap.String("component", "scheduler"))
	cl.Info("tick")
	cl.Zap().Info("zap")
	cl.Sugar().Infow("sugar", "k", "v")

	entries := recorded.All()
	require.Len(t, entries, 3)
	for _, e := range entries {
		assert.Equal(t, "scheduler", e.ContextMap()["component"])
	}
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := WithLogger(context.Background(), nil)
	assert.NotPanics(t, func() {
		cl.Info("nothing")
		cl.With(zap.Int("n", 1)).Warn("still nothing")
	})
}
