package telemetry

import (
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewZapOTELCore returns a core exporting log entries at or above level
// through provider. A nil provider yields a no-op core.
func NewZapOTELCore(serviceName string, provider log.LoggerProvider, level zapcore.Level) zapcore.Core {
	if provider == nil {
		return zapcore.NewNopCore()
	}
	core := otelzap.NewCore(serviceName, otelzap.WithLoggerProvider(provider))
	filtered, err := zapcore.NewIncreaseLevelCore(core, level)
	if err != nil {
		return core
	}
	return filtered
}

// BridgeLogger tees base into the OpenTelemetry log pipeline. With
// telemetry disabled base is returned unchanged.
func BridgeLogger(base *zap.Logger, p *Providers, level zapcore.Level) *zap.Logger {
	if p == nil || p.Logs == nil {
		return base
	}
	otelCore := NewZapOTELCore(p.config.ServiceName, p.Logs, level)
	return base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, otelCore)
	}))
}
