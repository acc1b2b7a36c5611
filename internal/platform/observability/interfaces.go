package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Logger is what the settlement engine, HTTP handlers and purchase consumer
// log through. The container hands them the otelzap-bridged *zap.Logger so
// entries carry the active trace; tests pass zaptest loggers.
type Logger interface {
	Info(msg string, fields ...zap.Field)
	Warn(msg string, fields ...zap.Field)
	Error(msg string, fields ...zap.Field)
	With(fields ...zap.Field) *zap.Logger
	Sync() error
}

// Tracer opens the purchase.settle span around each settlement. The
// container passes otel.Tracer(ServiceName); tests use the noop tracer.
type Tracer interface {
	Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span)
}
