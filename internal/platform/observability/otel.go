package observability

import (
	"context"
	"errors"
	"fmt"
	"os"

	"purchaseservice/internal/config"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const instrumentationScopeName = "purchase-service.manual"

// serviceResource describes this process to every exporter.
func serviceResource() (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// SetupLoggingSDK installs a global OTLP/HTTP LoggerProvider. The returned
// shutdown is never nil, even when the exporter could not be created.
func SetupLoggingSDK(ctx context.Context, cfg *config.Config) (shutdown func(context.Context) error, err error) {
	shutdown = func(context.Context) error { return nil }

	res, err := serviceResource()
	if err != nil {
		return shutdown, err
	}

	logExporter, err := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(cfg.OtelEndpoint),
		otlploghttp.WithURLPath(config.LogsPath),
		otlploghttp.WithHeaders(cfg.OtelHeaders()),
	)
	if err != nil {
		return shutdown, fmt.Errorf("OTLP Log Exporter: %w", err)
	}

	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter,
			sdklog.WithExportTimeout(config.ExportTimeout),
			sdklog.WithMaxQueueSize(config.MaxQueueSize),
		)),
		sdklog.WithResource(res),
	)
	global.SetLoggerProvider(loggerProvider)

	return loggerProvider.Shutdown, nil
}

// SetupTracingSDK installs a global OTLP/HTTP TracerProvider and the W3C
// propagators used to carry trace context through Kafka headers.
func SetupTracingSDK(ctx context.Context, cfg *config.Config) (tp *sdktrace.TracerProvider, shutdown func(context.Context) error, err error) {
	shutdown = func(context.Context) error { return nil }

	res, err := serviceResource()
	if err != nil {
		return nil, shutdown, err
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OtelEndpoint),
		otlptracehttp.WithURLPath(config.TracesPath),
		otlptracehttp.WithHeaders(cfg.OtelHeaders()),
	)
	if err != nil {
		return nil, shutdown, fmt.Errorf("OTLP Trace Exporter: %w", err)
	}

	tp = sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(traceExporter,
			sdktrace.WithExportTimeout(config.ExportTimeout),
			sdktrace.WithMaxQueueSize(config.MaxQueueSize),
		)),
	)
	otel.SetTracerProvider(tp)

	return tp, tp.Shutdown, nil
}

// NewLogger tees a JSON console core with the OpenTelemetry log bridge.
func NewLogger() *zap.Logger {
	otelCore := otelzap.NewCore(instrumentationScopeName,
		otelzap.WithLoggerProvider(global.GetLoggerProvider()),
	)

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.Lock(os.Stdout),
		zap.InfoLevel,
	)

	return zap.New(zapcore.NewTee(otelCore, consoleCore),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", config.ServiceName)),
	)
}

// ShutdownAll runs every shutdown func and joins their errors.
func ShutdownAll(ctx context.Context, fns ...func(context.Context) error) error {
	var err error
	for _, fn := range fns {
		if fn != nil {
			err = errors.Join(err, fn(ctx))
		}
	}
	return err
}
