package app

import (
	"context"
	"fmt"

	"purchaseservice/internal/config"
	"purchaseservice/internal/httpapi"
	"purchaseservice/internal/platform/kafka"
	"purchaseservice/internal/platform/observability"
	"purchaseservice/internal/purchase"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	config *config.Config
	logger observability.Logger
	tracer observability.Tracer

	messageConsumer kafka.Consumer
	messageProducer kafka.Producer

	stores *stores

	engine          *purchase.Engine
	publisher       *purchase.EventPublisher
	consumerService purchase.ConsumerService
	httpHandler     *httpapi.Handler

	otelLogShutdown   func(context.Context) error
	otelTraceShutdown func(context.Context) error
}

// NewContainer creates and initializes all infrastructure components
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	container := &Container{
		config: cfg,
	}

	if err := container.setupLogger(); err != nil {
		return nil, err
	}

	if err := container.setupObservability(ctx); err != nil {
		container.Shutdown(ctx)
		return nil, err
	}

	if err := container.setupStores(ctx); err != nil {
		container.Shutdown(ctx)
		return nil, err
	}

	container.setupServices()
	return container, nil
}

// setupLogger installs a plain production logger until the OTel bridge is up.
func (c *Container) setupLogger() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

// setupObservability configures OpenTelemetry logging and tracing, then Kafka.
// Exporter failures are logged and the service runs without them.
func (c *Container) setupObservability(ctx context.Context) error {
	otelLogShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
	}
	c.otelLogShutdown = otelLogShutdown

	tp, otelTraceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
	}
	c.otelTraceShutdown = otelTraceShutdown

	c.logger = observability.NewLogger()
	c.logger.Info("Logger re-initialized with OpenTelemetry bridge")

	c.tracer = otel.Tracer(config.ServiceName)

	var provider trace.TracerProvider = otel.GetTracerProvider()
	if tp != nil {
		provider = tp
	}
	return c.setupKafkaWithTracer(provider)
}

// setupKafkaWithTracer initializes the PurchaseRequested reader and the
// PurchaseOutcome writer with OpenTelemetry instrumentation.
func (c *Container) setupKafkaWithTracer(tp trace.TracerProvider) error {
	baseReader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: []string{c.config.KafkaBroker},
		Topic:   config.PurchaseRequestedTopic,
		GroupID: config.GroupID,
	})
	reader, err := otelkafka.NewReader(baseReader,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(config.PurchaseRequestedTopic),
				attribute.String("messaging.kafka.consumer.group", config.GroupID),
			},
		),
	)
	if err != nil {
		return err
	}
	c.messageConsumer = reader

	baseWriter := &kafkago.Writer{
		Addr:         kafkago.TCP(c.config.KafkaBroker),
		Topic:        config.PurchaseOutcomeTopic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: config.BatchTimeout,
		BatchSize:    config.BatchSize,
	}
	writer, err := otelkafka.NewWriter(baseWriter,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(config.PurchaseOutcomeTopic),
				attribute.String("messaging.kafka.client_id", config.ServiceName),
			},
		),
	)
	if err != nil {
		return err
	}
	c.messageProducer = writer

	return nil
}

// setupServices wires the settlement engine into its HTTP and Kafka fronts.
func (c *Container) setupServices() {
	c.engine = purchase.NewEngine(
		c.stores.products, c.stores.ledger, c.stores.tx,
		c.logger, c.tracer,
		purchase.WithCommitTimeout(c.config.CommitTimeout),
	)
	c.publisher = purchase.NewEventPublisher(c.messageProducer, c.logger)

	handler := purchase.NewMessageHandler(c.engine, c.publisher, c.logger)
	c.consumerService = purchase.NewConsumerService(c.messageConsumer, handler, c.logger)

	c.httpHandler = httpapi.New(
		c.engine, c.stores.catalog, c.stores.users, c.stores.carts, c.logger,
		httpapi.WithPublisher(c.publisher),
		httpapi.WithRequestTimeout(c.config.RequestTimeout),
	)
}

// Shutdown gracefully shuts down all infrastructure components
func (c *Container) Shutdown(ctx context.Context) {
	c.logger.Info("Shutting down infrastructure...")

	if c.messageConsumer != nil {
		if err := c.messageConsumer.Close(); err != nil {
			c.logger.Error("Failed to close message consumer", zap.Error(err))
		}
	}

	if c.messageProducer != nil {
		if err := c.messageProducer.Close(); err != nil {
			c.logger.Error("Failed to close message producer", zap.Error(err))
		}
	}

	if c.stores != nil {
		if err := c.stores.close(); err != nil {
			c.logger.Error("Failed to close stores", zap.Error(err))
		}
	}

	if err := observability.ShutdownAll(ctx, c.otelTraceShutdown, c.otelLogShutdown); err != nil {
		c.logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
	}

	c.logger.Info("Infrastructure shutdown complete")
	if err := c.logger.Sync(); err != nil {
		// Can't log this error since logger might be closed
		fmt.Printf("Failed to sync logger: %v\n", err)
	}
}

// Getters for accessing infrastructure components
func (c *Container) Config() *config.Config                    { return c.config }
func (c *Container) Logger() observability.Logger              { return c.logger }
func (c *Container) ConsumerService() purchase.ConsumerService { return c.consumerService }
func (c *Container) HTTPHandler() *httpapi.Handler             { return c.httpHandler }
