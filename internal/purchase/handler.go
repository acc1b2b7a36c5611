package purchase

import (
	"context"
	"encoding/json"
	"fmt"

	"purchaseservice/internal/platform/observability"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// Settler is the part of Engine the message handler depends on.
type Settler interface {
	Settle(ctx context.Context, userID string, items []Item) ([]Record, error)
}

// MessageHandler processes incoming purchase messages.
type MessageHandler interface {
	HandlePurchaseRequested(ctx context.Context, msg kafkago.Message) error
}

type KafkaMessageHandler struct {
	settler   Settler
	publisher OutcomePublisher
	logger    observability.Logger
}

func NewMessageHandler(settler Settler, publisher OutcomePublisher, logger observability.Logger) MessageHandler {
	return &KafkaMessageHandler{
		settler:   settler,
		publisher: publisher,
		logger:    logger,
	}
}

// HandlePurchaseRequested settles one PurchaseRequested message and publishes
// its outcome. A rejected purchase is a handled message; only decode and
// publish failures are returned.
func (h *KafkaMessageHandler) HandlePurchaseRequested(ctx context.Context, msg kafkago.Message) error {
	msgCtx := h.extractTraceContext(ctx, msg.Headers)

	h.logger.Info("📨 Raw Kafka message received",
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var event PurchaseRequestedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("❌ Invalid JSON in PurchaseRequested event",
			zap.Error(err),
			zap.ByteString("raw_value", msg.Value),
		)
		return fmt.Errorf("decode PurchaseRequested: %w", err)
	}
	if event.RequestID == "" {
		event.RequestID = uuid.NewString()
	}

	h.logger.Info("✅ Received PurchaseRequested event",
		zap.String("request_id", event.RequestID),
		zap.String("user_id", event.UserID),
		zap.Int("items", len(event.Items)),
	)

	records, err := h.settler.Settle(msgCtx, event.UserID, event.Items)
	if err != nil {
		return h.publisher.PublishRejected(msgCtx, event.RequestID, event.UserID, err)
	}
	return h.publisher.PublishSettled(msgCtx, event.RequestID, event.UserID, records)
}

// extractTraceContext continues the producer's trace from the message headers.
func (h *KafkaMessageHandler) extractTraceContext(ctx context.Context, headers []kafkago.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		carrier[header.Key] = string(header.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
