package purchase

import (
	"context"
	"encoding/json"
	"time"

	"purchaseservice/internal/platform/kafka"
	"purchaseservice/internal/platform/observability"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const internalErrorReason = "internal error"

// OutcomePublisher announces the result of a settlement.
type OutcomePublisher interface {
	PublishSettled(ctx context.Context, requestID, userID string, records []Record) error
	PublishRejected(ctx context.Context, requestID, userID string, cause error) error
}

// EventPublisher writes PurchaseOutcome events keyed by user id, so every
// outcome for one user lands on the same partition.
type EventPublisher struct {
	producer kafka.Producer
	logger   observability.Logger
	now      func() time.Time
}

func NewEventPublisher(producer kafka.Producer, logger observability.Logger) *EventPublisher {
	return &EventPublisher{
		producer: producer,
		logger:   logger,
		now:      time.Now,
	}
}

func (p *EventPublisher) PublishSettled(ctx context.Context, requestID, userID string, records []Record) error {
	return p.publish(ctx, PurchaseOutcomeEvent{
		RequestID: requestID,
		UserID:    userID,
		Status:    StatusSettled,
		Records:   records,
	})
}

// PublishRejected reports cause by kind. Store failures are reported without
// their underlying message.
func (p *EventPublisher) PublishRejected(ctx context.Context, requestID, userID string, cause error) error {
	kind := KindOf(cause)
	reason := internalErrorReason
	if kind != KindStore && cause != nil {
		reason = cause.Error()
	}
	return p.publish(ctx, PurchaseOutcomeEvent{
		RequestID: requestID,
		UserID:    userID,
		Status:    StatusRejected,
		ErrorKind: kind.String(),
		Reason:    reason,
	})
}

func (p *EventPublisher) publish(ctx context.Context, event PurchaseOutcomeEvent) error {
	event.EventID = uuid.NewString()
	event.OccurredAt = p.now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("❌ Failed to serialize PurchaseOutcome event",
			zap.Error(err),
			zap.String("request_id", event.RequestID),
		)
		return err
	}

	msg := kafkago.Message{
		Key:   []byte(event.UserID),
		Value: payload,
	}
	if err := p.producer.WriteMessage(ctx, msg); err != nil {
		p.logger.Error("❌ Failed to publish PurchaseOutcome event",
			zap.Error(err),
			zap.String("request_id", event.RequestID),
			zap.String("user_id", event.UserID),
		)
		return err
	}

	p.logger.Info("📤 Sent PurchaseOutcome event",
		zap.String("request_id", event.RequestID),
		zap.String("user_id", event.UserID),
		zap.String("status", string(event.Status)),
	)
	return nil
}
