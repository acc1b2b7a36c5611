package purchase

import (
	"context"
	"errors"

	"purchaseservice/internal/platform/kafka"
	"purchaseservice/internal/platform/observability"

	"go.uber.org/zap"
)

type ConsumerService interface {
	Start(ctx context.Context) error
}

type KafkaConsumerService struct {
	consumer       kafka.Consumer
	messageHandler MessageHandler
	logger         observability.Logger
}

func NewConsumerService(consumer kafka.Consumer, messageHandler MessageHandler, logger observability.Logger) ConsumerService {
	return &KafkaConsumerService{
		consumer:       consumer,
		messageHandler: messageHandler,
		logger:         logger,
	}
}

// Start reads until ctx is done. Read and handler errors are logged and the
// loop moves on to the next message.
func (c *KafkaConsumerService) Start(ctx context.Context) error {
	c.logger.Info("Kafka consumer started. Waiting for purchase requests...")

	for {
		msg, err := c.consumer.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context done, exiting Kafka read loop.", zap.Error(err))
				break
			}
			c.logger.Error("❌ Error reading from Kafka", zap.Error(err))
			continue
		}

		if err := c.messageHandler.HandlePurchaseRequested(ctx, *msg); err != nil {
			c.logger.Warn("Purchase message not fully handled",
				zap.Error(err),
				zap.Int64("offset", msg.Offset),
			)
		}
	}

	c.logger.Info("Consumer service finished. Shutting down...")
	return nil
}
