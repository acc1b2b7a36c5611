package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// Producer writes PurchaseOutcome events. The topic is fixed when the
// otel-kafka-konsumer writer is built, so callers set only key and value.
type Producer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// Consumer yields PurchaseRequested messages from the consumer group's reader.
// ReadMessage blocks until a message arrives or ctx is done.
type Consumer interface {
	ReadMessage(ctx context.Context) (*kafka.Message, error)
	Close() error
}
