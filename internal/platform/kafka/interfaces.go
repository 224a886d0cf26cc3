package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// EventWriter publishes inventory events. Implementations inject the trace
// context of ctx into the message headers.
type EventWriter interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

// OrderReader reads OrderCreated messages for the consumer group. ReadMessage
// blocks until a message arrives or ctx is done, and commits the offset of
// the message it returns.
type OrderReader interface {
	ReadMessage(ctx context.Context) (*kafka.Message, error)
	Close() error
}
