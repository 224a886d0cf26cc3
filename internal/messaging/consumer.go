package messaging

import (
	"context"
	"errors"

	"cafepos/internal/platform/kafka"
	"cafepos/internal/platform/observability"

	"go.uber.org/zap"
)

type ConsumerService interface {
	Start(ctx context.Context) error
}

// KafkaConsumerService reads OrderCreated messages until its context ends.
// A message that fails to process is logged and skipped.
type KafkaConsumerService struct {
	consumer       kafka.OrderReader
	messageHandler MessageHandler
	logger         observability.Logger
}

func NewConsumerService(consumer kafka.OrderReader, messageHandler MessageHandler, logger observability.Logger) ConsumerService {
	return &KafkaConsumerService{
		consumer:       consumer,
		messageHandler: messageHandler,
		logger:         logger,
	}
}

func (c *KafkaConsumerService) Start(ctx context.Context) error {
	c.logger.Info("Kafka consumer started. Waiting for orders...")

	for {
		msg, err := c.consumer.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				c.logger.Info("Context done, exiting Kafka read loop.", zap.Error(err))
				break
			}
			c.logger.Error("❌ Error reading from Kafka", zap.Error(err))
			continue
		}

		if err := c.messageHandler.HandleOrderCreated(ctx, *msg); err != nil {
			c.logger.Warn("Skipping unprocessable message", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}

	c.logger.Info("Consumer service finished.")
	return nil
}
