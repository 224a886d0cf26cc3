package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"cafepos/internal/events"
	"cafepos/internal/inventory"
	"cafepos/internal/platform/kafka"
	"cafepos/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher writes inventory events to the inventory topic. The producer carries
// the trace context of ctx into the message headers.
type Publisher struct {
	producer kafka.EventWriter
	logger   observability.Logger
}

func NewPublisher(producer kafka.EventWriter, logger observability.Logger) *Publisher {
	return &Publisher{producer: producer, logger: logger}
}

// PublishInventoryDeducted announces the fulfillment outcome of an order.
func (p *Publisher) PublishInventoryDeducted(ctx context.Context, event events.InventoryDeductedEvent) error {
	if err := p.write(ctx, events.TypeInventoryDeducted, event.OrderID, event); err != nil {
		return err
	}
	p.logger.Info("📤 Sent InventoryDeducted event",
		zap.String("order_id", event.OrderID),
		zap.String("status", event.Status),
	)
	return nil
}

// NotifyLowStock publishes a LowStockAlert event.
func (p *Publisher) NotifyLowStock(ctx context.Context, alert inventory.LowStockAlert) error {
	if err := p.write(ctx, events.TypeLowStockAlert, alert.IngredientID, events.LowStockAlertEvent{LowStockAlert: alert}); err != nil {
		return err
	}
	p.logger.Info("📤 Sent LowStockAlert event", zap.String("ingredient_id", alert.IngredientID))
	return nil
}

func (p *Publisher) write(ctx context.Context, eventType, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}

	msg := kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event-type", Value: []byte(eventType)},
		},
	}
	if err := p.producer.WriteMessage(ctx, msg); err != nil {
		p.logger.Error("❌ Failed to publish event",
			zap.String("event_type", eventType),
			zap.String("key", key),
			zap.Error(err),
		)
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}
