package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"cafepos/internal/checkout"
	"cafepos/internal/events"
	"cafepos/internal/order"
	"cafepos/internal/platform/observability"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

// MessageHandler processes incoming Kafka messages.
type MessageHandler interface {
	HandleOrderCreated(ctx context.Context, msg kafkago.Message) error
}

// OrderPlacer is the checkout workflow orders from other channels go through.
type OrderPlacer interface {
	Place(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// KafkaMessageHandler places OrderCreated events through the checkout workflow.
type KafkaMessageHandler struct {
	orders OrderPlacer
	logger observability.Logger
	tracer observability.Tracer
}

func NewMessageHandler(orders OrderPlacer, logger observability.Logger, tracer observability.Tracer) MessageHandler {
	return &KafkaMessageHandler{orders: orders, logger: logger, tracer: tracer}
}

// HandleOrderCreated decodes an OrderCreated message and places the order.
// Redelivered orders are acknowledged without a second deduction.
func (h *KafkaMessageHandler) HandleOrderCreated(ctx context.Context, msg kafkago.Message) error {
	// Continue the producer's trace.
	msgCtx := extractTraceContext(ctx, msg.Headers)
	msgCtx, span := h.tracer.Start(msgCtx, "messaging.order_created")
	defer span.End()

	h.logger.Info("📨 Kafka message received",
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var event events.OrderCreatedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("❌ Invalid JSON in OrderCreated event",
			zap.Error(err),
			zap.ByteString("raw_value", msg.Value),
		)
		span.SetStatus(codes.Error, "invalid payload")
		return fmt.Errorf("decode OrderCreated: %w", err)
	}
	if event.OrderID == "" {
		span.SetStatus(codes.Error, "missing order id")
		h.logger.Error("❌ OrderCreated event without order id", zap.Int64("offset", msg.Offset))
		return errors.New("OrderCreated event without order id")
	}
	span.SetAttributes(attribute.String("order.id", event.OrderID))

	req := checkout.Request{ID: event.OrderID, CustomerName: event.CustomerName, Source: checkout.SourceChannel}
	for _, it := range event.Items {
		req.Items = append(req.Items, checkout.ItemRequest{
			ID:            it.ItemID,
			ProductID:     it.ProductID,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			Customization: it.Customization,
		})
	}

	res, err := h.orders.Place(msgCtx, req)
	if errors.Is(err, order.ErrDuplicate) {
		h.logger.Info("Order already placed, skipping", zap.String("order_id", event.OrderID))
		span.SetStatus(codes.Ok, "duplicate order")
		return nil
	}
	if err != nil {
		h.logger.Error("❌ Failed to place order", zap.Error(err), zap.String("order_id", event.OrderID))
		span.RecordError(err)
		span.SetStatus(codes.Error, "order not placed")
		return err
	}

	h.logger.Info("✅ Order placed from Kafka",
		zap.String("order_id", res.Order.ID),
		zap.String("status", string(res.Order.Status)),
	)
	span.SetStatus(codes.Ok, "order placed")
	return nil
}

// extractTraceContext reads the OpenTelemetry trace context from Kafka message headers.
func extractTraceContext(ctx context.Context, headers []kafkago.Header) context.Context {
	carrier := propagation.MapCarrier{}
	for _, header := range headers {
		carrier[string(header.Key)] = string(header.Value)
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
