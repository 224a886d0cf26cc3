package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cafepos/internal/cart"
	"cafepos/internal/events"
	"cafepos/internal/fulfillment"
	"cafepos/internal/inventory"
	"cafepos/internal/order"
	"cafepos/internal/platform/observability"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

var ErrInvalidItem = errors.New("invalid order item")

// Catalog resolves products and their current prices.
type Catalog interface {
	Product(ctx context.Context, id string) (inventory.Product, error)
}

// Fulfiller runs the deduction step of a stored order.
type Fulfiller interface {
	Fulfill(ctx context.Context, o *order.Order) fulfillment.Report
}

// EventPublisher announces fulfilled orders to other services.
type EventPublisher interface {
	PublishInventoryDeducted(ctx context.Context, event events.InventoryDeductedEvent) error
}

// Carts is the part of the cart service checkout needs.
type Carts interface {
	Get(ctx context.Context, session string) (*cart.Cart, error)
	Clear(ctx context.Context, session string) error
}

// Source tells where an order comes from.
type Source int

const (
	// SourceAPI orders are priced from the catalogue and may only name known products.
	SourceAPI Source = iota
	// SourceCart orders carry the prices shown in the cart.
	SourceCart
	// SourceChannel orders were already taken by another sales channel. They keep
	// their own prices, and items for products missing from the catalogue are
	// stored anyway so fulfillment reports them as shortfalls.
	SourceChannel
)

// ItemRequest is one requested order line. UnitPrice overrides the catalogue price
// for cart and channel orders.
type ItemRequest struct {
	ID            string           `json:"id,omitempty"`
	ProductID     string           `json:"product_id"`
	Quantity      int              `json:"quantity"`
	UnitPrice     *decimal.Decimal `json:"-"`
	Customization string           `json:"customization,omitempty"`
}

// Request places an order. An empty ID gets a generated one.
type Request struct {
	ID           string        `json:"id,omitempty"`
	CustomerName string        `json:"customer_name"`
	Items        []ItemRequest `json:"items"`
	Source       Source        `json:"-"`
}

// Result is a stored order together with its fulfillment report.
type Result struct {
	Order  *order.Order       `json:"order"`
	Report fulfillment.Report `json:"fulfillment"`
}

// Service is the order pipeline: store the order, then fulfill it exactly once.
type Service struct {
	catalog   Catalog
	orders    order.Repository
	fulfiller Fulfiller
	publisher EventPublisher
	carts     Carts
	taxRate   decimal.Decimal
	logger    observability.Logger
	tracer    observability.Tracer
	now       func() time.Time

	placed metric.Int64Counter
}

func NewService(
	catalog Catalog,
	orders order.Repository,
	fulfiller Fulfiller,
	publisher EventPublisher,
	carts Carts,
	taxRate decimal.Decimal,
	logger observability.Logger,
	tracer observability.Tracer,
) *Service {
	s := &Service{
		catalog:   catalog,
		orders:    orders,
		fulfiller: fulfiller,
		publisher: publisher,
		carts:     carts,
		taxRate:   taxRate,
		logger:    logger,
		tracer:    tracer,
		now:       time.Now,
	}
	var err error
	s.placed, err = otel.Meter("cafepos/checkout").Int64Counter("orders.placed",
		metric.WithDescription("Orders stored and fulfilled, by resulting status"))
	if err != nil {
		logger.Warn("Failed to create orders counter", zap.Error(err))
	}
	return s
}

// Place stores a new order and runs its fulfillment step. An order id that already
// exists fails with order.ErrDuplicate and deducts nothing.
func (s *Service) Place(ctx context.Context, req Request) (*Result, error) {
	ctx, span := s.tracer.Start(ctx, "checkout.place_order")
	defer span.End()

	o, err := s.build(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid order")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.Int("order.items", len(o.Items)),
	)

	if err := s.orders.Create(ctx, o); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "order not stored")
		return nil, err
	}
	s.logger.Info("Order stored", zap.String("order_id", o.ID), zap.String("total", o.Total.String()))

	report := s.fulfiller.Fulfill(ctx, o)
	if report.Status != o.Status || report.Reason != "" {
		if err := s.orders.UpdateStatus(ctx, o.ID, report.Status, report.Reason); err != nil {
			s.logger.Error("Failed to record fulfillment outcome",
				zap.String("order_id", o.ID),
				zap.String("status", string(report.Status)),
				zap.Error(err),
			)
		} else {
			o.Status, o.ReviewReason = report.Status, report.Reason
		}
	}

	s.publish(ctx, o, report)
	if s.placed != nil {
		s.placed.Add(ctx, 1, metric.WithAttributes(attribute.String("order.status", string(o.Status))))
	}

	span.SetAttributes(attribute.String("order.status", string(o.Status)))
	span.SetStatus(codes.Ok, "order placed")
	return &Result{Order: o, Report: report}, nil
}

// PlaceFromCart turns the cart of a session into an order. The cart is cleared unless
// the order was rejected.
func (s *Service) PlaceFromCart(ctx context.Context, session, customerName string) (*Result, error) {
	c, err := s.carts.Get(ctx, session)
	if err != nil {
		return nil, err
	}
	if len(c.Lines) == 0 {
		return nil, cart.ErrEmptyCart
	}

	req := Request{CustomerName: customerName, Source: SourceCart}
	for _, l := range c.Lines {
		price := l.UnitPrice
		req.Items = append(req.Items, ItemRequest{
			ProductID:     l.ProductID,
			Quantity:      l.Quantity,
			UnitPrice:     &price,
			Customization: cart.Fingerprint(l.Customizations),
		})
	}

	res, err := s.Place(ctx, req)
	if err != nil {
		return nil, err
	}
	if res.Order.Status != order.StatusRejected {
		if err := s.carts.Clear(ctx, session); err != nil {
			s.logger.Warn("Failed to clear cart after checkout", zap.String("session", session), zap.Error(err))
		}
	}
	return res, nil
}

// Get returns a stored order.
func (s *Service) Get(ctx context.Context, id string) (*order.Order, error) {
	return s.orders.Get(ctx, id)
}

func (s *Service) build(ctx context.Context, req Request) (*order.Order, error) {
	if len(req.Items) == 0 {
		return nil, order.ErrNoItems
	}
	now := s.now().UTC()
	o := &order.Order{
		ID:           req.ID,
		CustomerName: req.CustomerName,
		Status:       order.StatusPlaced,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	for i, it := range req.Items {
		if it.Quantity <= 0 {
			return nil, fmt.Errorf("item %d: %w: quantity must be positive", i+1, ErrInvalidItem)
		}
		p, err := s.catalog.Product(ctx, it.ProductID)
		switch {
		case errors.Is(err, inventory.ErrNotFound) && req.Source == SourceChannel:
			s.logger.Warn("Order item names an unknown product",
				zap.String("order_id", o.ID),
				zap.String("product_id", it.ProductID),
			)
			p = inventory.Product{ID: it.ProductID}
		case err != nil:
			return nil, fmt.Errorf("item %d: %w", i+1, err)
		}
		price := p.Price
		if it.UnitPrice != nil && req.Source != SourceAPI {
			if it.UnitPrice.IsNegative() {
				return nil, fmt.Errorf("item %d: %w: negative price", i+1, ErrInvalidItem)
			}
			price = *it.UnitPrice
		}
		id := it.ID
		if id == "" {
			id = uuid.NewString()
		}
		o.Items = append(o.Items, order.Item{
			ID:            id,
			ProductID:     p.ID,
			ProductName:   p.Name,
			Quantity:      it.Quantity,
			UnitPrice:     price,
			Customization: it.Customization,
		})
	}

	subtotal := o.Subtotal().Round(2)
	o.Total = subtotal.Add(subtotal.Mul(s.taxRate).Round(2))
	return o, nil
}

func (s *Service) publish(ctx context.Context, o *order.Order, report fulfillment.Report) {
	if s.publisher == nil {
		return
	}
	event := events.InventoryDeductedEvent{
		OrderID:      o.ID,
		Status:       string(o.Status),
		Reason:       o.ReviewReason,
		Transactions: report.Transactions,
		Shortfalls:   report.Shortfalls,
		OccurredAt:   s.now().UTC(),
	}
	if err := s.publisher.PublishInventoryDeducted(ctx, event); err != nil {
		s.logger.Error("Failed to publish InventoryDeducted event", zap.String("order_id", o.ID), zap.Error(err))
	}
}
