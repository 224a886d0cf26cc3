package fulfillment

import (
	"context"
	"fmt"
	"strings"

	"cafepos/internal/config"
	"cafepos/internal/inventory"
	"cafepos/internal/order"
	"cafepos/internal/platform/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Deducer removes the ingredients of order items from stock.
type Deducer interface {
	DeductForOrder(ctx context.Context, items []inventory.ItemRequest) (inventory.DeductionResult, error)
	Revert(ctx context.Context, txs []inventory.Transaction, reason string) ([]inventory.Transaction, error)
	Mode() string
}

// ItemOutcome is the deduction outcome of a single order item.
type ItemOutcome struct {
	OrderItemID string                `json:"order_item_id"`
	ProductID   string                `json:"product_id"`
	Quantity    int                   `json:"quantity"`
	Deducted    bool                  `json:"deducted"`
	Shortfalls  []inventory.Shortfall `json:"shortfalls,omitempty"`
}

// Report is the inspectable result of fulfilling one order.
type Report struct {
	OrderID      string                  `json:"order_id"`
	Mode         string                  `json:"mode"`
	OK           bool                    `json:"ok"`
	Items        []ItemOutcome           `json:"items"`
	Transactions []inventory.Transaction `json:"transactions"`
	Reverted     []inventory.Transaction `json:"reverted,omitempty"`
	Shortfalls   []inventory.Shortfall   `json:"shortfalls,omitempty"`
	Status       order.Status            `json:"status"`
	Reason       string                  `json:"reason,omitempty"`
	Err          error                   `json:"-"`
}

// Policy decides what happens to an order whose stock could not be fully deducted.
type Policy string

// Decide returns the order status for report and the reason recorded with it.
func (p Policy) Decide(r Report) (order.Status, string) {
	if r.OK {
		return order.StatusPlaced, ""
	}
	reason := r.Summary()
	switch p {
	case config.PolicyReject:
		return order.StatusRejected, reason
	case config.PolicyReview:
		return order.StatusNeedsReview, reason
	default:
		return order.StatusPlaced, reason
	}
}

// Summary describes the shortfalls of a report in one line.
func (r Report) Summary() string {
	if r.Err != nil {
		return "inventory unavailable: " + r.Err.Error()
	}
	parts := make([]string, 0, len(r.Shortfalls))
	for _, s := range r.Shortfalls {
		if s.IngredientID == "" {
			parts = append(parts, fmt.Sprintf("%s: %s", s.ProductID, s.Reason))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s needs %s, has %s",
			s.ProductID, s.IngredientID, s.Required.String(), s.Available.String()))
	}
	return strings.Join(parts, "; ")
}

// Fulfiller runs the deduction step right after an order has been stored.
type Fulfiller struct {
	deducer Deducer
	policy  Policy
	logger  observability.Logger
	tracer  observability.Tracer
}

func NewFulfiller(deducer Deducer, policy Policy, logger observability.Logger, tracer observability.Tracer) *Fulfiller {
	return &Fulfiller{deducer: deducer, policy: policy, logger: logger, tracer: tracer}
}

// Fulfill deducts the ingredients of every item of o and decides the order's status.
// It never fails: storage errors are carried in the report and treated as a shortfall.
func (f *Fulfiller) Fulfill(ctx context.Context, o *order.Order) Report {
	ctx, span := f.tracer.Start(ctx, "order.fulfill")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", o.ID),
		attribute.Int("order.items", len(o.Items)),
		attribute.String("fulfillment.policy", string(f.policy)),
	)

	requests := make([]inventory.ItemRequest, len(o.Items))
	for i, it := range o.Items {
		requests[i] = inventory.ItemRequest{OrderItemID: it.ID, ProductID: it.ProductID, Quantity: it.Quantity}
	}

	report := Report{OrderID: o.ID, Mode: f.deducer.Mode()}
	result, err := f.deducer.DeductForOrder(ctx, requests)
	report.Transactions = result.Transactions
	report.Shortfalls = result.Shortfalls
	report.Err = err
	report.OK = err == nil && result.OK()

	short := make(map[string][]inventory.Shortfall)
	for _, s := range result.Shortfalls {
		short[s.OrderItemID] = append(short[s.OrderItemID], s)
	}
	atomicFailure := !report.OK && report.Mode != config.DeductionBestEffort
	for _, it := range o.Items {
		report.Items = append(report.Items, ItemOutcome{
			OrderItemID: it.ID,
			ProductID:   it.ProductID,
			Quantity:    it.Quantity,
			Deducted:    err == nil && !atomicFailure && len(short[it.ID]) == 0,
			Shortfalls:  short[it.ID],
		})
	}

	report.Status, report.Reason = f.policy.Decide(report)
	if report.Status == order.StatusRejected && len(report.Transactions) > 0 {
		f.revert(ctx, o, &report)
	}
	span.SetAttributes(attribute.String("order.status", string(report.Status)))

	if report.OK {
		span.SetStatus(codes.Ok, "order fulfilled")
		f.logger.Info("Order fulfilled",
			zap.String("order_id", o.ID),
			zap.Int("transactions", len(report.Transactions)),
		)
		return report
	}

	span.SetStatus(codes.Error, "order not fully fulfilled")
	if err != nil {
		span.RecordError(err)
	}
	for _, it := range report.Items {
		if it.Deducted {
			continue
		}
		f.logger.Warn("Inventory deduction failed for order item",
			zap.String("order_id", o.ID),
			zap.String("order_item_id", it.OrderItemID),
			zap.String("product_id", it.ProductID),
			zap.String("status", string(report.Status)),
			zap.Error(err),
		)
	}
	return report
}

// revert returns the stock a rejected order took in best-effort mode, so that a
// retried order does not deduct it a second time. When the stock cannot be
// returned the order is held for review instead.
func (f *Fulfiller) revert(ctx context.Context, o *order.Order, report *Report) {
	reverted, err := f.deducer.Revert(ctx, report.Transactions, "rejected order "+o.ID)
	if err != nil {
		f.logger.Error("Failed to return stock of rejected order",
			zap.String("order_id", o.ID),
			zap.Int("transactions", len(report.Transactions)),
			zap.Error(err),
		)
		report.Status = order.StatusNeedsReview
		report.Reason += "; stock not returned: " + err.Error()
		return
	}
	report.Reverted = reverted
	for i := range report.Items {
		report.Items[i].Deducted = false
	}
}
