package order

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound  = errors.New("order not found")
	ErrDuplicate = errors.New("order already exists")
	ErrNoItems   = errors.New("order has no items")
)

// Status is the lifecycle state of an order after fulfillment.
type Status string

const (
	StatusPlaced      Status = "placed"
	StatusNeedsReview Status = "needs_review"
	StatusRejected    Status = "rejected"
)

// Item is one order line. Customization is the fingerprint of the chosen options.
type Item struct {
	ID            string          `json:"id"`
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Customization string          `json:"customization,omitempty"`
}

// Subtotal is the unit price times the quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is a placed order with its items in entry order.
type Order struct {
	ID           string          `json:"id"`
	CustomerName string          `json:"customer_name"`
	Status       Status          `json:"status"`
	ReviewReason string          `json:"review_reason,omitempty"`
	Items        []Item          `json:"items"`
	Total        decimal.Decimal `json:"total"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Subtotal sums the item subtotals.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.Subtotal())
	}
	return sum
}

// Repository persists orders. Create fails with ErrDuplicate when the id is taken,
// which is what keeps an order from being fulfilled twice.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	UpdateStatus(ctx context.Context, id string, status Status, reason string) error
}
