package events

import (
	"time"

	"cafepos/internal/inventory"

	"github.com/shopspring/decimal"
)

// Event type names carried in the "event-type" Kafka header.
const (
	TypeOrderCreated      = "OrderCreated"
	TypeInventoryDeducted = "InventoryDeducted"
	TypeLowStockAlert     = "LowStockAlert"
)

// OrderCreatedItem is one line of an order created by another sales channel.
// UnitPrice is optional; the catalogue price is used when it is missing.
type OrderCreatedItem struct {
	ItemID        string           `json:"item_id,omitempty"`
	ProductID     string           `json:"product_id"`
	Quantity      int              `json:"quantity"`
	UnitPrice     *decimal.Decimal `json:"unit_price,omitempty"`
	Customization string           `json:"customization,omitempty"`
}

// OrderCreatedEvent is consumed from the OrderCreated topic.
type OrderCreatedEvent struct {
	OrderID      string             `json:"order_id"`
	CustomerName string             `json:"customer_name,omitempty"`
	Items        []OrderCreatedItem `json:"items"`
	CreatedAt    time.Time          `json:"created_at"`
}

// InventoryDeductedEvent is published after an order's fulfillment step.
type InventoryDeductedEvent struct {
	OrderID      string                  `json:"order_id"`
	Status       string                  `json:"status"`
	Reason       string                  `json:"reason,omitempty"`
	Transactions []inventory.Transaction `json:"transactions"`
	Shortfalls   []inventory.Shortfall   `json:"shortfalls,omitempty"`
	OccurredAt   time.Time               `json:"occurred_at"`
}

// LowStockAlertEvent is published when an ingredient drops below its minimum level.
type LowStockAlertEvent struct {
	inventory.LowStockAlert
}
