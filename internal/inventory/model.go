package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// UnitType is the unit of measure an ingredient is stocked in.
type UnitType string

const (
	UnitCount  UnitType = "count"
	UnitMass   UnitType = "mass"
	UnitVolume UnitType = "volume"
)

// Valid reports whether u is one of the known unit types.
func (u UnitType) Valid() bool {
	switch u {
	case UnitCount, UnitMass, UnitVolume:
		return true
	}
	return false
}

// Ingredient is a raw material consumed by product recipes.
// Untracked ingredients never constrain availability and are never deducted.
type Ingredient struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Unit     UnitType        `json:"unit"`
	Tracked  bool            `json:"tracked"`
	UnitCost decimal.Decimal `json:"unit_cost"`
}

// StockLevel is the inventory record of a single ingredient.
type StockLevel struct {
	IngredientID    string              `json:"ingredient_id"`
	Current         decimal.Decimal     `json:"current_stock"`
	Min             decimal.Decimal     `json:"min_stock"`
	Max             decimal.NullDecimal `json:"max_stock"`
	Location        string              `json:"location"`
	LastRestockedAt *time.Time          `json:"last_restocked_at,omitempty"`
}

// IsLow reports whether the current stock is below the minimum level.
func (s StockLevel) IsLow() bool {
	return s.Current.LessThan(s.Min)
}

// IsOverMax reports whether the current stock exceeds the optional maximum level.
func (s StockLevel) IsOverMax() bool {
	return s.Max.Valid && s.Current.GreaterThan(s.Max.Decimal)
}

// Product is the sellable item a recipe belongs to.
type Product struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Category string          `json:"category"`
	Price    decimal.Decimal `json:"price"`
	Active   bool            `json:"active"`
}

// RecipeEntry is the quantity of one ingredient needed to produce one unit of a product.
type RecipeEntry struct {
	ProductID    string          `json:"product_id"`
	IngredientID string          `json:"ingredient_id"`
	Quantity     decimal.Decimal `json:"quantity"`
}

// RecipeLine is a recipe entry joined with its ingredient and, when present, its stock record.
type RecipeLine struct {
	Ingredient Ingredient
	Quantity   decimal.Decimal
	Stock      *StockLevel
}

// StockItem is one row of the stock report.
type StockItem struct {
	Ingredient Ingredient  `json:"ingredient"`
	Stock      *StockLevel `json:"stock,omitempty"`
	LowStock   bool        `json:"low_stock"`
}

// TransactionType classifies a stock mutation.
type TransactionType string

const (
	TransactionRestock    TransactionType = "restock"
	TransactionDeduction  TransactionType = "deduction"
	TransactionWaste      TransactionType = "waste"
	TransactionAdjustment TransactionType = "adjustment"
)

// Transaction is the immutable audit record of a single stock mutation.
// NewStock always equals PreviousStock + QuantityChange.
type Transaction struct {
	ID             string          `json:"id"`
	IngredientID   string          `json:"ingredient_id"`
	Type           TransactionType `json:"type"`
	QuantityChange decimal.Decimal `json:"quantity_change"`
	PreviousStock  decimal.Decimal `json:"previous_stock"`
	NewStock       decimal.Decimal `json:"new_stock"`
	Reason         string          `json:"reason"`
	OrderItemID    string          `json:"order_item_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// TransactionFilter selects transactions from the audit log. Zero fields do not filter.
type TransactionFilter struct {
	IngredientID string
	OrderItemID  string
	From         time.Time
	To           time.Time
	Limit        int
}

// Matches reports whether tx passes the filter, ignoring Limit.
func (f TransactionFilter) Matches(tx Transaction) bool {
	if f.IngredientID != "" && tx.IngredientID != f.IngredientID {
		return false
	}
	if f.OrderItemID != "" && tx.OrderItemID != f.OrderItemID {
		return false
	}
	if !f.From.IsZero() && tx.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !tx.CreatedAt.Before(f.To) {
		return false
	}
	return true
}

// Mutation is a single requested stock change. Either Delta or SetTo is used:
// SetTo, when non-nil, moves the stock to an absolute level.
type Mutation struct {
	IngredientID    string
	Type            TransactionType
	Delta           decimal.Decimal
	SetTo           *decimal.Decimal
	Reason          string
	OrderItemID     string
	CreateIfMissing bool
}

// StockScale is the number of decimal places stock quantities are stored with.
const StockScale = 4

// FitsScale reports whether q can be stored without rounding.
func FitsScale(q decimal.Decimal) bool {
	return q.Equal(q.Truncate(StockScale))
}

func (m Mutation) validate() error {
	if !FitsScale(m.Delta) || (m.SetTo != nil && !FitsScale(*m.SetTo)) {
		return fmt.Errorf("ingredient %s: %w: more than %d decimal places", m.IngredientID, ErrInvalidQuantity, StockScale)
	}
	return nil
}

// Applied is the outcome of one mutation: the written transaction and the resulting stock row.
type Applied struct {
	Transaction Transaction
	Level       StockLevel
}

// LowStockAlert is raised when a mutation takes stock from at-or-above the minimum to below it.
type LowStockAlert struct {
	IngredientID string          `json:"ingredient_id"`
	Current      decimal.Decimal `json:"current_stock"`
	Min          decimal.Decimal `json:"min_stock"`
	AlertedAt    time.Time       `json:"alerted_at"`
}
