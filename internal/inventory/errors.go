package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrProductNotFound    = fmt.Errorf("product %w", ErrNotFound)
	ErrIngredientNotFound = fmt.Errorf("ingredient %w", ErrNotFound)
	ErrNoStockRecord      = errors.New("ingredient has no stock record")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrInvalidQuantity    = errors.New("invalid quantity")
)

// ShortfallError reports the ingredient that could not cover a requested change.
type ShortfallError struct {
	IngredientID string
	Required     decimal.Decimal
	Available    decimal.Decimal
}

func (e *ShortfallError) Error() string {
	return fmt.Sprintf("insufficient stock for ingredient %s: required %s, available %s",
		e.IngredientID, e.Required.String(), e.Available.String())
}

func (e *ShortfallError) Unwrap() error { return ErrInsufficientStock }

