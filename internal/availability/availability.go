package availability

import (
	"context"
	"fmt"

	"cafepos/internal/inventory"
	"cafepos/internal/platform/observability"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Status is the availability badge shown next to a product on the POS screen.
type Status string

const (
	StatusInStock    Status = "in_stock"
	StatusLowStock   Status = "low_stock"
	StatusOutOfStock Status = "out_of_stock"
	StatusUnlimited  Status = "unlimited"
)

// DefaultLowStockUnits is the producible quantity at or below which a product shows as low stock.
const DefaultLowStockUnits = 3

// Producibility is the part of the inventory engine the POS listing reads.
type Producibility interface {
	CanProduce(ctx context.Context, productID string, quantity int) bool
	MaxProducible(ctx context.Context, productID string) int
	Products(ctx context.Context) ([]inventory.Product, error)
	Product(ctx context.Context, id string) (inventory.Product, error)
}

// ProductAvailability is a product together with how many units can be made.
type ProductAvailability struct {
	Product       inventory.Product `json:"product"`
	Status        Status            `json:"status"`
	MaxProducible int               `json:"max_producible"`
	Requested     int               `json:"requested,omitempty"`
	CanProduce    bool              `json:"can_produce"`
}

// Service answers availability questions for the POS listing and the cart.
// Concurrent MaxProducible calls for the same product share one recipe read.
type Service struct {
	engine        Producibility
	lowStockUnits int
	logger        observability.Logger
	group         singleflight.Group
}

func NewService(engine Producibility, lowStockUnits int, logger observability.Logger) *Service {
	if lowStockUnits <= 0 {
		lowStockUnits = DefaultLowStockUnits
	}
	return &Service{engine: engine, lowStockUnits: lowStockUnits, logger: logger}
}

// MaxProducible returns the producible quantity of a product, 0 when it is unknown.
func (s *Service) MaxProducible(ctx context.Context, productID string) int {
	v, _, shared := s.group.Do(productID, func() (interface{}, error) {
		// A caller giving up must not fail the others waiting on the same key.
		return s.engine.MaxProducible(context.WithoutCancel(ctx), productID), nil
	})
	if shared {
		s.logger.Debug("Shared producibility lookup", zap.String("product_id", productID))
	}
	return v.(int)
}

// CanProduce reports whether quantity units of the product can be made right now.
func (s *Service) CanProduce(ctx context.Context, productID string, quantity int) bool {
	return s.engine.CanProduce(ctx, productID, quantity)
}

// Product returns a catalogue entry.
func (s *Service) Product(ctx context.Context, id string) (inventory.Product, error) {
	return s.engine.Product(ctx, id)
}

// Check reports the availability of one product for the requested quantity.
func (s *Service) Check(ctx context.Context, productID string, quantity int) (ProductAvailability, error) {
	if quantity <= 0 {
		quantity = 1
	}
	p, err := s.engine.Product(ctx, productID)
	if err != nil {
		return ProductAvailability{}, fmt.Errorf("availability of %s: %w", productID, err)
	}
	a := s.describe(ctx, p)
	a.Requested = quantity
	a.CanProduce = s.engine.CanProduce(ctx, productID, quantity)
	return a, nil
}

// Listing returns every active product with its availability.
func (s *Service) Listing(ctx context.Context) ([]ProductAvailability, error) {
	products, err := s.engine.Products(ctx)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]ProductAvailability, 0, len(products))
	for _, p := range products {
		if !p.Active {
			continue
		}
		out = append(out, s.describe(ctx, p))
	}
	return out, nil
}

func (s *Service) describe(ctx context.Context, p inventory.Product) ProductAvailability {
	units := s.MaxProducible(ctx, p.ID)
	return ProductAvailability{
		Product:       p,
		Status:        s.status(units),
		MaxProducible: units,
		CanProduce:    units > 0,
	}
}

func (s *Service) status(units int) Status {
	switch {
	case units >= inventory.UnlimitedQuantity:
		return StatusUnlimited
	case units <= 0:
		return StatusOutOfStock
	case units <= s.lowStockUnits:
		return StatusLowStock
	default:
		return StatusInStock
	}
}
