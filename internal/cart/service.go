package cart

import (
	"context"
	"fmt"
	"time"

	"cafepos/internal/inventory"
	"cafepos/internal/platform/observability"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Limiter caps cart quantities by what the kitchen can currently make.
type Limiter interface {
	MaxProducible(ctx context.Context, productID string) int
	Product(ctx context.Context, id string) (inventory.Product, error)
}

// Store persists carts by session. Load returns an empty cart for unknown sessions.
type Store interface {
	Load(ctx context.Context, session string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, session string) error
}

// Result is the outcome of a cart mutation.
type Result struct {
	Cart      *Cart `json:"cart"`
	Requested int   `json:"requested"`
	Applied   int   `json:"applied"`
	Capped    bool  `json:"capped"`
}

// Service edits carts. Quantities are soft reservations: they are capped by the
// producible quantity but no stock is held or deducted.
type Service struct {
	store   Store
	limiter Limiter
	taxRate decimal.Decimal
	logger  observability.Logger
	now     func() time.Time
}

func NewService(store Store, limiter Limiter, taxRate decimal.Decimal, logger observability.Logger) *Service {
	return &Service{
		store:   store,
		limiter: limiter,
		taxRate: taxRate,
		logger:  logger,
		now:     time.Now,
	}
}

// TaxRate returns the rate applied by Totals.
func (s *Service) TaxRate() decimal.Decimal { return s.taxRate }

// Get returns the cart of a session.
func (s *Service) Get(ctx context.Context, session string) (*Cart, error) {
	return s.store.Load(ctx, session)
}

// Totals returns the money summary of the session's cart.
func (s *Service) Totals(ctx context.Context, session string) (Totals, error) {
	c, err := s.store.Load(ctx, session)
	if err != nil {
		return Totals{}, err
	}
	return c.Totals(s.taxRate), nil
}

// Add puts quantity units of a product into the cart. The quantity is capped so the
// product's total across all customizations never exceeds its producible quantity.
func (s *Service) Add(ctx context.Context, session, productID string, quantity int, customizations map[string]string) (Result, error) {
	if quantity <= 0 {
		return Result{}, ErrInvalidQuantity
	}
	product, err := s.limiter.Product(ctx, productID)
	if err != nil {
		return Result{}, fmt.Errorf("add %s to cart: %w", productID, err)
	}
	if !product.Active {
		return Result{}, fmt.Errorf("add %s to cart: %w", productID, ErrProductInactive)
	}

	c, err := s.store.Load(ctx, session)
	if err != nil {
		return Result{}, err
	}

	room := s.limiter.MaxProducible(ctx, productID) - c.QuantityOf(productID)
	applied := min(quantity, max(room, 0))
	res := Result{Requested: quantity, Applied: applied, Capped: applied < quantity}

	if applied > 0 {
		key := LineKey(productID, customizations)
		if i := c.find(key); i >= 0 {
			c.Lines[i].Quantity += applied
		} else {
			c.Lines = append(c.Lines, Line{
				Key:            key,
				ProductID:      product.ID,
				ProductName:    product.Name,
				UnitPrice:      product.Price,
				Quantity:       applied,
				Customizations: customizations,
			})
		}
		if err := s.save(ctx, c); err != nil {
			return Result{}, err
		}
	}

	if res.Capped {
		s.logger.Info("Cart quantity capped by stock",
			zap.String("session", session),
			zap.String("product_id", productID),
			zap.Int("requested", quantity),
			zap.Int("applied", applied),
		)
	}
	res.Cart = c
	return res, nil
}

// SetQuantity changes a line's quantity, clamped to [0, producible - other lines of
// the same product]. A resulting quantity of 0 removes the line.
func (s *Service) SetQuantity(ctx context.Context, session, key string, quantity int) (Result, error) {
	c, err := s.store.Load(ctx, session)
	if err != nil {
		return Result{}, err
	}
	i := c.find(key)
	if i < 0 {
		return Result{}, ErrLineNotFound
	}
	line := c.Lines[i]

	limit := s.limiter.MaxProducible(ctx, line.ProductID) - (c.QuantityOf(line.ProductID) - line.Quantity)
	applied := min(max(quantity, 0), max(limit, 0))
	res := Result{Requested: quantity, Applied: applied, Capped: applied < max(quantity, 0)}

	if applied == 0 {
		c.remove(key)
	} else {
		c.Lines[i].Quantity = applied
	}
	if err := s.save(ctx, c); err != nil {
		return Result{}, err
	}
	res.Cart = c
	return res, nil
}

// Increment adds one unit to a line.
func (s *Service) Increment(ctx context.Context, session, key string) (Result, error) {
	return s.step(ctx, session, key, 1)
}

// Decrement removes one unit from a line, dropping the line at zero.
func (s *Service) Decrement(ctx context.Context, session, key string) (Result, error) {
	return s.step(ctx, session, key, -1)
}

func (s *Service) step(ctx context.Context, session, key string, delta int) (Result, error) {
	c, err := s.store.Load(ctx, session)
	if err != nil {
		return Result{}, err
	}
	line, ok := c.Line(key)
	if !ok {
		return Result{}, ErrLineNotFound
	}
	return s.SetQuantity(ctx, session, key, line.Quantity+delta)
}

// Remove deletes a line.
func (s *Service) Remove(ctx context.Context, session, key string) (*Cart, error) {
	c, err := s.store.Load(ctx, session)
	if err != nil {
		return nil, err
	}
	if c.find(key) < 0 {
		return nil, ErrLineNotFound
	}
	c.remove(key)
	if err := s.save(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Clear empties the cart of a session.
func (s *Service) Clear(ctx context.Context, session string) error {
	return s.store.Delete(ctx, session)
}

func (s *Service) save(ctx context.Context, c *Cart) error {
	c.UpdatedAt = s.now().UTC()
	if err := s.store.Save(ctx, c); err != nil {
		return fmt.Errorf("save cart %s: %w", c.Session, err)
	}
	return nil
}
