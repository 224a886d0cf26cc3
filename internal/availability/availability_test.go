package availability

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cafepos/internal/inventory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubEngine struct {
	max      map[string]int
	products []inventory.Product
	calls    atomic.Int32
	delay    time.Duration
}

func (s *stubEngine) CanProduce(_ context.Context, productID string, quantity int) bool {
	return quantity <= s.max[productID]
}

func (s *stubEngine) MaxProducible(_ context.Context, productID string) int {
	s.calls.Add(1)
	time.Sleep(s.delay)
	return s.max[productID]
}

func (s *stubEngine) Products(context.Context) ([]inventory.Product, error) {
	return s.products, nil
}

func (s *stubEngine) Product(_ context.Context, id string) (inventory.Product, error) {
	for _, p := range s.products {
		if p.ID == id {
			return p, nil
		}
	}
	return inventory.Product{}, inventory.ErrProductNotFound
}

func menu() *stubEngine {
	return &stubEngine{
		max: map[string]int{
			"latte":    12,
			"mocha":    2,
			"muffin":   0,
			"water":    inventory.UnlimitedQuantity,
			"seasonal": 7,
		},
		products: []inventory.Product{
			{ID: "latte", Name: "Latte", Price: decimal.RequireFromString("4.50"), Active: true},
			{ID: "mocha", Name: "Mocha", Active: true},
			{ID: "muffin", Name: "Muffin", Active: true},
			{ID: "water", Name: "Water", Active: true},
			{ID: "seasonal", Name: "Pumpkin Spice", Active: false},
		},
	}
}

func TestListing_StatusesAndInactiveProducts(t *testing.T) {
	svc := NewService(menu(), 0, zap.NewNop())

	listing, err := svc.Listing(context.Background())

	require.NoError(t, err)
	require.Len(t, listing, 4)
	got := make(map[string]Status)
	for _, a := range listing {
		got[a.Product.ID] = a.Status
	}
	assert.Equal(t, map[string]Status{
		"latte":  StatusInStock,
		"mocha":  StatusLowStock,
		"muffin": StatusOutOfStock,
		"water":  StatusUnlimited,
	}, got)
}

func TestCheck(t *testing.T) {
	svc := NewService(menu(), 5, zap.NewNop())

	a, err := svc.Check(context.Background(), "latte", 13)
	require.NoError(t, err)
	assert.False(t, a.CanProduce)
	assert.Equal(t, 12, a.MaxProducible)
	assert.Equal(t, 13, a.Requested)

	a, err = svc.Check(context.Background(), "mocha", 0)
	require.NoError(t, err)
	assert.True(t, a.CanProduce)
	assert.Equal(t, 1, a.Requested)
	assert.Equal(t, StatusLowStock, a.Status)

	_, err = svc.Check(context.Background(), "ghost", 1)
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestMaxProducible_CoalescesConcurrentLookups(t *testing.T) {
	engine := menu()
	engine.delay = 50 * time.Millisecond
	svc := NewService(engine, 0, zap.NewNop())

	var wg sync.WaitGroup
	results := make([]int, 10)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.MaxProducible(context.Background(), "latte")
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, 12, r)
	}
	assert.Less(t, engine.calls.Load(), int32(10))
}
