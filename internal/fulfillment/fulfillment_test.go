package fulfillment

import (
	"context"
	"errors"
	"testing"

	"cafepos/internal/config"
	"cafepos/internal/inventory"
	"cafepos/internal/order"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

var tracer = noop.NewTracerProvider().Tracer("test")

// kitchen has 300 ml milk and 100 g beans: one latte (200 milk, 18 beans) fits, two do not.
func kitchen(t *testing.T, mode string) *inventory.Engine {
	t.Helper()
	d := decimal.RequireFromString
	store := inventory.NewMemoryStore()
	require.NoError(t, store.Seed(
		[]inventory.Product{{ID: "latte", Name: "Latte", Active: true}, {ID: "espresso", Name: "Espresso", Active: true}},
		[]inventory.Ingredient{
			{ID: "milk", Name: "Milk", Unit: inventory.UnitVolume, Tracked: true},
			{ID: "beans", Name: "Beans", Unit: inventory.UnitMass, Tracked: true},
		},
		[]inventory.StockLevel{
			{IngredientID: "milk", Current: d("300")},
			{IngredientID: "beans", Current: d("100")},
		},
		[]inventory.RecipeEntry{
			{ProductID: "latte", IngredientID: "milk", Quantity: d("200")},
			{ProductID: "latte", IngredientID: "beans", Quantity: d("18")},
			{ProductID: "espresso", IngredientID: "beans", Quantity: d("18")},
		},
	))
	return inventory.NewEngine(store, zap.NewNop(), tracer, inventory.WithMode(mode))
}

func orderOf(items ...order.Item) *order.Order {
	return &order.Order{ID: "order-1", Status: order.StatusPlaced, Items: items}
}

func TestFulfill_Success(t *testing.T) {
	f := NewFulfiller(kitchen(t, config.DeductionAtomic), config.PolicyReject, zap.NewNop(), tracer)

	report := f.Fulfill(context.Background(), orderOf(order.Item{ID: "i1", ProductID: "latte", Quantity: 1}))

	assert.True(t, report.OK)
	assert.Equal(t, order.StatusPlaced, report.Status)
	assert.Len(t, report.Transactions, 2)
	require.Len(t, report.Items, 1)
	assert.True(t, report.Items[0].Deducted)
}

func TestFulfill_Policies(t *testing.T) {
	tests := []struct {
		policy Policy
		want   order.Status
	}{
		{config.PolicyProceed, order.StatusPlaced},
		{config.PolicyReview, order.StatusNeedsReview},
		{config.PolicyReject, order.StatusRejected},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			f := NewFulfiller(kitchen(t, config.DeductionAtomic), tt.policy, zap.NewNop(), tracer)

			report := f.Fulfill(context.Background(), orderOf(
				order.Item{ID: "i1", ProductID: "espresso", Quantity: 1},
				order.Item{ID: "i2", ProductID: "latte", Quantity: 2},
			))

			assert.False(t, report.OK)
			assert.Equal(t, tt.want, report.Status)
			assert.Contains(t, report.Reason, "milk needs 400, has 300")
			assert.Empty(t, report.Transactions)
			for _, it := range report.Items {
				assert.False(t, it.Deducted, "atomic mode deducts nothing on a shortfall")
			}
		})
	}
}

func TestFulfill_BestEffortItemOutcomes(t *testing.T) {
	f := NewFulfiller(kitchen(t, config.DeductionBestEffort), config.PolicyReview, zap.NewNop(), tracer)

	report := f.Fulfill(context.Background(), orderOf(
		order.Item{ID: "i1", ProductID: "espresso", Quantity: 1},
		order.Item{ID: "i2", ProductID: "latte", Quantity: 2},
	))

	assert.False(t, report.OK)
	assert.Equal(t, order.StatusNeedsReview, report.Status)
	require.Len(t, report.Items, 2)
	assert.True(t, report.Items[0].Deducted)
	assert.False(t, report.Items[1].Deducted)
	// espresso beans, latte beans; latte milk is short.
	assert.Len(t, report.Transactions, 2)
}

type failingDeducer struct{}

func (failingDeducer) DeductForOrder(context.Context, []inventory.ItemRequest) (inventory.DeductionResult, error) {
	return inventory.DeductionResult{}, errors.New("database is down")
}

func (failingDeducer) Revert(context.Context, []inventory.Transaction, string) ([]inventory.Transaction, error) {
	return nil, errors.New("database is down")
}

func (failingDeducer) Mode() string { return config.DeductionAtomic }

func stockOf(t *testing.T, e *inventory.Engine, id string) decimal.Decimal {
	t.Helper()
	report, err := e.StockReport(context.Background())
	require.NoError(t, err)
	for _, item := range report {
		if item.Ingredient.ID == id {
			return item.Stock.Current
		}
	}
	t.Fatalf("no stock for %s", id)
	return decimal.Zero
}

func TestFulfill_BestEffortRejectReturnsStock(t *testing.T) {
	engine := kitchen(t, config.DeductionBestEffort)
	f := NewFulfiller(engine, config.PolicyReject, zap.NewNop(), tracer)

	for attempt := 1; attempt <= 3; attempt++ {
		report := f.Fulfill(context.Background(), orderOf(order.Item{ID: "i1", ProductID: "latte", Quantity: 2}))

		assert.Equal(t, order.StatusRejected, report.Status)
		assert.Len(t, report.Transactions, 1, "beans were deducted before the milk shortfall")
		require.Len(t, report.Reverted, 1)
		assert.Equal(t, inventory.TransactionAdjustment, report.Reverted[0].Type)
		assert.True(t, report.Reverted[0].QuantityChange.Equal(decimal.NewFromInt(36)))
		assert.False(t, report.Items[0].Deducted)
		assert.True(t, stockOf(t, engine, "beans").Equal(decimal.NewFromInt(100)), "attempt %d", attempt)
		assert.True(t, stockOf(t, engine, "milk").Equal(decimal.NewFromInt(300)), "attempt %d", attempt)
	}
}

type partialDeducer struct{ failingDeducer }

func (partialDeducer) DeductForOrder(context.Context, []inventory.ItemRequest) (inventory.DeductionResult, error) {
	return inventory.DeductionResult{
		Transactions: []inventory.Transaction{{ID: "t1", IngredientID: "beans", QuantityChange: decimal.NewFromInt(-18)}},
		Shortfalls:   []inventory.Shortfall{{OrderItemID: "i1", ProductID: "latte", IngredientID: "milk"}},
	}, nil
}

func (partialDeducer) Mode() string { return config.DeductionBestEffort }

func TestFulfill_RejectHeldForReviewWhenStockCannotBeReturned(t *testing.T) {
	f := NewFulfiller(partialDeducer{}, config.PolicyReject, zap.NewNop(), tracer)

	report := f.Fulfill(context.Background(), orderOf(order.Item{ID: "i1", ProductID: "latte", Quantity: 1}))

	assert.Equal(t, order.StatusNeedsReview, report.Status)
	assert.Contains(t, report.Reason, "stock not returned")
	assert.Empty(t, report.Reverted)
}

func TestFulfill_StorageError(t *testing.T) {
	f := NewFulfiller(failingDeducer{}, config.PolicyReview, zap.NewNop(), tracer)

	report := f.Fulfill(context.Background(), orderOf(order.Item{ID: "i1", ProductID: "latte", Quantity: 1}))

	assert.False(t, report.OK)
	assert.Equal(t, order.StatusNeedsReview, report.Status)
	assert.Contains(t, report.Reason, "database is down")
	assert.False(t, report.Items[0].Deducted)
}

func TestPolicy_DecideOnSuccess(t *testing.T) {
	status, reason := Policy(config.PolicyReject).Decide(Report{OK: true})

	assert.Equal(t, order.StatusPlaced, status)
	assert.Empty(t, reason)
}
