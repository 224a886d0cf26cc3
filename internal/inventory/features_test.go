package inventory_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"cafepos/internal/inventory"

	"github.com/cucumber/godog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

type ledgerContext struct {
	store    *inventory.MemoryStore
	engine   *inventory.Engine
	deducted bool
	err      error
}

func (c *ledgerContext) reset() {
	c.store = inventory.NewMemoryStore()
	c.engine = inventory.NewEngine(c.store, zap.NewNop(), noop.NewTracerProvider().Tracer("features"))
	c.deducted = false
	c.err = nil
}

func id(name string) string {
	return strings.ToLower(name)
}

func (c *ledgerContext) aProductThatNeeds(product string, quantity int, ingredient string) error {
	c.store.PutProduct(inventory.Product{ID: id(product), Name: product, Active: true})
	c.store.PutIngredient(inventory.Ingredient{ID: id(ingredient), Name: ingredient, Unit: inventory.UnitVolume, Tracked: true})
	return c.store.SetRecipe(id(product), inventory.RecipeEntry{
		IngredientID: id(ingredient),
		Quantity:     decimal.NewFromInt(int64(quantity)),
	})
}

func (c *ledgerContext) hasInStockWithMinimum(ingredient string, current, minimum int) error {
	return c.store.PutStock(inventory.StockLevel{
		IngredientID: id(ingredient),
		Current:      decimal.NewFromInt(int64(current)),
		Min:          decimal.NewFromInt(int64(minimum)),
	})
}

func (c *ledgerContext) canBeProduced(n int, product string) error {
	if !c.engine.CanProduce(context.Background(), id(product), n) {
		return fmt.Errorf("expected %d %s to be producible", n, product)
	}
	if got := c.engine.MaxProducible(context.Background(), id(product)); got < n {
		return fmt.Errorf("max producible is %d, want at least %d", got, n)
	}
	return nil
}

func (c *ledgerContext) cannotBeProduced(n int, product string) error {
	if c.engine.CanProduce(context.Background(), id(product), n) {
		return fmt.Errorf("expected %d %s not to be producible", n, product)
	}
	return nil
}

func (c *ledgerContext) orderItemIsDeducted(item string, quantity int, product string) error {
	c.deducted = c.engine.DeductForOrderItem(context.Background(), id(product), quantity, item)
	return nil
}

func (c *ledgerContext) isRestockedWith(ingredient string, quantity int) error {
	_, c.err = c.engine.Restock(context.Background(), id(ingredient), decimal.NewFromInt(int64(quantity)), "delivery")
	return c.err
}

func (c *ledgerContext) isRecordedAsWaste(quantity int, ingredient string) error {
	_, c.err = c.engine.RecordWaste(context.Background(), id(ingredient), decimal.NewFromInt(int64(quantity)), "spilled")
	return nil
}

func (c *ledgerContext) theDeductionSucceeds() error {
	if !c.deducted {
		return errors.New("expected the deduction to succeed")
	}
	return nil
}

func (c *ledgerContext) theDeductionFails() error {
	if c.deducted {
		return errors.New("expected the deduction to fail")
	}
	return nil
}

func (c *ledgerContext) theMutationIsRejected() error {
	if !errors.Is(c.err, inventory.ErrInsufficientStock) {
		return fmt.Errorf("expected insufficient stock, got %v", c.err)
	}
	return nil
}

func (c *ledgerContext) stockIs(ingredient string, want int) error {
	report, err := c.engine.StockReport(context.Background())
	if err != nil {
		return err
	}
	for _, item := range report {
		if item.Ingredient.ID != id(ingredient) || item.Stock == nil {
			continue
		}
		if !item.Stock.Current.Equal(decimal.NewFromInt(int64(want))) {
			return fmt.Errorf("%s stock is %s, want %d", ingredient, item.Stock.Current, want)
		}
		return nil
	}
	return fmt.Errorf("%s has no stock record", ingredient)
}

func (c *ledgerContext) transactions(ingredient string) ([]inventory.Transaction, error) {
	return c.engine.Transactions(context.Background(), inventory.TransactionFilter{IngredientID: id(ingredient)})
}

func (c *ledgerContext) hasTransactions(ingredient string, want int) error {
	txs, err := c.transactions(ingredient)
	if err != nil {
		return err
	}
	if len(txs) != want {
		return fmt.Errorf("%s has %d transactions, want %d", ingredient, len(txs), want)
	}
	return nil
}

func (c *ledgerContext) last(ingredient string) (inventory.Transaction, error) {
	txs, err := c.transactions(ingredient)
	if err != nil {
		return inventory.Transaction{}, err
	}
	if len(txs) == 0 {
		return inventory.Transaction{}, fmt.Errorf("%s has no transactions", ingredient)
	}
	return txs[len(txs)-1], nil
}

func (c *ledgerContext) lastTransactionChanged(ingredient string, previous, change, next int) error {
	tx, err := c.last(ingredient)
	if err != nil {
		return err
	}
	if !tx.PreviousStock.Equal(decimal.NewFromInt(int64(previous))) ||
		!tx.QuantityChange.Equal(decimal.NewFromInt(int64(change))) ||
		!tx.NewStock.Equal(decimal.NewFromInt(int64(next))) {
		return fmt.Errorf("transaction is %s + %s = %s", tx.PreviousStock, tx.QuantityChange, tx.NewStock)
	}
	return nil
}

func (c *ledgerContext) lastTransactionIsA(ingredient, kind string, change int) error {
	tx, err := c.last(ingredient)
	if err != nil {
		return err
	}
	if string(tx.Type) != kind {
		return fmt.Errorf("transaction type is %s, want %s", tx.Type, kind)
	}
	if !tx.QuantityChange.Equal(decimal.NewFromInt(int64(change))) {
		return fmt.Errorf("quantity change is %s, want %d", tx.QuantityChange, change)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	c := &ledgerContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		c.reset()
		return ctx, nil
	})

	ctx.Step(`^a product "([^"]*)" that needs (\d+) of "([^"]*)"$`, c.aProductThatNeeds)
	ctx.Step(`^"([^"]*)" has (\d+) in stock with a minimum of (\d+)$`, c.hasInStockWithMinimum)

	ctx.Step(`^order item "([^"]*)" for (\d+) "([^"]*)" is deducted$`, c.orderItemIsDeducted)
	ctx.Step(`^"([^"]*)" is restocked with (\d+)$`, c.isRestockedWith)
	ctx.Step(`^(\d+) of "([^"]*)" is recorded as waste$`, c.isRecordedAsWaste)

	ctx.Step(`^(\d+) "([^"]*)" can be produced$`, c.canBeProduced)
	ctx.Step(`^(\d+) "([^"]*)" cannot be produced$`, c.cannotBeProduced)
	ctx.Step(`^the deduction succeeds$`, c.theDeductionSucceeds)
	ctx.Step(`^the deduction fails$`, c.theDeductionFails)
	ctx.Step(`^the mutation is rejected for insufficient stock$`, c.theMutationIsRejected)
	ctx.Step(`^"([^"]*)" stock is (\d+)$`, c.stockIs)
	ctx.Step(`^"([^"]*)" has (\d+) transactions?$`, c.hasTransactions)
	ctx.Step(`^the last "([^"]*)" transaction changed stock from (\d+) by (-?\d+) to (\d+)$`, c.lastTransactionChanged)
	ctx.Step(`^the last "([^"]*)" transaction is a "([^"]*)" of (-?\d+)$`, c.lastTransactionIsA)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features/inventory.feature"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
