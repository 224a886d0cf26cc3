package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cafepos/internal/config"
	"cafepos/internal/platform/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// UnlimitedQuantity is reported as the producible quantity of a product
// whose recipe has no tracked ingredients.
const UnlimitedQuantity = 9999

// AlertNotifier receives low stock alerts raised by stock mutations.
type AlertNotifier interface {
	NotifyLowStock(ctx context.Context, alert LowStockAlert) error
}

// ItemRequest is one order item to deduct ingredients for.
type ItemRequest struct {
	OrderItemID string
	ProductID   string
	Quantity    int
}

// Shortfall describes one order item that could not be covered by stock.
type Shortfall struct {
	OrderItemID  string          `json:"order_item_id"`
	ProductID    string          `json:"product_id"`
	IngredientID string          `json:"ingredient_id,omitempty"`
	Required     decimal.Decimal `json:"required"`
	Available    decimal.Decimal `json:"available"`
	Reason       string          `json:"reason"`
}

// DeductionResult is the outcome of deducting one or more order items.
type DeductionResult struct {
	Transactions []Transaction `json:"transactions"`
	Shortfalls   []Shortfall   `json:"shortfalls,omitempty"`
	// Skipped lists ingredients left alone because they are untracked or have no stock record.
	Skipped []string `json:"skipped,omitempty"`
}

// OK reports whether every requested ingredient was deducted.
func (r DeductionResult) OK() bool {
	return len(r.Shortfalls) == 0
}

// Engine answers producibility questions and performs every stock mutation.
type Engine struct {
	store    Store
	mode     string
	notifier AlertNotifier
	logger   observability.Logger
	tracer   observability.Tracer
	now      func() time.Time

	deductions metric.Int64Counter
	shortfalls metric.Int64Counter
}

// Option configures an Engine.
type Option func(*Engine)

// WithMode selects config.DeductionAtomic or config.DeductionBestEffort.
func WithMode(mode string) Option {
	return func(e *Engine) { e.mode = mode }
}

// WithAlerts routes low stock alerts to n.
func WithAlerts(n AlertNotifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithClock overrides the time source used for alerts.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an inventory engine over store.
func NewEngine(store Store, logger observability.Logger, tracer observability.Tracer, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		mode:   config.DeductionAtomic,
		logger: logger,
		tracer: tracer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	meter := otel.Meter("cafepos/inventory")
	var err error
	if e.deductions, err = meter.Int64Counter("inventory.deductions",
		metric.WithDescription("Ingredient deductions written for order items")); err != nil {
		logger.Warn("Failed to create deductions counter", zap.Error(err))
	}
	if e.shortfalls, err = meter.Int64Counter("inventory.shortfalls",
		metric.WithDescription("Order items that could not be covered by stock")); err != nil {
		logger.Warn("Failed to create shortfalls counter", zap.Error(err))
	}
	return e
}

// Mode returns the deduction mode in use.
func (e *Engine) Mode() string { return e.mode }

// CanProduce reports whether quantity units of the product can be made from current stock.
// Unknown products are never producible.
func (e *Engine) CanProduce(ctx context.Context, productID string, quantity int) bool {
	if quantity < 0 {
		return false
	}
	lines, err := e.store.Recipe(ctx, productID)
	if err != nil {
		e.logLookupFailure("can_produce", productID, err)
		return false
	}

	q := decimal.NewFromInt(int64(quantity))
	for _, line := range lines {
		if !line.Ingredient.Tracked {
			continue
		}
		required := line.Quantity.Mul(q)
		if line.Stock == nil {
			if required.IsPositive() {
				return false
			}
			continue
		}
		if required.GreaterThan(line.Stock.Current) {
			return false
		}
	}
	return true
}

// MaxProducible returns how many units of the product current stock allows.
// It is UnlimitedQuantity when no recipe ingredient is tracked.
func (e *Engine) MaxProducible(ctx context.Context, productID string) int {
	lines, err := e.store.Recipe(ctx, productID)
	if err != nil {
		e.logLookupFailure("max_producible", productID, err)
		return 0
	}
	return maxProducible(lines)
}

func maxProducible(lines []RecipeLine) int {
	limit := -1
	for _, line := range lines {
		if !line.Ingredient.Tracked {
			continue
		}
		if line.Stock == nil || !line.Quantity.IsPositive() {
			return 0
		}
		units, _ := line.Stock.Current.QuoRem(line.Quantity, 0)
		n := int(units.IntPart())
		if limit < 0 || n < limit {
			limit = n
		}
	}
	if limit < 0 {
		return UnlimitedQuantity
	}
	return limit
}

func (e *Engine) logLookupFailure(op, productID string, err error) {
	if errors.Is(err, ErrNotFound) {
		e.logger.Debug("Unknown product", zap.String("operation", op), zap.String("product_id", productID))
		return
	}
	e.logger.Error("Recipe lookup failed",
		zap.String("operation", op),
		zap.String("product_id", productID),
		zap.Error(err),
	)
}

// DeductForOrderItem removes the ingredients of quantity units of the product from stock
// and records one deduction transaction per tracked ingredient. It reports whether
// every ingredient could be covered.
func (e *Engine) DeductForOrderItem(ctx context.Context, productID string, quantity int, orderItemID string) bool {
	res, err := e.DeductForOrder(ctx, []ItemRequest{{
		OrderItemID: orderItemID,
		ProductID:   productID,
		Quantity:    quantity,
	}})
	return err == nil && res.OK()
}

// DeductForOrder deducts every item of an order. In atomic mode either all
// ingredients of all items are deducted or nothing changes; in best-effort mode each
// ingredient is applied on its own and insufficient ones are skipped.
// The error is reserved for storage failures; shortfalls are reported in the result.
func (e *Engine) DeductForOrder(ctx context.Context, items []ItemRequest) (DeductionResult, error) {
	ctx, span := e.tracer.Start(ctx, "inventory.deduct")
	defer span.End()

	span.SetAttributes(
		attribute.Int("order.items", len(items)),
		attribute.String("inventory.mode", e.mode),
	)

	var result DeductionResult
	plan, err := e.plan(ctx, items, &result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deduction planning failed")
		return result, err
	}

	if e.mode == config.DeductionBestEffort {
		err = e.applyEach(ctx, plan, &result)
	} else {
		err = e.applyAll(ctx, plan, &result)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "deduction failed")
		return result, err
	}

	e.add(ctx, e.deductions, len(result.Transactions))
	e.add(ctx, e.shortfalls, len(result.Shortfalls))
	span.SetAttributes(
		attribute.Int("inventory.transactions", len(result.Transactions)),
		attribute.Int("inventory.shortfalls", len(result.Shortfalls)),
	)
	if result.OK() {
		span.SetStatus(codes.Ok, "ingredients deducted")
	} else {
		span.SetStatus(codes.Error, "insufficient stock")
	}
	return result, nil
}

type plannedDeduction struct {
	item     ItemRequest
	mutation Mutation
	stock    decimal.Decimal
}

// plan turns order items into deduction mutations. Unknown products and invalid
// quantities become shortfalls straight away.
func (e *Engine) plan(ctx context.Context, items []ItemRequest, result *DeductionResult) ([]plannedDeduction, error) {
	var plan []plannedDeduction
	for _, item := range items {
		if item.Quantity <= 0 {
			result.Shortfalls = append(result.Shortfalls, Shortfall{
				OrderItemID: item.OrderItemID,
				ProductID:   item.ProductID,
				Reason:      ErrInvalidQuantity.Error(),
			})
			continue
		}

		lines, err := e.store.Recipe(ctx, item.ProductID)
		if errors.Is(err, ErrNotFound) {
			result.Shortfalls = append(result.Shortfalls, Shortfall{
				OrderItemID: item.OrderItemID,
				ProductID:   item.ProductID,
				Reason:      ErrProductNotFound.Error(),
			})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("recipe for product %s: %w", item.ProductID, err)
		}

		q := decimal.NewFromInt(int64(item.Quantity))
		for _, line := range lines {
			if !line.Ingredient.Tracked || line.Stock == nil {
				result.Skipped = append(result.Skipped, line.Ingredient.ID)
				continue
			}
			plan = append(plan, plannedDeduction{
				item:  item,
				stock: line.Stock.Current,
				mutation: Mutation{
					IngredientID: line.Ingredient.ID,
					Type:         TransactionDeduction,
					Delta:        line.Quantity.Mul(q).Neg(),
					Reason:       fmt.Sprintf("order item %s: %d x %s", item.OrderItemID, item.Quantity, item.ProductID),
					OrderItemID:  item.OrderItemID,
				},
			})
		}
	}
	return plan, nil
}

func (e *Engine) applyAll(ctx context.Context, plan []plannedDeduction, result *DeductionResult) error {
	if len(result.Shortfalls) > 0 {
		e.logShortfalls(result.Shortfalls)
		return nil
	}

	// Report every shortfall visible in the snapshot, not just the first one Apply hits.
	required := make(map[string]decimal.Decimal)
	for _, p := range plan {
		required[p.mutation.IngredientID] = required[p.mutation.IngredientID].Sub(p.mutation.Delta)
	}
	reported := make(map[string]bool)
	for _, p := range plan {
		id := p.mutation.IngredientID
		if required[id].GreaterThan(p.stock) && !reported[id] {
			reported[id] = true
			result.Shortfalls = append(result.Shortfalls, Shortfall{
				OrderItemID:  p.item.OrderItemID,
				ProductID:    p.item.ProductID,
				IngredientID: id,
				Required:     required[id],
				Available:    p.stock,
				Reason:       ErrInsufficientStock.Error(),
			})
		}
	}
	if len(result.Shortfalls) > 0 {
		e.logShortfalls(result.Shortfalls)
		return nil
	}
	if len(plan) == 0 {
		return nil
	}

	mutations := make([]Mutation, len(plan))
	for i, p := range plan {
		mutations[i] = p.mutation
	}

	applied, err := e.store.Apply(ctx, mutations)
	var shortfall *ShortfallError
	if errors.As(err, &shortfall) {
		// Stock moved between the snapshot and the write.
		s := Shortfall{
			IngredientID: shortfall.IngredientID,
			Required:     shortfall.Required,
			Available:    shortfall.Available,
			Reason:       ErrInsufficientStock.Error(),
		}
		for _, p := range plan {
			if p.mutation.IngredientID == shortfall.IngredientID {
				s.OrderItemID, s.ProductID = p.item.OrderItemID, p.item.ProductID
				break
			}
		}
		result.Shortfalls = append(result.Shortfalls, s)
		e.logShortfalls(result.Shortfalls)
		return nil
	}
	if err != nil {
		return fmt.Errorf("apply deductions: %w", err)
	}

	e.collect(ctx, applied, result)
	return nil
}

func (e *Engine) applyEach(ctx context.Context, plan []plannedDeduction, result *DeductionResult) error {
	for _, p := range plan {
		applied, err := e.store.Apply(ctx, []Mutation{p.mutation})
		var shortfall *ShortfallError
		switch {
		case errors.As(err, &shortfall):
			result.Shortfalls = append(result.Shortfalls, Shortfall{
				OrderItemID:  p.item.OrderItemID,
				ProductID:    p.item.ProductID,
				IngredientID: shortfall.IngredientID,
				Required:     shortfall.Required,
				Available:    shortfall.Available,
				Reason:       ErrInsufficientStock.Error(),
			})
		case errors.Is(err, ErrNoStockRecord):
			result.Skipped = append(result.Skipped, p.mutation.IngredientID)
		case err != nil:
			return fmt.Errorf("apply deduction of %s: %w", p.mutation.IngredientID, err)
		default:
			e.collect(ctx, applied, result)
		}
	}
	if len(result.Shortfalls) > 0 {
		e.logShortfalls(result.Shortfalls)
	}
	return nil
}

func (e *Engine) collect(ctx context.Context, applied []Applied, result *DeductionResult) {
	for _, a := range applied {
		result.Transactions = append(result.Transactions, a.Transaction)
	}
	e.raiseAlerts(ctx, applied)
}

func (e *Engine) logShortfalls(shortfalls []Shortfall) {
	for _, s := range shortfalls {
		e.logger.Warn("Insufficient stock for order item",
			zap.String("order_item_id", s.OrderItemID),
			zap.String("product_id", s.ProductID),
			zap.String("ingredient_id", s.IngredientID),
			zap.String("required", s.Required.String()),
			zap.String("available", s.Available.String()),
			zap.String("reason", s.Reason),
		)
	}
}

// Restock adds a positive quantity to an ingredient's stock, creating the stock
// record of a tracked ingredient on first restock.
func (e *Engine) Restock(ctx context.Context, ingredientID string, quantity decimal.Decimal, reason string) (Transaction, error) {
	if !quantity.IsPositive() || !FitsScale(quantity) {
		return Transaction{}, fmt.Errorf("restock %s: %w", ingredientID, ErrInvalidQuantity)
	}
	return e.mutate(ctx, "inventory.restock", ingredientID, func(ing Ingredient) Mutation {
		return Mutation{
			Type:            TransactionRestock,
			Delta:           quantity,
			Reason:          reason,
			CreateIfMissing: ing.Tracked,
		}
	})
}

// Adjust sets an ingredient's stock to an absolute, non-negative level.
func (e *Engine) Adjust(ctx context.Context, ingredientID string, level decimal.Decimal, reason string) (Transaction, error) {
	if level.IsNegative() || !FitsScale(level) {
		return Transaction{}, fmt.Errorf("adjust %s: %w", ingredientID, ErrInvalidQuantity)
	}
	return e.mutate(ctx, "inventory.adjust", ingredientID, func(ing Ingredient) Mutation {
		return Mutation{
			Type:            TransactionAdjustment,
			SetTo:           &level,
			Reason:          reason,
			CreateIfMissing: ing.Tracked,
		}
	})
}

// RecordWaste removes a positive quantity of spoiled or spilled stock.
func (e *Engine) RecordWaste(ctx context.Context, ingredientID string, quantity decimal.Decimal, reason string) (Transaction, error) {
	if !quantity.IsPositive() || !FitsScale(quantity) {
		return Transaction{}, fmt.Errorf("record waste %s: %w", ingredientID, ErrInvalidQuantity)
	}
	return e.mutate(ctx, "inventory.waste", ingredientID, func(Ingredient) Mutation {
		return Mutation{
			Type:   TransactionWaste,
			Delta:  quantity.Neg(),
			Reason: reason,
		}
	})
}

// Revert puts back the stock taken by txs in a single Apply, recording one
// adjustment per transaction that references the same order item.
func (e *Engine) Revert(ctx context.Context, txs []Transaction, reason string) ([]Transaction, error) {
	if len(txs) == 0 {
		return nil, nil
	}
	ctx, span := e.tracer.Start(ctx, "inventory.revert")
	defer span.End()
	span.SetAttributes(attribute.Int("inventory.transactions", len(txs)))

	mutations := make([]Mutation, len(txs))
	for i, tx := range txs {
		mutations[i] = Mutation{
			IngredientID: tx.IngredientID,
			Type:         TransactionAdjustment,
			Delta:        tx.QuantityChange.Neg(),
			Reason:       fmt.Sprintf("%s (reverts %s)", reason, tx.ID),
			OrderItemID:  tx.OrderItemID,
		}
	}

	applied, err := e.store.Apply(ctx, mutations)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "revert failed")
		return nil, fmt.Errorf("revert %d transactions: %w", len(txs), err)
	}

	out := make([]Transaction, len(applied))
	for i, a := range applied {
		out[i] = a.Transaction
	}
	span.SetStatus(codes.Ok, "stock returned")
	e.logger.Info("Deductions reverted", zap.Int("transactions", len(out)), zap.String("reason", reason))
	return out, nil
}

func (e *Engine) mutate(ctx context.Context, spanName, ingredientID string, build func(Ingredient) Mutation) (Transaction, error) {
	ctx, span := e.tracer.Start(ctx, spanName)
	defer span.End()
	span.SetAttributes(attribute.String("ingredient.id", ingredientID))

	ing, err := e.store.Ingredient(ctx, ingredientID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ingredient lookup failed")
		return Transaction{}, err
	}

	m := build(ing)
	m.IngredientID = ingredientID
	applied, err := e.store.Apply(ctx, []Mutation{m})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stock mutation rejected")
		e.logger.Warn("Stock mutation rejected",
			zap.String("ingredient_id", ingredientID),
			zap.String("type", string(m.Type)),
			zap.Error(err),
		)
		return Transaction{}, err
	}

	tx := applied[0].Transaction
	e.logger.Info("Stock updated",
		zap.String("ingredient_id", ingredientID),
		zap.String("type", string(tx.Type)),
		zap.String("previous_stock", tx.PreviousStock.String()),
		zap.String("new_stock", tx.NewStock.String()),
	)
	if applied[0].Level.IsOverMax() {
		e.logger.Warn("Stock above maximum level",
			zap.String("ingredient_id", ingredientID),
			zap.String("current_stock", applied[0].Level.Current.String()),
			zap.String("max_stock", applied[0].Level.Max.Decimal.String()),
		)
	}
	e.raiseAlerts(ctx, applied)

	span.SetStatus(codes.Ok, "stock updated")
	return tx, nil
}

// raiseAlerts notifies when a mutation takes stock from at-or-above the minimum to below it.
func (e *Engine) raiseAlerts(ctx context.Context, applied []Applied) {
	for _, a := range applied {
		threshold := a.Level.Min
		if a.Transaction.PreviousStock.LessThan(threshold) || !a.Transaction.NewStock.LessThan(threshold) {
			continue
		}
		alert := LowStockAlert{
			IngredientID: a.Transaction.IngredientID,
			Current:      a.Transaction.NewStock,
			Min:          threshold,
			AlertedAt:    e.now().UTC(),
		}
		e.logger.Warn("Low stock",
			zap.String("ingredient_id", alert.IngredientID),
			zap.String("current_stock", alert.Current.String()),
			zap.String("min_stock", alert.Min.String()),
		)
		if e.notifier == nil {
			continue
		}
		if err := e.notifier.NotifyLowStock(ctx, alert); err != nil {
			e.logger.Error("Failed to publish low stock alert",
				zap.String("ingredient_id", alert.IngredientID),
				zap.Error(err),
			)
		}
	}
}

// Transactions returns the audit log entries matching filter, oldest first.
func (e *Engine) Transactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	return e.store.Transactions(ctx, filter)
}

// StockReport lists every ingredient with its stock record and low stock flag.
func (e *Engine) StockReport(ctx context.Context) ([]StockItem, error) {
	return e.store.StockReport(ctx)
}

// Products lists the catalogue.
func (e *Engine) Products(ctx context.Context) ([]Product, error) {
	return e.store.Products(ctx)
}

// Product returns one catalogue entry.
func (e *Engine) Product(ctx context.Context, id string) (Product, error) {
	return e.store.Product(ctx, id)
}

func (e *Engine) add(ctx context.Context, counter metric.Int64Counter, n int) {
	if counter == nil || n == 0 {
		return
	}
	counter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("inventory.mode", e.mode)))
}
