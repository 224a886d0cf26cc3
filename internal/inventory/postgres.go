package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cafepos/internal/platform/postgres"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// PostgresStore keeps the catalogue, recipes and ingredient ledger in PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

const productColumns = `id, name, category, price, active`

func scanProduct(row interface{ Scan(...any) error }) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Active)
	return p, err
}

func (s *PostgresStore) Product(ctx context.Context, id string) (Product, error) {
	p, err := scanProduct(s.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Product{}, fmt.Errorf("product %s: %w", id, ErrProductNotFound)
	}
	if err != nil {
		return Product{}, fmt.Errorf("query product %s: %w", id, err)
	}
	return p, nil
}

func (s *PostgresStore) Products(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ingredient(ctx context.Context, id string) (Ingredient, error) {
	var i Ingredient
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, unit_type, tracked, unit_cost FROM ingredients WHERE id = $1`, id,
	).Scan(&i.ID, &i.Name, &i.Unit, &i.Tracked, &i.UnitCost)
	if errors.Is(err, sql.ErrNoRows) {
		return Ingredient{}, fmt.Errorf("ingredient %s: %w", id, ErrIngredientNotFound)
	}
	if err != nil {
		return Ingredient{}, fmt.Errorf("query ingredient %s: %w", id, err)
	}
	return i, nil
}

// stockRow holds the nullable columns of a LEFT JOIN onto ingredient_stock.
type stockRow struct {
	current     decimal.NullDecimal
	min         decimal.NullDecimal
	max         decimal.NullDecimal
	location    sql.NullString
	restockedAt sql.NullTime
}

func (r stockRow) level(ingredientID string) *StockLevel {
	if !r.current.Valid {
		return nil
	}
	level := &StockLevel{
		IngredientID: ingredientID,
		Current:      r.current.Decimal,
		Min:          r.min.Decimal,
		Max:          r.max,
		Location:     r.location.String,
	}
	if r.restockedAt.Valid {
		t := r.restockedAt.Time
		level.LastRestockedAt = &t
	}
	return level
}

func (s *PostgresStore) Recipe(ctx context.Context, productID string) ([]RecipeLine, error) {
	if _, err := s.Product(ctx, productID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.name, i.unit_type, i.tracked, i.unit_cost, r.quantity,
		       s.current_stock, s.min_stock, s.max_stock, s.location, s.last_restocked_at
		FROM recipe_entries r
		JOIN ingredients i ON i.id = r.ingredient_id
		LEFT JOIN ingredient_stock s ON s.ingredient_id = i.id
		WHERE r.product_id = $1
		ORDER BY i.name`, productID)
	if err != nil {
		return nil, fmt.Errorf("query recipe %s: %w", productID, err)
	}
	defer rows.Close()

	var lines []RecipeLine
	for rows.Next() {
		var line RecipeLine
		var st stockRow
		if err := rows.Scan(
			&line.Ingredient.ID, &line.Ingredient.Name, &line.Ingredient.Unit,
			&line.Ingredient.Tracked, &line.Ingredient.UnitCost, &line.Quantity,
			&st.current, &st.min, &st.max, &st.location, &st.restockedAt,
		); err != nil {
			return nil, fmt.Errorf("scan recipe %s: %w", productID, err)
		}
		line.Stock = st.level(line.Ingredient.ID)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *PostgresStore) StockReport(ctx context.Context) ([]StockItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.name, i.unit_type, i.tracked, i.unit_cost,
		       s.current_stock, s.min_stock, s.max_stock, s.location, s.last_restocked_at
		FROM ingredients i
		LEFT JOIN ingredient_stock s ON s.ingredient_id = i.id
		ORDER BY i.name`)
	if err != nil {
		return nil, fmt.Errorf("query stock report: %w", err)
	}
	defer rows.Close()

	var out []StockItem
	for rows.Next() {
		var item StockItem
		var st stockRow
		if err := rows.Scan(
			&item.Ingredient.ID, &item.Ingredient.Name, &item.Ingredient.Unit,
			&item.Ingredient.Tracked, &item.Ingredient.UnitCost,
			&st.current, &st.min, &st.max, &st.location, &st.restockedAt,
		); err != nil {
			return nil, fmt.Errorf("scan stock report: %w", err)
		}
		item.Stock = st.level(item.Ingredient.ID)
		item.LowStock = item.Stock != nil && item.Stock.IsLow()
		out = append(out, item)
	}
	return out, rows.Err()
}

// Apply runs every mutation in one database transaction. Each stock row is changed by
// a conditional UPDATE that only matches when the result stays non-negative, so two
// concurrent deductions can never both pass a stale check. Rows are locked in
// ingredient id order so concurrent orders cannot deadlock on each other; the
// result keeps the order of mutations.
func (s *PostgresStore) Apply(ctx context.Context, mutations []Mutation) ([]Applied, error) {
	for _, m := range mutations {
		if err := m.validate(); err != nil {
			return nil, err
		}
	}

	lockOrder := make([]int, len(mutations))
	for i := range lockOrder {
		lockOrder[i] = i
	}
	sort.SliceStable(lockOrder, func(a, b int) bool {
		return mutations[lockOrder[a]].IngredientID < mutations[lockOrder[b]].IngredientID
	})

	applied := make([]Applied, len(mutations))
	err := postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		now := s.now().UTC()
		for _, i := range lockOrder {
			a, err := s.applyOne(ctx, tx, mutations[i], now)
			if err != nil {
				return err
			}
			applied[i] = a
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func (s *PostgresStore) applyOne(ctx context.Context, tx *sql.Tx, m Mutation, now time.Time) (Applied, error) {
	if m.CreateIfMissing {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ingredient_stock (ingredient_id) VALUES ($1) ON CONFLICT (ingredient_id) DO NOTHING`,
			m.IngredientID)
		if isForeignKeyViolation(err) {
			return Applied{}, fmt.Errorf("ingredient %s: %w", m.IngredientID, ErrIngredientNotFound)
		}
		if err != nil {
			return Applied{}, fmt.Errorf("create stock record %s: %w", m.IngredientID, err)
		}
	}

	delta := m.Delta
	if m.SetTo != nil {
		var current decimal.Decimal
		err := tx.QueryRowContext(ctx,
			`SELECT current_stock FROM ingredient_stock WHERE ingredient_id = $1 FOR UPDATE`,
			m.IngredientID).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return Applied{}, s.missingStock(ctx, tx, m.IngredientID)
		}
		if err != nil {
			return Applied{}, fmt.Errorf("lock stock %s: %w", m.IngredientID, err)
		}
		delta = m.SetTo.Sub(current)
	}

	level := StockLevel{IngredientID: m.IngredientID}
	var location sql.NullString
	var restockedAt sql.NullTime
	err := tx.QueryRowContext(ctx, `
		UPDATE ingredient_stock
		SET current_stock = current_stock + $2,
		    last_restocked_at = CASE WHEN $3::boolean THEN $4 ELSE last_restocked_at END,
		    updated_at = $4
		WHERE ingredient_id = $1 AND current_stock + $2 >= 0
		RETURNING current_stock, min_stock, max_stock, location, last_restocked_at`,
		m.IngredientID, delta, m.Type == TransactionRestock, now,
	).Scan(&level.Current, &level.Min, &level.Max, &location, &restockedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Applied{}, s.rejected(ctx, tx, m.IngredientID, delta)
	}
	if err != nil {
		return Applied{}, fmt.Errorf("update stock %s: %w", m.IngredientID, err)
	}
	level.Location = location.String
	if restockedAt.Valid {
		t := restockedAt.Time
		level.LastRestockedAt = &t
	}

	record := Transaction{
		ID:             uuid.NewString(),
		IngredientID:   m.IngredientID,
		Type:           m.Type,
		QuantityChange: delta,
		PreviousStock:  level.Current.Sub(delta),
		NewStock:       level.Current,
		Reason:         m.Reason,
		OrderItemID:    m.OrderItemID,
		CreatedAt:      now,
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_transactions
			(id, ingredient_id, type, quantity_change, previous_stock, new_stock, reason, order_item_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		record.ID, record.IngredientID, string(record.Type), record.QuantityChange,
		record.PreviousStock, record.NewStock, record.Reason,
		sql.NullString{String: record.OrderItemID, Valid: record.OrderItemID != ""},
		record.CreatedAt,
	)
	if err != nil {
		return Applied{}, fmt.Errorf("record transaction for %s: %w", m.IngredientID, err)
	}
	return Applied{Transaction: record, Level: level}, nil
}

// rejected explains why the conditional update matched no row.
func (s *PostgresStore) rejected(ctx context.Context, tx *sql.Tx, ingredientID string, delta decimal.Decimal) error {
	var current decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT current_stock FROM ingredient_stock WHERE ingredient_id = $1`, ingredientID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return s.missingStock(ctx, tx, ingredientID)
	}
	if err != nil {
		return fmt.Errorf("read stock %s: %w", ingredientID, err)
	}
	return &ShortfallError{IngredientID: ingredientID, Required: delta.Neg(), Available: current}
}

func (s *PostgresStore) missingStock(ctx context.Context, tx *sql.Tx, ingredientID string) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM ingredients WHERE id = $1)`, ingredientID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check ingredient %s: %w", ingredientID, err)
	}
	if !exists {
		return fmt.Errorf("ingredient %s: %w", ingredientID, ErrIngredientNotFound)
	}
	return fmt.Errorf("ingredient %s: %w", ingredientID, ErrNoStockRecord)
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func (s *PostgresStore) Transactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.IngredientID != "" {
		add("ingredient_id = $%d", filter.IngredientID)
	}
	if filter.OrderItemID != "" {
		add("order_item_id = $%d", filter.OrderItemID)
	}
	if !filter.From.IsZero() {
		add("created_at >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("created_at < $%d", filter.To)
	}

	query := `SELECT id, ingredient_id, type, quantity_change, previous_stock, new_stock, reason, order_item_id, created_at
		FROM inventory_transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var orderItem sql.NullString
		if err := rows.Scan(&t.ID, &t.IngredientID, &t.Type, &t.QuantityChange,
			&t.PreviousStock, &t.NewStock, &t.Reason, &orderItem, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.OrderItemID = orderItem.String
		out = append(out, t)
	}
	return out, rows.Err()
}
