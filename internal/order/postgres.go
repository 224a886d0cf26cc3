package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cafepos/internal/platform/postgres"

	"github.com/lib/pq"
)

// PostgresRepository stores orders and their items in PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, o *Order) error {
	return postgres.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, customer_name, status, review_reason, total, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			o.ID, o.CustomerName, string(o.Status), o.ReviewReason, o.Total, o.CreatedAt, o.UpdatedAt)
		if isUniqueViolation(err) {
			return fmt.Errorf("order %s: %w", o.ID, ErrDuplicate)
		}
		if err != nil {
			return fmt.Errorf("insert order %s: %w", o.ID, err)
		}

		for i, it := range o.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (id, order_id, position, product_id, product_name, quantity, unit_price, customization)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				it.ID, o.ID, i, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, it.Customization)
			if err != nil {
				return fmt.Errorf("insert order item %s: %w", it.ID, err)
			}
		}
		return nil
	})
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Order, error) {
	var o Order
	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_name, status, review_reason, total, created_at, updated_at
		FROM orders WHERE id = $1`, id,
	).Scan(&o.ID, &o.CustomerName, &o.Status, &o.ReviewReason, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query order %s: %w", id, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, product_id, product_name, quantity, unit_price, customization
		FROM order_items WHERE order_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query items of order %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.Customization); err != nil {
			return nil, fmt.Errorf("scan item of order %s: %w", id, err)
		}
		o.Items = append(o.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status, reason string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = $2, review_reason = $3, updated_at = $4 WHERE id = $1`,
		id, string(status), reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update order %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update order %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
