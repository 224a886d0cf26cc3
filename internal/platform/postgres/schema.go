package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id       TEXT PRIMARY KEY,
		name     TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		price    NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (price >= 0),
		active   BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS ingredients (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		unit_type TEXT NOT NULL CHECK (unit_type IN ('count', 'mass', 'volume')),
		tracked   BOOLEAN NOT NULL DEFAULT TRUE,
		unit_cost NUMERIC(12,4) NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS ingredient_stock (
		ingredient_id     TEXT PRIMARY KEY REFERENCES ingredients(id) ON DELETE RESTRICT,
		current_stock     NUMERIC(18,4) NOT NULL DEFAULT 0 CHECK (current_stock >= 0),
		min_stock         NUMERIC(18,4) NOT NULL DEFAULT 0,
		max_stock         NUMERIC(18,4),
		location          TEXT NOT NULL DEFAULT '',
		last_restocked_at TIMESTAMPTZ,
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS recipe_entries (
		product_id    TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
		ingredient_id TEXT NOT NULL REFERENCES ingredients(id) ON DELETE RESTRICT,
		quantity      NUMERIC(18,4) NOT NULL CHECK (quantity > 0),
		PRIMARY KEY (product_id, ingredient_id)
	)`,
	`CREATE TABLE IF NOT EXISTS inventory_transactions (
		id              UUID PRIMARY KEY,
		ingredient_id   TEXT NOT NULL REFERENCES ingredients(id) ON DELETE RESTRICT,
		type            TEXT NOT NULL CHECK (type IN ('restock', 'deduction', 'waste', 'adjustment')),
		quantity_change NUMERIC(18,4) NOT NULL,
		previous_stock  NUMERIC(18,4) NOT NULL,
		new_stock       NUMERIC(18,4) NOT NULL CHECK (new_stock >= 0),
		reason          TEXT NOT NULL DEFAULT '',
		order_item_id   TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (new_stock = previous_stock + quantity_change)
	)`,
	`CREATE INDEX IF NOT EXISTS inventory_transactions_ingredient_idx ON inventory_transactions (ingredient_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS inventory_transactions_order_item_idx ON inventory_transactions (order_item_id)`,
	`CREATE INDEX IF NOT EXISTS inventory_transactions_created_idx ON inventory_transactions (created_at)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id            TEXT PRIMARY KEY,
		customer_name TEXT NOT NULL DEFAULT '',
		status        TEXT NOT NULL,
		review_reason TEXT NOT NULL DEFAULT '',
		total         NUMERIC(12,2) NOT NULL DEFAULT 0,
		created_at    TIMESTAMPTZ NOT NULL,
		updated_at    TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id            TEXT PRIMARY KEY,
		order_id      TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		position      INT NOT NULL,
		product_id    TEXT NOT NULL,
		product_name  TEXT NOT NULL DEFAULT '',
		quantity      INT NOT NULL CHECK (quantity > 0),
		unit_price    NUMERIC(12,2) NOT NULL,
		customization TEXT NOT NULL DEFAULT ''
	)`,
}

// EnsureSchema creates every table and index the service needs. It is safe to run on every start.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
