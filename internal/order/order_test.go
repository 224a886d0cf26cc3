package order

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleOrder() *Order {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	return &Order{
		ID:           "order-1",
		CustomerName: "Ada",
		Status:       StatusPlaced,
		Items: []Item{
			{ID: "item-1", ProductID: "latte", ProductName: "Latte", Quantity: 2, UnitPrice: decimal.RequireFromString("4.5")},
			{ID: "item-2", ProductID: "croissant", ProductName: "Croissant", Quantity: 1, UnitPrice: decimal.RequireFromString("3.2"), Customization: "warm=yes"},
		},
		Total:     decimal.RequireFromString("12.2"),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrder_Subtotal(t *testing.T) {
	assert.Equal(t, "12.2", sampleOrder().Subtotal().String())
}

func TestMemoryRepository(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, sampleOrder()))
	assert.ErrorIs(t, repo.Create(ctx, sampleOrder()), ErrDuplicate)

	require.NoError(t, repo.UpdateStatus(ctx, "order-1", StatusNeedsReview, "milk short"))
	o, err := repo.Get(ctx, "order-1")
	require.NoError(t, err)
	assert.Equal(t, StatusNeedsReview, o.Status)
	assert.Equal(t, "milk short", o.ReviewReason)
	assert.Len(t, o.Items, 2)

	_, err = repo.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.UpdateStatus(ctx, "nope", StatusRejected, ""), ErrNotFound)
}

func TestPostgresRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	o := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs("order-1", "Ada", "placed", "", decimal.RequireFromString("12.2"), o.CreatedAt, o.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs("item-1", "order-1", 0, "latte", "Latte", 2, decimal.RequireFromString("4.5"), "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs("item-2", "order-1", 1, "croissant", "Croissant", 1, decimal.RequireFromString("3.2"), "warm=yes").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, NewPostgresRepository(db).Create(context.Background(), o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_CreateDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})
	mock.ExpectRollback()

	err = NewPostgresRepository(db).Create(context.Background(), sampleOrder())

	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	created := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM orders WHERE id").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer_name", "status", "review_reason", "total", "created_at", "updated_at"}).
			AddRow("order-1", "Ada", "needs_review", "milk short", "12.20", created, created))
	mock.ExpectQuery("FROM order_items WHERE order_id").
		WithArgs("order-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "product_id", "product_name", "quantity", "unit_price", "customization"}).
			AddRow("item-1", "latte", "Latte", int64(2), "4.50", ""))

	o, err := NewPostgresRepository(db).Get(context.Background(), "order-1")

	require.NoError(t, err)
	assert.Equal(t, StatusNeedsReview, o.Status)
	require.Len(t, o.Items, 1)
	assert.Equal(t, 2, o.Items[0].Quantity)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("12.2")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepository_UpdateStatusMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("nope", "rejected", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = NewPostgresRepository(db).UpdateStatus(context.Background(), "nope", StatusRejected, "")

	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
