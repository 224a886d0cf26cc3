package cart

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"cafepos/internal/inventory"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sampleCart() *Cart {
	return &Cart{
		Session: "till-1",
		Lines: []Line{{
			Key:         LineKey("latte", nil),
			ProductID:   "latte",
			ProductName: "Latte",
			UnitPrice:   decimal.RequireFromString("4.5"),
			Quantity:    2,
		}},
		UpdatedAt: time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestRedisStore_SaveAndLoad(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, 2*time.Hour)
	c := sampleCart()
	payload, err := json.Marshal(c)
	require.NoError(t, err)

	mock.ExpectSet("cart:till-1", payload, 2*time.Hour).SetVal("OK")
	mock.ExpectGet("cart:till-1").SetVal(string(payload))

	require.NoError(t, store.Save(context.Background(), c))
	loaded, err := store.Load(context.Background(), "till-1")

	require.NoError(t, err)
	require.Len(t, loaded.Lines, 1)
	assert.Equal(t, 2, loaded.Lines[0].Quantity)
	assert.True(t, loaded.Lines[0].UnitPrice.Equal(decimal.RequireFromString("4.5")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_LoadMissingIsEmpty(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, time.Hour)

	mock.ExpectGet("cart:till-9").RedisNil()

	c, err := store.Load(context.Background(), "till-9")

	require.NoError(t, err)
	assert.Equal(t, "till-9", c.Session)
	assert.Empty(t, c.Lines)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_LoadError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, time.Hour)

	mock.ExpectGet("cart:till-1").SetErr(errors.New("connection refused"))

	_, err := store.Load(context.Background(), "till-1")

	assert.ErrorContains(t, err, "connection refused")
}

func TestRedisStore_Delete(t *testing.T) {
	db, mock := redismock.NewClientMock()
	store := NewRedisStore(db, time.Hour)

	mock.ExpectDel("cart:till-1").SetVal(1)

	require.NoError(t, store.Delete(context.Background(), "till-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestService_WithRedisStore(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.MatchExpectationsInOrder(true)
	limiter := stubLimiter{
		max:      map[string]int{"latte": 5},
		products: map[string]inventory.Product{"latte": {ID: "latte", Name: "Latte", Price: decimal.RequireFromString("4.5"), Active: true}},
	}
	fixed := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	svc := NewService(NewRedisStore(db, 2*time.Hour), limiter, decimal.Zero, zap.NewNop())
	svc.now = func() time.Time { return fixed }

	want := sampleCart()
	want.Lines[0].Quantity = 5
	payload, err := json.Marshal(want)
	require.NoError(t, err)

	mock.ExpectGet("cart:till-1").RedisNil()
	mock.ExpectSet("cart:till-1", payload, 2*time.Hour).SetVal("OK")

	res, err := svc.Add(context.Background(), "till-1", "latte", 7, nil)

	require.NoError(t, err)
	assert.True(t, res.Capped)
	assert.NoError(t, mock.ExpectationsWereMet())
}
