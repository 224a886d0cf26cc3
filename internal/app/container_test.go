package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"cafepos/internal/availability"
	"cafepos/internal/config"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

func TestContainer_InMemoryWiring(t *testing.T) {
	ctx := context.Background()
	c := &Container{
		config: &config.Config{
			HTTPAddr:          ":0",
			FulfillmentPolicy: config.PolicyReview,
			DeductionMode:     config.DeductionAtomic,
			TaxRate:           decimal.RequireFromString("0.08"),
		},
		logger: zap.NewNop(),
		tracer: noop.NewTracerProvider().Tracer("test"),
	}

	require.NoError(t, c.setupStorage(ctx))
	require.NoError(t, c.setupCarts(ctx))
	c.setupServices()
	c.setupHTTPServer(ctx)

	assert.Nil(t, c.ConsumerService())
	assert.Equal(t, config.DeductionAtomic, c.engine.Mode())

	rec := httptest.NewRecorder()
	c.HTTPServer().Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var listing []availability.ProductAvailability
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	assert.Len(t, listing, 4)

	for _, a := range listing {
		if a.Product.ID == "water" {
			assert.Equal(t, availability.StatusUnlimited, a.Status)
		}
	}

	c.Shutdown(ctx)
}
