package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "DATABASE_URL", "REDIS_ADDR", "KAFKA_BROKER", "OTEL_ENDPOINT",
		"OTEL_AUTH_HEADER", "FULFILLMENT_POLICY", "DEDUCTION_MODE", "TAX_RATE",
		"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME", "CART_TTL",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, PolicyProceed, cfg.FulfillmentPolicy)
	assert.Equal(t, DeductionAtomic, cfg.DeductionMode)
	assert.Equal(t, DefaultMaxOpenConns, cfg.MaxOpenConns)
	assert.Equal(t, 12*time.Hour, cfg.CartTTL)
	assert.True(t, cfg.TaxRate.IsZero())
	assert.False(t, cfg.TelemetryEnabled())
	assert.False(t, cfg.MessagingEnabled())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKER", "kafka:9092")
	t.Setenv("FULFILLMENT_POLICY", PolicyReview)
	t.Setenv("DEDUCTION_MODE", DeductionBestEffort)
	t.Setenv("TAX_RATE", "0.08")
	t.Setenv("CART_TTL", "30m")
	t.Setenv("OTEL_ENDPOINT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.MessagingEnabled())
	assert.Equal(t, PolicyReview, cfg.FulfillmentPolicy)
	assert.Equal(t, DeductionBestEffort, cfg.DeductionMode)
	assert.Equal(t, "0.08", cfg.TaxRate.String())
	assert.Equal(t, 30*time.Minute, cfg.CartTTL)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown policy", "FULFILLMENT_POLICY", "ignore"},
		{"unknown mode", "DEDUCTION_MODE", "eventual"},
		{"bad tax rate", "TAX_RATE", "ten"},
		{"negative tax rate", "TAX_RATE", "-0.1"},
		{"bad pool size", "DB_MAX_OPEN_CONNS", "zero"},
		{"bad ttl", "CART_TTL", "forever"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OTEL_ENDPOINT", "")
			t.Setenv(tt.key, tt.value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_OtelRequiresAuthHeader(t *testing.T) {
	t.Setenv("OTEL_ENDPOINT", "otlp.example.com")
	t.Setenv("OTEL_AUTH_HEADER", "")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTEL_AUTH_HEADER")
}
