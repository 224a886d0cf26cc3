package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Service configuration constants
const (
	ServiceName    = "cafepos"
	ServiceVersion = "0.2.0"
)

// Kafka configuration constants
const (
	OrderCreatedTopic = "OrderCreated"
	InventoryTopic    = "InventoryEvents"
	GroupID           = "cafepos-inventory-group"
	BatchTimeout      = 10 * time.Millisecond
	BatchSize         = 100
)

// OpenTelemetry configuration constants
const (
	LogsPath       = "/otlp/v1/logs"
	TracesPath     = "/otlp/v1/traces"
	MetricsPath    = "/otlp/v1/metrics"
	ExportTimeout  = 30 * time.Second
	MaxQueueSize   = 2048
	MetricInterval = 15 * time.Second
)

// Database pool defaults
const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
)

// Fulfillment policies applied when an order's inventory could not be deducted.
const (
	PolicyProceed = "proceed"
	PolicyReview  = "review"
	PolicyReject  = "reject"
)

// Deduction modes.
const (
	DeductionAtomic     = "atomic"
	DeductionBestEffort = "best_effort"
)

// Config holds environment-specific configuration
type Config struct {
	HTTPAddr string

	DatabaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	RedisAddr string
	CartTTL   time.Duration

	KafkaBroker string

	OtelEndpoint   string
	OtelAuthHeader string

	FulfillmentPolicy string
	DeductionMode     string
	TaxRate           decimal.Decimal
}

// TelemetryEnabled reports whether OTLP exporters should be configured.
func (c *Config) TelemetryEnabled() bool { return c.OtelEndpoint != "" }

// MessagingEnabled reports whether the Kafka consumer and publisher should run.
func (c *Config) MessagingEnabled() bool { return c.KafkaBroker != "" }

// LoadConfig loads configuration from environment variables with validation
func LoadConfig() (*Config, error) {
	config := &Config{
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		KafkaBroker:       os.Getenv("KAFKA_BROKER"),
		OtelEndpoint:      os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader:    os.Getenv("OTEL_AUTH_HEADER"),
		FulfillmentPolicy: getEnv("FULFILLMENT_POLICY", PolicyProceed),
		DeductionMode:     getEnv("DEDUCTION_MODE", DeductionAtomic),
	}

	var err error
	if config.MaxOpenConns, err = getInt("DB_MAX_OPEN_CONNS", DefaultMaxOpenConns); err != nil {
		return nil, err
	}
	if config.MaxIdleConns, err = getInt("DB_MAX_IDLE_CONNS", DefaultMaxIdleConns); err != nil {
		return nil, err
	}
	if config.ConnMaxLifetime, err = getDuration("DB_CONN_MAX_LIFETIME", DefaultConnMaxLifetime); err != nil {
		return nil, err
	}
	if config.CartTTL, err = getDuration("CART_TTL", 12*time.Hour); err != nil {
		return nil, err
	}

	config.TaxRate, err = decimal.NewFromString(getEnv("TAX_RATE", "0"))
	if err != nil {
		return nil, fmt.Errorf("TAX_RATE must be a decimal: %w", err)
	}
	if config.TaxRate.IsNegative() {
		return nil, fmt.Errorf("TAX_RATE cannot be negative")
	}

	switch config.FulfillmentPolicy {
	case PolicyProceed, PolicyReview, PolicyReject:
	default:
		return nil, fmt.Errorf("FULFILLMENT_POLICY must be one of %q, %q, %q", PolicyProceed, PolicyReview, PolicyReject)
	}

	switch config.DeductionMode {
	case DeductionAtomic, DeductionBestEffort:
	default:
		return nil, fmt.Errorf("DEDUCTION_MODE must be %q or %q", DeductionAtomic, DeductionBestEffort)
	}

	if config.OtelEndpoint != "" && config.OtelAuthHeader == "" {
		return nil, fmt.Errorf("OTEL_AUTH_HEADER environment variable is required when OTEL_ENDPOINT is set")
	}

	return config, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive integer, got %q", key, raw)
	}
	return v, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	return v, nil
}
