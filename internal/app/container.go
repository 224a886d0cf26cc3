package app

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"cafepos/internal/availability"
	"cafepos/internal/cart"
	"cafepos/internal/checkout"
	"cafepos/internal/config"
	"cafepos/internal/fulfillment"
	"cafepos/internal/httpapi"
	"cafepos/internal/inventory"
	"cafepos/internal/messaging"
	"cafepos/internal/order"
	"cafepos/internal/platform/kafka"
	"cafepos/internal/platform/observability"
	"cafepos/internal/platform/postgres"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Container holds expensive-to-create singleton resources and the services built on them.
type Container struct {
	config *config.Config
	logger observability.Logger
	tracer observability.Tracer

	db          *sql.DB
	redisClient *redis.Client

	messageConsumer kafka.OrderReader
	messageProducer kafka.EventWriter
	consumerService messaging.ConsumerService
	publisher       *messaging.Publisher

	inventoryStore inventory.Store
	orders         order.Repository
	cartStore      cart.Store

	engine       *inventory.Engine
	availability *availability.Service
	carts        *cart.Service
	checkout     *checkout.Service

	server *http.Server

	otelShutdown observability.ShutdownFunc
}

// NewContainer creates and initializes all infrastructure components
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	container := &Container{
		config: cfg,
	}

	if err := container.setupLogger(); err != nil {
		return nil, err
	}

	tp := container.setupObservability(ctx)

	if err := container.setupStorage(ctx); err != nil {
		container.Shutdown(ctx)
		return nil, err
	}

	if err := container.setupCarts(ctx); err != nil {
		container.Shutdown(ctx)
		return nil, err
	}

	if cfg.MessagingEnabled() {
		if err := container.setupKafkaWithTracer(tp); err != nil {
			container.Shutdown(ctx)
			return nil, err
		}
	} else {
		container.logger.Info("KAFKA_BROKER not set, order events disabled")
	}

	container.setupServices()
	container.setupHTTPServer(ctx)

	return container, nil
}

func (c *Container) setupLogger() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}

	c.logger = logger
	return nil
}

// setupObservability configures OpenTelemetry logs, traces and metrics. Without an
// endpoint the global no-op providers stay in place.
func (c *Container) setupObservability(ctx context.Context) trace.TracerProvider {
	c.tracer = otel.Tracer(config.ServiceName)
	if !c.config.TelemetryEnabled() {
		c.logger.Info("OTEL_ENDPOINT not set, telemetry export disabled")
		return otel.GetTracerProvider()
	}

	otelLogShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(err))
	}

	tp, otelTraceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
	}

	otelMeterShutdown, err := observability.SetupMeterSDK(ctx, c.config)
	if err != nil {
		c.logger.Error("Failed to setup OpenTelemetry metrics", zap.Error(err))
	}

	c.otelShutdown = observability.JoinShutdown(otelMeterShutdown, otelTraceShutdown, otelLogShutdown)

	c.reinitializeLoggerWithOTel()
	c.tracer = otel.Tracer(config.ServiceName)

	if tp == nil {
		return otel.GetTracerProvider()
	}
	return tp
}

// reinitializeLoggerWithOTel tees log records to the OTel bridge and to stdout.
func (c *Container) reinitializeLoggerWithOTel() {
	logProvider := global.GetLoggerProvider()
	otelZapCore := otelzap.NewCore(config.ServiceName+".manual",
		otelzap.WithLoggerProvider(logProvider),
	)

	consoleEncoderConfig := zap.NewProductionEncoderConfig()
	consoleEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(consoleEncoderConfig),
		zapcore.Lock(os.Stdout),
		zap.InfoLevel,
	)

	logger := zap.New(zapcore.NewTee(otelZapCore, consoleCore),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", config.ServiceName)),
	)

	c.logger = logger
	c.logger.Info("Logger re-initialized with OpenTelemetry bridge")
}

// setupStorage opens PostgreSQL when DATABASE_URL is set and falls back to the
// in-memory stores seeded with the demo menu otherwise.
func (c *Container) setupStorage(ctx context.Context) error {
	if c.config.DatabaseURL == "" {
		c.logger.Info("DATABASE_URL not set, using in-memory stores with the demo menu")
		store := inventory.NewMemoryStore()
		if err := store.Seed(inventory.DemoCatalogue()); err != nil {
			return fmt.Errorf("failed to seed demo catalogue: %w", err)
		}
		c.inventoryStore = store
		c.orders = order.NewMemoryRepository()
		return nil
	}

	db, err := postgres.Open(ctx, c.config, c.logger)
	if err != nil {
		return err
	}
	c.db = db

	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}

	c.inventoryStore = inventory.NewPostgresStore(db)
	c.orders = order.NewPostgresRepository(db)
	return nil
}

func (c *Container) setupCarts(ctx context.Context) error {
	if c.config.RedisAddr == "" {
		c.cartStore = cart.NewMemoryStore()
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: c.config.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	c.redisClient = client
	c.cartStore = cart.NewRedisStore(client, c.config.CartTTL)
	c.logger.Info("Cart store connected to Redis", zap.String("addr", c.config.RedisAddr))
	return nil
}

// setupKafkaWithTracer initializes Kafka consumer and producer with OpenTelemetry
func (c *Container) setupKafkaWithTracer(tp trace.TracerProvider) error {
	readerConfig := kafkago.ReaderConfig{
		Brokers: []string{c.config.KafkaBroker},
		Topic:   config.OrderCreatedTopic,
		GroupID: config.GroupID,
	}

	baseReader := kafkago.NewReader(readerConfig)
	reader, err := otelkafka.NewReader(baseReader)
	if err != nil {
		return err
	}
	c.messageConsumer = reader

	baseWriter := &kafkago.Writer{
		Addr:         kafkago.TCP(c.config.KafkaBroker),
		Topic:        config.InventoryTopic,
		Balancer:     &kafkago.LeastBytes{},
		BatchTimeout: config.BatchTimeout,
		BatchSize:    config.BatchSize,
	}

	writer, err := otelkafka.NewWriter(baseWriter,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(config.InventoryTopic),
				attribute.String("messaging.kafka.client_id", config.ServiceName),
			},
		),
	)
	if err != nil {
		return err
	}
	c.messageProducer = writer
	c.publisher = messaging.NewPublisher(writer, c.logger)

	return nil
}

func (c *Container) setupServices() {
	engineOpts := []inventory.Option{inventory.WithMode(c.config.DeductionMode)}
	var events checkout.EventPublisher
	if c.publisher != nil {
		engineOpts = append(engineOpts, inventory.WithAlerts(c.publisher))
		events = c.publisher
	}

	c.engine = inventory.NewEngine(c.inventoryStore, c.logger, c.tracer, engineOpts...)
	c.availability = availability.NewService(c.engine, availability.DefaultLowStockUnits, c.logger)
	c.carts = cart.NewService(c.cartStore, c.availability, c.config.TaxRate, c.logger)

	fulfiller := fulfillment.NewFulfiller(c.engine, fulfillment.Policy(c.config.FulfillmentPolicy), c.logger, c.tracer)
	c.checkout = checkout.NewService(c.engine, c.orders, fulfiller, events, c.carts, c.config.TaxRate, c.logger, c.tracer)

	if c.messageConsumer != nil {
		handler := messaging.NewMessageHandler(c.checkout, c.logger, c.tracer)
		c.consumerService = messaging.NewConsumerService(c.messageConsumer, handler, c.logger)
	}

	c.logger.Info("Services initialized",
		zap.String("deduction_mode", c.engine.Mode()),
		zap.String("fulfillment_policy", c.config.FulfillmentPolicy),
		zap.String("tax_rate", c.config.TaxRate.String()),
	)
}

func (c *Container) setupHTTPServer(ctx context.Context) {
	var db httpapi.Pinger
	if c.db != nil {
		db = c.db
	}
	api := httpapi.NewServer(c.availability, c.carts, c.checkout, c.engine, db, c.logger)

	c.server = &http.Server{
		Addr:         c.config.HTTPAddr,
		BaseContext:  func(net.Listener) context.Context { return ctx },
		ReadTimeout:  time.Second,
		WriteTimeout: 10 * time.Second,
		Handler:      api.Handler(),
	}
}

// Shutdown gracefully shuts down all infrastructure components
func (c *Container) Shutdown(ctx context.Context) {
	c.logger.Info("Shutting down infrastructure...")

	if c.messageConsumer != nil {
		if err := c.messageConsumer.Close(); err != nil {
			c.logger.Error("Failed to close message consumer", zap.Error(err))
		}
	}

	if c.messageProducer != nil {
		if err := c.messageProducer.Close(); err != nil {
			c.logger.Error("Failed to close message producer", zap.Error(err))
		}
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
		}
	}

	if c.otelShutdown != nil {
		if err := c.otelShutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown OpenTelemetry", zap.Error(err))
		}
	}

	c.logger.Info("Infrastructure shutdown complete")

	if err := c.logger.Sync(); err != nil {
		// Can't log this error since logger might be closed
		fmt.Printf("Failed to sync logger: %v\n", err)
	}
}

// Getters for accessing infrastructure components
func (c *Container) Logger() observability.Logger                { return c.logger }
func (c *Container) Tracer() observability.Tracer                { return c.tracer }
func (c *Container) HTTPServer() *http.Server                    { return c.server }
func (c *Container) ConsumerService() messaging.ConsumerService { return c.consumerService }
