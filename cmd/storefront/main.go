package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-grocery/internal/app"
	cartRepository "github.com/sakashimaa/go-grocery/internal/cart/repository"
	"github.com/sakashimaa/go-grocery/internal/events"
	inventoryRepository "github.com/sakashimaa/go-grocery/internal/inventory/repository"
	"github.com/sakashimaa/go-grocery/internal/metrics"
	notificationRepository "github.com/sakashimaa/go-grocery/internal/notification/repository"
	orderRepository "github.com/sakashimaa/go-grocery/internal/order/repository"
	"github.com/sakashimaa/go-grocery/internal/payment/gateway"
	paymentRepository "github.com/sakashimaa/go-grocery/internal/payment/repository"
	"github.com/sakashimaa/go-grocery/internal/realtime"
	"github.com/sakashimaa/go-grocery/pkg/auth"
	"github.com/sakashimaa/go-grocery/pkg/config"
	"github.com/sakashimaa/go-grocery/pkg/db"
	"github.com/sakashimaa/go-grocery/pkg/kafka"
	"github.com/sakashimaa/go-grocery/pkg/mylogger"
	outboxRepository "github.com/sakashimaa/go-grocery/pkg/outbox/repository"
	"github.com/sakashimaa/go-grocery/pkg/outbox/worker"
	"github.com/sakashimaa/go-grocery/pkg/utils"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.MustLoad()

	logger, err := config.NewLogger(config.LoggerConfig{
		Level:    cfg.Log.Level,
		Env:      cfg.Env,
		Instance: cfg.InstanceID,
	})
	if err != nil {
		log.Fatalf("Error creating logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	var tp *sdktrace.TracerProvider
	if cfg.Telemetry.Enabled {
		tp, err = utils.InitTracer(ctx, utils.TracerConfig{
			ServiceName: cfg.Telemetry.Service,
			Environment: cfg.Env,
			Endpoint:    cfg.Telemetry.Endpoint,
			InstanceID:  cfg.InstanceID,
		})
		if err != nil {
			logger.Fatal("Failed to init tracer", zap.Error(err))
		}
	} else {
		utils.SetPropagator()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	stores := app.MemoryStores(int(cfg.Notifications.FeedLimit))

	var pool *pgxpool.Pool
	if cfg.Storage.Driver == config.StoragePostgres {
		if err := db.Migrate(cfg.Postgres.MigrationsPath, cfg.Postgres.URL, logger); err != nil {
			logger.Fatal("Failed to apply migrations", zap.Error(err))
		}

		pool, err = db.NewPostgresDB(ctx, cfg.Postgres.URL, db.PoolSettings{
			MaxConns:       cfg.Postgres.MaxConns,
			MinConns:       cfg.Postgres.MinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to connect to postgres", zap.Error(err))
		}
		defer pool.Close()

		stores.Inventory = inventoryRepository.NewPostgresRepository(pool, logger)
		stores.Orders = orderRepository.NewPostgresRepository(pool, logger)
		stores.Payments = paymentRepository.NewPostgresRepository(pool, logger)
		stores.Carts = cartRepository.NewPostgresRepository(pool)
	}

	if cfg.Notifications.Store == config.FeedStoreRedis {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
		}
		stores.Feed = notificationRepository.NewRedisFeedStore(client, cfg.Notifications.FeedLimit)
	}
	defer func() {
		if err := stores.Feed.Close(); err != nil {
			logger.Warn("Error closing notification store", zap.Error(err))
		}
	}()

	outcome := gateway.AlwaysApprove()
	if cfg.Payment.FailureRate > 0 {
		outcome = gateway.FailureRate(cfg.Payment.FailureRate)
	}

	storefront := app.New(stores, app.Options{
		DeliveryWindow: cfg.Delivery.EstimatedWindow,
		Gateway:        gateway.NewSimulatedGateway(cfg.Payment.Latency, outcome),
		PaymentTimeout: cfg.Payment.Timeout,
	}, m, logger)

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, logger)
		if err != nil {
			logger.Fatal("Failed to create kafka producer", zap.Error(err))
		}
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Warn("Error closing kafka producer", zap.Error(err))
			}
		}()

		relay := realtime.NewRelay(producer, cfg.Kafka.RealtimeTopic, cfg.InstanceID, storefront.Hub, logger)
		storefront.Hub.SetForwarder(relay)

		consumer := kafka.NewConsumerGroup(
			cfg.Kafka.Brokers,
			realtime.GroupID(cfg.Kafka.RealtimeGroup, cfg.InstanceID),
			[]string{cfg.Kafka.RealtimeTopic},
			relay.Handle,
			logger,
			kafka.FromNewest(),
		)
		go func() {
			if err := consumer.Run(ctx); err != nil {
				mylogger.Error(ctx, logger, "Realtime relay consumer stopped", zap.Error(err))
			}
		}()

		if pool != nil {
			outboxRepo := outboxRepository.NewOutboxRepository()
			storefront.Dispatcher.Subscribe("outbox", events.NewOutboxWriter(pool, outboxRepo, events.Topics{
				Order:   cfg.Kafka.OrderTopic,
				Payment: cfg.Kafka.PaymentTopic,
				Stock:   cfg.Kafka.StockTopic,
			}))

			processor := worker.NewOutboxProcessor(pool, outboxRepo, producer, logger, worker.Settings{
				BatchSize: cfg.Outbox.BatchSize,
				Interval:  cfg.Outbox.Interval,
			})
			go processor.Start(ctx)
		}
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		logger.Fatal("Invalid auth configuration", zap.Error(err))
	}

	server := fiber.New(fiber.Config{
		AppName:     "storefront",
		ReadTimeout: cfg.HTTP.Timeout,
	})

	server.Use(otelfiber.Middleware())

	server.Use(limiter.New(limiter.Config{
		Max:        cfg.HTTP.Limiter.Max,
		Expiration: cfg.HTTP.Limiter.Expiration,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Try again later.",
				"code":  "RATE_LIMITED",
			})
		},
	}))

	storefront.Mount(server, tokens, reg)

	go func() {
		logger.Info("Storefront listening",
			zap.String("addr", cfg.HTTP.Port),
			zap.String("storage", cfg.Storage.Driver),
			zap.String("feed_store", cfg.Notifications.Store),
			zap.Bool("kafka", cfg.Kafka.Enabled),
		)
		if err := server.Listen(cfg.HTTP.Port); err != nil {
			logger.Fatal("Error listening on HTTP port", zap.String("addr", cfg.HTTP.Port), zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mylogger.Info(shutdownCtx, logger, "Shutting down storefront")

	storefront.Hub.Close()

	if err := server.ShutdownWithContext(shutdownCtx); err != nil {
		mylogger.Warn(shutdownCtx, logger, "Error shutting down HTTP server", zap.Error(err))
	} else {
		mylogger.Info(shutdownCtx, logger, "HTTP server stopped gracefully")
	}

	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			mylogger.Warn(shutdownCtx, logger, "Failed to shut down telemetry", zap.Error(err))
		}
	}
}
