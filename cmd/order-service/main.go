package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/adapter/client"
	"github.com/rl1809/stock-reservation/internal/adapter/handler"
	"github.com/rl1809/stock-reservation/internal/adapter/messaging"
	"github.com/rl1809/stock-reservation/internal/adapter/storage"
	"github.com/rl1809/stock-reservation/internal/config"
	"github.com/rl1809/stock-reservation/internal/core/service"
	"github.com/rl1809/stock-reservation/internal/platform/logging"
	"github.com/rl1809/stock-reservation/internal/platform/metrics"
	"github.com/rl1809/stock-reservation/internal/platform/tracing"
	"github.com/rl1809/stock-reservation/internal/port"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(config.ServiceOrder, *configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		ServiceName: cfg.Service,
		Environment: cfg.Environment,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("order service failed", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, tracing.Config{
		ServiceName: cfg.Service,
		Environment: cfg.Environment,
		Endpoint:    cfg.Tracing.Endpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}
	// Registered first so it runs last, after everything that still emits spans.
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(tctx); err != nil {
			logger.Error("tracer shutdown failed", zap.Error(err))
		}
	}()
	m := metrics.New(cfg.Service)

	// Storage
	var orders port.OrderRepository
	switch cfg.Storage.Driver {
	case config.StorageMySQL:
		db, err := storage.OpenMySQL(ctx, cfg.Storage.MySQLDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := storage.MigrateOrders(ctx, db); err != nil {
			return err
		}
		orders = storage.NewMySQLOrderStore(db)
		logger.Info("connected to mysql")
	default:
		orders = storage.NewMemoryOrderStore()
	}

	// Idempotency claims
	var idem port.IdempotencyStore
	switch cfg.Order.IdempotencyStore {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer rdb.Close()
		idem = storage.NewRedisIdempotencyStore(rdb)
		logger.Info("connected to redis")
	default:
		idem = storage.NewMemoryIdempotencyStore()
	}

	// Inventory client
	clientCfg := client.Config{
		Timeout:         cfg.InventoryClient.Timeout,
		MaxAttempts:     cfg.InventoryClient.MaxAttempts,
		RetryBackoff:    cfg.InventoryClient.RetryBackoff,
		BreakerFailures: cfg.InventoryClient.BreakerFailures,
		BreakerTimeout:  cfg.InventoryClient.BreakerTimeout,
	}
	var inventory port.InventoryClient
	switch cfg.InventoryClient.Transport {
	case config.TransportGRPC:
		c, err := client.DialGRPCInventoryClient(cfg.InventoryClient.GRPCAddr, clientCfg, logger)
		if err != nil {
			return err
		}
		defer c.Close()
		inventory = c
		logger.Info("using gRPC inventory client", zap.String("target", cfg.InventoryClient.GRPCAddr))
	default:
		inventory = client.NewHTTPInventoryClient(cfg.InventoryClient.URL, clientCfg, logger)
		logger.Info("using HTTP inventory client", zap.String("url", cfg.InventoryClient.URL))
	}

	// Event publisher
	var publisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		async := messaging.NewAsyncPublisher(
			messaging.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger),
			messaging.AsyncConfig{Workers: cfg.Kafka.Workers, QueueSize: cfg.Kafka.QueueSize},
			logger,
		)
		defer func() {
			if err := async.Close(); err != nil {
				logger.Error("event publisher close failed", zap.Error(err))
			}
			logger.Info("event workers stopped")
		}()
		publisher = async
		logger.Info("publishing order events", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}

	orderService := service.NewOrderService(orders, inventory, idem, publisher, service.OrderConfig{
		CompensationTimeout: cfg.Order.CompensationTimeout,
		IdempotencyTTL:      cfg.Order.IdempotencyTTL,
		StoreTimeout:        cfg.Order.StoreTimeout,
	}, logger, m)

	router := handler.NewRouter(handler.RouterConfig{ServiceName: cfg.Service, Logger: logger, Metrics: m})
	handler.NewOrderHandler(orderService).Register(router)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}
	logger.Info("HTTP server stopped")
	return nil
}
