package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/stock-reservation/internal/adapter/handler"
	"github.com/rl1809/stock-reservation/internal/adapter/lock"
	"github.com/rl1809/stock-reservation/internal/adapter/rpc"
	"github.com/rl1809/stock-reservation/internal/adapter/storage"
	"github.com/rl1809/stock-reservation/internal/config"
	"github.com/rl1809/stock-reservation/internal/core/allocation"
	"github.com/rl1809/stock-reservation/internal/core/service"
	"github.com/rl1809/stock-reservation/internal/platform/logging"
	"github.com/rl1809/stock-reservation/internal/platform/metrics"
	"github.com/rl1809/stock-reservation/internal/platform/tracing"
	"github.com/rl1809/stock-reservation/internal/port"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(config.ServiceInventory, *configPath)
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
		logger.Error("inventory service failed", zap.Error(err))
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
	var (
		batches port.BatchRepository
		db      *sql.DB
	)
	switch cfg.Storage.Driver {
	case config.StorageMySQL:
		db, err = storage.OpenMySQL(ctx, cfg.Storage.MySQLDSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := storage.MigrateInventory(ctx, db); err != nil {
			return err
		}
		batches = storage.NewMySQLBatchStore(db)
		logger.Info("connected to mysql")
	default:
		batches = storage.NewMemoryBatchStore()
	}

	seed, err := cfg.SeedBatches()
	if err != nil {
		return err
	}
	if len(seed) > 0 {
		if err := batches.SeedBatches(ctx, seed); err != nil {
			return fmt.Errorf("seed batches: %w", err)
		}
		logger.Info("seeded batches", zap.Int("count", len(seed)))
	}

	// Product lock
	var locker port.Locker
	switch cfg.Lock.Backend {
	case config.LockRedis:
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
		locker = lock.NewRedisLocker(rdb, cfg.Lock.TTL, logger)
		logger.Info("connected to redis")
	case config.LockZooKeeper:
		conn, err := lock.DialZooKeeper(cfg.Lock.ZooKeeperServers, cfg.Lock.ZooKeeperSession)
		if err != nil {
			return err
		}
		defer conn.Close()
		locker = lock.NewZooKeeperLocker(conn, logger)
		logger.Info("connected to zookeeper", zap.Strings("servers", cfg.Lock.ZooKeeperServers))
	default:
		locker = lock.NewLocalLocker()
	}

	registry := allocation.NewDefaultRegistry()
	if !registry.Has(cfg.Inventory.Strategy) {
		return fmt.Errorf("unknown allocation strategy %q, have %v", cfg.Inventory.Strategy, registry.Types())
	}

	inventoryService := service.NewInventoryService(batches, locker, registry, service.InventoryConfig{
		Strategy:     cfg.Inventory.Strategy,
		MaxAttempts:  cfg.Inventory.MaxAttempts,
		RetryBackoff: cfg.Inventory.RetryBackoff,
		LockTimeout:  cfg.Inventory.LockTimeout,
		StoreTimeout: cfg.Inventory.StoreTimeout,
	}, logger, m)

	// gRPC server
	var grpcServer *grpc.Server
	if cfg.GRPC.Addr != "" {
		grpcServer = grpc.NewServer(grpc.UnaryInterceptor(handler.UnaryLogging(logger)))
		rpc.RegisterInventoryServer(grpcServer, handler.NewGRPCHandler(inventoryService))

		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
		}
		go func() {
			logger.Info("gRPC server listening", zap.String("addr", cfg.GRPC.Addr))
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", zap.Error(err))
			}
		}()
	}

	// HTTP server
	router := handler.NewRouter(handler.RouterConfig{ServiceName: cfg.Service, Logger: logger, Metrics: m})
	handler.NewInventoryHandler(inventoryService).Register(router)

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

	if grpcServer != nil {
		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")
	}
	return nil
}
