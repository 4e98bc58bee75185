package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

const (
	ServiceInventory = "inventory-service"
	ServiceOrder     = "order-service"

	StorageMemory = "memory"
	StorageMySQL  = "mysql"

	LockLocal     = "local"
	LockRedis     = "redis"
	LockZooKeeper = "zookeeper"

	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

type Config struct {
	Service     string `yaml:"service"`
	Environment string `yaml:"environment"`

	HTTP struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"http"`

	GRPC struct {
		Addr string `yaml:"addr"`
	} `yaml:"grpc"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	Tracing struct {
		Endpoint   string  `yaml:"endpoint"`
		SampleRate float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Storage struct {
		Driver   string `yaml:"driver"`
		MySQLDSN string `yaml:"mysql_dsn"`
	} `yaml:"storage"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Lock struct {
		Backend          string        `yaml:"backend"`
		TTL              time.Duration `yaml:"ttl"`
		ZooKeeperServers []string      `yaml:"zookeeper_servers"`
		ZooKeeperSession time.Duration `yaml:"zookeeper_session"`
	} `yaml:"lock"`

	Inventory struct {
		Strategy     string        `yaml:"strategy"`
		MaxAttempts  int           `yaml:"max_attempts"`
		RetryBackoff time.Duration `yaml:"retry_backoff"`
		LockTimeout  time.Duration `yaml:"lock_timeout"`
		StoreTimeout time.Duration `yaml:"store_timeout"`
	} `yaml:"inventory"`

	InventoryClient struct {
		Transport       string        `yaml:"transport"`
		URL             string        `yaml:"url"`
		GRPCAddr        string        `yaml:"grpc_addr"`
		Timeout         time.Duration `yaml:"timeout"`
		MaxAttempts     int           `yaml:"max_attempts"`
		RetryBackoff    time.Duration `yaml:"retry_backoff"`
		BreakerFailures uint32        `yaml:"breaker_failures"`
		BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
	} `yaml:"inventory_client"`

	Order struct {
		CompensationTimeout time.Duration `yaml:"compensation_timeout"`
		IdempotencyTTL      time.Duration `yaml:"idempotency_ttl"`
		StoreTimeout        time.Duration `yaml:"store_timeout"`
		// IdempotencyStore is "memory" or "redis".
		IdempotencyStore string `yaml:"idempotency_store"`
	} `yaml:"order"`

	Kafka struct {
		Brokers   []string `yaml:"brokers"`
		Topic     string   `yaml:"topic"`
		Workers   int      `yaml:"workers"`
		QueueSize int      `yaml:"queue_size"`
	} `yaml:"kafka"`

	Seed []SeedBatch `yaml:"seed"`
}

// SeedBatch is a batch inserted at start-up. ExpiryDate uses domain.DateLayout.
type SeedBatch struct {
	BatchID     int64  `yaml:"batch_id"`
	ProductID   int64  `yaml:"product_id"`
	ProductName string `yaml:"product_name"`
	Quantity    int    `yaml:"quantity"`
	ExpiryDate  string `yaml:"expiry_date"`
}

// Default returns a configuration that runs the service locally with no
// external infrastructure.
func Default(service string) *Config {
	cfg := &Config{Service: service, Environment: "development"}

	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.ReadTimeout = 10 * time.Second
	cfg.HTTP.WriteTimeout = 30 * time.Second
	cfg.HTTP.ShutdownTimeout = 10 * time.Second
	cfg.GRPC.Addr = ":50051"
	if service == ServiceOrder {
		cfg.HTTP.Addr = ":8081"
		cfg.GRPC.Addr = ""
	}

	cfg.Log.Level = "info"
	cfg.Tracing.SampleRate = 1.0

	cfg.Storage.Driver = StorageMemory
	cfg.Storage.MySQLDSN = "root:root@tcp(localhost:3306)/stock?parseTime=true"
	cfg.Redis.Addr = "localhost:6379"

	cfg.Lock.Backend = LockLocal
	cfg.Lock.TTL = 10 * time.Second
	cfg.Lock.ZooKeeperSession = 5 * time.Second

	cfg.Inventory.Strategy = "FIFO"
	cfg.Inventory.MaxAttempts = 3
	cfg.Inventory.RetryBackoff = 20 * time.Millisecond
	cfg.Inventory.LockTimeout = 2 * time.Second
	cfg.Inventory.StoreTimeout = 3 * time.Second

	cfg.InventoryClient.Transport = TransportHTTP
	cfg.InventoryClient.URL = "http://localhost:8080"
	cfg.InventoryClient.GRPCAddr = "localhost:50051"
	cfg.InventoryClient.Timeout = 3 * time.Second
	cfg.InventoryClient.MaxAttempts = 3
	cfg.InventoryClient.RetryBackoff = 100 * time.Millisecond
	cfg.InventoryClient.BreakerFailures = 5
	cfg.InventoryClient.BreakerTimeout = 10 * time.Second

	cfg.Order.CompensationTimeout = 5 * time.Second
	cfg.Order.IdempotencyTTL = 24 * time.Hour
	cfg.Order.StoreTimeout = 3 * time.Second
	cfg.Order.IdempotencyStore = StorageMemory

	cfg.Kafka.Topic = "orders.placed"
	cfg.Kafka.Workers = 4
	cfg.Kafka.QueueSize = 1024

	return cfg
}

// Load builds the configuration for service: defaults, then the YAML file at
// path when path is non-empty, then environment overrides.
func Load(service, path string) (*Config, error) {
	cfg := Default(service)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.GRPC.Addr = getEnv("GRPC_ADDR", c.GRPC.Addr)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Tracing.Endpoint = getEnv("OTEL_ENDPOINT", c.Tracing.Endpoint)
	c.Storage.Driver = getEnv("STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.MySQLDSN = getEnv("MYSQL_DSN", c.Storage.MySQLDSN)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Lock.Backend = getEnv("LOCK_BACKEND", c.Lock.Backend)
	c.Order.IdempotencyStore = getEnv("IDEMPOTENCY_STORE", c.Order.IdempotencyStore)
	c.InventoryClient.Transport = getEnv("INVENTORY_TRANSPORT", c.InventoryClient.Transport)
	c.InventoryClient.URL = getEnv("INVENTORY_URL", c.InventoryClient.URL)
	c.InventoryClient.GRPCAddr = getEnv("INVENTORY_GRPC_ADDR", c.InventoryClient.GRPCAddr)

	if v, ok := os.LookupEnv("ZK_SERVERS"); ok {
		c.Lock.ZooKeeperServers = splitList(v)
	}
	if v, ok := os.LookupEnv("KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = splitList(v)
	}
}

func (c *Config) Validate() error {
	var errs []error

	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("http.shutdown_timeout must be positive"))
	}
	if c.Inventory.LockTimeout <= 0 || c.Inventory.StoreTimeout <= 0 {
		errs = append(errs, errors.New("inventory.lock_timeout and inventory.store_timeout must be positive"))
	}
	if c.Order.StoreTimeout <= 0 {
		errs = append(errs, errors.New("order.store_timeout must be positive"))
	}

	switch c.Storage.Driver {
	case StorageMemory:
	case StorageMySQL:
		if c.Storage.MySQLDSN == "" {
			errs = append(errs, errors.New("storage.mysql_dsn is required for the mysql driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}

	switch c.Service {
	case ServiceInventory:
		switch c.Lock.Backend {
		case LockLocal, LockRedis:
		case LockZooKeeper:
			if len(c.Lock.ZooKeeperServers) == 0 {
				errs = append(errs, errors.New("lock.zookeeper_servers is required for the zookeeper backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown lock.backend %q", c.Lock.Backend))
		}
		for i, b := range c.Seed {
			if _, err := b.ToDomain(); err != nil {
				errs = append(errs, fmt.Errorf("seed[%d]: %w", i, err))
			}
		}
	case ServiceOrder:
		if c.Order.IdempotencyStore != StorageMemory && c.Order.IdempotencyStore != "redis" {
			errs = append(errs, fmt.Errorf("unknown order.idempotency_store %q", c.Order.IdempotencyStore))
		}
		switch c.InventoryClient.Transport {
		case TransportHTTP:
			if c.InventoryClient.URL == "" {
				errs = append(errs, errors.New("inventory_client.url is required for the http transport"))
			}
		case TransportGRPC:
			if c.InventoryClient.GRPCAddr == "" {
				errs = append(errs, errors.New("inventory_client.grpc_addr is required for the grpc transport"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown inventory_client.transport %q", c.InventoryClient.Transport))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown service %q", c.Service))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// SeedBatches converts the configured seed entries.
func (c *Config) SeedBatches() ([]*domain.Batch, error) {
	batches := make([]*domain.Batch, 0, len(c.Seed))
	for _, s := range c.Seed {
		b, err := s.ToDomain()
		if err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (s SeedBatch) ToDomain() (*domain.Batch, error) {
	if s.ProductID <= 0 {
		return nil, fmt.Errorf("product_id must be positive, got %d", s.ProductID)
	}
	if s.Quantity < 0 {
		return nil, fmt.Errorf("quantity must not be negative, got %d", s.Quantity)
	}
	expiry, err := domain.ParseDate(s.ExpiryDate)
	if err != nil {
		return nil, fmt.Errorf("expiry_date: %w", err)
	}
	return &domain.Batch{
		ID:          s.BatchID,
		ProductID:   s.ProductID,
		ProductName: s.ProductName,
		Quantity:    s.Quantity,
		ExpiryDate:  expiry,
	}, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
