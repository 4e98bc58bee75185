package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	inv := Default(ServiceInventory)
	assert.Equal(t, ":8080", inv.HTTP.Addr)
	assert.Equal(t, ":50051", inv.GRPC.Addr)
	assert.Equal(t, StorageMemory, inv.Storage.Driver)
	assert.Equal(t, LockLocal, inv.Lock.Backend)
	assert.Equal(t, 2*time.Second, inv.Inventory.LockTimeout)
	assert.Equal(t, 3*time.Second, inv.Inventory.StoreTimeout)
	assert.NoError(t, inv.Validate())

	ord := Default(ServiceOrder)
	assert.Equal(t, ":8081", ord.HTTP.Addr)
	assert.Equal(t, TransportHTTP, ord.InventoryClient.Transport)
	assert.Equal(t, 5*time.Second, ord.Order.CompensationTimeout)
	assert.Equal(t, 3*time.Second, ord.Order.StoreTimeout)
	assert.NoError(t, ord.Validate())
}

func TestLoad_YAMLAndSeed(t *testing.T) {
	path := writeFile(t, `
http:
  addr: ":9000"
inventory:
  strategy: LIFO
  retry_backoff: 50ms
  lock_timeout: 250ms
seed:
  - batch_id: 1
    product_id: 1
    product_name: Milk
    quantity: 50
    expiry_date: "2026-01-01"
  - batch_id: 2
    product_id: 1
    product_name: Milk
    quantity: 30
    expiry_date: "2026-02-01"
`)

	cfg, err := Load(ServiceInventory, path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.HTTP.Addr)
	assert.Equal(t, "LIFO", cfg.Inventory.Strategy)
	assert.Equal(t, 50*time.Millisecond, cfg.Inventory.RetryBackoff)
	assert.Equal(t, 3, cfg.Inventory.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Inventory.LockTimeout)

	batches, err := cfg.SeedBatches()
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, 30, batches[1].Quantity)
	assert.Equal(t, "2026-02-01", batches[1].ExpiryDate.Format("2006-01-02"))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":7000")
	t.Setenv("INVENTORY_TRANSPORT", "grpc")
	t.Setenv("INVENTORY_GRPC_ADDR", "inventory:50051")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")

	cfg, err := Load(ServiceOrder, "")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, TransportGRPC, cfg.InventoryClient.Transport)
	assert.Equal(t, "inventory:50051", cfg.InventoryClient.GRPCAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_Invalid(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(ServiceInventory, filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(ServiceInventory, writeFile(t, "http: [unclosed"))
		assert.Error(t, err)
	})

	t.Run("unknown lock backend", func(t *testing.T) {
		t.Setenv("LOCK_BACKEND", "etcd")
		_, err := Load(ServiceInventory, "")
		assert.ErrorContains(t, err, "lock.backend")
	})

	t.Run("zookeeper without servers", func(t *testing.T) {
		t.Setenv("LOCK_BACKEND", "zookeeper")
		_, err := Load(ServiceInventory, "")
		assert.ErrorContains(t, err, "zookeeper_servers")
	})

	t.Run("bad seed date", func(t *testing.T) {
		_, err := Load(ServiceInventory, writeFile(t, `
seed:
  - product_id: 1
    product_name: Milk
    quantity: 5
    expiry_date: "01/01/2026"
`))
		assert.ErrorContains(t, err, "seed[0]")
	})

	t.Run("zero store timeout", func(t *testing.T) {
		_, err := Load(ServiceOrder, writeFile(t, `
order:
  store_timeout: 0s
`))
		assert.ErrorContains(t, err, "order.store_timeout")
	})

	t.Run("unknown transport", func(t *testing.T) {
		t.Setenv("INVENTORY_TRANSPORT", "amqp")
		_, err := Load(ServiceOrder, "")
		assert.ErrorContains(t, err, "transport")
	})
}
