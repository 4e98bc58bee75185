package service_test

import (
	"context"
	"database/sql"
	"errors"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/adapter/client"
	"github.com/rl1809/stock-reservation/internal/adapter/handler"
	"github.com/rl1809/stock-reservation/internal/adapter/lock"
	"github.com/rl1809/stock-reservation/internal/adapter/storage"
	"github.com/rl1809/stock-reservation/internal/core/allocation"
	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/core/service"
	"github.com/rl1809/stock-reservation/internal/platform/metrics"
	"github.com/rl1809/stock-reservation/internal/port"
)

// testEnv runs both services against MySQL and Redis, talking over HTTP.
type testEnv struct {
	redis     *redis.Client
	mysql     *sql.DB
	batches   *storage.MySQLBatchStore
	inventory *service.InventoryService
	client    port.InventoryClient
	productID int64
}

func setupTestEnv(t *testing.T) *testEnv {
	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		mysqlDSN = "root:root@tcp(localhost:3306)/stock?parseTime=true"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	db, err := storage.OpenMySQL(ctx, mysqlDSN)
	if err != nil {
		rdb.Close()
		t.Skipf("MySQL not available: %v", err)
	}
	require.NoError(t, storage.MigrateInventory(context.Background(), db))
	require.NoError(t, storage.MigrateOrders(context.Background(), db))

	env := &testEnv{
		redis:     rdb,
		mysql:     db,
		batches:   storage.NewMySQLBatchStore(db),
		productID: time.Now().UnixNano()%1_000_000_000 + 1,
	}

	jan, _ := domain.ParseDate("2026-01-01")
	feb, _ := domain.ParseDate("2026-02-01")
	require.NoError(t, env.batches.SeedBatches(context.Background(), []*domain.Batch{
		{ProductID: env.productID, ProductName: "Milk", Quantity: 6, ExpiryDate: jan},
		{ProductID: env.productID, ProductName: "Milk", Quantity: 4, ExpiryDate: feb},
	}))

	env.inventory = service.NewInventoryService(env.batches, lock.NewRedisLocker(rdb, 0, zap.NewNop()),
		allocation.NewDefaultRegistry(), service.InventoryConfig{}, zap.NewNop(), metrics.New("inventory-service"))

	router := handler.NewRouter(handler.RouterConfig{
		ServiceName: "inventory-service",
		Logger:      zap.NewNop(),
		Metrics:     metrics.New("inventory-service"),
	})
	handler.NewInventoryHandler(env.inventory).Register(router)
	srv := httptest.NewServer(router)
	env.client = client.NewHTTPInventoryClient(srv.URL, client.Config{}, zap.NewNop())

	t.Cleanup(func() {
		srv.Close()
		bg := context.Background()
		db.ExecContext(bg, `DELETE FROM order_batches WHERE order_id IN (SELECT order_id FROM orders WHERE product_id = ?)`, env.productID)
		db.ExecContext(bg, `DELETE FROM orders WHERE product_id = ?`, env.productID)
		db.ExecContext(bg, `DELETE FROM reservation_lines WHERE reservation_id IN (SELECT reservation_id FROM reservations WHERE product_id = ?)`, env.productID)
		db.ExecContext(bg, `DELETE FROM reservations WHERE product_id = ?`, env.productID)
		db.ExecContext(bg, `DELETE FROM batches WHERE product_id = ?`, env.productID)
		db.Close()
		rdb.Close()
	})
	return env
}

func (e *testEnv) orderService(orders port.OrderRepository) *service.OrderService {
	return service.NewOrderService(orders, e.client, storage.NewRedisIdempotencyStore(e.redis), nil,
		service.OrderConfig{}, zap.NewNop(), metrics.New("order-service"))
}

func (e *testEnv) stock(t *testing.T) int {
	t.Helper()
	inv, err := e.inventory.GetInventory(context.Background(), e.productID)
	require.NoError(t, err)
	return inv.TotalQuantity()
}

func TestIntegration_FullPlacementFlow(t *testing.T) {
	env := setupTestEnv(t)
	svc := env.orderService(storage.NewMySQLOrderStore(env.mysql))
	ctx := context.Background()

	var successCount, insufficientCount atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.PlaceOrder(ctx, service.PlaceOrderCommand{
				ProductID:      env.productID,
				Quantity:       1,
				IdempotencyKey: uuid.NewString(),
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientInventory):
				insufficientCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), successCount.Load())
	assert.Equal(t, int32(10), insufficientCount.Load())

	assert.Equal(t, 0, env.stock(t))

	var orderCount int
	require.NoError(t, env.mysql.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE product_id = ?`, env.productID).Scan(&orderCount))
	assert.Equal(t, 10, orderCount)
}

type failingOrderStore struct {
	*storage.MySQLOrderStore
}

func (failingOrderStore) Create(ctx context.Context, order *domain.Order) error {
	return errors.New("deadlock found when trying to get lock")
}

func TestIntegration_CompensationOnOrderSaveFailure(t *testing.T) {
	env := setupTestEnv(t)
	svc := env.orderService(failingOrderStore{storage.NewMySQLOrderStore(env.mysql)})

	_, err := svc.PlaceOrder(context.Background(), service.PlaceOrderCommand{ProductID: env.productID, Quantity: 8})

	var failure *domain.PersistenceFailureError
	require.ErrorAs(t, err, &failure)
	assert.True(t, failure.Compensated)
	assert.Equal(t, 10, env.stock(t))

	res, err := env.batches.FindReservation(context.Background(), failure.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusReleased, res.Status)
}

func TestIntegration_IdempotencyPreventsDoubleOrder(t *testing.T) {
	env := setupTestEnv(t)
	svc := env.orderService(storage.NewMySQLOrderStore(env.mysql))
	ctx := context.Background()
	key := "same-request-" + uuid.NewString()
	t.Cleanup(func() { env.redis.Del(context.Background(), "idempotency:order:"+key) })

	first, err := svc.PlaceOrder(ctx, service.PlaceOrderCommand{ProductID: env.productID, Quantity: 1, IdempotencyKey: key})
	require.NoError(t, err)

	second, err := svc.PlaceOrder(ctx, service.PlaceOrderCommand{ProductID: env.productID, Quantity: 1, IdempotencyKey: key})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	assert.Equal(t, 9, env.stock(t))
}
