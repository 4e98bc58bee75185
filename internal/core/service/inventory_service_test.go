package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/stock-reservation/internal/adapter/lock"
	"github.com/rl1809/stock-reservation/internal/adapter/storage"
	"github.com/rl1809/stock-reservation/internal/core/allocation"
	"github.com/rl1809/stock-reservation/internal/core/domain"
	"github.com/rl1809/stock-reservation/internal/platform/metrics"
)

func mustDate(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func milkBatches() []*domain.Batch {
	return []*domain.Batch{
		{ID: 1, ProductID: 1, ProductName: "Milk", Quantity: 50, ExpiryDate: mustDate("2026-01-01")},
		{ID: 2, ProductID: 1, ProductName: "Milk", Quantity: 30, ExpiryDate: mustDate("2026-02-01")},
	}
}

func newInventoryFixture(t *testing.T) (*InventoryService, *storage.MemoryBatchStore) {
	t.Helper()
	store := storage.NewMemoryBatchStore()
	require.NoError(t, store.SeedBatches(context.Background(), milkBatches()))
	svc := NewInventoryService(store, lock.NewLocalLocker(), allocation.NewDefaultRegistry(),
		InventoryConfig{}, zap.NewNop(), metrics.New("test"))
	return svc, store
}

func quantitiesOf(t *testing.T, svc *InventoryService, productID int64) []int {
	t.Helper()
	inv, err := svc.GetInventory(context.Background(), productID)
	require.NoError(t, err)
	out := make([]int, 0, len(inv.Batches))
	for _, b := range inv.Batches {
		out = append(out, b.Quantity)
	}
	return out
}

func TestGetInventory(t *testing.T) {
	svc, _ := newInventoryFixture(t)
	ctx := context.Background()

	inv, err := svc.GetInventory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Milk", inv.ProductName)
	assert.Equal(t, 80, inv.TotalQuantity())
	assert.Equal(t, int64(1), inv.Batches[0].ID)

	again, err := svc.GetInventory(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, inv, again)

	_, err = svc.GetInventory(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "Product not found with ID: 42", err.Error())
}

func TestReserve_WorkedExample(t *testing.T) {
	svc, _ := newInventoryFixture(t)

	res, err := svc.Reserve(context.Background(), ReserveCommand{ProductID: 1, Quantity: 60})
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2}, res.BatchIDs())
	assert.Equal(t, []int{0, 20}, quantitiesOf(t, svc, 1))
}

func TestReserve_InsufficientLeavesStockUnchanged(t *testing.T) {
	svc, _ := newInventoryFixture(t)

	_, err := svc.Reserve(context.Background(), ReserveCommand{ProductID: 1, Quantity: 100})
	var insufficient *domain.InsufficientInventoryError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(1), insufficient.ProductID)
	assert.Equal(t, 80, insufficient.Available)

	assert.Equal(t, []int{50, 30}, quantitiesOf(t, svc, 1))
}

func TestReserve_Validation(t *testing.T) {
	svc, _ := newInventoryFixture(t)
	ctx := context.Background()

	_, err := svc.Reserve(ctx, ReserveCommand{ProductID: 1, Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = svc.Reserve(ctx, ReserveCommand{ProductID: 42, Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReserve_IdempotencyKeyReplays(t *testing.T) {
	svc, _ := newInventoryFixture(t)
	ctx := context.Background()
	cmd := ReserveCommand{ProductID: 1, Quantity: 10, IdempotencyKey: "k-1"}

	first, err := svc.Reserve(ctx, cmd)
	require.NoError(t, err)
	second, err := svc.Reserve(ctx, cmd)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []int{40, 30}, quantitiesOf(t, svc, 1))

	_, err = svc.Reserve(ctx, ReserveCommand{ProductID: 1, Quantity: 11, IdempotencyKey: "k-1"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestReserve_ConcurrentNeverOversells(t *testing.T) {
	svc, _ := newInventoryFixture(t)

	var success atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), ReserveCommand{ProductID: 1, Quantity: 3})
			if err == nil {
				success.Add(1)
				return
			}
			assert.ErrorIs(t, err, domain.ErrInsufficientInventory)
		}()
	}
	wg.Wait()

	// 80 units, 3 per request.
	assert.Equal(t, int32(26), success.Load())
	q := quantitiesOf(t, svc, 1)
	assert.Equal(t, 2, q[0]+q[1])
}

// conflictingStore fails the first n saves with a version conflict.
type conflictingStore struct {
	*storage.MemoryBatchStore
	mu        sync.Mutex
	conflicts int
	saves     int
}

func (c *conflictingStore) SaveReservation(ctx context.Context, res *domain.Reservation, batches []*domain.Batch) error {
	c.mu.Lock()
	c.saves++
	if c.conflicts > 0 {
		c.conflicts--
		c.mu.Unlock()
		return domain.ErrReservationConflict
	}
	c.mu.Unlock()
	return c.MemoryBatchStore.SaveReservation(ctx, res, batches)
}

func TestReserve_RetriesVersionConflicts(t *testing.T) {
	_, mem := newInventoryFixture(t)
	store := &conflictingStore{MemoryBatchStore: mem, conflicts: 2}
	svc := NewInventoryService(store, lock.NewLocalLocker(), allocation.NewDefaultRegistry(),
		InventoryConfig{MaxAttempts: 3, RetryBackoff: 1}, zap.NewNop(), metrics.New("test"))

	res, err := svc.Reserve(context.Background(), ReserveCommand{ProductID: 1, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, res.BatchIDs())
	assert.Equal(t, 3, store.saves)
}

func TestReserve_ConflictsExhausted(t *testing.T) {
	_, mem := newInventoryFixture(t)
	store := &conflictingStore{MemoryBatchStore: mem, conflicts: 10}
	svc := NewInventoryService(store, lock.NewLocalLocker(), allocation.NewDefaultRegistry(),
		InventoryConfig{MaxAttempts: 3, RetryBackoff: 1}, zap.NewNop(), metrics.New("test"))

	_, err := svc.Reserve(context.Background(), ReserveCommand{ProductID: 1, Quantity: 5})
	assert.ErrorIs(t, err, domain.ErrReservationConflict)
	assert.Equal(t, 3, store.saves)

	result, err := svc.UpdateInventory(context.Background(), ReserveCommand{ProductID: 1, Quantity: 5})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrReservationConflict)
}

func TestReserve_UsesConfiguredStrategy(t *testing.T) {
	store := storage.NewMemoryBatchStore()
	require.NoError(t, store.SeedBatches(context.Background(), milkBatches()))
	svc := NewInventoryService(store, lock.NewLocalLocker(), allocation.NewDefaultRegistry(),
		InventoryConfig{Strategy: allocation.TypeLIFO}, zap.NewNop(), metrics.New("test"))

	res, err := svc.Reserve(context.Background(), ReserveCommand{ProductID: 1, Quantity: 40})
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 1}, res.BatchIDs())
}

func TestUpdateInventory(t *testing.T) {
	svc, _ := newInventoryFixture(t)
	ctx := context.Background()

	ok, err := svc.UpdateInventory(ctx, ReserveCommand{ProductID: 1, Quantity: 60})
	require.NoError(t, err)
	assert.True(t, ok.Success)
	assert.Equal(t, MessageInventoryUpdated, ok.Message)
	assert.Equal(t, []int64{1, 2}, ok.ReservedBatchIDs)
	assert.NotEmpty(t, ok.ReservationID)

	short, err := svc.UpdateInventory(ctx, ReserveCommand{ProductID: 1, Quantity: 100})
	require.NoError(t, err)
	assert.False(t, short.Success)
	assert.Equal(t, domain.CodeInsufficientInventory, short.Code)
	assert.Contains(t, short.Message, "Insufficient inventory")

	missing, err := svc.UpdateInventory(ctx, ReserveCommand{ProductID: 42, Quantity: 1})
	require.NoError(t, err)
	assert.False(t, missing.Success)
	assert.Equal(t, domain.CodeNotFound, missing.Code)
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("redis: connection refused")
}

func TestUpdateInventory_InfrastructureFailureIsError(t *testing.T) {
	_, store := newInventoryFixture(t)
	svc := NewInventoryService(store, failingLocker{}, allocation.NewDefaultRegistry(),
		InventoryConfig{}, zap.NewNop(), metrics.New("test"))

	result, err := svc.UpdateInventory(context.Background(), ReserveCommand{ProductID: 1, Quantity: 1})
	assert.Nil(t, result)
	assert.Error(t, err)
}

// stalledLocker never grants the lock.
type stalledLocker struct{}

func (stalledLocker) Lock(ctx context.Context, _ string) (func(), error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// stalledStore blocks batch reads, or only saves when saves is set, until the
// caller's context ends.
type stalledStore struct {
	*storage.MemoryBatchStore
	saves bool
}

func (s *stalledStore) FindByProductID(ctx context.Context, productID int64) ([]*domain.Batch, error) {
	if s.saves {
		return s.MemoryBatchStore.FindByProductID(ctx, productID)
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *stalledStore) SaveReservation(ctx context.Context, _ *domain.Reservation, _ []*domain.Batch) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestReserve_LockWaitIsBounded(t *testing.T) {
	_, store := newInventoryFixture(t)
	svc := NewInventoryService(store, stalledLocker{}, allocation.NewDefaultRegistry(),
		InventoryConfig{LockTimeout: 50 * time.Millisecond}, zap.NewNop(), metrics.New("test"))

	start := time.Now()
	_, err := svc.Reserve(context.Background(), ReserveCommand{ProductID: 1, Quantity: 5})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	err = svc.Release(context.Background(), ReleaseCommand{ProductID: 1, ReservationID: "r-1"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestReserve_StoreCallsAreBounded(t *testing.T) {
	for _, tc := range []struct {
		name  string
		saves bool
	}{
		{name: "batch read", saves: false},
		{name: "reservation save", saves: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, mem := newInventoryFixture(t)
			store := &stalledStore{MemoryBatchStore: mem, saves: tc.saves}
			svc := NewInventoryService(store, lock.NewLocalLocker(), allocation.NewDefaultRegistry(),
				InventoryConfig{StoreTimeout: 50 * time.Millisecond}, zap.NewNop(), metrics.New("test"))

			start := time.Now()
			result, err := svc.UpdateInventory(context.Background(), ReserveCommand{ProductID: 1, Quantity: 5})
			assert.Nil(t, result)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
			assert.Less(t, time.Since(start), time.Second)

			inv, err := mem.FindByProductID(context.Background(), 1)
			require.NoError(t, err)
			assert.Equal(t, 50, inv[0].Quantity)
		})
	}
}

func TestGetInventory_StoreReadIsBounded(t *testing.T) {
	_, mem := newInventoryFixture(t)
	svc := NewInventoryService(&stalledStore{MemoryBatchStore: mem}, lock.NewLocalLocker(),
		allocation.NewDefaultRegistry(), InventoryConfig{StoreTimeout: 50 * time.Millisecond},
		zap.NewNop(), metrics.New("test"))

	start := time.Now()
	_, err := svc.GetInventory(context.Background(), 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRelease(t *testing.T) {
	svc, _ := newInventoryFixture(t)
	ctx := context.Background()

	res, err := svc.Reserve(ctx, ReserveCommand{ProductID: 1, Quantity: 60})
	require.NoError(t, err)

	cmd := ReleaseCommand{ProductID: 1, ReservationID: res.ID, BatchIDs: []int64{1, 2}}
	require.NoError(t, svc.Release(ctx, cmd))
	assert.Equal(t, []int{50, 30}, quantitiesOf(t, svc, 1))

	require.NoError(t, svc.Release(ctx, cmd), "second release is a no-op")
	assert.Equal(t, []int{50, 30}, quantitiesOf(t, svc, 1))
}

func TestRelease_Rejections(t *testing.T) {
	svc, _ := newInventoryFixture(t)
	ctx := context.Background()

	res, err := svc.Reserve(ctx, ReserveCommand{ProductID: 1, Quantity: 60})
	require.NoError(t, err)

	err = svc.Release(ctx, ReleaseCommand{ProductID: 1, ReservationID: "missing"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	err = svc.Release(ctx, ReleaseCommand{ProductID: 2, ReservationID: res.ID})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	err = svc.Release(ctx, ReleaseCommand{ProductID: 1, ReservationID: res.ID, BatchIDs: []int64{2, 1}})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	err = svc.Release(ctx, ReleaseCommand{ProductID: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	assert.Equal(t, []int{0, 20}, quantitiesOf(t, svc, 1))
}
