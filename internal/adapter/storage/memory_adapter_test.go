package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

func seedMilk(t *testing.T, store interface {
	SeedBatches(context.Context, []*domain.Batch) error
}) {
	t.Helper()
	jan, _ := domain.ParseDate("2026-01-01")
	feb, _ := domain.ParseDate("2026-02-01")
	require.NoError(t, store.SeedBatches(context.Background(), []*domain.Batch{
		{ID: 2, ProductID: 1, ProductName: "Milk", Quantity: 30, ExpiryDate: feb},
		{ID: 1, ProductID: 1, ProductName: "Milk", Quantity: 50, ExpiryDate: jan},
	}))
}

func TestMemoryBatchStore_FindReturnsSortedCopies(t *testing.T) {
	store := NewMemoryBatchStore()
	seedMilk(t, store)
	ctx := context.Background()

	batches, err := store.FindByProductID(ctx, 1)
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, int64(1), batches[0].ID)

	batches[0].Quantity = 0
	again, err := store.FindByProductID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 50, again[0].Quantity)

	none, err := store.FindByProductID(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryBatchStore_SaveAndRelease(t *testing.T) {
	store := NewMemoryBatchStore()
	seedMilk(t, store)
	ctx := context.Background()

	batches, _ := store.FindByProductID(ctx, 1)
	batches[0].Quantity = 0
	batches[1].Quantity = 20
	res := domain.NewReservation("r-1", 1, 60, "k-1", []domain.Allocation{{BatchID: 1, Quantity: 50}, {BatchID: 2, Quantity: 10}})
	require.NoError(t, store.SaveReservation(ctx, res, batches))

	after, _ := store.FindByProductID(ctx, 1)
	assert.Equal(t, 0, after[0].Quantity)
	assert.Equal(t, 20, after[1].Quantity)
	assert.Equal(t, int64(1), after[0].Version)

	byKey, err := store.FindReservationByKey(ctx, "k-1")
	require.NoError(t, err)
	assert.Equal(t, "r-1", byKey.ID)

	require.NoError(t, store.ReleaseReservation(ctx, "r-1"))
	require.NoError(t, store.ReleaseReservation(ctx, "r-1"))

	restored, _ := store.FindByProductID(ctx, 1)
	assert.Equal(t, 50, restored[0].Quantity)
	assert.Equal(t, 30, restored[1].Quantity)

	got, err := store.FindReservation(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusReleased, got.Status)

	assert.ErrorIs(t, store.ReleaseReservation(ctx, "missing"), domain.ErrNotFound)
}

func TestMemoryBatchStore_StaleVersionConflicts(t *testing.T) {
	store := NewMemoryBatchStore()
	seedMilk(t, store)
	ctx := context.Background()

	first, _ := store.FindByProductID(ctx, 1)
	second, _ := store.FindByProductID(ctx, 1)

	first[0].Quantity = 40
	require.NoError(t, store.SaveReservation(ctx,
		domain.NewReservation("r-1", 1, 10, "", []domain.Allocation{{BatchID: 1, Quantity: 10}}), first[:1]))

	second[0].Quantity = 45
	err := store.SaveReservation(ctx,
		domain.NewReservation("r-2", 1, 5, "", []domain.Allocation{{BatchID: 1, Quantity: 5}}), second[:1])
	assert.ErrorIs(t, err, domain.ErrReservationConflict)

	_, err = store.FindReservation(ctx, "r-2")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	after, _ := store.FindByProductID(ctx, 1)
	assert.Equal(t, 40, after[0].Quantity)
}

func TestMemoryOrderStore(t *testing.T) {
	store := NewMemoryOrderStore()
	ctx := context.Background()

	order := domain.NewPlacedOrder(1, "Milk", 60, "r-1", []int64{1, 2}, "key-1")
	require.NoError(t, store.Create(ctx, order))
	assert.Equal(t, int64(1), order.ID)

	got, err := store.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, got.ReservedBatchIDs)
	assert.Equal(t, domain.OrderStatusPlaced, got.Status)

	byKey, err := store.FindByIdempotencyKey(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, byKey.ID)

	dup := domain.NewPlacedOrder(1, "Milk", 60, "r-2", []int64{1}, "key-1")
	assert.ErrorIs(t, store.Create(ctx, dup), domain.ErrDuplicateRequest)

	_, err = store.FindByID(ctx, 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryIdempotencyStore_Expiry(t *testing.T) {
	store := NewMemoryIdempotencyStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	ctx := context.Background()

	ok, _ := store.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)
	ok, _ = store.Claim(ctx, "k", time.Minute)
	assert.False(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = store.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)

	require.NoError(t, store.Release(ctx, "k"))
	ok, _ = store.Claim(ctx, "k", time.Minute)
	assert.True(t, ok)
}
