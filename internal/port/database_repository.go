package port

import (
	"context"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

type BatchRepository interface {
	// FindByProductID returns every batch of a product, ordered by expiry then id
	FindByProductID(ctx context.Context, productID int64) ([]*domain.Batch, error)

	// SaveReservation writes the drawn batches and the reservation in one transaction.
	// Each batch update is guarded by its version; a mismatch returns domain.ErrReservationConflict
	SaveReservation(ctx context.Context, reservation *domain.Reservation, batches []*domain.Batch) error

	// FindReservation returns domain.ErrNotFound when the reservation does not exist
	FindReservation(ctx context.Context, reservationID string) (*domain.Reservation, error)

	// FindReservationByKey returns domain.ErrNotFound when no reservation carries the key
	FindReservationByKey(ctx context.Context, idempotencyKey string) (*domain.Reservation, error)

	// ReleaseReservation adds every allocation back to its batch and marks the reservation released
	ReleaseReservation(ctx context.Context, reservationID string) error

	// SeedBatches inserts development batches
	SeedBatches(ctx context.Context, batches []*domain.Batch) error
}

type OrderRepository interface {
	// Create assigns the order id
	Create(ctx context.Context, order *domain.Order) error

	FindByID(ctx context.Context, id int64) (*domain.Order, error)

	// FindByIdempotencyKey returns domain.ErrNotFound when no order carries the key
	FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error)
}
