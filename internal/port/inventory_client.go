package port

import (
	"context"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

type ReserveResult struct {
	Success          bool
	Code             string
	Message          string
	ReservationID    string
	ReservedBatchIDs []int64
}

// InventoryClient is the order service's view of the inventory service.
// Transport failures are reported as domain.ErrUnavailable.
type InventoryClient interface {
	CheckInventory(ctx context.Context, productID int64) (*domain.Inventory, error)

	// ReserveInventory is only retried when idempotencyKey is set
	ReserveInventory(ctx context.Context, productID int64, quantity int, idempotencyKey string) (*ReserveResult, error)

	ReleaseInventory(ctx context.Context, productID int64, reservationID string, batchIDs []int64) error
}
