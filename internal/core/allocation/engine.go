package allocation

import (
	"github.com/rl1809/stock-reservation/internal/core/domain"
)

// Engine draws a quantity from a product's batches. On success the batches
// passed in are decremented and the returned allocations sum to quantity. On
// failure no batch is modified.
type Engine interface {
	Type() string
	Reserve(batches []*domain.Batch, quantity int) ([]domain.Allocation, error)
}

type orderFunc func(batches []*domain.Batch)

// reserve plans against the batches in the order produced by sortFn, then
// applies the plan only when it covers the full quantity.
func reserve(batches []*domain.Batch, quantity int, sortFn orderFunc) ([]domain.Allocation, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	view := make([]*domain.Batch, 0, len(batches))
	for _, b := range batches {
		if b != nil {
			view = append(view, b)
		}
	}
	sortFn(view)

	plan := make([]domain.Allocation, 0, len(view))
	draws := make([]*domain.Batch, 0, len(view))
	remaining := quantity
	for _, b := range view {
		if remaining == 0 {
			break
		}
		if b.Quantity <= 0 {
			continue
		}
		take := min(b.Quantity, remaining)
		plan = append(plan, domain.Allocation{BatchID: b.ID, Quantity: take})
		draws = append(draws, b)
		remaining -= take
	}

	if remaining > 0 {
		var productID int64
		if len(view) > 0 {
			productID = view[0].ProductID
		}
		return nil, &domain.InsufficientInventoryError{
			ProductID: productID,
			Available: quantity - remaining,
			Requested: quantity,
		}
	}

	for i, b := range draws {
		b.Quantity -= plan[i].Quantity
	}
	return plan, nil
}
