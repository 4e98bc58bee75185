package allocation

import (
	"sort"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

const TypeLIFO = "LIFO"

// LIFO draws from the latest expiring batch first, ties by descending id.
type LIFO struct{}

func NewLIFO() *LIFO {
	return &LIFO{}
}

func (*LIFO) Type() string {
	return TypeLIFO
}

func (*LIFO) Reserve(batches []*domain.Batch, quantity int) ([]domain.Allocation, error) {
	return reserve(batches, quantity, latestFirst)
}

func latestFirst(batches []*domain.Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.After(b.ExpiryDate)
		}
		return a.ID > b.ID
	})
}
