package allocation

import "github.com/rl1809/stock-reservation/internal/core/domain"

const TypeFIFO = "FIFO"

// FIFO draws from the earliest expiring batch first. Batches expiring on the
// same day are drawn in ascending batch id order.
type FIFO struct{}

func NewFIFO() *FIFO {
	return &FIFO{}
}

func (*FIFO) Type() string {
	return TypeFIFO
}

func (*FIFO) Reserve(batches []*domain.Batch, quantity int) ([]domain.Allocation, error) {
	return reserve(batches, quantity, domain.SortByExpiry)
}
