package domain

import "time"

type ReservationStatus string

const (
	ReservationStatusReserved ReservationStatus = "RESERVED"
	ReservationStatusReleased ReservationStatus = "RELEASED"
)

// Allocation is the amount drawn from one batch.
type Allocation struct {
	BatchID  int64
	Quantity int
}

// BatchIDs returns the batch ids of allocs in draw order.
func BatchIDs(allocs []Allocation) []int64 {
	ids := make([]int64, 0, len(allocs))
	for _, a := range allocs {
		ids = append(ids, a.BatchID)
	}
	return ids
}

type Reservation struct {
	ID             string
	ProductID      int64
	Quantity       int
	IdempotencyKey string
	Status         ReservationStatus
	Allocations    []Allocation
	CreatedAt      time.Time
}

func NewReservation(id string, productID int64, quantity int, idempotencyKey string, allocs []Allocation) *Reservation {
	return &Reservation{
		ID:             id,
		ProductID:      productID,
		Quantity:       quantity,
		IdempotencyKey: idempotencyKey,
		Status:         ReservationStatusReserved,
		Allocations:    allocs,
		CreatedAt:      time.Now().UTC(),
	}
}

func (r *Reservation) BatchIDs() []int64 {
	return BatchIDs(r.Allocations)
}

// MatchesBatches reports whether ids is exactly the reservation's batch ids in
// draw order. An empty ids always matches.
func (r *Reservation) MatchesBatches(ids []int64) bool {
	if len(ids) == 0 {
		return true
	}
	if len(ids) != len(r.Allocations) {
		return false
	}
	for i, a := range r.Allocations {
		if a.BatchID != ids[i] {
			return false
		}
	}
	return true
}
