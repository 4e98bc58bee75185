package domain

import "time"

type OrderStatus string

const (
	OrderStatusPlaced OrderStatus = "PLACED"
)

type Order struct {
	ID               int64
	ProductID        int64
	ProductName      string
	Quantity         int
	Status           OrderStatus
	CreatedAt        time.Time
	ReservationID    string
	ReservedBatchIDs []int64
	IdempotencyKey   string
}

func NewPlacedOrder(productID int64, productName string, quantity int, reservationID string, batchIDs []int64, idempotencyKey string) *Order {
	ids := make([]int64, len(batchIDs))
	copy(ids, batchIDs)

	return &Order{
		ProductID:        productID,
		ProductName:      productName,
		Quantity:         quantity,
		Status:           OrderStatusPlaced,
		CreatedAt:        Today(),
		ReservationID:    reservationID,
		ReservedBatchIDs: ids,
		IdempotencyKey:   idempotencyKey,
	}
}
