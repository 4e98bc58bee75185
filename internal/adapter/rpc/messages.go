package rpc

import (
	"fmt"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

// The same messages are used for the HTTP and gRPC inventory APIs.

type GetInventoryRequest struct {
	ProductID int64 `json:"productId"`
}

type BatchMessage struct {
	BatchID    int64  `json:"batchId"`
	Quantity   int    `json:"quantity"`
	ExpiryDate string `json:"expiryDate"`
}

type InventoryMessage struct {
	ProductID   int64          `json:"productId"`
	ProductName string         `json:"productName"`
	Batches     []BatchMessage `json:"batches"`
}

type UpdateInventoryRequest struct {
	ProductID      int64  `json:"productId"`
	Quantity       int    `json:"quantity"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

type UpdateInventoryResponse struct {
	Success              bool    `json:"success"`
	Code                 string  `json:"code,omitempty"`
	Message              string  `json:"message"`
	ProductID            int64   `json:"productId,omitempty"`
	Quantity             int     `json:"quantity,omitempty"`
	ReservationID        string  `json:"reservationId,omitempty"`
	ReservedFromBatchIDs []int64 `json:"reservedFromBatchIds,omitempty"`
}

type ReleaseInventoryRequest struct {
	ProductID     int64   `json:"productId"`
	ReservationID string  `json:"reservationId"`
	BatchIDs      []int64 `json:"batchIds,omitempty"`
}

type ReleaseInventoryResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ErrorResponse struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func NewInventoryMessage(inv *domain.Inventory) *InventoryMessage {
	msg := &InventoryMessage{
		ProductID:   inv.ProductID,
		ProductName: inv.ProductName,
		Batches:     make([]BatchMessage, 0, len(inv.Batches)),
	}
	for _, b := range inv.Batches {
		msg.Batches = append(msg.Batches, BatchMessage{
			BatchID:    b.ID,
			Quantity:   b.Quantity,
			ExpiryDate: b.ExpiryDate.Format(domain.DateLayout),
		})
	}
	return msg
}

func (m *InventoryMessage) ToDomain() (*domain.Inventory, error) {
	inv := &domain.Inventory{
		ProductID:   m.ProductID,
		ProductName: m.ProductName,
		Batches:     make([]domain.Batch, 0, len(m.Batches)),
	}
	for _, b := range m.Batches {
		expiry, err := domain.ParseDate(b.ExpiryDate)
		if err != nil {
			return nil, fmt.Errorf("batch %d expiry %q: %w", b.BatchID, b.ExpiryDate, err)
		}
		inv.Batches = append(inv.Batches, domain.Batch{
			ID:          b.BatchID,
			ProductID:   m.ProductID,
			ProductName: m.ProductName,
			Quantity:    b.Quantity,
			ExpiryDate:  expiry,
		})
	}
	return inv, nil
}
