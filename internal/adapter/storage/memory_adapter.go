package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

// MemoryBatchStore keeps batches and reservations in process. Reads return
// copies so callers can mutate them freely until SaveReservation.
type MemoryBatchStore struct {
	mu           sync.Mutex
	batches      map[int64]*domain.Batch
	reservations map[string]*domain.Reservation
	byKey        map[string]string
	nextID       int64
}

func NewMemoryBatchStore() *MemoryBatchStore {
	return &MemoryBatchStore{
		batches:      make(map[int64]*domain.Batch),
		reservations: make(map[string]*domain.Reservation),
		byKey:        make(map[string]string),
	}
}

func (m *MemoryBatchStore) FindByProductID(ctx context.Context, productID int64) ([]*domain.Batch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Batch
	for _, b := range m.batches {
		if b.ProductID == productID {
			out = append(out, b.Clone())
		}
	}
	domain.SortByExpiry(out)
	return out, nil
}

func (m *MemoryBatchStore) SaveReservation(ctx context.Context, res *domain.Reservation, batches []*domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if res.IdempotencyKey != "" {
		if _, exists := m.byKey[res.IdempotencyKey]; exists {
			return fmt.Errorf("idempotency key %q already used: %w", res.IdempotencyKey, domain.ErrReservationConflict)
		}
	}
	for _, b := range batches {
		stored, ok := m.batches[b.ID]
		if !ok {
			return domain.NotFoundError("batch %d not found", b.ID)
		}
		if stored.Version != b.Version {
			return fmt.Errorf("batch %d version %d, expected %d: %w", b.ID, stored.Version, b.Version, domain.ErrReservationConflict)
		}
		if b.Quantity < 0 {
			return fmt.Errorf("batch %d quantity would be negative: %w", b.ID, domain.ErrInvalidQuantity)
		}
	}

	for _, b := range batches {
		stored := m.batches[b.ID]
		stored.Quantity = b.Quantity
		stored.Version++
	}
	m.reservations[res.ID] = cloneReservation(res)
	if res.IdempotencyKey != "" {
		m.byKey[res.IdempotencyKey] = res.ID
	}
	return nil
}

func (m *MemoryBatchStore) FindReservation(ctx context.Context, reservationID string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[reservationID]
	if !ok {
		return nil, domain.NotFoundError("Reservation not found with ID: %s", reservationID)
	}
	return cloneReservation(res), nil
}

func (m *MemoryBatchStore) FindReservationByKey(ctx context.Context, key string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[key]
	if !ok {
		return nil, domain.NotFoundError("no reservation for key %s", key)
	}
	return cloneReservation(m.reservations[id]), nil
}

func (m *MemoryBatchStore) ReleaseReservation(ctx context.Context, reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, ok := m.reservations[reservationID]
	if !ok {
		return domain.NotFoundError("Reservation not found with ID: %s", reservationID)
	}
	if res.Status == domain.ReservationStatusReleased {
		return nil
	}
	for _, a := range res.Allocations {
		b, ok := m.batches[a.BatchID]
		if !ok {
			return domain.NotFoundError("batch %d not found", a.BatchID)
		}
		b.Quantity += a.Quantity
		b.Version++
	}
	res.Status = domain.ReservationStatusReleased
	return nil
}

func (m *MemoryBatchStore) SeedBatches(ctx context.Context, batches []*domain.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range batches {
		if b.Quantity < 0 {
			return fmt.Errorf("batch %d: %w", b.ID, domain.ErrInvalidQuantity)
		}
		c := b.Clone()
		if c.ID == 0 {
			m.nextID++
			c.ID = m.nextID
		} else if c.ID > m.nextID {
			m.nextID = c.ID
		}
		m.batches[c.ID] = c
	}
	return nil
}

func cloneReservation(r *domain.Reservation) *domain.Reservation {
	c := *r
	c.Allocations = append([]domain.Allocation(nil), r.Allocations...)
	return &c
}

type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[int64]*domain.Order
	byKey  map[string]int64
	nextID int64
}

func NewMemoryOrderStore() *MemoryOrderStore {
	return &MemoryOrderStore{
		orders: make(map[int64]*domain.Order),
		byKey:  make(map[string]int64),
	}
}

func (m *MemoryOrderStore) Create(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if order.IdempotencyKey != "" {
		if _, exists := m.byKey[order.IdempotencyKey]; exists {
			return fmt.Errorf("order with key %q exists: %w", order.IdempotencyKey, domain.ErrDuplicateRequest)
		}
	}

	m.nextID++
	order.ID = m.nextID
	m.orders[order.ID] = cloneOrder(order)
	if order.IdempotencyKey != "" {
		m.byKey[order.IdempotencyKey] = order.ID
	}
	return nil
}

func (m *MemoryOrderStore) FindByID(ctx context.Context, id int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, domain.NotFoundError("Order not found with ID: %d", id)
	}
	return cloneOrder(o), nil
}

func (m *MemoryOrderStore) FindByIdempotencyKey(ctx context.Context, key string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[key]
	if !ok {
		return nil, domain.NotFoundError("no order for key %s", key)
	}
	return cloneOrder(m.orders[id]), nil
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.ReservedBatchIDs = append([]int64(nil), o.ReservedBatchIDs...)
	return &c
}

// MemoryIdempotencyStore is the single-process counterpart of the Redis
// claim store.
type MemoryIdempotencyStore struct {
	mu     sync.Mutex
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{claims: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryIdempotencyStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, ok := m.claims[key]; ok && now.Before(expires) {
		return false, nil
	}
	m.claims[key] = now.Add(ttl)
	return true, nil
}

func (m *MemoryIdempotencyStore) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	return nil
}
