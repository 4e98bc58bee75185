package domain

import (
	"sort"
	"time"
)

// DateLayout is the wire and storage format for expiry and order dates.
const DateLayout = "2006-01-02"

type Batch struct {
	ID          int64
	ProductID   int64
	ProductName string
	Quantity    int
	ExpiryDate  time.Time
	Version     int64 // optimistic locking
}

func (b *Batch) Clone() *Batch {
	c := *b
	return &c
}

// Inventory is a read snapshot of every batch of one product.
type Inventory struct {
	ProductID   int64
	ProductName string
	Batches     []Batch
}

func (inv *Inventory) TotalQuantity() int {
	total := 0
	for _, b := range inv.Batches {
		total += b.Quantity
	}
	return total
}

// NewInventory builds a snapshot from batches of a single product. Returns nil
// when there are no batches.
func NewInventory(productID int64, batches []*Batch) *Inventory {
	if len(batches) == 0 {
		return nil
	}

	sorted := make([]*Batch, len(batches))
	copy(sorted, batches)
	SortByExpiry(sorted)

	inv := &Inventory{
		ProductID:   productID,
		ProductName: sorted[0].ProductName,
		Batches:     make([]Batch, 0, len(sorted)),
	}
	for _, b := range sorted {
		inv.Batches = append(inv.Batches, *b)
	}
	return inv
}

// SortByExpiry orders batches by expiry date ascending. Batches expiring on
// the same day are ordered by ascending batch id.
func SortByExpiry(batches []*Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		return a.ID < b.ID
	})
}

// ParseDate parses a yyyy-mm-dd date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// Today returns the current calendar date at midnight UTC.
func Today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
