package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInventory(t *testing.T) {
	jan, _ := ParseDate("2026-01-01")
	feb, _ := ParseDate("2026-02-01")

	assert.Nil(t, NewInventory(1, nil))

	inv := NewInventory(1, []*Batch{
		{ID: 5, ProductID: 1, ProductName: "Milk", Quantity: 30, ExpiryDate: feb},
		{ID: 9, ProductID: 1, ProductName: "Milk", Quantity: 10, ExpiryDate: jan},
		{ID: 3, ProductID: 1, ProductName: "Milk", Quantity: 40, ExpiryDate: jan},
	})
	require.NotNil(t, inv)
	assert.Equal(t, "Milk", inv.ProductName)
	assert.Equal(t, 80, inv.TotalQuantity())

	ids := make([]int64, 0, len(inv.Batches))
	for _, b := range inv.Batches {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []int64{3, 9, 5}, ids)
}

func TestErrorCodesRoundTrip(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{NotFoundError("Product not found with ID: %d", 7), CodeNotFound},
		{&InsufficientInventoryError{Available: 1, Requested: 2}, CodeInsufficientInventory},
		{ErrInvalidQuantity, CodeInvalidRequest},
		{fmt.Errorf("retry: %w", ErrReservationConflict), CodeReservationConflict},
		{ErrDuplicateRequest, CodeDuplicateRequest},
		{ErrUnavailable, CodeUnavailable},
		{errors.New("boom"), CodeInternal},
	}
	for _, tc := range cases {
		code := ErrorCode(tc.err)
		assert.Equal(t, tc.code, code, tc.err.Error())
		if code == CodeInternal {
			continue
		}

		rebuilt := ErrorFromCode(code, tc.err.Error())
		assert.Equal(t, tc.err.Error(), rebuilt.Error())
		assert.Equal(t, code, ErrorCode(rebuilt))
	}

	assert.Equal(t, "Product not found with ID: 7", NotFoundError("Product not found with ID: %d", 7).Error())
	assert.Same(t, ErrNotFound, ErrorFromCode(CodeNotFound, ""))
}

func TestPersistenceFailureError(t *testing.T) {
	cause := errors.New("deadlock")
	err := error(&PersistenceFailureError{ReservationID: "r-1", Cause: cause, Compensated: true})

	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "reservation r-1 released")
}

func TestPlacementTransitions(t *testing.T) {
	p := NewPlacement(1, 10, "")
	assert.Equal(t, PlacementInitiated, p.State)

	require.NoError(t, p.Advance(PlacementChecked))
	assert.Error(t, p.Advance(PlacementCommitted), "must reserve before commit")
	require.NoError(t, p.Advance(PlacementReserved))

	p.Fail(errors.New("save failed"))
	assert.Equal(t, PlacementFailed, p.State)
	require.NoError(t, p.Advance(PlacementCompensated))
	assert.True(t, p.State.IsTerminal())

	p.Fail(errors.New("late"))
	assert.Equal(t, PlacementCompensated, p.State)
	assert.Len(t, p.Steps, 5)
}

func TestReservationMatchesBatches(t *testing.T) {
	r := NewReservation("r-1", 1, 60, "", []Allocation{{BatchID: 1, Quantity: 50}, {BatchID: 2, Quantity: 10}})

	assert.True(t, r.MatchesBatches(nil))
	assert.True(t, r.MatchesBatches([]int64{1, 2}))
	assert.False(t, r.MatchesBatches([]int64{2, 1}))
	assert.False(t, r.MatchesBatches([]int64{1}))
}
