package domain

import (
	"fmt"
	"time"
)

// PlacementState is the progress of one order placement attempt.
type PlacementState string

const (
	PlacementInitiated   PlacementState = "INITIATED"
	PlacementChecked     PlacementState = "CHECKED"
	PlacementReserved    PlacementState = "RESERVED"
	PlacementCommitted   PlacementState = "COMMITTED"
	PlacementFailed      PlacementState = "FAILED"
	PlacementCompensated PlacementState = "COMPENSATED"
)

var placementTransitions = map[PlacementState][]PlacementState{
	PlacementInitiated: {PlacementChecked, PlacementFailed},
	PlacementChecked:   {PlacementReserved, PlacementFailed},
	PlacementReserved:  {PlacementCommitted, PlacementFailed},
	PlacementFailed:    {PlacementCompensated},
}

func (s PlacementState) CanTransitionTo(next PlacementState) bool {
	for _, allowed := range placementTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s PlacementState) IsTerminal() bool {
	return s == PlacementCommitted || s == PlacementCompensated
}

// PlacementStep records one transition of a placement.
type PlacementStep struct {
	State PlacementState
	At    time.Time
	Err   error
}

type Placement struct {
	ProductID      int64
	Quantity       int
	IdempotencyKey string
	State          PlacementState
	Steps          []PlacementStep

	ProductName   string
	Available     int
	ReservationID string
	BatchIDs      []int64
}

func NewPlacement(productID int64, quantity int, idempotencyKey string) *Placement {
	p := &Placement{
		ProductID:      productID,
		Quantity:       quantity,
		IdempotencyKey: idempotencyKey,
		State:          PlacementInitiated,
	}
	p.Steps = append(p.Steps, PlacementStep{State: PlacementInitiated, At: time.Now()})
	return p
}

// Advance moves the placement to next. It returns an error for a transition the
// state machine does not allow; the placement is left unchanged in that case.
func (p *Placement) Advance(next PlacementState) error {
	if !p.State.CanTransitionTo(next) {
		return fmt.Errorf("placement cannot move from %s to %s", p.State, next)
	}
	p.State = next
	p.Steps = append(p.Steps, PlacementStep{State: next, At: time.Now()})
	return nil
}

// Fail moves the placement to FAILED and records the cause.
func (p *Placement) Fail(err error) {
	if p.State == PlacementFailed || p.State.IsTerminal() {
		return
	}
	p.State = PlacementFailed
	p.Steps = append(p.Steps, PlacementStep{State: PlacementFailed, At: time.Now(), Err: err})
}
