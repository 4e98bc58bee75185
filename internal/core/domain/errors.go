package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrUnavailable           = errors.New("inventory service unavailable")
	ErrReservationConflict   = errors.New("reservation conflict")
	ErrPersistenceFailure    = errors.New("order persistence failed")
	ErrInvalidQuantity       = errors.New("quantity must be positive")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrDuplicateRequest      = errors.New("duplicate request")
)

// Wire codes shared by the inventory transports and clients.
const (
	CodeNotFound              = "NOT_FOUND"
	CodeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeReservationConflict   = "RESERVATION_CONFLICT"
	CodeDuplicateRequest      = "DUPLICATE_REQUEST"
	CodeUnavailable           = "SERVICE_UNAVAILABLE"
	CodeInternal              = "INTERNAL_ERROR"
)

type InsufficientInventoryError struct {
	ProductID int64
	Available int
	Requested int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("Insufficient inventory. Available: %d, Requested: %d", e.Available, e.Requested)
}

func (e *InsufficientInventoryError) Is(target error) bool {
	return target == ErrInsufficientInventory
}

// PersistenceFailureError is returned when an order could not be stored after
// its stock was reserved. Compensated tells whether the reservation was
// released again.
type PersistenceFailureError struct {
	ReservationID   string
	Cause           error
	Compensated     bool
	CompensationErr error
}

func (e *PersistenceFailureError) Error() string {
	if e.Compensated {
		return fmt.Sprintf("failed to save order, reservation %s released: %v", e.ReservationID, e.Cause)
	}
	return fmt.Sprintf("failed to save order, reservation %s NOT released (%v): %v",
		e.ReservationID, e.CompensationErr, e.Cause)
}

func (e *PersistenceFailureError) Is(target error) bool {
	return target == ErrPersistenceFailure
}

func (e *PersistenceFailureError) Unwrap() error {
	return e.Cause
}

// kindError carries a caller-facing message and matches its sentinel kind.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func NotFoundError(format string, args ...any) error {
	return &kindError{msg: fmt.Sprintf(format, args...), kind: ErrNotFound}
}

// ErrorCode maps err to its wire code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInsufficientInventory):
		return CodeInsufficientInventory
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrReservationConflict):
		return CodeReservationConflict
	case errors.Is(err, ErrDuplicateRequest):
		return CodeDuplicateRequest
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// ErrorFromCode rebuilds a domain error from a wire code and message.
func ErrorFromCode(code, message string) error {
	var sentinel error
	switch code {
	case CodeNotFound:
		sentinel = ErrNotFound
	case CodeInsufficientInventory:
		sentinel = ErrInsufficientInventory
	case CodeInvalidRequest:
		sentinel = ErrInvalidRequest
	case CodeReservationConflict:
		sentinel = ErrReservationConflict
	case CodeDuplicateRequest:
		sentinel = ErrDuplicateRequest
	case CodeUnavailable:
		sentinel = ErrUnavailable
	default:
		return errors.New(message)
	}
	if message == "" {
		return sentinel
	}
	return &kindError{msg: message, kind: sentinel}
}
