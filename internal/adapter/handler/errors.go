package handler

import (
	"errors"
	"net/http"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

// inventoryStatus maps an inventory service error to an HTTP status.
func inventoryStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientInventory),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrReservationConflict), errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// orderStatus maps a placement error to an HTTP status. An unknown product is
// a caller mistake on this endpoint, so it is a 400 rather than a 404.
func orderStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound),
		errors.Is(err, domain.ErrInsufficientInventory),
		errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrDuplicateRequest), errors.Is(err, domain.ErrReservationConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
