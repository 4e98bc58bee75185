package rpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/stock-reservation/internal/core/domain"
)

// ToStatus converts a domain error into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInsufficientInventory):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrInvalidQuantity), errors.Is(err, domain.ErrInvalidRequest):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrReservationConflict):
		code = codes.Aborted
	case errors.Is(err, domain.ErrDuplicateRequest):
		code = codes.AlreadyExists
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// FromStatus converts a gRPC error back into a domain error. Codes that say
// nothing about the request itself become domain.ErrUnavailable.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}

	var code string
	switch st.Code() {
	case codes.NotFound:
		code = domain.CodeNotFound
	case codes.FailedPrecondition:
		code = domain.CodeInsufficientInventory
	case codes.InvalidArgument:
		code = domain.CodeInvalidRequest
	case codes.Aborted:
		code = domain.CodeReservationConflict
	case codes.AlreadyExists:
		code = domain.CodeDuplicateRequest
	default:
		return fmt.Errorf("%w: %s: %s", domain.ErrUnavailable, st.Code(), st.Message())
	}
	return domain.ErrorFromCode(code, st.Message())
}
