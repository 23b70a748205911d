package warehouse

import (
	"errors"

	"github.com/AlekseyRodimkin/warehouse/internal/platform/db"
	"github.com/AlekseyRodimkin/warehouse/internal/platform/httpx"
	"github.com/AlekseyRodimkin/warehouse/internal/shared"
)

// ClassifyError tags warehouse errors with the HTTP category they map to.
func ClassifyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return httpx.Classify(err, httpx.ErrNotFound)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrSamePlace):
		return httpx.Classify(err, httpx.ErrValidation)
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrProtected),
		errors.Is(err, shared.ErrIdempotencyConflict), errors.Is(err, db.ErrConcurrentUpdate):
		return httpx.Classify(err, httpx.ErrConflict)
	case errors.Is(err, ErrMissingReservedLocation):
		return httpx.Classify(err, httpx.ErrMisconfig)
	}
	return err
}
