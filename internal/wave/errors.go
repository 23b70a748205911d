package wave

import (
	"errors"

	"github.com/AlekseyRodimkin/warehouse/internal/platform/httpx"
	"github.com/AlekseyRodimkin/warehouse/internal/platform/lock"
	"github.com/AlekseyRodimkin/warehouse/internal/warehouse"
)

// ClassifyError tags wave and ledger errors with their HTTP category.
func ClassifyError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return httpx.Classify(err, httpx.ErrNotFound)
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrActualDate):
		return httpx.Classify(err, httpx.ErrValidation)
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNotDeletable), errors.Is(err, lock.ErrBusy):
		return httpx.Classify(err, httpx.ErrConflict)
	}
	return warehouse.ClassifyError(err)
}
