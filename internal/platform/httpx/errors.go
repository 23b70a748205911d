// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound    = errors.New("resource not found")
	ErrDuplicate   = errors.New("duplicate entry")
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflict")
	ErrMisconfig   = errors.New("server misconfigured")
	ErrUnavailable = errors.New("temporarily unavailable")
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrValidation):
		problem := ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error()}
		var lister problemLister
		if errors.As(err, &lister) {
			problem.Problems = lister.ProblemList()
		}
		Write(w, problem)
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrUnavailable):
		Problem(w, http.StatusServiceUnavailable, "Unavailable", err.Error())
	case errors.Is(err, ErrMisconfig):
		Write(w, ProblemDetail{Type: "urn:warehouse:misconfiguration", Title: "Configuration Error", Status: http.StatusInternalServerError, Detail: err.Error()})
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

type problemLister interface {
	ProblemList() []string
}

// Classified pairs a domain error with the httpx sentinel it should be reported as.
type Classified struct {
	Err  error
	Kind error
}

func (c Classified) Error() string { return c.Err.Error() }

// Unwrap exposes both the original error and its HTTP classification.
func (c Classified) Unwrap() []error { return []error{c.Err, c.Kind} }

// Classify tags err with an httpx sentinel so RespondError can map it.
func Classify(err, kind error) error {
	if err == nil {
		return nil
	}
	return Classified{Err: err, Kind: kind}
}
