package jobs

import (
	"errors"
	"net/http"
)

// Domain errors for job operations.
var (
	ErrNotFound         = errors.New("job not found")
	ErrDuplicate        = errors.New("job already exists")
	ErrStale            = errors.New("job modified by concurrent writer")
	ErrTerminal         = errors.New("job is in a terminal state")
	ErrDuplicateAttempt = errors.New("stage attempt already recorded")
	ErrInvalidRequest   = errors.New("invalid job request")
	ErrTenantRequired   = errors.New("tenant id required")
)

// MapHTTPStatus maps job domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) || errors.Is(err, ErrStale) || errors.Is(err, ErrTerminal) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrTenantRequired) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
