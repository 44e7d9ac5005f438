package store

import (
	"errors"
	"net/http"
)

// Semantic error kinds surfaced at the HTTP boundary. NotFound maps to 404,
// InvalidToken to 401, everything else to 400.
var (
	ErrNotFound           = errors.New("NOT_FOUND")
	ErrSavingFailed       = errors.New("SAVING_FAILED")
	ErrUpdatingFailed     = errors.New("UPDATING_FAILED")
	ErrDeletingFailed     = errors.New("DELETING_FAILED")
	ErrFindingFailed      = errors.New("FINDING_FAILED")
	ErrInvalidCombination = errors.New("INVALID_COMBINATION")
	ErrInvalidToken       = errors.New("INVALID_TOKEN")
	ErrInvalidID          = errors.New("INVALID_ID")
)

// HTTPStatus maps a store error onto its response status.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

// Body returns the stable response body for a store error.
func Body(err error) string {
	for _, kind := range []error{
		ErrNotFound, ErrSavingFailed, ErrUpdatingFailed, ErrDeletingFailed,
		ErrFindingFailed, ErrInvalidCombination, ErrInvalidToken, ErrInvalidID,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return ErrFindingFailed.Error()
}
