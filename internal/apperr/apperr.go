// Package apperr defines the error kinds shared by the scheduling domains.
// Services return these sentinels (usually wrapped with %w) and the HTTP
// layer maps each kind to a status code and a stable machine-readable code.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks input the caller can fix before retrying.
	ErrValidation = errors.New("validation failed")

	// ErrOccupiedSlot marks a scheduling conflict with an active entry.
	// The caller must pick a different time; retrying identically fails.
	ErrOccupiedSlot = errors.New("slot is occupied")

	// ErrInvalidState marks an action that is illegal for the entity's
	// current status, e.g. paying a cancelled request.
	ErrInvalidState = errors.New("invalid state for this action")

	// ErrUnauthorized marks a missing or expired credential.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound marks an entity that no longer exists.
	ErrNotFound = errors.New("not found")

	// ErrTransient marks a network/server failure that is safe to retry.
	ErrTransient = errors.New("transient failure")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Status returns the HTTP status for an error kind. Unknown errors map
// to 500.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrOccupiedSlot), errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine-readable code for an error kind, or
// "internal_error" when the error matches no known kind.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrOccupiedSlot):
		return "occupied_slot"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTransient):
		return "transient_error"
	default:
		return "internal_error"
	}
}
