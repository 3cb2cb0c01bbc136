package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error kinds shared by every domain package. Domain code wraps one of these
// with %w so handlers can classify the failure with errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidSchedule   = errors.New("appointment date must be in the future")
	ErrInvalidTransition = errors.New("status transition not allowed")
	ErrForbidden         = errors.New("forbidden")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("concurrent modification, re-read and retry")
	ErrOutOfRange        = errors.New("value outside physiological range")
	ErrInternal          = errors.New("internal error")
)

// Validation wraps ErrValidation with a field-level message.
func Validation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the entity that failed to resolve.
func NotFound(entity string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}

// Forbidden wraps ErrForbidden with a reason.
func Forbidden(reason string) error {
	return fmt.Errorf("%w: %s", ErrForbidden, reason)
}

// OutOfRange wraps ErrOutOfRange with the offending measurement.
func OutOfRange(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrOutOfRange, fmt.Sprintf(format, args...))
}

// Code returns the stable machine-readable code for err.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrValidation):
		return "validation_error"
	case errors.Is(err, ErrInvalidSchedule):
		return "invalid_schedule"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict_retryable"
	case errors.Is(err, ErrOutOfRange):
		return "out_of_range_physiological"
	default:
		return "internal"
	}
}

// Retryable reports whether the caller may retry after re-reading state.
func Retryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

func status(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidSchedule), errors.Is(err, ErrOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Body is the JSON error envelope returned by every handler.
type Body struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// HTTP converts a domain error into an echo.HTTPError. Internal errors keep
// their cause on the HTTPError (for logging) but expose a generic message.
func HTTP(err error) *echo.HTTPError {
	code := status(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal server error"
	}
	he := echo.NewHTTPError(code, Body{
		Error:     Code(err),
		Message:   msg,
		Retryable: Retryable(err),
	})
	return he.SetInternal(err)
}
