package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a client-visible request failure. Handlers render it as a 4xx
// response with a {"message": ...} body; anything else becomes a 500.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("api error (%d)", e.Status)
}

func New(status int, format string, args ...interface{}) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

func InvalidUsage(format string, args ...interface{}) *Error {
	return New(http.StatusBadRequest, format, args...)
}

// StatusOf returns the HTTP status for err, or 500 if err is not an *Error.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// IsClient reports whether err should be surfaced verbatim to the caller.
func IsClient(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr)
}
