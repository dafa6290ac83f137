package clinicapi

import (
	"errors"
	"fmt"
)

// ErrUnauthorized marks a 401 from the backend. The engine treats it as
// fatal to the current view and never retries the call; the caller routes
// the operator back to the login page.
var ErrUnauthorized = errors.New("clinicapi: unauthorized")

// ErrNotFound marks a 404, typically a record deleted between an event and
// its follow-up fetch.
var ErrNotFound = errors.New("clinicapi: not found")

// APIError carries a non-2xx response with the backend's own detail message
// kept verbatim, so views can surface the server's wording.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("clinicapi: status %d", e.StatusCode)
	}
	return fmt.Sprintf("clinicapi: status %d: %s", e.StatusCode, e.Message)
}

// Detail returns the server's message for an APIError, or "" for other
// errors, letting callers choose between verbatim and generic wording.
func Detail(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return ""
}
