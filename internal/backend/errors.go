package backend

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is returned when the backend rejects the user's
// credentials (HTTP 401 or 403). Callers must stop polling for the
// session instead of retrying.
var ErrUnauthorized = errors.New("backend rejected credentials")

// StatusError wraps a non-auth HTTP error status from the backend.
type StatusError struct {
	Status int
	Method string
	Path   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d for %s %s", e.Status, e.Method, e.Path)
}

// IsAuthFailure reports whether err means the backend no longer accepts
// the session's credentials.
func IsAuthFailure(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
