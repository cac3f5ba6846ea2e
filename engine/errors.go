package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound is the sentinel for operations against a removed or
// unknown container. It matches both 404 APIErrors from the engine and
// local short-circuits on handles already known to be removed:
//
//	if errors.Is(err, engine.ErrNotFound) { ... }
var ErrNotFound = errors.New("not found")

// APIError is a non-2xx control-plane response. It carries the HTTP
// status code and the raw response body so callers can distinguish
// engine-level failures (unknown image, name conflict, container not
// running) without this package interpreting them.
//
// StatusCode is zero when the engine reported the failure inside an
// already-committed progress stream, as image pulls do for registry
// errors after the 200 header has been sent.
type APIError struct {
	StatusCode int
	Body       string
	Op         string
}

// Error satisfies the error interface.
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("engine reported failure during %s: %s", e.Op, e.Body)
	}
	return fmt.Sprintf("engine returned status %d for %s: %s", e.StatusCode, e.Op, e.Body)
}

// Is reports whether the error matches a sentinel. A 404 response
// matches ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IsNotFound reports whether err represents an unknown or removed
// resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
