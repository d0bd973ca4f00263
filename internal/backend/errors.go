package backend

import (
	"errors"
	"fmt"
)

// Common errors for collaborator calls.
var (
	// ErrNotFound is returned when a search yields no results.
	ErrNotFound = errors.New("no songs found")

	// ErrEmptyQuery is returned for blank search input.
	ErrEmptyQuery = errors.New("query must not be empty")
)

// ReportedError is a failure reported by a collaborator in the "error"
// field of its response, or an unexpected HTTP status.
type ReportedError struct {
	Endpoint   string
	StatusCode int
	Message    string
}

func (e *ReportedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Endpoint, e.Message)
}

// NetworkError wraps a transport failure: the request never produced a
// readable response.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkFailure reports whether err is a transport failure.
func IsNetworkFailure(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// IsReported reports whether err was reported by a collaborator.
func IsReported(err error) bool {
	var re *ReportedError
	return errors.As(err, &re)
}
