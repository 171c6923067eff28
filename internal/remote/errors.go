package remote

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNetwork matches every failure where the remote could not be reached
	// or did not answer in time.
	ErrNetwork = errors.New("remote unreachable")

	ErrMissingServerID = errors.New("remote accepted record without id")
)

// NetworkError is a transport-level failure: connection refused, timeout,
// or a gateway/availability status. Writes failing this way may be retried.
type NetworkError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: remote unavailable (http %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: remote unreachable: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// APIError is a rejection by the remote datastore (validation, authorization).
// Retrying the same request will not help.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Message)
}

// IsNetworkError reports whether err is a retryable transport failure.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrNetwork)
}

// retryableStatus lists statuses that mean "not reached" rather than "rejected".
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= http.StatusInternalServerError
}
