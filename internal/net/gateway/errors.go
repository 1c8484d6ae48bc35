package gateway

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is returned when the source's breaker rejects the call.
// Rejections are not failures; callers degrade to an absent result.
var ErrCircuitOpen = errors.New("circuit open")

// SourceError is the classified failure of one logical upstream call.
type SourceError struct {
	Source     string
	StatusCode int
	Message    string
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *SourceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Source, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

func (e *SourceError) Unwrap() error { return e.Err }

// StatusOf extracts the HTTP status from a classified error, or 0.
func StatusOf(err error) int {
	var se *SourceError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// IsNotFound reports whether the upstream answered 404 for the resource.
func IsNotFound(err error) bool { return StatusOf(err) == 404 }

// IsUnauthorized reports whether the upstream rejected the credentials.
func IsUnauthorized(err error) bool { return StatusOf(err) == 401 }
