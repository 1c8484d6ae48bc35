// Package retry implements the exponential backoff policy shared by all
// outbound request paths and classifies which failures are worth retrying.
package retry

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"
)

// Policy describes one backoff schedule. The zero value is not usable; use
// Default or build from configuration.
type Policy struct {
	Base       time.Duration
	Multiplier float64
	Cap        time.Duration
	MaxRetries int
	Jitter     bool
}

// Default returns the generic policy: 1s base, doubling, capped at 60s,
// three retries, jittered.
func Default() Policy {
	return Policy{
		Base:       time.Second,
		Multiplier: 2.0,
		Cap:        60 * time.Second,
		MaxRetries: 3,
		Jitter:     true,
	}
}

// DocumentThrottle returns the stricter policy applied on 429 responses from
// the annual-report document endpoints, whose upstream quota enforcement is
// unusually punitive.
func DocumentThrottle() Policy {
	return Policy{
		Base:       5 * time.Second,
		Multiplier: 2.0,
		Cap:        60 * time.Second,
		MaxRetries: 3,
		Jitter:     true,
	}
}

// Delay computes the backoff before retrying attempt k (0-indexed):
// min(base*mul^k, cap) plus uniform jitter in [0, delay/2) when enabled.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := float64(p.Base) * math.Pow(p.Multiplier, float64(attempt))
	if capped := float64(p.Cap); p.Cap > 0 && d > capped {
		d = capped
	}
	delay := time.Duration(d)
	if p.Jitter && delay > 0 {
		delay += time.Duration(rand.Int63n(int64(delay)/2 + 1))
	}
	return delay
}

// ShouldRetry reports whether a response status warrants another attempt.
func (p Policy) ShouldRetry(status, attempt int) bool {
	return RetryableStatus(status) && attempt < p.MaxRetries
}

// Sleep waits for the attempt's backoff delay or until ctx is cancelled.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	select {
	case <-time.After(p.Delay(attempt)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryableStatus reports whether an HTTP status is transiently failing.
func RetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// RetryableError reports whether a transport-level error is transient:
// connection errors, read errors and timeouts. Anything else propagates.
// Caller cancellation is not classified here; callers must check their own
// context before retrying.
func RetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ENETUNREACH) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"network is unreachable",
		"no such host",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
