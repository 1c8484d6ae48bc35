// Package breaker implements the per-source circuit breaker protecting
// upstream providers. Rejections while open are counted separately and are
// never failures.
package breaker

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// State is the breaker state machine position.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the breaker thresholds.
type Config struct {
	FailureThreshold int           // consecutive failures in closed that trip the circuit
	RecoveryTimeout  time.Duration // time spent open before a half-open probe window
	SuccessThreshold int           // consecutive half-open successes that close the circuit
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		RecoveryTimeout:  60 * time.Second,
		SuccessThreshold: 2,
	}
}

// Breaker is one per-source circuit. A single failure in half-open reopens
// the circuit; success_threshold consecutive successes close it.
type Breaker struct {
	mu             sync.Mutex
	name           string
	config         Config
	state          State
	enteredStateAt time.Time

	total      int64
	successful int64
	failed     int64
	rejected   int64

	consecutiveFailures  int
	consecutiveSuccesses int
}

// New creates a closed breaker for the named source.
func New(name string, config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 60 * time.Second
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 2
	}
	return &Breaker{
		name:           name,
		config:         config,
		state:          Closed,
		enteredStateAt: time.Now(),
	}
}

// CanExecute reports whether a request may proceed. It is free of side
// effects except for the open-to-half-open transition once the recovery
// timeout has elapsed.
func (b *Breaker) CanExecute() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if time.Since(b.enteredStateAt) >= b.config.RecoveryTimeout {
			b.transition(HalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess records a completed request.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	b.successful++
	b.consecutiveSuccesses++
	b.consecutiveFailures = 0

	if b.state == HalfOpen && b.consecutiveSuccesses >= b.config.SuccessThreshold {
		b.transition(Closed)
	}
}

// RecordFailure records a failed request.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	b.failed++
	b.consecutiveFailures++
	b.consecutiveSuccesses = 0

	switch b.state {
	case Closed:
		if b.consecutiveFailures >= b.config.FailureThreshold {
			b.transition(Open)
		}
	case HalfOpen:
		b.transition(Open)
	}
}

// RecordRejection records a request blocked by the open circuit.
func (b *Breaker) RecordRejection() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	b.rejected++
}

// State returns the current state without transitioning.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// transition moves the breaker to a new state, resetting the consecutive
// counters. Callers hold the lock.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	b.enteredStateAt = time.Now()
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0

	log.Warn().
		Str("source", b.name).
		Str("from", from.String()).
		Str("to", to.String()).
		Msg("circuit breaker state change")
}

// Stats is the observable breaker state.
type Stats struct {
	Source               string        `json:"source"`
	State                string        `json:"state"`
	Total                int64         `json:"total"`
	Successful           int64         `json:"successful"`
	Failed               int64         `json:"failed"`
	Rejected             int64         `json:"rejected"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	TimeInState          time.Duration `json:"time_in_state"`
}

// Stats returns a snapshot of the breaker counters.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Stats{
		Source:               b.name,
		State:                b.state.String(),
		Total:                b.total,
		Successful:           b.successful,
		Failed:               b.failed,
		Rejected:             b.rejected,
		ConsecutiveFailures:  b.consecutiveFailures,
		ConsecutiveSuccesses: b.consecutiveSuccesses,
		TimeInState:          time.Since(b.enteredStateAt),
	}
}
