// Package announce pulls legal notices (kungörelser) for a company from
// external bulletin feeds. A source here is an optional collaborator: the
// orchestrator merges whatever a configured source returns and carries on
// without one.
package announce

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/net/breaker"
)

// Source fetches the published announcements for one organization number.
// An empty slice with nil error means the company has none on record.
type Source interface {
	Fetch(ctx context.Context, orgnr string) ([]models.Announcement, error)
}

// Guarded wraps a Source in a circuit breaker so a failing bulletin feed
// cannot slow every company lookup. Calls rejected while the circuit is
// open fail fast with gobreaker.ErrOpenState.
type Guarded struct {
	src Source
	cb  *gobreaker.CircuitBreaker
}

// Guard wraps src in a breaker. The name labels the breaker in logs and
// health output.
func Guard(name string, src Source, cfg breaker.Config) *Guarded {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: uint32(cfg.SuccessThreshold),
		Timeout:     cfg.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.FailureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("source", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("announcement breaker state change")
		},
	}
	return &Guarded{src: src, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Fetch delegates to the wrapped source through the breaker.
func (g *Guarded) Fetch(ctx context.Context, orgnr string) ([]models.Announcement, error) {
	out, err := g.cb.Execute(func() (any, error) {
		return g.src.Fetch(ctx, orgnr)
	})
	if err != nil {
		return nil, fmt.Errorf("announcements for %s: %w", orgnr, err)
	}
	anns, _ := out.([]models.Announcement)
	return anns, nil
}

// State reports the breaker position for health endpoints.
func (g *Guarded) State() gobreaker.State { return g.cb.State() }

// Static serves fixed announcements keyed by normalized orgnr. It backs
// tests and local development where no bulletin feed is reachable.
type Static map[string][]models.Announcement

// Fetch returns the fixture entries for orgnr.
func (s Static) Fetch(_ context.Context, orgnr string) ([]models.Announcement, error) {
	return s[models.NormalizeOrgnr(orgnr)], nil
}
