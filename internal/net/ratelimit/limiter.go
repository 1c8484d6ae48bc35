// Package ratelimit enforces a minimum interval between outbound requests
// per upstream domain. Every provider call goes through Acquire before the
// request is issued.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter spaces requests per domain. Each domain gets its own limiter with
// burst 1, so two successive acquisitions are always at least the configured
// interval apart.
type Limiter struct {
	mu        sync.RWMutex
	limiters  map[string]*rate.Limiter
	intervals map[string]time.Duration
	fallback  time.Duration
	waits     map[string]int64
}

// New creates a limiter with the given fallback interval for domains that
// have no explicit configuration.
func New(fallback time.Duration) *Limiter {
	return &Limiter{
		limiters:  make(map[string]*rate.Limiter),
		intervals: make(map[string]time.Duration),
		fallback:  fallback,
		waits:     make(map[string]int64),
	}
}

// SetInterval configures the minimum spacing for a domain. Replacing the
// interval of a live domain updates its limiter in place.
func (l *Limiter) SetInterval(domain string, interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.intervals[domain] = interval
	if lim, ok := l.limiters[domain]; ok {
		lim.SetLimit(limitFor(interval))
	}
}

// Interval returns the effective minimum spacing for a domain.
func (l *Limiter) Interval(domain string) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if iv, ok := l.intervals[domain]; ok {
		return iv
	}
	return l.fallback
}

// getLimiter returns or creates the limiter for a domain.
func (l *Limiter) getLimiter(domain string) *rate.Limiter {
	l.mu.RLock()
	lim, exists := l.limiters[domain]
	l.mu.RUnlock()

	if exists {
		return lim
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check after acquiring write lock
	if lim, exists := l.limiters[domain]; exists {
		return lim
	}

	iv, ok := l.intervals[domain]
	if !ok {
		iv = l.fallback
	}
	lim = rate.NewLimiter(limitFor(iv), 1)
	l.limiters[domain] = lim
	return lim
}

// Acquire blocks until the domain's minimum interval has elapsed since the
// previous acquisition, or until ctx is cancelled.
func (l *Limiter) Acquire(ctx context.Context, domain string) error {
	lim := l.getLimiter(domain)
	if lim.Allow() {
		return nil
	}
	l.mu.Lock()
	l.waits[domain]++
	l.mu.Unlock()
	return lim.Wait(ctx)
}

// Allow reports whether a request for the domain could proceed right now,
// consuming the slot if so.
func (l *Limiter) Allow(domain string) bool {
	return l.getLimiter(domain).Allow()
}

// limitFor converts a minimum interval into a token refill rate. A
// non-positive interval disables spacing for the domain.
func limitFor(interval time.Duration) rate.Limit {
	if interval <= 0 {
		return rate.Inf
	}
	return rate.Every(interval)
}

// DomainStats describes the pacing state of one domain.
type DomainStats struct {
	Domain          string        `json:"domain"`
	Interval        time.Duration `json:"interval"`
	TokensAvailable float64       `json:"tokens_available"`
	Waits           int64         `json:"waits"`
}

// Stats returns pacing state for every domain seen so far.
func (l *Limiter) Stats() map[string]DomainStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := make(map[string]DomainStats, len(l.limiters))
	for domain, lim := range l.limiters {
		iv, ok := l.intervals[domain]
		if !ok {
			iv = l.fallback
		}
		stats[domain] = DomainStats{
			Domain:          domain,
			Interval:        iv,
			TokensAvailable: lim.Tokens(),
			Waits:           l.waits[domain],
		}
	}
	return stats
}

// Reset clears all domain limiters. Intervals are kept.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.limiters = make(map[string]*rate.Limiter)
	l.waits = make(map[string]int64)
}
