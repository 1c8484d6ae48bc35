// Package gateway is the single outbound request primitive. Every provider
// call goes breaker check, rate-limit acquire, request with deadlines,
// status-based retry, classification. The breaker is notified exactly once
// per logical call with the last attempt's outcome.
package gateway

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orgnr/bolagsdata/internal/cache"
	"github.com/orgnr/bolagsdata/internal/net/breaker"
	"github.com/orgnr/bolagsdata/internal/net/ratelimit"
	"github.com/orgnr/bolagsdata/internal/net/retry"
)

// Request describes one logical upstream call.
type Request struct {
	Source   string            // breaker identity, e.g. "registry_api"
	Method   string
	URL      string
	Headers  map[string]string
	Body     []byte
	Throttle *retry.Policy // overrides backoff on 429, used by document endpoints
	CacheTTL time.Duration // >0 serves and stores GET responses via the cache
}

// Response is a completed 2xx/3xx upstream reply with the body drained.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Metrics receives per-call observations. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveRequest(source string, status int, d time.Duration)
	ObserveLimiterWait(domain string, d time.Duration)
	CountRetry(source string)
	CountRejection(source string)
	CountCacheHit(cache string)
	CountCacheMiss(cache string)
}

// Config holds gateway deadlines and the default retry policy.
type Config struct {
	RequestTimeout time.Duration
	ConnectTimeout time.Duration
	Retry          retry.Policy
	MaxBodyBytes   int64
}

// DefaultConfig returns the standard deadlines: 5s connect, 15s request.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 15 * time.Second,
		ConnectTimeout: 5 * time.Second,
		Retry:          retry.Default(),
		MaxBodyBytes:   64 << 20,
	}
}

// Gateway issues guarded upstream requests.
type Gateway struct {
	client   *http.Client
	limiter  *ratelimit.Limiter
	breakers *breaker.Registry
	config   Config
	cache    cache.Cache
	metrics  Metrics
}

// Option configures optional gateway collaborators.
type Option func(*Gateway)

// WithCache attaches a response cache for opted-in GET requests.
func WithCache(c cache.Cache) Option {
	return func(g *Gateway) { g.cache = c }
}

// WithMetrics attaches a metrics sink.
func WithMetrics(m Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// WithClient replaces the HTTP client, used by tests.
func WithClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// New creates a gateway over a shared connection pool.
func New(config Config, limiter *ratelimit.Limiter, breakers *breaker.Registry, opts ...Option) *Gateway {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 15 * time.Second
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 5 * time.Second
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 64 << 20
	}

	g := &Gateway{
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   config.ConnectTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout:   config.ConnectTimeout,
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: config.RequestTimeout,
			},
		},
		limiter:  limiter,
		breakers: breakers,
		config:   config,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Breakers exposes the per-source registry for health reporting.
func (g *Gateway) Breakers() *breaker.Registry { return g.breakers }

// Limiter exposes the pacing state for health reporting.
func (g *Gateway) Limiter() *ratelimit.Limiter { return g.limiter }

// Do executes one logical call.
func (g *Gateway) Do(ctx context.Context, req Request) (*Response, error) {
	br := g.breakers.Get(req.Source)
	if !br.CanExecute() {
		br.RecordRejection()
		if g.metrics != nil {
			g.metrics.CountRejection(req.Source)
		}
		return nil, &SourceError{
			Source:  req.Source,
			Message: "circuit open",
			Err:     ErrCircuitOpen,
		}
	}

	cacheKey := ""
	if req.Method == http.MethodGet && req.CacheTTL > 0 && g.cache != nil {
		cacheKey = "gw:" + req.Source + ":" + req.URL
		if body, ok := g.cache.Get(cacheKey); ok {
			log.Debug().Str("source", req.Source).Str("url", req.URL).Msg("gateway cache hit")
			if g.metrics != nil {
				g.metrics.CountCacheHit("gateway")
			}
			return &Response{StatusCode: http.StatusOK, Body: body}, nil
		}
		if g.metrics != nil {
			g.metrics.CountCacheMiss("gateway")
		}
	}

	u, err := url.Parse(req.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", req.URL, err)
	}
	waitStart := time.Now()
	if err := g.limiter.Acquire(ctx, u.Host); err != nil {
		return nil, err
	}
	if g.metrics != nil {
		g.metrics.ObserveLimiterWait(u.Host, time.Since(waitStart))
	}

	start := time.Now()
	var lastErr error
	for attempt := 0; ; attempt++ {
		resp, body, err := g.attempt(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if retry.RetryableError(err) && attempt < g.config.Retry.MaxRetries {
				if g.metrics != nil {
					g.metrics.CountRetry(req.Source)
				}
				if serr := g.config.Retry.Sleep(ctx, attempt); serr != nil {
					return nil, serr
				}
				continue
			}
			br.RecordFailure()
			g.observe(req.Source, 0, start)
			return nil, &SourceError{
				Source:    req.Source,
				Message:   fmt.Sprintf("request failed: %v", lastErr),
				Retryable: retry.RetryableError(lastErr),
				Err:       lastErr,
			}
		}

		status := resp.StatusCode
		if retry.RetryableStatus(status) {
			pol := g.config.Retry
			if status == http.StatusTooManyRequests && req.Throttle != nil {
				pol = *req.Throttle
			}
			ra := retryAfter(resp.Header)
			if attempt < pol.MaxRetries {
				delay := pol.Delay(attempt)
				if ra > delay {
					delay = ra
				}
				log.Debug().
					Str("source", req.Source).
					Int("status", status).
					Int("attempt", attempt).
					Dur("delay", delay).
					Msg("retrying upstream call")
				if g.metrics != nil {
					g.metrics.CountRetry(req.Source)
				}
				select {
				case <-time.After(delay):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
				continue
			}
			br.RecordFailure()
			g.observe(req.Source, status, start)
			return nil, &SourceError{
				Source:     req.Source,
				StatusCode: status,
				Message:    "upstream transiently failing",
				Retryable:  true,
				RetryAfter: ra,
			}
		}

		if status >= 400 {
			// A definitive reply; the source itself is healthy.
			br.RecordSuccess()
			g.observe(req.Source, status, start)
			return nil, &SourceError{
				Source:     req.Source,
				StatusCode: status,
				Message:    http.StatusText(status),
			}
		}

		br.RecordSuccess()
		g.observe(req.Source, status, start)
		if cacheKey != "" {
			g.cache.Set(cacheKey, body, req.CacheTTL)
		}
		return &Response{StatusCode: status, Header: resp.Header, Body: body}, nil
	}
}

// attempt issues a single HTTP request under the per-attempt deadline and
// drains the body.
func (g *Gateway) attempt(ctx context.Context, req Request) (*http.Response, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.config.RequestTimeout)
	defer cancel()

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(attemptCtx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.config.MaxBodyBytes+1))
	if err != nil {
		return nil, nil, err
	}
	if int64(len(body)) > g.config.MaxBodyBytes {
		return nil, nil, fmt.Errorf("response body exceeds %d bytes", g.config.MaxBodyBytes)
	}
	return resp, body, nil
}

func (g *Gateway) observe(source string, status int, start time.Time) {
	if g.metrics != nil {
		g.metrics.ObserveRequest(source, status, time.Since(start))
	}
}

// retryAfter parses a Retry-After header as delta seconds or an HTTP date.
func retryAfter(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
