// Package metrics owns the Prometheus collectors for the engine. One
// Registry instance is shared by the gateway, the report pipeline and
// the HTTP server; everything is registered on a private registry so
// tests can run side by side.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bolagsdata"

// Registry holds every collector the engine exposes.
type Registry struct {
	registry *prometheus.Registry

	HTTPRequests   *prometheus.CounterVec
	RequestSeconds *prometheus.HistogramVec
	Retries        *prometheus.CounterVec
	Rejections     *prometheus.CounterVec
	BreakerState   *prometheus.GaugeVec
	LimiterWait    *prometheus.HistogramVec
	SyncCompanies  *prometheus.CounterVec
	XBRLFacts      prometheus.Counter
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
}

// NewRegistry creates and registers all collectors.
func NewRegistry() *Registry {
	m := &Registry{
		registry: prometheus.NewRegistry(),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Upstream requests by source and status code",
			},
			[]string{"source", "status"},
		),

		RequestSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Upstream request duration by source",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"source"},
		),

		Retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "request_retries_total",
				Help:      "Retried attempts by source",
			},
			[]string{"source"},
		),

		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "breaker_rejections_total",
				Help:      "Requests refused by an open circuit",
			},
			[]string{"source"},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "breaker_state",
				Help:      "Circuit state by source (0=closed, 1=half-open, 2=open)",
			},
			[]string{"source"},
		),

		LimiterWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rate_limit_wait_seconds",
				Help:      "Time spent waiting on the per-domain rate limiter",
				Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"domain"},
		),

		SyncCompanies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_companies_total",
				Help:      "Companies handled by the report sweep, by outcome",
			},
			[]string{"result"},
		),

		XBRLFacts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "xbrl_facts_extracted_total",
				Help:      "Facts extracted from processed annual reports",
			},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Cache hits by cache layer",
			},
			[]string{"cache"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Cache misses by cache layer",
			},
			[]string{"cache"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequests,
		m.RequestSeconds,
		m.Retries,
		m.Rejections,
		m.BreakerState,
		m.LimiterWait,
		m.SyncCompanies,
		m.XBRLFacts,
		m.CacheHits,
		m.CacheMisses,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed upstream call. Status 0 means the
// request never got a reply.
func (m *Registry) ObserveRequest(source string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(source, strconv.Itoa(status)).Inc()
	m.RequestSeconds.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveLimiterWait records time spent blocked on the rate limiter.
func (m *Registry) ObserveLimiterWait(domain string, d time.Duration) {
	m.LimiterWait.WithLabelValues(domain).Observe(d.Seconds())
}

// CountRetry records one retried attempt.
func (m *Registry) CountRetry(source string) {
	m.Retries.WithLabelValues(source).Inc()
}

// CountRejection records one request refused by an open circuit.
func (m *Registry) CountRejection(source string) {
	m.Rejections.WithLabelValues(source).Inc()
}

// SetBreakerState mirrors a breaker position into the state gauge.
func (m *Registry) SetBreakerState(source, state string) {
	m.BreakerState.WithLabelValues(source).Set(stateValue(state))
}

// CountSyncCompany records one company handled by the report sweep.
func (m *Registry) CountSyncCompany(result string) {
	m.SyncCompanies.WithLabelValues(result).Inc()
}

// AddFactsExtracted adds to the extracted-fact counter.
func (m *Registry) AddFactsExtracted(n int) {
	m.XBRLFacts.Add(float64(n))
}

// CountCacheHit records a hit on the named cache layer.
func (m *Registry) CountCacheHit(cache string) {
	m.CacheHits.WithLabelValues(cache).Inc()
}

// CountCacheMiss records a miss on the named cache layer.
func (m *Registry) CountCacheMiss(cache string) {
	m.CacheMisses.WithLabelValues(cache).Inc()
}

func stateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half_open", "half-open":
		return 1
	case "open":
		return 2
	default:
		return -1
	}
}
