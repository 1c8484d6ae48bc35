package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func metricValue(t *testing.T, m *Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if !matchLabels(metric, labels) {
				continue
			}
			if c := metric.GetCounter(); c != nil {
				return c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				return g.GetValue()
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return 0
}

func matchLabels(metric *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(metric.GetLabel()))
	for _, l := range metric.GetLabel() {
		got[l.GetName()] = l.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestObserveRequestCounts(t *testing.T) {
	m := NewRegistry()
	m.ObserveRequest("registry_api", 200, 120*time.Millisecond)
	m.ObserveRequest("registry_api", 200, 80*time.Millisecond)
	m.ObserveRequest("scraper", 503, time.Second)

	got := metricValue(t, m, "bolagsdata_http_requests_total", map[string]string{"source": "registry_api", "status": "200"})
	if got != 2 {
		t.Errorf("registry 200 count = %v, want 2", got)
	}
	got = metricValue(t, m, "bolagsdata_http_requests_total", map[string]string{"source": "scraper", "status": "503"})
	if got != 1 {
		t.Errorf("scraper 503 count = %v, want 1", got)
	}
}

func TestBreakerStateGauge(t *testing.T) {
	m := NewRegistry()
	m.SetBreakerState("scraper", "open")
	m.SetBreakerState("registry_api", "closed")

	if got := metricValue(t, m, "bolagsdata_breaker_state", map[string]string{"source": "scraper"}); got != 2 {
		t.Errorf("open state = %v, want 2", got)
	}
	if got := metricValue(t, m, "bolagsdata_breaker_state", map[string]string{"source": "registry_api"}); got != 0 {
		t.Errorf("closed state = %v, want 0", got)
	}
}

func TestSweepAndFactCounters(t *testing.T) {
	m := NewRegistry()
	m.CountSyncCompany("success")
	m.CountSyncCompany("success")
	m.CountSyncCompany("failure")
	m.AddFactsExtracted(37)

	if got := metricValue(t, m, "bolagsdata_sync_companies_total", map[string]string{"result": "success"}); got != 2 {
		t.Errorf("success count = %v, want 2", got)
	}
	if got := metricValue(t, m, "bolagsdata_xbrl_facts_extracted_total", nil); got != 37 {
		t.Errorf("fact count = %v, want 37", got)
	}
}

func TestHandlerServesExposition(t *testing.T) {
	m := NewRegistry()
	m.ObserveRequest("registry_api", 200, 50*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "bolagsdata_http_requests_total") {
		t.Error("exposition is missing the request counter")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("exposition is missing the runtime collectors")
	}
}
