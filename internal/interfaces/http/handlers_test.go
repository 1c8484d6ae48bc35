package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/orgnr/bolagsdata/internal/metrics"
	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/net/breaker"
	"github.com/orgnr/bolagsdata/internal/store"
)

type fakeOrch struct {
	rec   *store.CompanyRecord
	err   error
	force bool
}

func (f *fakeOrch) GetCompany(_ context.Context, _ string, force bool) (*store.CompanyRecord, error) {
	f.force = force
	return f.rec, f.err
}

type fakeReadStore struct {
	company    *models.Company
	financials []models.FinancialPeriod
	reports    []models.AnnualReport
	snapshots  []models.CompanyHistorySnapshot
	companies  []models.Company
	entries    []models.CompanyRegistryEntry
	healthy    bool

	lastTerm  string
	lastLimit int
	registry  bool
}

func (f *fakeReadStore) GetCompany(context.Context, string) (*models.Company, error) {
	return f.company, nil
}

func (f *fakeReadStore) ListFinancials(context.Context, string) ([]models.FinancialPeriod, error) {
	return f.financials, nil
}

func (f *fakeReadStore) ListAnnualReports(context.Context, string) ([]models.AnnualReport, error) {
	return f.reports, nil
}

func (f *fakeReadStore) ListCompanySnapshots(_ context.Context, _ string, limit int) ([]models.CompanyHistorySnapshot, error) {
	f.lastLimit = limit
	return f.snapshots, nil
}

func (f *fakeReadStore) SearchCompanies(_ context.Context, term string, limit int) ([]models.Company, error) {
	f.lastTerm, f.lastLimit, f.registry = term, limit, false
	return f.companies, nil
}

func (f *fakeReadStore) SearchCompanyRegistry(_ context.Context, term string, limit int) ([]models.CompanyRegistryEntry, error) {
	f.lastTerm, f.lastLimit, f.registry = term, limit, true
	return f.entries, nil
}

func (f *fakeReadStore) Health(context.Context) store.HealthCheck {
	return store.HealthCheck{Healthy: f.healthy, LastCheck: time.Now()}
}

func newTestServer(t *testing.T, orch Orchestrator, st Store, breakers *breaker.Registry) *Server {
	t.Helper()
	cfg := DefaultServerConfig()
	cfg.Port = 0
	srv, err := NewServer(cfg, orch, st, breakers, metrics.NewRegistry())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv
}

func doGET(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestCompanyEndpoint(t *testing.T) {
	orch := &fakeOrch{rec: &store.CompanyRecord{
		Company: models.Company{Orgnr: "5560160680", Name: "Ericsson", Status: models.StatusActive},
	}}
	s := newTestServer(t, orch, &fakeReadStore{}, breaker.NewRegistry(breaker.DefaultConfig()))

	rec := doGET(t, s, "/api/v1/companies/556016-0680")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
	body := decodeBody(t, rec)
	company := body["company"].(map[string]any)
	if company["name"] != "Ericsson" {
		t.Errorf("name = %v", company["name"])
	}
	if orch.force {
		t.Error("refresh forced without the query parameter")
	}
}

func TestCompanyRefreshParam(t *testing.T) {
	orch := &fakeOrch{rec: &store.CompanyRecord{Company: models.Company{Orgnr: "5560160680", Name: "Ericsson"}}}
	s := newTestServer(t, orch, &fakeReadStore{}, breaker.NewRegistry(breaker.DefaultConfig()))

	doGET(t, s, "/api/v1/companies/5560160680?refresh=true")
	if !orch.force {
		t.Fatal("refresh=true did not force a refresh")
	}
}

func TestCompanyNotFound(t *testing.T) {
	s := newTestServer(t, &fakeOrch{}, &fakeReadStore{}, breaker.NewRegistry(breaker.DefaultConfig()))

	rec := doGET(t, s, "/api/v1/companies/5560160680")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["message"] != "company not found" {
		t.Errorf("message = %v", body["message"])
	}
}

func TestCompanyInvalidOrgnr(t *testing.T) {
	s := newTestServer(t, &fakeOrch{}, &fakeReadStore{}, breaker.NewRegistry(breaker.DefaultConfig()))

	rec := doGET(t, s, "/api/v1/companies/12")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestFinancialsRequireStoredCompany(t *testing.T) {
	st := &fakeReadStore{}
	s := newTestServer(t, &fakeOrch{}, st, breaker.NewRegistry(breaker.DefaultConfig()))

	rec := doGET(t, s, "/api/v1/companies/5560160680/financials")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for unknown company", rec.Code)
	}

	st.company = &models.Company{Orgnr: "5560160680", Name: "Ericsson"}
	st.financials = []models.FinancialPeriod{{PeriodYear: 2024}, {PeriodYear: 2023}}

	rec = doGET(t, s, "/api/v1/companies/5560160680/financials")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["count"].(float64) != 2 {
		t.Errorf("count = %v, want 2", body["count"])
	}
}

func TestHistoryEndpointLimit(t *testing.T) {
	st := &fakeReadStore{
		company:   &models.Company{Orgnr: "5560160680", Name: "Ericsson"},
		snapshots: []models.CompanyHistorySnapshot{{}},
	}
	s := newTestServer(t, &fakeOrch{}, st, breaker.NewRegistry(breaker.DefaultConfig()))

	if rec := doGET(t, s, "/api/v1/companies/5560160680/history"); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if st.lastLimit != 20 {
		t.Errorf("default limit = %d, want 20", st.lastLimit)
	}

	doGET(t, s, "/api/v1/companies/5560160680/history?limit=500")
	if st.lastLimit != 100 {
		t.Errorf("clamped limit = %d, want 100", st.lastLimit)
	}
}

func TestSearchMissingQuery(t *testing.T) {
	s := newTestServer(t, &fakeOrch{}, &fakeReadStore{}, breaker.NewRegistry(breaker.DefaultConfig()))

	rec := doGET(t, s, "/api/v1/search")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestSearchSwitchesTable(t *testing.T) {
	st := &fakeReadStore{
		companies: []models.Company{{Orgnr: "5560160680", Name: "Ericsson"}},
		entries:   []models.CompanyRegistryEntry{{Orgnr: "5560160680", Name: "Ericsson"}, {Orgnr: "5565156389", Name: "Ericsson Shared"}},
	}
	s := newTestServer(t, &fakeOrch{}, st, breaker.NewRegistry(breaker.DefaultConfig()))

	rec := doGET(t, s, "/api/v1/search?q=Ericsson")
	if body := decodeBody(t, rec); body["count"].(float64) != 1 || st.registry {
		t.Errorf("canonical search hit the registry table (count=%v)", body["count"])
	}

	rec = doGET(t, s, "/api/v1/search?q=Ericsson&registry=true")
	if body := decodeBody(t, rec); body["count"].(float64) != 2 || !st.registry {
		t.Errorf("registry search did not switch tables (count=%v)", body["count"])
	}
	if st.lastLimit != 10 {
		t.Errorf("default limit = %d, want 10", st.lastLimit)
	}
}

func TestHealthStatusCodes(t *testing.T) {
	st := &fakeReadStore{healthy: true}
	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	breakers.Get("scraper")
	s := newTestServer(t, &fakeOrch{}, st, breakers)

	rec := doGET(t, s, "/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if _, ok := body["breakers"].(map[string]any)["scraper"]; !ok {
		t.Error("breaker states missing from health reply")
	}

	st.healthy = false
	rec = doGET(t, s, "/health")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503 when degraded", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	breakers := breaker.NewRegistry(breaker.DefaultConfig())
	breakers.Get("registry_api")
	s := newTestServer(t, &fakeOrch{}, &fakeReadStore{}, breakers)

	rec := doGET(t, s, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "bolagsdata_breaker_state") {
		t.Error("breaker gauge missing from scrape")
	}
	if !strings.Contains(body, "go_goroutines") {
		t.Error("runtime collectors missing from scrape")
	}
}

func TestUnknownRoute(t *testing.T) {
	s := newTestServer(t, &fakeOrch{}, &fakeReadStore{}, breaker.NewRegistry(breaker.DefaultConfig()))

	rec := doGET(t, s, "/nope")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}
