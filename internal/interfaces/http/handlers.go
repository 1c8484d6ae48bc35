package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/net/breaker"
	"github.com/orgnr/bolagsdata/internal/store"
)

// errorResponse is the envelope for every non-2xx reply.
type errorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, status, errorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
	})
}

// healthResponse is the /health reply.
type healthResponse struct {
	Status    string                   `json:"status"`
	Uptime    string                   `json:"uptime"`
	Store     store.HealthCheck        `json:"store"`
	Breakers  map[string]breaker.Stats `json:"breakers"`
	Timestamp time.Time                `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	hc := s.store.Health(r.Context())
	status, code := "ok", http.StatusOK
	if !hc.Healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, healthResponse{
		Status:    status,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Store:     hc,
		Breakers:  s.breakers.Stats(),
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) handleCompany(w http.ResponseWriter, r *http.Request) {
	orgnr := mux.Vars(r)["orgnr"]
	if err := models.ValidateOrgnr(orgnr); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	force := r.URL.Query().Get("refresh") == "true"

	rec, err := s.orch.GetCompany(r.Context(), orgnr, force)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "company lookup failed")
		return
	}
	if rec == nil {
		s.writeError(w, r, http.StatusNotFound, "company not found")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// requireCompany resolves the orgnr path variable against the store,
// answering 400/404/500 itself. The boolean reports whether the handler
// should continue.
func (s *Server) requireCompany(w http.ResponseWriter, r *http.Request) (string, bool) {
	orgnr := mux.Vars(r)["orgnr"]
	if err := models.ValidateOrgnr(orgnr); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return "", false
	}
	n := models.NormalizeOrgnr(orgnr)

	company, err := s.store.GetCompany(r.Context(), n)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "store lookup failed")
		return "", false
	}
	if company == nil {
		s.writeError(w, r, http.StatusNotFound, "company not found")
		return "", false
	}
	return n, true
}

func (s *Server) handleFinancials(w http.ResponseWriter, r *http.Request) {
	orgnr, ok := s.requireCompany(w, r)
	if !ok {
		return
	}
	periods, err := s.store.ListFinancials(r.Context(), orgnr)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "store lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"orgnr":      orgnr,
		"count":      len(periods),
		"financials": periods,
	})
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	orgnr, ok := s.requireCompany(w, r)
	if !ok {
		return
	}
	reports, err := s.store.ListAnnualReports(r.Context(), orgnr)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "store lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"orgnr":   orgnr,
		"count":   len(reports),
		"reports": reports,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	orgnr, ok := s.requireCompany(w, r)
	if !ok {
		return
	}
	limit := parseLimit(r, 20, 100)
	snapshots, err := s.store.ListCompanySnapshots(r.Context(), orgnr, limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "store lookup failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"orgnr":     orgnr,
		"count":     len(snapshots),
		"snapshots": snapshots,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		s.writeError(w, r, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit := parseLimit(r, 10, 100)

	if r.URL.Query().Get("registry") == "true" {
		entries, err := s.store.SearchCompanyRegistry(r.Context(), q, limit)
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, "search failed")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{
			"query":   q,
			"count":   len(entries),
			"results": entries,
		})
		return
	}

	companies, err := s.store.SearchCompanies(r.Context(), q, limit)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "search failed")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"query":   q,
		"count":   len(companies),
		"results": companies,
	})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, http.StatusNotFound, "no such endpoint")
}

func parseLimit(r *http.Request, def, max int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
