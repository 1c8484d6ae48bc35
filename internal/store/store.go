// Package store defines the persistence surface of the aggregation
// engine. Entity types live in internal/models; this package adds the
// aggregate read/write shapes, the per-concern repository interfaces
// and the composed Store contract implemented by internal/store/postgres.
package store

import (
	"context"
	"time"

	"github.com/orgnr/bolagsdata/internal/models"
)

// CompanyRecord is the full canonical record assembled for reads: the
// Company row plus every child list.
type CompanyRecord struct {
	Company       models.Company           `json:"company"`
	Roles         []models.Role            `json:"roles,omitempty"`
	Financials    []models.FinancialPeriod `json:"financials,omitempty"`
	Industries    []models.Industry        `json:"industries,omitempty"`
	Trademarks    []models.Trademark       `json:"trademarks,omitempty"`
	Related       []models.RelatedCompany  `json:"related_companies,omitempty"`
	Announcements []models.Announcement    `json:"announcements,omitempty"`
	FromCache     bool                     `json:"from_cache"`
}

// CompanyUpdate is the write payload for StoreCompanyComplete. A nil
// child list leaves the stored rows untouched; a non-nil list (empty
// included) replaces them. Financials are always upserted per period,
// never cleared.
type CompanyUpdate struct {
	Company       *models.Company
	Roles         []models.Role
	Financials    []models.FinancialPeriod
	Industries    []models.Industry
	Trademarks    []models.Trademark
	Related       []models.RelatedCompany
	Announcements []models.Announcement

	// SnapshotFirst copies the prior Company row and roles list into the
	// history tables before anything is overwritten.
	SnapshotFirst bool

	// Source is recorded in cache metadata for the refresh.
	Source string
}

// Companies covers the canonical record and its child lists.
type Companies interface {
	// GetCompany returns the bare Company row, nil when absent.
	GetCompany(ctx context.Context, orgnr string) (*models.Company, error)

	// GetCompanyRecord assembles the Company row with all child lists.
	GetCompanyRecord(ctx context.Context, orgnr string) (*CompanyRecord, error)

	// StoreCompanyComplete applies one provider refresh in a single
	// transaction: optional history snapshot, Company upsert, child-list
	// replacement, financial upserts, cache metadata touch.
	StoreCompanyComplete(ctx context.Context, update *CompanyUpdate) error

	// ListTrackedOrgnrs returns every stored orgnr, ordered.
	ListTrackedOrgnrs(ctx context.Context) ([]string, error)

	// CountCompanies returns the number of canonical records.
	CountCompanies(ctx context.Context) (int64, error)

	// ListFinancials returns the financial periods for one company,
	// newest first.
	ListFinancials(ctx context.Context, orgnr string) ([]models.FinancialPeriod, error)
}

// Search covers sanitized name lookup on the canonical table and the
// standalone registry table.
type Search interface {
	// SearchCompanies matches canonical records by name substring.
	SearchCompanies(ctx context.Context, term string, limit int) ([]models.Company, error)

	// SearchCompanyRegistry matches registry entries, prefix first and
	// contains as the fallback.
	SearchCompanyRegistry(ctx context.Context, term string, limit int) ([]models.CompanyRegistryEntry, error)
}

// Cache tracks per-company refresh state for TTL decisions.
type Cache interface {
	// IsCacheFresh reports whether the last refresh is within ttl.
	IsCacheFresh(ctx context.Context, orgnr string, ttl time.Duration) (bool, error)

	// TouchCache records a successful refresh from the given source.
	TouchCache(ctx context.Context, orgnr, source string) error
}

// Reports covers annual report persistence. The write half doubles as
// the xbrl pipeline's store dependency.
type Reports interface {
	// GetAnnualReport returns the report row, nil when absent.
	GetAnnualReport(ctx context.Context, orgnr string, fiscalYear int) (*models.AnnualReport, error)

	// SaveAnnualReport upserts on (orgnr, fiscal_year) and returns the row id.
	SaveAnnualReport(ctx context.Context, report *models.AnnualReport) (int64, error)

	// ListAnnualReports returns all reports for one company, newest first.
	ListAnnualReports(ctx context.Context, orgnr string) ([]models.AnnualReport, error)

	// ReplaceReportFacts deletes prior facts for the report and bulk
	// inserts the new set.
	ReplaceReportFacts(ctx context.Context, reportID int64, facts []models.XBRLFact) error

	// ListReportFacts returns facts for one company and fiscal year.
	ListReportFacts(ctx context.Context, orgnr string, fiscalYear int) ([]models.XBRLFact, error)

	// UpsertAuditHistory upserts audit sign-off on (orgnr, fiscal_year).
	UpsertAuditHistory(ctx context.Context, entry *models.AuditHistoryEntry) error

	// InsertBoardHistory appends one board composition row.
	InsertBoardHistory(ctx context.Context, entry *models.BoardHistoryEntry) error

	// UpsertFinancialPeriod upserts on (orgnr, period_year, is_consolidated).
	UpsertFinancialPeriod(ctx context.Context, period *models.FinancialPeriod) error
}

// Registry maintains the standalone name-lookup table, loaded from
// bulk registry exports independently of provider refreshes.
type Registry interface {
	// ImportRegistryEntries upserts entries in batches and returns the
	// number written.
	ImportRegistryEntries(ctx context.Context, entries []models.CompanyRegistryEntry) (int64, error)

	// CountRegistryEntries returns the registry table size.
	CountRegistryEntries(ctx context.Context) (int64, error)
}

// History reads the append-only snapshot tables.
type History interface {
	// ListCompanySnapshots returns prior Company states, newest first.
	ListCompanySnapshots(ctx context.Context, orgnr string, limit int) ([]models.CompanyHistorySnapshot, error)

	// ListRoleSnapshots returns prior role lists, newest first.
	ListRoleSnapshots(ctx context.Context, orgnr string, limit int) ([]models.RolesHistorySnapshot, error)
}

// Store is the full persistence surface.
type Store interface {
	Companies
	Search
	Cache
	Reports
	Registry
	History

	// Ping tests basic connectivity.
	Ping(ctx context.Context) error

	// Health returns current store health including pool statistics.
	Health(ctx context.Context) HealthCheck

	// Close releases the underlying connections.
	Close() error
}

// HealthCheck reports store health for the /health endpoint.
type HealthCheck struct {
	Healthy        bool           `json:"healthy"`
	Errors         []string       `json:"errors,omitempty"`
	ConnectionPool map[string]int `json:"connection_pool"`
	LastCheck      time.Time      `json:"last_check"`
	ResponseTimeMS int64          `json:"response_time_ms"`
}
