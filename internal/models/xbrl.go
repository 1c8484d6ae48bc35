package models

import "time"

// Annual report processing states.
const (
	ReportStatusPending   = "pending"
	ReportStatusProcessed = "processed"
	ReportStatusFailed    = "failed"
)

// Period types inferred from iXBRL context identifiers.
const (
	PeriodCurrent    = "current"
	PeriodPrevious   = "previous"
	PeriodTwoYears   = "two_years"
	PeriodThreeYears = "three_years"
	PeriodUnknown    = "unknown"
)

// Fact availability classes.
const (
	AvailabilityCore     = "core"
	AvailabilityCommon   = "common"
	AvailabilityExtended = "extended"
	AvailabilityOptional = "optional"
)

// Fact categories.
const (
	CategoryFinancial  = "financial"
	CategoryAudit      = "audit"
	CategoryCompany    = "company"
	CategoryCompliance = "compliance"
	CategoryLegal      = "legal"
	CategoryMisc       = "misc"
	CategoryOther      = "other"
)

// AnnualReport tracks one filed report per (orgnr, fiscal_year) and the
// outcome of its fact extraction.
type AnnualReport struct {
	ID                  int64      `db:"id" json:"id"`
	Orgnr               string     `db:"orgnr" json:"orgnr"`
	FiscalYear          int        `db:"fiscal_year" json:"fiscal_year"`
	DocumentID          string     `db:"document_id" json:"document_id"`
	FiscalYearStart     *time.Time `db:"fiscal_year_start" json:"fiscal_year_start,omitempty"`
	FiscalYearEnd       *time.Time `db:"fiscal_year_end" json:"fiscal_year_end,omitempty"`
	TotalFactsExtracted int        `db:"total_facts_extracted" json:"total_facts_extracted"`
	NamespacesUsed      []string   `db:"-" json:"namespaces_used"`
	IsAudited           bool       `db:"is_audited" json:"is_audited"`
	ProcessingStatus    string     `db:"processing_status" json:"processing_status"`
	AuditFirstName      *string    `db:"audit_first_name" json:"audit_first_name,omitempty"`
	AuditLastName       *string    `db:"audit_last_name" json:"audit_last_name,omitempty"`
	AuditFirm           *string    `db:"audit_firm" json:"audit_firm,omitempty"`
	AuditCompletionDate *time.Time `db:"audit_completion_date" json:"audit_completion_date,omitempty"`
	AuditOpinion        *string    `db:"audit_opinion" json:"audit_opinion,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// XBRLFact is one extracted fact row. Facts are deleted and re-inserted
// wholesale per report.
type XBRLFact struct {
	ID             int64    `db:"id" json:"id"`
	AnnualReportID int64    `db:"annual_report_id" json:"annual_report_id"`
	Orgnr          string   `db:"orgnr" json:"orgnr"`
	FiscalYear     int      `db:"fiscal_year" json:"fiscal_year"`
	XBRLName       string   `db:"xbrl_name" json:"xbrl_name"`
	Namespace      string   `db:"namespace" json:"namespace"`
	LocalName      string   `db:"local_name" json:"local_name"`
	ContextRef     string   `db:"context_ref" json:"context_ref"`
	PeriodType     string   `db:"period_type" json:"period_type"`
	ValueNumeric   *float64 `db:"value_numeric" json:"value_numeric,omitempty"`
	ValueText      *string  `db:"value_text" json:"value_text,omitempty"`
	ValueBoolean   *bool    `db:"value_boolean" json:"value_boolean,omitempty"`
	UnitRef        *string  `db:"unit_ref" json:"unit_ref,omitempty"`
	Decimals       *string  `db:"decimals" json:"decimals,omitempty"`
	Scale          *int     `db:"scale" json:"scale,omitempty"`
	Category       string   `db:"category" json:"category"`
	Availability   string   `db:"availability" json:"availability"`
}

// AuditHistoryEntry records auditor sign-off per (orgnr, fiscal_year).
type AuditHistoryEntry struct {
	ID             int64      `db:"id" json:"id"`
	Orgnr          string     `db:"orgnr" json:"orgnr"`
	FiscalYear     int        `db:"fiscal_year" json:"fiscal_year"`
	FirstName      *string    `db:"first_name" json:"first_name,omitempty"`
	LastName       *string    `db:"last_name" json:"last_name,omitempty"`
	Firm           *string    `db:"firm" json:"firm,omitempty"`
	CompletionDate *time.Time `db:"completion_date" json:"completion_date,omitempty"`
	Opinion        *string    `db:"opinion" json:"opinion,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// BoardHistoryEntry records board composition percentages per fiscal year.
type BoardHistoryEntry struct {
	ID         int64     `db:"id" json:"id"`
	Orgnr      string    `db:"orgnr" json:"orgnr"`
	FiscalYear int       `db:"fiscal_year" json:"fiscal_year"`
	WomenPct   *float64  `db:"women_pct" json:"women_pct,omitempty"`
	MenPct     *float64  `db:"men_pct" json:"men_pct,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
