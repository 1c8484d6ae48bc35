package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/orgnr/bolagsdata/internal/models"
)

// factBatchSize bounds one multi-row fact insert.
const factBatchSize = 100

const reportColumns = `id, orgnr, fiscal_year, document_id, fiscal_year_start,
	fiscal_year_end, total_facts_extracted, is_audited, processing_status,
	audit_first_name, audit_last_name, audit_firm, audit_completion_date,
	audit_opinion, created_at, updated_at`

const factColumns = `id, annual_report_id, orgnr, fiscal_year, xbrl_name,
	namespace, local_name, context_ref, period_type, value_numeric, value_text,
	value_boolean, unit_ref, decimals, scale, category, availability`

// GetAnnualReport returns the report row for one fiscal year, nil when
// absent.
func (s *Store) GetAnnualReport(ctx context.Context, orgnr string, fiscalYear int) (*models.AnnualReport, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var report models.AnnualReport
	err := s.db.GetContext(ctx, &report,
		`SELECT `+reportColumns+` FROM annual_reports WHERE orgnr = $1 AND fiscal_year = $2`,
		orgnr, fiscalYear)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get annual report: %w", err)
	}
	return &report, nil
}

// SaveAnnualReport upserts on (orgnr, fiscal_year) and returns the row id.
func (s *Store) SaveAnnualReport(ctx context.Context, report *models.AnnualReport) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var id int64
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO annual_reports (orgnr, fiscal_year, document_id, fiscal_year_start,
			fiscal_year_end, total_facts_extracted, is_audited, processing_status,
			audit_first_name, audit_last_name, audit_firm, audit_completion_date,
			audit_opinion, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())
		ON CONFLICT (orgnr, fiscal_year) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			fiscal_year_start = EXCLUDED.fiscal_year_start,
			fiscal_year_end = EXCLUDED.fiscal_year_end,
			total_facts_extracted = EXCLUDED.total_facts_extracted,
			is_audited = EXCLUDED.is_audited,
			processing_status = EXCLUDED.processing_status,
			audit_first_name = EXCLUDED.audit_first_name,
			audit_last_name = EXCLUDED.audit_last_name,
			audit_firm = EXCLUDED.audit_firm,
			audit_completion_date = EXCLUDED.audit_completion_date,
			audit_opinion = EXCLUDED.audit_opinion,
			updated_at = now()
		RETURNING id`,
		report.Orgnr, report.FiscalYear, report.DocumentID, report.FiscalYearStart,
		report.FiscalYearEnd, report.TotalFactsExtracted, report.IsAudited,
		report.ProcessingStatus, report.AuditFirstName, report.AuditLastName,
		report.AuditFirm, report.AuditCompletionDate, report.AuditOpinion).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save annual report: %w", err)
	}
	report.ID = id
	return id, nil
}

// ListAnnualReports returns all reports for one company, newest first.
func (s *Store) ListAnnualReports(ctx context.Context, orgnr string) ([]models.AnnualReport, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var reports []models.AnnualReport
	err := s.db.SelectContext(ctx, &reports,
		`SELECT `+reportColumns+` FROM annual_reports WHERE orgnr = $1 ORDER BY fiscal_year DESC`,
		orgnr)
	if err != nil {
		return nil, fmt.Errorf("failed to list annual reports: %w", err)
	}
	return reports, nil
}

// ReplaceReportFacts deletes prior facts for the report and bulk
// inserts the new set in batches.
func (s *Store) ReplaceReportFacts(ctx context.Context, reportID int64, facts []models.XBRLFact) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout*time.Duration(len(facts)/factBatchSize+1))
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM xbrl_facts WHERE annual_report_id = $1`, reportID); err != nil {
		return fmt.Errorf("failed to clear report facts: %w", err)
	}

	for start := 0; start < len(facts); start += factBatchSize {
		end := start + factBatchSize
		if end > len(facts) {
			end = len(facts)
		}
		if _, err := tx.NamedExecContext(ctx, `
			INSERT INTO xbrl_facts (annual_report_id, orgnr, fiscal_year, xbrl_name,
				namespace, local_name, context_ref, period_type, value_numeric,
				value_text, value_boolean, unit_ref, decimals, scale, category, availability)
			VALUES (:annual_report_id, :orgnr, :fiscal_year, :xbrl_name,
				:namespace, :local_name, :context_ref, :period_type, :value_numeric,
				:value_text, :value_boolean, :unit_ref, :decimals, :scale, :category, :availability)`,
			facts[start:end]); err != nil {
			return fmt.Errorf("failed to insert fact batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit report facts: %w", err)
	}
	return nil
}

// ListReportFacts returns facts for one company and fiscal year in
// extraction order.
func (s *Store) ListReportFacts(ctx context.Context, orgnr string, fiscalYear int) ([]models.XBRLFact, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var facts []models.XBRLFact
	err := s.db.SelectContext(ctx, &facts,
		`SELECT `+factColumns+` FROM xbrl_facts WHERE orgnr = $1 AND fiscal_year = $2 ORDER BY id`,
		orgnr, fiscalYear)
	if err != nil {
		return nil, fmt.Errorf("failed to list report facts: %w", err)
	}
	return facts, nil
}

// UpsertAuditHistory upserts audit sign-off on (orgnr, fiscal_year).
func (s *Store) UpsertAuditHistory(ctx context.Context, entry *models.AuditHistoryEntry) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := sqlx.NamedExecContext(ctx, s.db, `
		INSERT INTO audit_history (orgnr, fiscal_year, first_name, last_name,
			firm, completion_date, opinion, created_at)
		VALUES (:orgnr, :fiscal_year, :first_name, :last_name,
			:firm, :completion_date, :opinion, now())
		ON CONFLICT (orgnr, fiscal_year) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			firm = EXCLUDED.firm,
			completion_date = EXCLUDED.completion_date,
			opinion = EXCLUDED.opinion`,
		entry)
	if err != nil {
		return fmt.Errorf("failed to upsert audit history: %w", err)
	}
	return nil
}

// InsertBoardHistory appends one board composition row.
func (s *Store) InsertBoardHistory(ctx context.Context, entry *models.BoardHistoryEntry) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	_, err := sqlx.NamedExecContext(ctx, s.db, `
		INSERT INTO board_history (orgnr, fiscal_year, women_pct, men_pct, created_at)
		VALUES (:orgnr, :fiscal_year, :women_pct, :men_pct, now())`,
		entry)
	if err != nil {
		return fmt.Errorf("failed to insert board history: %w", err)
	}
	return nil
}

// UpsertFinancialPeriod upserts on (orgnr, period_year, is_consolidated).
func (s *Store) UpsertFinancialPeriod(ctx context.Context, period *models.FinancialPeriod) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := sqlx.NamedExecContext(ctx, s.db, upsertFinancialSQL, period); err != nil {
		return fmt.Errorf("failed to upsert financial period: %w", err)
	}
	return nil
}
