package xbrl

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/orgnr/bolagsdata/internal/models"
)

// ReportStore is the slice of persistence the pipeline needs.
type ReportStore interface {
	GetAnnualReport(ctx context.Context, orgnr string, fiscalYear int) (*models.AnnualReport, error)
	SaveAnnualReport(ctx context.Context, report *models.AnnualReport) (int64, error)
	ReplaceReportFacts(ctx context.Context, reportID int64, facts []models.XBRLFact) error
	UpsertAuditHistory(ctx context.Context, entry *models.AuditHistoryEntry) error
	InsertBoardHistory(ctx context.Context, entry *models.BoardHistoryEntry) error
	UpsertFinancialPeriod(ctx context.Context, period *models.FinancialPeriod) error
}

// Metrics receives pipeline observations.
type Metrics interface {
	AddFactsExtracted(n int)
}

// Pipeline drives report discovery, extraction and persistence for one
// company at a time.
type Pipeline struct {
	client  *Client
	store   ReportStore
	metrics Metrics
	now     func() time.Time
}

// NewPipeline wires the document client to the store.
func NewPipeline(client *Client, store ReportStore) *Pipeline {
	return &Pipeline{client: client, store: store, now: time.Now}
}

// WithMetrics attaches a metrics sink.
func (p *Pipeline) WithMetrics(m Metrics) *Pipeline {
	p.metrics = m
	return p
}

// SyncResult summarizes one company sync.
type SyncResult struct {
	Orgnr     string   `json:"orgnr"`
	Found     int      `json:"found"`
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// SyncCompany processes the company's filed reports from the most
// recent years. Already-processed reports are skipped unless force is
// set; per-document failures are recorded and the loop continues.
func (p *Pipeline) SyncCompany(ctx context.Context, orgnr string, years int, force bool) (*SyncResult, error) {
	norm := models.NormalizeOrgnr(orgnr)
	res := &SyncResult{Orgnr: norm}

	docs, err := p.client.ListDocuments(ctx, norm)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return res, nil
	}

	cutoff := p.now().Year() - years
	for _, doc := range docs {
		year := doc.FiscalYear()
		if year == 0 || year < cutoff {
			continue
		}
		res.Found++

		if !force {
			existing, err := p.store.GetAnnualReport(ctx, norm, year)
			if err == nil && existing != nil && existing.ProcessingStatus == models.ReportStatusProcessed {
				res.Skipped++
				continue
			}
		}

		if err := p.processDocument(ctx, norm, doc, year); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s (%d): %v", doc.ID, year, err))
			log.Warn().Err(err).Str("orgnr", norm).Int("fiscal_year", year).Msg("Report processing failed")
			p.markFailed(ctx, norm, year)
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			continue
		}
		res.Processed++
	}
	return res, nil
}

func (p *Pipeline) processDocument(ctx context.Context, orgnr string, doc Document, year int) error {
	data, err := p.client.DownloadDocument(ctx, doc.ID)
	if err != nil {
		return err
	}
	content, err := ExtractReport(data)
	if err != nil {
		return err
	}
	parsed, err := Parse(content)
	if err != nil {
		return err
	}
	return p.persist(ctx, orgnr, doc, year, parsed)
}

func (p *Pipeline) persist(ctx context.Context, orgnr string, doc Document, year int, parsed *ParsedReport) error {
	report := &models.AnnualReport{
		Orgnr:               orgnr,
		FiscalYear:          year,
		DocumentID:          doc.ID,
		TotalFactsExtracted: len(parsed.Facts),
		NamespacesUsed:      parsed.Namespaces(),
		ProcessingStatus:    models.ReportStatusProcessed,
	}
	if cx, ok := parsed.Contexts["period0"]; ok {
		report.FiscalYearStart = cx.StartDate
		report.FiscalYearEnd = cx.EndDate
	}

	audit := extractAudit(parsed.Facts)
	if audit != nil {
		report.IsAudited = true
		report.AuditFirstName = optional(audit.FirstName)
		report.AuditLastName = optional(audit.LastName)
		report.AuditFirm = optional(audit.Firm)
		report.AuditCompletionDate = audit.CompletionDate
		report.AuditOpinion = optional(audit.Opinion)
	}

	reportID, err := p.store.SaveAnnualReport(ctx, report)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}

	if err := p.store.ReplaceReportFacts(ctx, reportID, buildFacts(orgnr, reportID, year, parsed.Facts)); err != nil {
		return fmt.Errorf("replace facts: %w", err)
	}
	if p.metrics != nil {
		p.metrics.AddFactsExtracted(len(parsed.Facts))
	}

	if audit != nil {
		entry := &models.AuditHistoryEntry{
			Orgnr:          orgnr,
			FiscalYear:     year,
			FirstName:      report.AuditFirstName,
			LastName:       report.AuditLastName,
			Firm:           report.AuditFirm,
			CompletionDate: report.AuditCompletionDate,
			Opinion:        report.AuditOpinion,
		}
		if err := p.store.UpsertAuditHistory(ctx, entry); err != nil {
			return fmt.Errorf("audit history: %w", err)
		}
	}

	if women, men, ok := extractBoard(parsed.Facts); ok {
		entry := &models.BoardHistoryEntry{
			Orgnr:      orgnr,
			FiscalYear: year,
			WomenPct:   &women,
			MenPct:     &men,
		}
		if err := p.store.InsertBoardHistory(ctx, entry); err != nil {
			return fmt.Errorf("board history: %w", err)
		}
	}

	if fp := buildFinancialPeriod(orgnr, year, reportID, parsed.Facts); fp != nil {
		if err := p.store.UpsertFinancialPeriod(ctx, fp); err != nil {
			return fmt.Errorf("financial period: %w", err)
		}
	}

	log.Info().
		Str("orgnr", orgnr).
		Int("fiscal_year", year).
		Int("facts", len(parsed.Facts)).
		Bool("audited", report.IsAudited).
		Msg("Annual report processed")
	return nil
}

// markFailed flips a previously stored report to failed. Reports that
// were never stored stay absent.
func (p *Pipeline) markFailed(ctx context.Context, orgnr string, year int) {
	existing, err := p.store.GetAnnualReport(ctx, orgnr, year)
	if err != nil || existing == nil {
		return
	}
	existing.ProcessingStatus = models.ReportStatusFailed
	if _, err := p.store.SaveAnnualReport(ctx, existing); err != nil {
		log.Warn().Err(err).Str("orgnr", orgnr).Int("fiscal_year", year).Msg("Could not mark report failed")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
