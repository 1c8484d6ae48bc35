package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgnr/bolagsdata/internal/models"
)

func TestSaveAnnualReportReturnsID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO annual_reports`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	report := &models.AnnualReport{
		Orgnr:            "5560001551",
		FiscalYear:       2023,
		DocumentID:       "doc-1",
		ProcessingStatus: models.ReportStatusProcessed,
	}
	id, err := s.SaveAnnualReport(context.Background(), report)
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, int64(42), report.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAnnualReportAbsent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM annual_reports WHERE orgnr`).
		WithArgs("5560001551", 2023).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	report, err := s.GetAnnualReport(context.Background(), "5560001551", 2023)
	require.NoError(t, err)
	assert.Nil(t, report)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceReportFactsBatches(t *testing.T) {
	s, mock := newMockStore(t)

	facts := make([]models.XBRLFact, 250)
	for i := range facts {
		facts[i] = models.XBRLFact{
			AnnualReportID: 42,
			Orgnr:          "5560001551",
			FiscalYear:     2023,
			XBRLName:       fmt.Sprintf("custom:Fact%d", i),
			LocalName:      fmt.Sprintf("Fact%d", i),
			Category:       models.CategoryOther,
			Availability:   models.AvailabilityExtended,
		}
	}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM xbrl_facts WHERE annual_report_id`).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 10))
	mock.ExpectExec(`INSERT INTO xbrl_facts`).WillReturnResult(sqlmock.NewResult(0, 100))
	mock.ExpectExec(`INSERT INTO xbrl_facts`).WillReturnResult(sqlmock.NewResult(0, 100))
	mock.ExpectExec(`INSERT INTO xbrl_facts`).WillReturnResult(sqlmock.NewResult(0, 50))
	mock.ExpectCommit()

	require.NoError(t, s.ReplaceReportFacts(context.Background(), 42, facts))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceReportFactsEmptyStillClears(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM xbrl_facts WHERE annual_report_id`).
		WithArgs(int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 5))
	mock.ExpectCommit()

	require.NoError(t, s.ReplaceReportFacts(context.Background(), 42, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertAuditHistory(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO audit_history`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	last := "Larsson"
	entry := &models.AuditHistoryEntry{Orgnr: "5560001551", FiscalYear: 2023, LastName: &last}
	require.NoError(t, s.UpsertAuditHistory(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertFinancialPeriod(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO financials`).
		WillReturnResult(sqlmock.NewResult(1, 1))

	period := &models.FinancialPeriod{
		Orgnr:      "5560001551",
		PeriodYear: 2023,
		Revenue:    int64Ptr(12345000),
		Source:     models.SourceXBRL,
	}
	require.NoError(t, s.UpsertFinancialPeriod(context.Background(), period))
	assert.NoError(t, mock.ExpectationsWereMet())
}
