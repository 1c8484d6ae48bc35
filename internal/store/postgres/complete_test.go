package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/store"
)

func int64Ptr(v int64) *int64 { return &v }

func TestStoreCompanyCompleteNewCompany(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM companies WHERE orgnr`).
		WithArgs("5560001551").
		WillReturnRows(emptyCompanyRows())
	mock.ExpectExec(`INSERT INTO companies \(`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM roles WHERE company_orgnr`).
		WithArgs("5560001551").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO roles \(`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO financials \(`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO cache_metadata`).
		WithArgs("5560001551", models.SourceRegistry).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	update := &store.CompanyUpdate{
		Company: &models.Company{Orgnr: "5560001551", Name: "Test AB", Status: models.StatusActive},
		Roles: []models.Role{
			{Name: "Anna Svensson", RoleType: "Styrelseledamot", RoleCategory: models.RoleCategoryBoard},
			{Name: "Erik Berg", RoleType: "Verkställande direktör", RoleCategory: models.RoleCategoryManagement},
		},
		Financials: []models.FinancialPeriod{
			{PeriodYear: 2023, Revenue: int64Ptr(1000000), Source: models.SourceScraper},
		},
		SnapshotFirst: true,
		Source:        models.SourceRegistry,
	}

	require.NoError(t, s.StoreCompanyComplete(context.Background(), update))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCompanyCompleteSnapshotsExisting(t *testing.T) {
	s, mock := newMockStore(t)

	roleCols := []string{"id", "company_orgnr", "name", "birth_year", "role_type", "role_category", "source"}

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM companies WHERE orgnr`).
		WithArgs("5560001551").
		WillReturnRows(companyRow("5560001551", "Old Name AB"))
	mock.ExpectQuery(`FROM roles WHERE company_orgnr`).
		WithArgs("5560001551").
		WillReturnRows(sqlmock.NewRows(roleCols).
			AddRow(1, "5560001551", "Anna Svensson", nil, "Styrelseledamot", "BOARD", nil))
	mock.ExpectExec(`INSERT INTO companies_history`).
		WithArgs("5560001551", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO roles_history`).
		WithArgs("5560001551", sqlmock.AnyArg(), 1).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO companies \(`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO cache_metadata`).
		WithArgs("5560001551", models.SourceScraper).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	update := &store.CompanyUpdate{
		Company:       &models.Company{Orgnr: "5560001551", Name: "New Name AB", Status: models.StatusActive},
		SnapshotFirst: true,
		Source:        models.SourceScraper,
	}

	require.NoError(t, s.StoreCompanyComplete(context.Background(), update))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCompanyCompleteSkipsSnapshotWhenDisabled(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM companies WHERE orgnr`).
		WithArgs("5560001551").
		WillReturnRows(companyRow("5560001551", "Old Name AB"))
	mock.ExpectExec(`INSERT INTO companies \(`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO cache_metadata`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	update := &store.CompanyUpdate{
		Company: &models.Company{Orgnr: "5560001551", Name: "New Name AB"},
	}

	require.NoError(t, s.StoreCompanyComplete(context.Background(), update))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCompanyCompleteReplacesExplicitlyEmptyRoles(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM companies WHERE orgnr`).
		WithArgs("5560001551").
		WillReturnRows(emptyCompanyRows())
	mock.ExpectExec(`INSERT INTO companies \(`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM roles WHERE company_orgnr`).
		WithArgs("5560001551").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(`INSERT INTO cache_metadata`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	update := &store.CompanyUpdate{
		Company: &models.Company{Orgnr: "5560001551", Name: "Test AB"},
		Roles:   []models.Role{},
	}

	require.NoError(t, s.StoreCompanyComplete(context.Background(), update))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCompanyCompleteDedupesFinancials(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM companies WHERE orgnr`).
		WithArgs("5560001551").
		WillReturnRows(emptyCompanyRows())
	mock.ExpectExec(`INSERT INTO companies \(`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO financials \(`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO financials \(`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO cache_metadata`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// Same period twice (registry first) plus a consolidated row; the
	// duplicate is dropped, the consolidated one is kept.
	update := &store.CompanyUpdate{
		Company: &models.Company{Orgnr: "5560001551", Name: "Test AB"},
		Financials: []models.FinancialPeriod{
			{PeriodYear: 2023, Revenue: int64Ptr(1000), Source: models.SourceRegistry},
			{PeriodYear: 2023, Revenue: int64Ptr(2000), Source: models.SourceScraper},
			{PeriodYear: 2023, IsConsolidated: true, Revenue: int64Ptr(3000), Source: models.SourceScraper},
		},
	}

	require.NoError(t, s.StoreCompanyComplete(context.Background(), update))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCompanyCompleteRollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM companies WHERE orgnr`).
		WithArgs("5560001551").
		WillReturnRows(emptyCompanyRows())
	mock.ExpectExec(`INSERT INTO companies \(`).
		WillReturnError(fmt.Errorf("connection reset"))
	mock.ExpectRollback()

	update := &store.CompanyUpdate{
		Company: &models.Company{Orgnr: "5560001551", Name: "Test AB"},
	}

	err := s.StoreCompanyComplete(context.Background(), update)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to upsert company")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCompanyCompleteRequiresCompany(t *testing.T) {
	s, mock := newMockStore(t)

	err := s.StoreCompanyComplete(context.Background(), &store.CompanyUpdate{})
	require.Error(t, err)

	err = s.StoreCompanyComplete(context.Background(), &store.CompanyUpdate{
		Company: &models.Company{Name: "No Orgnr AB"},
	})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
