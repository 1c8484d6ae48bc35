package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var registryCols = []string{"orgnr", "name", "org_form"}

func TestSearchCompaniesEscapesPattern(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM companies`).
		WithArgs(`%50\% AB%`, 10).
		WillReturnRows(companyRow("5560001551", "50% AB"))

	companies, err := s.SearchCompanies(context.Background(), "50% AB", 10)
	require.NoError(t, err)
	require.Len(t, companies, 1)
	assert.Equal(t, "50% AB", companies[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchCompaniesEmptyTermSkipsQuery(t *testing.T) {
	s, mock := newMockStore(t)

	companies, err := s.SearchCompanies(context.Background(), "\x00\x01", 10)
	require.NoError(t, err)
	assert.Nil(t, companies)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchCompanyRegistryPrefixHit(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM company_registry`).
		WithArgs("Ericsson%", 5).
		WillReturnRows(sqlmock.NewRows(registryCols).
			AddRow("5560160680", "Ericsson AB", "AB"))

	entries, err := s.SearchCompanyRegistry(context.Background(), "Ericsson", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "5560160680", entries[0].Orgnr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchCompanyRegistryFallsBackToContains(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM company_registry`).
		WithArgs("kvist%", 5).
		WillReturnRows(sqlmock.NewRows(registryCols))
	mock.ExpectQuery(`FROM company_registry`).
		WithArgs("%kvist%", 5).
		WillReturnRows(sqlmock.NewRows(registryCols).
			AddRow("5561234567", "Blomkvist Bygg AB", "AB"))

	entries, err := s.SearchCompanyRegistry(context.Background(), "kvist", 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Blomkvist Bygg AB", entries[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsCacheFresh(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	cacheCols := []string{"orgnr", "last_refresh", "source"}

	mock.ExpectQuery(`FROM cache_metadata`).
		WithArgs("5560001551").
		WillReturnRows(sqlmock.NewRows(cacheCols).
			AddRow("5560001551", now.Add(-time.Hour), "registry_api"))
	fresh, err := s.IsCacheFresh(context.Background(), "5560001551", 24*time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)

	mock.ExpectQuery(`FROM cache_metadata`).
		WithArgs("5560001551").
		WillReturnRows(sqlmock.NewRows(cacheCols).
			AddRow("5560001551", now.Add(-25*time.Hour), "registry_api"))
	fresh, err = s.IsCacheFresh(context.Background(), "5560001551", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, fresh)

	mock.ExpectQuery(`FROM cache_metadata`).
		WithArgs("5569999999").
		WillReturnRows(sqlmock.NewRows(cacheCols))
	fresh, err = s.IsCacheFresh(context.Background(), "5569999999", 24*time.Hour)
	require.NoError(t, err)
	assert.False(t, fresh)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetCompanyRecordAbsent(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM companies WHERE orgnr`).
		WithArgs("5569999999").
		WillReturnRows(emptyCompanyRows())

	rec, err := s.GetCompanyRecord(context.Background(), "5569999999")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.NoError(t, mock.ExpectationsWereMet())
}
