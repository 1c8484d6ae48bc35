package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/store"
)

const companyColumns = `orgnr, name, company_type, status, registration_date,
	postal_street, postal_code, postal_city, visiting_street, visiting_city,
	phone, email, website, municipality, county, lei_code, share_capital,
	is_group, parent_orgnr, parent_name, companies_in_group,
	source_basic, source_board, source_financials, created_at, updated_at`

const financialColumns = `id, orgnr, period_year, is_consolidated, revenue,
	operating_result, net_profit, total_assets, total_equity, employees,
	solidity_pct, operating_margin_pct, return_on_equity_pct,
	return_on_total_cap_pct, cash_liquidity_pct, result_per_employee,
	source, source_annual_report_id, created_at, updated_at`

// GetCompany returns the bare Company row, nil when absent.
func (s *Store) GetCompany(ctx context.Context, orgnr string) (*models.Company, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return getCompany(ctx, s.db, orgnr)
}

func getCompany(ctx context.Context, q sqlx.ExtContext, orgnr string) (*models.Company, error) {
	var c models.Company
	err := sqlx.GetContext(ctx, q, &c,
		`SELECT `+companyColumns+` FROM companies WHERE orgnr = $1`, orgnr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get company: %w", err)
	}
	return &c, nil
}

// GetCompanyRecord assembles the Company row with all child lists.
func (s *Store) GetCompanyRecord(ctx context.Context, orgnr string) (*store.CompanyRecord, error) {
	company, err := s.GetCompany(ctx, orgnr)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, nil
	}

	rec := &store.CompanyRecord{Company: *company}
	if rec.Roles, err = s.listRoles(ctx, orgnr); err != nil {
		return nil, err
	}
	if rec.Financials, err = s.ListFinancials(ctx, orgnr); err != nil {
		return nil, err
	}
	if rec.Industries, err = s.listIndustries(ctx, orgnr); err != nil {
		return nil, err
	}
	if rec.Trademarks, err = s.listTrademarks(ctx, orgnr); err != nil {
		return nil, err
	}
	if rec.Related, err = s.listRelated(ctx, orgnr); err != nil {
		return nil, err
	}
	if rec.Announcements, err = s.listAnnouncements(ctx, orgnr); err != nil {
		return nil, err
	}
	return rec, nil
}

// ListFinancials returns the financial periods for one company, newest
// first with standalone accounts before consolidated within a year.
func (s *Store) ListFinancials(ctx context.Context, orgnr string) ([]models.FinancialPeriod, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var periods []models.FinancialPeriod
	err := s.db.SelectContext(ctx, &periods,
		`SELECT `+financialColumns+` FROM financials
		 WHERE orgnr = $1
		 ORDER BY period_year DESC, is_consolidated ASC`, orgnr)
	if err != nil {
		return nil, fmt.Errorf("failed to list financials: %w", err)
	}
	return periods, nil
}

func (s *Store) listRoles(ctx context.Context, orgnr string) ([]models.Role, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return selectRoles(ctx, s.db, orgnr)
}

func selectRoles(ctx context.Context, q sqlx.ExtContext, orgnr string) ([]models.Role, error) {
	var roles []models.Role
	err := sqlx.SelectContext(ctx, q, &roles,
		`SELECT id, company_orgnr, name, birth_year, role_type, role_category, source
		 FROM roles WHERE company_orgnr = $1 ORDER BY id`, orgnr)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	return roles, nil
}

func (s *Store) listIndustries(ctx context.Context, orgnr string) ([]models.Industry, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var industries []models.Industry
	err := s.db.SelectContext(ctx, &industries,
		`SELECT id, company_orgnr, sni_code, sni_description, is_primary
		 FROM industries WHERE company_orgnr = $1 ORDER BY is_primary DESC, id`, orgnr)
	if err != nil {
		return nil, fmt.Errorf("failed to list industries: %w", err)
	}
	return industries, nil
}

func (s *Store) listTrademarks(ctx context.Context, orgnr string) ([]models.Trademark, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var marks []models.Trademark
	err := s.db.SelectContext(ctx, &marks,
		`SELECT id, company_orgnr, name, registration, registered_at
		 FROM trademarks WHERE company_orgnr = $1 ORDER BY id`, orgnr)
	if err != nil {
		return nil, fmt.Errorf("failed to list trademarks: %w", err)
	}
	return marks, nil
}

func (s *Store) listRelated(ctx context.Context, orgnr string) ([]models.RelatedCompany, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var related []models.RelatedCompany
	err := s.db.SelectContext(ctx, &related,
		`SELECT id, company_orgnr, related_orgnr, related_name, relation
		 FROM related_companies WHERE company_orgnr = $1 ORDER BY id`, orgnr)
	if err != nil {
		return nil, fmt.Errorf("failed to list related companies: %w", err)
	}
	return related, nil
}

func (s *Store) listAnnouncements(ctx context.Context, orgnr string) ([]models.Announcement, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var items []models.Announcement
	err := s.db.SelectContext(ctx, &items,
		`SELECT id, company_orgnr, kind, text, published_at, source
		 FROM announcements WHERE company_orgnr = $1
		 ORDER BY published_at DESC NULLS LAST, id`, orgnr)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcements: %w", err)
	}
	return items, nil
}

// ListTrackedOrgnrs returns every stored orgnr in ascending order.
func (s *Store) ListTrackedOrgnrs(ctx context.Context) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var orgnrs []string
	err := s.db.SelectContext(ctx, &orgnrs,
		`SELECT orgnr FROM companies ORDER BY orgnr`)
	if err != nil {
		return nil, fmt.Errorf("failed to list orgnrs: %w", err)
	}
	return orgnrs, nil
}

// CountCompanies returns the number of canonical records.
func (s *Store) CountCompanies(ctx context.Context) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM companies`)
	if err != nil {
		return 0, fmt.Errorf("failed to count companies: %w", err)
	}
	return count, nil
}

// SearchCompanies matches canonical records by name substring.
func (s *Store) SearchCompanies(ctx context.Context, term string, limit int) ([]models.Company, error) {
	q := store.SanitizeSearchTerm(term)
	if q == "" {
		return nil, nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var companies []models.Company
	err := s.db.SelectContext(ctx, &companies,
		`SELECT `+companyColumns+` FROM companies
		 WHERE name ILIKE $1 ORDER BY name LIMIT $2`,
		"%"+q+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search companies: %w", err)
	}
	return companies, nil
}
