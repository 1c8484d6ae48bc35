package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/store"
)

const upsertCompanySQL = `
	INSERT INTO companies (orgnr, name, company_type, status, registration_date,
		postal_street, postal_code, postal_city, visiting_street, visiting_city,
		phone, email, website, municipality, county, lei_code, share_capital,
		is_group, parent_orgnr, parent_name, companies_in_group,
		source_basic, source_board, source_financials, created_at, updated_at)
	VALUES (:orgnr, :name, :company_type, :status, :registration_date,
		:postal_street, :postal_code, :postal_city, :visiting_street, :visiting_city,
		:phone, :email, :website, :municipality, :county, :lei_code, :share_capital,
		:is_group, :parent_orgnr, :parent_name, :companies_in_group,
		:source_basic, :source_board, :source_financials, now(), now())
	ON CONFLICT (orgnr) DO UPDATE SET
		name = EXCLUDED.name,
		company_type = EXCLUDED.company_type,
		status = EXCLUDED.status,
		registration_date = EXCLUDED.registration_date,
		postal_street = EXCLUDED.postal_street,
		postal_code = EXCLUDED.postal_code,
		postal_city = EXCLUDED.postal_city,
		visiting_street = EXCLUDED.visiting_street,
		visiting_city = EXCLUDED.visiting_city,
		phone = EXCLUDED.phone,
		email = EXCLUDED.email,
		website = EXCLUDED.website,
		municipality = EXCLUDED.municipality,
		county = EXCLUDED.county,
		lei_code = EXCLUDED.lei_code,
		share_capital = EXCLUDED.share_capital,
		is_group = EXCLUDED.is_group,
		parent_orgnr = EXCLUDED.parent_orgnr,
		parent_name = EXCLUDED.parent_name,
		companies_in_group = EXCLUDED.companies_in_group,
		source_basic = EXCLUDED.source_basic,
		source_board = EXCLUDED.source_board,
		source_financials = EXCLUDED.source_financials,
		updated_at = now()`

const upsertFinancialSQL = `
	INSERT INTO financials (orgnr, period_year, is_consolidated, revenue,
		operating_result, net_profit, total_assets, total_equity, employees,
		solidity_pct, operating_margin_pct, return_on_equity_pct,
		return_on_total_cap_pct, cash_liquidity_pct, result_per_employee,
		source, source_annual_report_id, created_at, updated_at)
	VALUES (:orgnr, :period_year, :is_consolidated, :revenue,
		:operating_result, :net_profit, :total_assets, :total_equity, :employees,
		:solidity_pct, :operating_margin_pct, :return_on_equity_pct,
		:return_on_total_cap_pct, :cash_liquidity_pct, :result_per_employee,
		:source, :source_annual_report_id, now(), now())
	ON CONFLICT (orgnr, period_year, is_consolidated) DO UPDATE SET
		revenue = EXCLUDED.revenue,
		operating_result = EXCLUDED.operating_result,
		net_profit = EXCLUDED.net_profit,
		total_assets = EXCLUDED.total_assets,
		total_equity = EXCLUDED.total_equity,
		employees = EXCLUDED.employees,
		solidity_pct = EXCLUDED.solidity_pct,
		operating_margin_pct = EXCLUDED.operating_margin_pct,
		return_on_equity_pct = EXCLUDED.return_on_equity_pct,
		return_on_total_cap_pct = EXCLUDED.return_on_total_cap_pct,
		cash_liquidity_pct = EXCLUDED.cash_liquidity_pct,
		result_per_employee = EXCLUDED.result_per_employee,
		source = EXCLUDED.source,
		source_annual_report_id = EXCLUDED.source_annual_report_id,
		updated_at = now()`

// StoreCompanyComplete applies one provider refresh in a single
// transaction: snapshot the prior state when requested, upsert the
// Company row, replace each provided child list, upsert financial
// periods deduplicated within the input, and touch cache metadata.
func (s *Store) StoreCompanyComplete(ctx context.Context, update *store.CompanyUpdate) error {
	if update == nil || update.Company == nil {
		return fmt.Errorf("company is required")
	}
	orgnr := update.Company.Orgnr
	if orgnr == "" {
		return fmt.Errorf("company orgnr is required")
	}

	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	prior, err := getCompany(ctx, tx, orgnr)
	if err != nil {
		return err
	}
	if prior != nil && update.SnapshotFirst {
		priorRoles, err := selectRoles(ctx, tx, orgnr)
		if err != nil {
			return err
		}
		if err := insertSnapshots(ctx, tx, prior, priorRoles); err != nil {
			return err
		}
	}

	if _, err := sqlx.NamedExecContext(ctx, tx, upsertCompanySQL, update.Company); err != nil {
		return fmt.Errorf("failed to upsert company: %w", err)
	}

	if update.Roles != nil {
		if err := replaceChildRows(ctx, tx, "roles", orgnr, len(update.Roles), stampRoles(orgnr, update.Roles),
			`INSERT INTO roles (company_orgnr, name, birth_year, role_type, role_category, source)
			 VALUES (:company_orgnr, :name, :birth_year, :role_type, :role_category, :source)`); err != nil {
			return err
		}
	}
	if update.Industries != nil {
		if err := replaceChildRows(ctx, tx, "industries", orgnr, len(update.Industries), stampIndustries(orgnr, update.Industries),
			`INSERT INTO industries (company_orgnr, sni_code, sni_description, is_primary)
			 VALUES (:company_orgnr, :sni_code, :sni_description, :is_primary)`); err != nil {
			return err
		}
	}
	if update.Trademarks != nil {
		if err := replaceChildRows(ctx, tx, "trademarks", orgnr, len(update.Trademarks), stampTrademarks(orgnr, update.Trademarks),
			`INSERT INTO trademarks (company_orgnr, name, registration, registered_at)
			 VALUES (:company_orgnr, :name, :registration, :registered_at)`); err != nil {
			return err
		}
	}
	if update.Related != nil {
		if err := replaceChildRows(ctx, tx, "related_companies", orgnr, len(update.Related), stampRelated(orgnr, update.Related),
			`INSERT INTO related_companies (company_orgnr, related_orgnr, related_name, relation)
			 VALUES (:company_orgnr, :related_orgnr, :related_name, :relation)`); err != nil {
			return err
		}
	}
	if update.Announcements != nil {
		if err := replaceChildRows(ctx, tx, "announcements", orgnr, len(update.Announcements), stampAnnouncements(orgnr, update.Announcements),
			`INSERT INTO announcements (company_orgnr, kind, text, published_at, source)
			 VALUES (:company_orgnr, :kind, :text, :published_at, :source)`); err != nil {
			return err
		}
	}

	for _, fp := range dedupeFinancials(orgnr, update.Financials) {
		if _, err := sqlx.NamedExecContext(ctx, tx, upsertFinancialSQL, fp); err != nil {
			return fmt.Errorf("failed to upsert financial period %d: %w", fp.PeriodYear, err)
		}
	}

	if err := touchCache(ctx, tx, orgnr, update.Source); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit company update: %w", err)
	}

	log.Debug().
		Str("orgnr", orgnr).
		Str("source", update.Source).
		Bool("snapshotted", prior != nil && update.SnapshotFirst).
		Msg("Company stored")
	return nil
}

// replaceChildRows clears and reinserts one child table for a company.
func replaceChildRows(ctx context.Context, q sqlx.ExtContext, table, orgnr string, count int, rows interface{}, insertSQL string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM `+table+` WHERE company_orgnr = $1`, orgnr); err != nil {
		return fmt.Errorf("failed to clear %s: %w", table, err)
	}
	if count == 0 {
		return nil
	}
	if _, err := sqlx.NamedExecContext(ctx, q, insertSQL, rows); err != nil {
		return fmt.Errorf("failed to insert %s: %w", table, err)
	}
	return nil
}

func stampRoles(orgnr string, in []models.Role) []models.Role {
	out := make([]models.Role, len(in))
	copy(out, in)
	for i := range out {
		out[i].CompanyOrgnr = orgnr
	}
	return out
}

func stampIndustries(orgnr string, in []models.Industry) []models.Industry {
	out := make([]models.Industry, len(in))
	copy(out, in)
	for i := range out {
		out[i].CompanyOrgnr = orgnr
	}
	return out
}

func stampTrademarks(orgnr string, in []models.Trademark) []models.Trademark {
	out := make([]models.Trademark, len(in))
	copy(out, in)
	for i := range out {
		out[i].CompanyOrgnr = orgnr
	}
	return out
}

func stampRelated(orgnr string, in []models.RelatedCompany) []models.RelatedCompany {
	out := make([]models.RelatedCompany, len(in))
	copy(out, in)
	for i := range out {
		out[i].CompanyOrgnr = orgnr
	}
	return out
}

func stampAnnouncements(orgnr string, in []models.Announcement) []models.Announcement {
	out := make([]models.Announcement, len(in))
	copy(out, in)
	for i := range out {
		out[i].CompanyOrgnr = orgnr
	}
	return out
}

// dedupeFinancials stamps the orgnr and keeps the first row per
// (orgnr, period_year, is_consolidated); input order encodes source
// preference.
func dedupeFinancials(orgnr string, in []models.FinancialPeriod) []models.FinancialPeriod {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[models.FinancialKey]bool, len(in))
	out := make([]models.FinancialPeriod, 0, len(in))
	for _, fp := range in {
		fp.Orgnr = orgnr
		key := fp.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, fp)
	}
	return out
}
