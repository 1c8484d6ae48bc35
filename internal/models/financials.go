package models

import "time"

// FinancialPeriod holds one reported period per (orgnr, period_year,
// is_consolidated). Amount fields are whole SEK; ratio fields are percentages
// as published. Rows are upserted on refresh and never retro-deleted.
type FinancialPeriod struct {
	ID                   int64     `db:"id" json:"id"`
	Orgnr                string    `db:"orgnr" json:"orgnr"`
	PeriodYear           int       `db:"period_year" json:"period_year"`
	IsConsolidated       bool      `db:"is_consolidated" json:"is_consolidated"`
	Revenue              *int64    `db:"revenue" json:"revenue,omitempty"`
	OperatingResult      *int64    `db:"operating_result" json:"operating_result,omitempty"`
	NetProfit            *int64    `db:"net_profit" json:"net_profit,omitempty"`
	TotalAssets          *int64    `db:"total_assets" json:"total_assets,omitempty"`
	TotalEquity          *int64    `db:"total_equity" json:"total_equity,omitempty"`
	Employees            *int      `db:"employees" json:"employees,omitempty"`
	SolidityPct          *float64  `db:"solidity_pct" json:"solidity_pct,omitempty"`
	OperatingMarginPct   *float64  `db:"operating_margin_pct" json:"operating_margin_pct,omitempty"`
	ReturnOnEquityPct    *float64  `db:"return_on_equity_pct" json:"return_on_equity_pct,omitempty"`
	ReturnOnTotalCapPct  *float64  `db:"return_on_total_cap_pct" json:"return_on_total_cap_pct,omitempty"`
	CashLiquidityPct     *float64  `db:"cash_liquidity_pct" json:"cash_liquidity_pct,omitempty"`
	ResultPerEmployee    *float64  `db:"result_per_employee" json:"result_per_employee,omitempty"`
	Source               string    `db:"source" json:"source"`
	SourceAnnualReportID *int64    `db:"source_annual_report_id" json:"source_annual_report_id,omitempty"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time `db:"updated_at" json:"updated_at"`
}

// Key identifies the unique period a row belongs to.
func (f *FinancialPeriod) Key() FinancialKey {
	return FinancialKey{Orgnr: f.Orgnr, PeriodYear: f.PeriodYear, IsConsolidated: f.IsConsolidated}
}

// FinancialKey is the natural key of a FinancialPeriod.
type FinancialKey struct {
	Orgnr          string
	PeriodYear     int
	IsConsolidated bool
}
