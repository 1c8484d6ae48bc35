package xbrl

import (
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/orgnr/bolagsdata/internal/models"
)

// Column identifiers for the financial-period mapping.
const (
	fieldRevenue         = "revenue"
	fieldOperatingResult = "operating_result"
	fieldNetProfit       = "net_profit"
	fieldTotalAssets     = "total_assets"
	fieldTotalEquity     = "total_equity"
	fieldEmployees       = "employees"
	fieldSolidity        = "solidity_pct"
)

// financialFields maps qualified fact names onto financial-period
// columns. These names form the core availability set; everything else
// is classified by namespace.
var financialFields = map[string]string{
	"se-gen-base:Nettoomsattning":       fieldRevenue,
	"se-gen-base:Rorelseresultat":       fieldOperatingResult,
	"se-gen-base:AretsResultat":         fieldNetProfit,
	"se-gen-base:Tillgangar":            fieldTotalAssets,
	"se-gen-base:EgetKapital":           fieldTotalEquity,
	"se-gen-base:MedelantaletAnstallda": fieldEmployees,
	"se-gen-base:Soliditet":             fieldSolidity,
}

func availabilityFor(name string) string {
	if _, ok := financialFields[name]; ok {
		return models.AvailabilityCore
	}
	switch {
	case strings.HasPrefix(name, "se-gen-base:"):
		return models.AvailabilityCommon
	case strings.HasPrefix(name, "se-ar-base:"):
		return models.AvailabilityOptional
	}
	return models.AvailabilityExtended
}

func categoryFor(name string) string {
	if _, ok := financialFields[name]; ok {
		return models.CategoryFinancial
	}
	l := strings.ToLower(name)
	switch {
	case strings.Contains(l, "revis"):
		return models.CategoryAudit
	case strings.Contains(l, "redovisningsprincip") || strings.Contains(l, "arsredovisningslag"):
		return models.CategoryCompliance
	case strings.Contains(l, "styrelse") || strings.Contains(l, "befattningshavare") ||
		strings.Contains(l, "fordelning") || strings.Contains(l, "anstallda"):
		return models.CategoryCompany
	case strings.Contains(l, "resultat") || strings.Contains(l, "omsattning") ||
		strings.Contains(l, "intakter") || strings.Contains(l, "kostnader") ||
		strings.Contains(l, "tillgangar") || strings.Contains(l, "skulder") ||
		strings.Contains(l, "kapital") || strings.Contains(l, "likviditet"):
		return models.CategoryFinancial
	}
	return models.CategoryOther
}

func buildFacts(orgnr string, reportID int64, fiscalYear int, in []Fact) []models.XBRLFact {
	out := make([]models.XBRLFact, 0, len(in))
	for _, f := range in {
		row := models.XBRLFact{
			AnnualReportID: reportID,
			Orgnr:          orgnr,
			FiscalYear:     fiscalYear,
			XBRLName:       f.Name,
			Namespace:      f.Namespace,
			LocalName:      f.LocalName,
			ContextRef:     f.ContextRef,
			PeriodType:     PeriodTypeForContext(f.ContextRef),
			Decimals:       f.Decimals,
			Scale:          f.Scale,
			Category:       categoryFor(f.Name),
			Availability:   availabilityFor(f.Name),
		}
		if f.UnitRef != "" {
			u := f.UnitRef
			row.UnitRef = &u
		}
		if f.IsNumeric {
			if f.Numeric != nil {
				v, _ := new(big.Float).SetRat(f.Numeric).Float64()
				row.ValueNumeric = &v
			}
		} else {
			switch strings.ToLower(f.Text) {
			case "true":
				b := true
				row.ValueBoolean = &b
			case "false":
				b := false
				row.ValueBoolean = &b
			default:
				if f.Text != "" {
					t := f.Text
					row.ValueText = &t
				}
			}
		}
		out = append(out, row)
	}
	return out
}

// buildFinancialPeriod assembles the financial summary row for the
// report's own fiscal year from current-period facts. Values are
// rounded to whole SEK.
func buildFinancialPeriod(orgnr string, fiscalYear int, reportID int64, facts []Fact) *models.FinancialPeriod {
	fp := &models.FinancialPeriod{
		Orgnr:                orgnr,
		PeriodYear:           fiscalYear,
		Source:               models.SourceXBRL,
		SourceAnnualReportID: &reportID,
	}

	mapped := false
	for _, f := range facts {
		field, ok := financialFields[f.Name]
		if !ok || f.Numeric == nil {
			continue
		}
		if PeriodTypeForContext(f.ContextRef) != models.PeriodCurrent {
			continue
		}
		mapped = true
		switch field {
		case fieldRevenue:
			fp.Revenue = ratToAmount(f.Numeric)
		case fieldOperatingResult:
			fp.OperatingResult = ratToAmount(f.Numeric)
		case fieldNetProfit:
			fp.NetProfit = ratToAmount(f.Numeric)
		case fieldTotalAssets:
			fp.TotalAssets = ratToAmount(f.Numeric)
		case fieldTotalEquity:
			fp.TotalEquity = ratToAmount(f.Numeric)
		case fieldEmployees:
			v, _ := new(big.Float).SetRat(f.Numeric).Float64()
			n := int(math.Round(v))
			fp.Employees = &n
		case fieldSolidity:
			v, _ := new(big.Float).SetRat(f.Numeric).Float64()
			fp.SolidityPct = &v
		}
	}
	if !mapped {
		return nil
	}
	return fp
}

func ratToAmount(r *big.Rat) *int64 {
	v, _ := new(big.Float).SetRat(r).Float64()
	n := int64(math.Round(v))
	return &n
}

type auditInfo struct {
	FirstName      string
	LastName       string
	Firm           string
	CompletionDate *time.Time
	Opinion        string
}

// extractAudit pulls the auditor sign-off out of the report facts.
// Returns nil when the report carries no audit content at all.
func extractAudit(facts []Fact) *auditInfo {
	var info auditInfo
	found := false
	for _, f := range facts {
		l := strings.ToLower(f.LocalName)
		if !strings.Contains(l, "revis") {
			continue
		}
		found = true
		switch {
		case strings.HasSuffix(l, "fornamn"):
			info.FirstName = f.Text
		case strings.HasSuffix(l, "efternamn"):
			info.LastName = f.Text
		case strings.Contains(l, "revisionsforetag") || strings.Contains(l, "revisionsbolag"):
			if f.Text != "" {
				info.Firm = f.Text
			}
		case strings.Contains(l, "datum"):
			if t, err := time.Parse("2006-01-02", f.Text); err == nil {
				info.CompletionDate = &t
			}
		case strings.Contains(l, "uttalande"):
			if info.Opinion == "" {
				info.Opinion = f.Text
			}
		}
	}
	if !found {
		return nil
	}
	return &info
}

// extractBoard derives board gender shares from the Fordelning facts.
// Values that already sum to 100 are taken as percentages, anything
// else as head counts.
func extractBoard(facts []Fact) (women, men float64, ok bool) {
	var w, m *float64
	for _, f := range facts {
		if f.Numeric == nil || !strings.HasPrefix(f.LocalName, "Fordelning") {
			continue
		}
		v, _ := new(big.Float).SetRat(f.Numeric).Float64()
		switch {
		case strings.HasSuffix(f.LocalName, "Kvinnor"):
			w = &v
		case strings.HasSuffix(f.LocalName, "Man"):
			m = &v
		}
	}
	if w == nil || m == nil {
		return 0, 0, false
	}
	total := *w + *m
	if total == 0 {
		return 0, 0, false
	}
	if total == 100 {
		return *w, *m, true
	}
	return 100 * *w / total, 100 * *m / total, true
}
