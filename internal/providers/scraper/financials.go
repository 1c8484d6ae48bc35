package scraper

import (
	"math"

	"github.com/rs/zerolog/log"

	"github.com/orgnr/bolagsdata/internal/models"
)

// Account amounts arrive in thousands of SEK except for the codes
// below, which are head counts, percentages or already-scaled ratios.
var noMultiply = map[string]bool{
	"ANT":                true,
	"EKA":                true,
	"RG":                 true,
	"RPE":                true,
	"avk_eget_kapital":   true,
	"avk_totalt_kapital": true,
	"kassalikviditet":    true,
}

func buildFinancials(orgnr string, accounts []accountsPayload) []models.FinancialPeriod {
	var out []models.FinancialPeriod
	for _, year := range accounts {
		if year.Year == 0 {
			continue
		}
		fp := models.FinancialPeriod{
			Orgnr:          orgnr,
			PeriodYear:     year.Year,
			IsConsolidated: year.Consolidated,
			Source:         models.SourceScraper,
		}
		for _, line := range year.Accounts {
			applyAccount(&fp, line)
		}
		out = append(out, fp)
	}
	return out
}

func applyAccount(fp *models.FinancialPeriod, line accountLine) {
	v, err := line.Amount.Float64()
	if err != nil {
		log.Debug().Str("code", line.Code).Str("amount", line.Amount.String()).Msg("Unparseable account amount")
		return
	}
	if !noMultiply[line.Code] {
		v *= 1000
	}

	switch line.Code {
	case "SDI":
		fp.Revenue = amount(v)
	case "RR":
		fp.OperatingResult = amount(v)
	case "DR":
		fp.NetProfit = amount(v)
	case "BO":
		fp.TotalAssets = amount(v)
	case "EK":
		fp.TotalEquity = amount(v)
	case "ANT":
		n := int(math.Round(v))
		fp.Employees = &n
	case "EKA":
		fp.SolidityPct = &v
	case "RG":
		fp.OperatingMarginPct = &v
	case "RPE":
		fp.ResultPerEmployee = &v
	case "avk_eget_kapital":
		fp.ReturnOnEquityPct = &v
	case "avk_totalt_kapital":
		fp.ReturnOnTotalCapPct = &v
	case "kassalikviditet":
		fp.CashLiquidityPct = &v
	}
}

func amount(v float64) *int64 {
	n := int64(math.Round(v))
	return &n
}
