package main

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/orgnr/bolagsdata/internal/models"
)

// runSearch queries the stored company names directly; --registry
// switches to the bulk name-lookup table and --live asks the scraped
// site's own search instead of the store.
func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	limit, _ := cmd.Flags().GetInt("limit")
	useRegistry, _ := cmd.Flags().GetBool("registry")
	live, _ := cmd.Flags().GetBool("live")
	query := strings.Join(args, " ")

	if live {
		a, err := newApp(cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.siteSearch == nil {
			return fmt.Errorf("the scraper source must be enabled for live search")
		}
		hits, err := a.siteSearch.Search(cmd.Context(), query, limit)
		if err != nil {
			return err
		}
		if len(hits) == 0 {
			log.Info().Str("query", query).Msg("no matches")
			return nil
		}
		for _, h := range hits {
			fmt.Printf("%-12s  %-8s  %s\n", models.FormatOrgnr(h.Orgnr), h.CompanyType, h.Name)
		}
		return nil
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if useRegistry {
		entries, err := st.SearchCompanyRegistry(cmd.Context(), query, limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			log.Info().Str("query", query).Msg("no matches")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%-12s  %-6s  %s\n", models.FormatOrgnr(e.Orgnr), e.OrgForm, e.Name)
		}
		return nil
	}

	companies, err := st.SearchCompanies(cmd.Context(), query, limit)
	if err != nil {
		return err
	}
	if len(companies) == 0 {
		log.Info().Str("query", query).Msg("no matches")
		return nil
	}
	for _, c := range companies {
		fmt.Printf("%-12s  %-12s  %s\n", models.FormatOrgnr(c.Orgnr), c.Status, c.Name)
	}
	return nil
}
