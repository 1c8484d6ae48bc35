package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/store"
)

// runFetch resolves each argument through the orchestrator and prints
// the result. Failures are reported per orgnr; the command fails when
// any lookup did.
func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	force, _ := cmd.Flags().GetBool("force")
	asJSON, _ := cmd.Flags().GetBool("json")

	var failed int
	for _, orgnr := range args {
		rec, err := a.orch.GetCompany(cmd.Context(), orgnr, force)
		if err != nil {
			log.Error().Err(err).Str("orgnr", orgnr).Msg("fetch failed")
			failed++
			continue
		}
		if rec == nil {
			log.Warn().Str("orgnr", orgnr).Msg("no source knows this company")
			failed++
			continue
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(rec); err != nil {
				return err
			}
			continue
		}
		printRecord(rec)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d lookups failed", failed, len(args))
	}
	return nil
}

func printRecord(rec *store.CompanyRecord) {
	c := rec.Company
	fmt.Printf("%s  %s\n", models.FormatOrgnr(c.Orgnr), c.Name)
	fmt.Printf("  status: %s", c.Status)
	if c.CompanyType != nil {
		fmt.Printf("  form: %s", *c.CompanyType)
	}
	if rec.FromCache {
		fmt.Printf("  (cached)")
	}
	fmt.Println()
	if c.PostalCity != nil {
		fmt.Printf("  city: %s\n", *c.PostalCity)
	}
	fmt.Printf("  roles: %d  financial periods: %d  industries: %d  trademarks: %d\n",
		len(rec.Roles), len(rec.Financials), len(rec.Industries), len(rec.Trademarks))
}
