package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/orgnr/bolagsdata/internal/syncer"
)

// runSyncBatch re-enriches companies over the worker pool. Without
// arguments the tracked set from the store is used.
func runSyncBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.Sync.BatchWorkers
	}
	force, _ := cmd.Flags().GetBool("force")
	mode, _ := cmd.Flags().GetString("progress")

	orgnrs := args
	if len(orgnrs) == 0 {
		orgnrs, err = a.store.ListTrackedOrgnrs(cmd.Context())
		if err != nil {
			return err
		}
	}
	if len(orgnrs) == 0 {
		log.Info().Msg("no tracked companies to enrich")
		return nil
	}

	onProgress, finish := progressFunc(mode)
	start := time.Now()
	results := a.syncer.EnrichBatch(cmd.Context(), orgnrs, workers, force, onProgress)
	finish()

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
		}
	}
	log.Info().
		Int("companies", len(results)).
		Int("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("batch enrichment finished")
	if failed > 0 {
		return fmt.Errorf("%d of %d companies failed", failed, len(results))
	}
	return nil
}

// runSyncXBRL syncs filed annual reports, either for the named companies
// or as a full tracked-company sweep.
func runSyncXBRL(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.pipeline == nil {
		return fmt.Errorf("the registry source must be enabled for report sync")
	}

	years, _ := cmd.Flags().GetInt("years")
	if years <= 0 {
		years = cfg.Sync.YearsBack
	}
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	if batchSize <= 0 {
		batchSize = cfg.Sync.XBRLBatchSize
	}
	force, _ := cmd.Flags().GetBool("force")

	if len(args) > 0 {
		var failed int
		for _, orgnr := range args {
			res, err := a.syncer.SyncCompany(cmd.Context(), orgnr, years, force)
			if err != nil {
				log.Error().Err(err).Str("orgnr", orgnr).Msg("report sync failed")
				failed++
				continue
			}
			log.Info().
				Str("orgnr", res.Orgnr).
				Int("found", res.Found).
				Int("processed", res.Processed).
				Int("skipped", res.Skipped).
				Int("failed", res.Failed).
				Msg("report sync complete")
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d companies failed", failed, len(args))
		}
		return nil
	}

	run, err := a.syncer.SyncAllTrackedCompanies(cmd.Context(), years, batchSize, cfg.Sync.XBRLConcurrency, force)
	if err != nil {
		return err
	}
	log.Info().
		Str("run_id", run.RunID).
		Int("companies", run.Companies).
		Int("batches", run.Batches).
		Int("found", run.Found).
		Int("processed", run.Processed).
		Int("skipped", run.Skipped).
		Int("failed", run.Failed).
		Dur("duration", run.Duration).
		Msg("report sweep complete")
	for _, e := range run.Errors {
		log.Warn().Msg(e)
	}
	if run.Failed > 0 {
		return fmt.Errorf("%d companies failed during the sweep", run.Failed)
	}
	return nil
}

// progressFunc returns the per-item callback for the chosen output mode
// plus a finisher. "auto" upgrades to an in-place line on a TTY.
func progressFunc(mode string) (syncer.Progress, func()) {
	noop := func() {}
	switch mode {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		var mu sync.Mutex
		return func(done, total int, orgnr string, err error) {
			mu.Lock()
			defer mu.Unlock()
			ev := map[string]any{"done": done, "total": total, "orgnr": orgnr}
			if err != nil {
				ev["error"] = err.Error()
			}
			_ = enc.Encode(ev)
		}, noop
	case "plain":
		return plainProgress, noop
	default:
		if !term.IsTerminal(int(os.Stderr.Fd())) {
			return plainProgress, noop
		}
		var mu sync.Mutex
		return func(done, total int, orgnr string, _ error) {
				mu.Lock()
				defer mu.Unlock()
				fmt.Fprintf(os.Stderr, "\renriched %d/%d  %-14s", done, total, orgnr)
			}, func() {
				fmt.Fprintln(os.Stderr)
			}
	}
}

func plainProgress(done, total int, orgnr string, _ error) {
	log.Info().Int("done", done).Int("total", total).Str("orgnr", orgnr).Msg("enriched")
}
