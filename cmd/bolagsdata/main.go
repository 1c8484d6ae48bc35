package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const (
	appName = "bolagsdata"
	version = "v0.9.1"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	root := &cobra.Command{
		Use:     appName,
		Short:   "Swedish company-data aggregation engine",
		Version: version,
		Long: `bolagsdata aggregates Swedish company records from the official
registry API and a public HTML source into one canonical store, and keeps
digitally filed annual reports (iXBRL) synced alongside them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return bindEnvFlags(cmd)
		},
	}
	root.PersistentFlags().StringP("config", "c", "", "path to the YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the read API with /health and /metrics",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	serveCmd.Flags().String("host", "", "listen host (default 127.0.0.1)")
	serveCmd.Flags().Int("port", 0, "listen port (default 8080, or HTTP_PORT)")

	fetchCmd := &cobra.Command{
		Use:   "fetch <orgnr>...",
		Short: "Fetch companies through the full source fan-out",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFetch,
	}
	fetchCmd.Flags().Bool("force", false, "refresh even when the stored record is fresh")
	fetchCmd.Flags().Bool("json", false, "print full records as JSON")

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Bulk enrichment and annual-report jobs",
	}

	syncBatchCmd := &cobra.Command{
		Use:   "batch [orgnr...]",
		Short: "Re-enrich tracked companies over a worker pool",
		Long: `Refreshes every tracked company through the full source fan-out.
Explicit orgnr arguments restrict the run to those companies.`,
		RunE: runSyncBatch,
	}
	syncBatchCmd.Flags().Int("workers", 0, "parallel workers (default from config)")
	syncBatchCmd.Flags().Bool("force", false, "refresh even when stored records are fresh")
	syncBatchCmd.Flags().String("progress", "auto", "progress output mode (auto|plain|json)")

	syncXBRLCmd := &cobra.Command{
		Use:   "xbrl [orgnr...]",
		Short: "Sync filed annual reports",
		Long: `Downloads and extracts digitally filed annual reports. Without
arguments every tracked company is swept in batches; the document
endpoints are called strictly sequentially with a fixed delay.`,
		RunE: runSyncXBRL,
	}
	syncXBRLCmd.Flags().Int("years", 0, "how many fiscal years back to cover (default from config)")
	syncXBRLCmd.Flags().Int("batch-size", 0, "companies per batch (default from config)")
	syncXBRLCmd.Flags().Bool("force", false, "re-process reports already marked processed")

	syncCmd.AddCommand(syncBatchCmd)
	syncCmd.AddCommand(syncXBRLCmd)

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored companies by name or orgnr",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}
	searchCmd.Flags().Bool("registry", false, "search the bulk registry name table instead")
	searchCmd.Flags().Bool("live", false, "query the scraped site's search instead of the store")
	searchCmd.Flags().Int("limit", 20, "maximum matches")

	migrateCmd := &cobra.Command{
		Use:   "migrate <up|down|status>",
		Short: "Apply or inspect the database schema migrations",
		Args:  cobra.ExactArgs(1),
		RunE:  runMigrate,
	}

	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Bulk registry name-table maintenance",
	}

	registryImportCmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a registry dump into the name-lookup table",
		Long: `Loads a delimited dump of {orgnr, name, org_form} rows into the
company_registry table. Rows with an invalid orgnr or empty name are
skipped; a header row is detected and ignored.`,
		Args: cobra.ExactArgs(1),
		RunE: runRegistryImport,
	}
	registryImportCmd.Flags().String("delimiter", ";", "field delimiter")
	registryImportCmd.Flags().Int("batch", 5000, "rows per insert batch")
	registryCmd.AddCommand(registryImportCmd)

	root.AddCommand(serveCmd)
	root.AddCommand(fetchCmd)
	root.AddCommand(syncCmd)
	root.AddCommand(searchCmd)
	root.AddCommand(migrateCmd)
	root.AddCommand(registryCmd)

	if err := root.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

// bindEnvFlags fills every flag not given on the command line from a
// BOLAGSDATA_<NAME> environment variable, dashes mapped to underscores.
func bindEnvFlags(cmd *cobra.Command) error {
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || bindErr != nil {
			return
		}
		key := "BOLAGSDATA_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v, ok := os.LookupEnv(key); ok {
			if err := f.Value.Set(v); err != nil {
				bindErr = fmt.Errorf("%s: %w", key, err)
			}
		}
	})
	return bindErr
}
