package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// runMigrate applies, rolls back or reports the embedded schema
// migrations. Only a DSN is required.
func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	switch args[0] {
	case "up":
		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}
		log.Info().Msg("migrations applied")
	case "down":
		if err := st.MigrateDown(cmd.Context()); err != nil {
			return err
		}
		log.Info().Msg("rolled back one migration")
	case "status":
		return st.MigrationStatus(cmd.Context())
	default:
		return fmt.Errorf("unknown direction %q: want up, down or status", args[0])
	}
	return nil
}
