package main

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/orgnr/bolagsdata/internal/models"
)

// runRegistryImport streams a delimited registry dump into the
// name-lookup table in insert batches. The dump is expected as
// orgnr, name, org_form columns in that order.
func runRegistryImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	delim, _ := cmd.Flags().GetString("delimiter")
	batch, _ := cmd.Flags().GetInt("batch")
	if batch <= 0 {
		batch = 5000
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(bufio.NewReader(f))
	if delim != "" {
		r.Comma = []rune(delim)[0]
	}
	r.FieldsPerRecord = -1

	var (
		entries  []models.CompanyRegistryEntry
		imported int64
		skipped  int
		line     int
	)
	flush := func() error {
		if len(entries) == 0 {
			return nil
		}
		n, err := st.ImportRegistryEntries(cmd.Context(), entries)
		if err != nil {
			return err
		}
		imported += n
		entries = entries[:0]
		return nil
	}

	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line+1, err)
		}
		line++
		if len(rec) < 2 {
			skipped++
			continue
		}
		orgnr := models.NormalizeOrgnr(rec[0])
		if models.ValidateOrgnr(orgnr) != nil {
			if line == 1 {
				// Header row.
				continue
			}
			skipped++
			continue
		}
		name := strings.TrimSpace(rec[1])
		if name == "" {
			skipped++
			continue
		}
		entry := models.CompanyRegistryEntry{Orgnr: orgnr, Name: name}
		if len(rec) > 2 {
			entry.OrgForm = strings.TrimSpace(rec[2])
		}
		entries = append(entries, entry)
		if len(entries) >= batch {
			if err := flush(); err != nil {
				return err
			}
			log.Info().Int64("imported", imported).Msg("registry import progress")
		}
	}
	if err := flush(); err != nil {
		return err
	}

	log.Info().
		Int64("imported", imported).
		Int("skipped", skipped).
		Str("file", args[0]).
		Msg("registry import complete")
	return nil
}
