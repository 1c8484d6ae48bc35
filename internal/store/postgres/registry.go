package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/store"
)

const registryImportBatchSize = 500

// SearchCompanyRegistry matches registry entries by name, prefix first
// and contains as the fallback when the prefix pass finds nothing.
func (s *Store) SearchCompanyRegistry(ctx context.Context, term string, limit int) ([]models.CompanyRegistryEntry, error) {
	q := store.SanitizeSearchTerm(term)
	if q == "" {
		return nil, nil
	}

	entries, err := s.searchRegistryPattern(ctx, q+"%", limit)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		return entries, nil
	}
	return s.searchRegistryPattern(ctx, "%"+q+"%", limit)
}

func (s *Store) searchRegistryPattern(ctx context.Context, pattern string, limit int) ([]models.CompanyRegistryEntry, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var entries []models.CompanyRegistryEntry
	err := s.db.SelectContext(ctx, &entries,
		`SELECT orgnr, name, org_form FROM company_registry
		 WHERE name ILIKE $1 ORDER BY name LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search company registry: %w", err)
	}
	return entries, nil
}

// ImportRegistryEntries upserts registry entries in batches and returns
// the number written. Entries without an orgnr are skipped.
func (s *Store) ImportRegistryEntries(ctx context.Context, entries []models.CompanyRegistryEntry) (int64, error) {
	rows := make([]models.CompanyRegistryEntry, 0, len(entries))
	for _, e := range entries {
		if e.Orgnr == "" {
			continue
		}
		rows = append(rows, e)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout*time.Duration(len(rows)/registryImportBatchSize+1))
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(rows); start += registryImportBatchSize {
		end := start + registryImportBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO company_registry (orgnr, name, org_form)
			 VALUES (:orgnr, :name, :org_form)
			 ON CONFLICT (orgnr) DO UPDATE SET name = EXCLUDED.name, org_form = EXCLUDED.org_form`,
			rows[start:end]); err != nil {
			return 0, fmt.Errorf("failed to import registry batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit registry import: %w", err)
	}
	return int64(len(rows)), nil
}

// CountRegistryEntries returns the registry table size.
func (s *Store) CountRegistryEntries(ctx context.Context) (int64, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var count int64
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM company_registry`)
	if err != nil {
		return 0, fmt.Errorf("failed to count registry entries: %w", err)
	}
	return count, nil
}
