package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/orgnr/bolagsdata/internal/models"
)

// IsCacheFresh reports whether the company's last refresh is within ttl.
// Companies never refreshed are stale.
func (s *Store) IsCacheFresh(ctx context.Context, orgnr string, ttl time.Duration) (bool, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var meta models.CacheMetadata
	err := s.db.GetContext(ctx, &meta,
		`SELECT orgnr, last_refresh, source FROM cache_metadata WHERE orgnr = $1`, orgnr)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cache metadata: %w", err)
	}
	return meta.Fresh(s.now(), ttl), nil
}

// TouchCache records a successful refresh from the given source.
func (s *Store) TouchCache(ctx context.Context, orgnr, source string) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return touchCache(ctx, s.db, orgnr, source)
}

func touchCache(ctx context.Context, q sqlx.ExtContext, orgnr, source string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO cache_metadata (orgnr, last_refresh, source) VALUES ($1, now(), $2)
		 ON CONFLICT (orgnr) DO UPDATE SET last_refresh = now(), source = EXCLUDED.source`,
		orgnr, source)
	if err != nil {
		return fmt.Errorf("failed to update cache metadata: %w", err)
	}
	return nil
}
