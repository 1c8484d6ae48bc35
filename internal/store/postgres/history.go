package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/orgnr/bolagsdata/internal/models"
)

// insertSnapshots appends the prior Company row and roles list to the
// history tables. Both rows are written even when the roles list is
// empty, so every refresh leaves a complete before-image.
func insertSnapshots(ctx context.Context, q sqlx.ExtContext, company *models.Company, roles []models.Role) error {
	companyJSON, err := json.Marshal(company)
	if err != nil {
		return fmt.Errorf("failed to marshal company snapshot: %w", err)
	}
	if roles == nil {
		roles = []models.Role{}
	}
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("failed to marshal roles snapshot: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		`INSERT INTO companies_history (orgnr, snapshot, snapshot_date) VALUES ($1, $2, now())`,
		company.Orgnr, companyJSON); err != nil {
		return fmt.Errorf("failed to insert company snapshot: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO roles_history (orgnr, snapshot, role_count, snapshot_date) VALUES ($1, $2, $3, now())`,
		company.Orgnr, rolesJSON, len(roles)); err != nil {
		return fmt.Errorf("failed to insert roles snapshot: %w", err)
	}
	return nil
}

// ListCompanySnapshots returns prior Company states, newest first.
func (s *Store) ListCompanySnapshots(ctx context.Context, orgnr string, limit int) ([]models.CompanyHistorySnapshot, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var snaps []models.CompanyHistorySnapshot
	err := s.db.SelectContext(ctx, &snaps,
		`SELECT id, orgnr, snapshot, snapshot_date FROM companies_history
		 WHERE orgnr = $1 ORDER BY snapshot_date DESC, id DESC LIMIT $2`, orgnr, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list company snapshots: %w", err)
	}
	return snaps, nil
}

// ListRoleSnapshots returns prior role lists, newest first.
func (s *Store) ListRoleSnapshots(ctx context.Context, orgnr string, limit int) ([]models.RolesHistorySnapshot, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var snaps []models.RolesHistorySnapshot
	err := s.db.SelectContext(ctx, &snaps,
		`SELECT id, orgnr, snapshot, role_count, snapshot_date FROM roles_history
		 WHERE orgnr = $1 ORDER BY snapshot_date DESC, id DESC LIMIT $2`, orgnr, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list role snapshots: %w", err)
	}
	return snaps, nil
}
