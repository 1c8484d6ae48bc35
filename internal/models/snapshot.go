package models

import "time"

// CompanyHistorySnapshot is one append-only row holding the full prior
// Company record serialized as JSON. Never mutated or deleted.
type CompanyHistorySnapshot struct {
	ID           int64     `db:"id" json:"id"`
	Orgnr        string    `db:"orgnr" json:"orgnr"`
	Snapshot     []byte    `db:"snapshot" json:"snapshot"`
	SnapshotDate time.Time `db:"snapshot_date" json:"snapshot_date"`
}

// RolesHistorySnapshot is one append-only row holding the full prior roles
// list serialized as JSON.
type RolesHistorySnapshot struct {
	ID           int64     `db:"id" json:"id"`
	Orgnr        string    `db:"orgnr" json:"orgnr"`
	Snapshot     []byte    `db:"snapshot" json:"snapshot"`
	RoleCount    int       `db:"role_count" json:"role_count"`
	SnapshotDate time.Time `db:"snapshot_date" json:"snapshot_date"`
}

// CacheMetadata tracks the last successful refresh per orgnr. Freshness is
// now - last_refresh < TTL.
type CacheMetadata struct {
	Orgnr       string    `db:"orgnr" json:"orgnr"`
	LastRefresh time.Time `db:"last_refresh" json:"last_refresh"`
	Source      string    `db:"source" json:"source"`
}

// Fresh reports whether the metadata is within the given TTL at the
// supplied reference time.
func (c *CacheMetadata) Fresh(now time.Time, ttl time.Duration) bool {
	if c == nil {
		return false
	}
	return now.Sub(c.LastRefresh) < ttl
}
