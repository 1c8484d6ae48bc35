// Package orchestrator drives one company refresh end to end: cache
// probe, parallel fan-out to the configured sources, deterministic merge
// with provenance, snapshot-first persistence. Sources are applied in
// constructor order, so the registry adapter goes first and wins the
// identity fields.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/orgnr/bolagsdata/internal/announce"
	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/providers"
	"github.com/orgnr/bolagsdata/internal/store"
)

// Store is the slice of the persistence surface the orchestrator needs.
type Store interface {
	IsCacheFresh(ctx context.Context, orgnr string, ttl time.Duration) (bool, error)
	GetCompanyRecord(ctx context.Context, orgnr string) (*store.CompanyRecord, error)
	StoreCompanyComplete(ctx context.Context, update *store.CompanyUpdate) error
}

// Config holds the refresh policy.
type Config struct {
	CacheTTL    time.Duration // stored records younger than this are served as-is
	MaxParallel int           // source fan-out width
}

// DefaultConfig returns the standard policy: 24h freshness, two sources
// in flight.
func DefaultConfig() Config {
	return Config{
		CacheTTL:    24 * time.Hour,
		MaxParallel: 2,
	}
}

// Orchestrator coordinates sources and the store for company lookups.
type Orchestrator struct {
	store         Store
	sources       []providers.Provider
	announcements announce.Source
	config        Config
}

// Option configures optional orchestrator collaborators.
type Option func(*Orchestrator)

// WithAnnouncements attaches a bulletin source whose records join the
// merge alongside the provider results.
func WithAnnouncements(src announce.Source) Option {
	return func(o *Orchestrator) { o.announcements = src }
}

// New creates an orchestrator over the given sources. Source order is
// merge order.
func New(st Store, sources []providers.Provider, config Config, opts ...Option) *Orchestrator {
	if config.CacheTTL <= 0 {
		config.CacheTTL = 24 * time.Hour
	}
	if config.MaxParallel <= 0 {
		config.MaxParallel = 2
	}
	o := &Orchestrator{
		store:   st,
		sources: sources,
		config:  config,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// GetCompany returns the canonical record for orgnr, refreshing it from
// the sources when the stored copy is stale or force is set. A nil record
// with nil error means no source knows the company. The returned record
// is always the persisted form, re-read from the store after a refresh.
func (o *Orchestrator) GetCompany(ctx context.Context, orgnr string, force bool) (*store.CompanyRecord, error) {
	n := models.NormalizeOrgnr(orgnr)
	if err := models.ValidateOrgnr(n); err != nil {
		return nil, err
	}

	if !force {
		fresh, err := o.store.IsCacheFresh(ctx, n, o.config.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("cache probe for %s: %w", n, err)
		}
		if fresh {
			rec, err := o.store.GetCompanyRecord(ctx, n)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				log.Debug().Str("orgnr", n).Msg("serving cached record")
				rec.FromCache = true
				return rec, nil
			}
			// Fresh metadata without a row; ask the sources again.
		}
	}

	records, extra := o.fetchAll(ctx, n)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	update := merge(n, records, extra)
	if update == nil {
		log.Info().Str("orgnr", n).Msg("company not found by any source")
		return nil, nil
	}

	if err := o.store.StoreCompanyComplete(ctx, update); err != nil {
		return nil, fmt.Errorf("persist %s: %w", n, err)
	}

	log.Info().
		Str("orgnr", n).
		Str("name", update.Company.Name).
		Str("source", update.Source).
		Int("roles", len(update.Roles)).
		Int("financials", len(update.Financials)).
		Msg("company refreshed")

	return o.store.GetCompanyRecord(ctx, n)
}

// sourceRecord pairs a provider result with the source that produced it.
type sourceRecord struct {
	source string
	record *providers.Record
}

// fetchAll runs every source concurrently and collects whatever arrives.
// A failing source is logged and yields nothing; the slice keeps
// constructor order regardless of completion order.
func (o *Orchestrator) fetchAll(ctx context.Context, orgnr string) ([]sourceRecord, []models.Announcement) {
	out := make([]sourceRecord, len(o.sources))
	var extra []models.Announcement

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.config.MaxParallel)

	for i, src := range o.sources {
		g.Go(func() error {
			rec, err := src.Fetch(gctx, orgnr)
			if err != nil {
				log.Warn().
					Err(err).
					Str("source", src.Name()).
					Str("orgnr", orgnr).
					Msg("source fetch failed, continuing without it")
				return nil
			}
			out[i] = sourceRecord{source: src.Name(), record: rec}
			return nil
		})
	}
	if o.announcements != nil {
		g.Go(func() error {
			anns, err := o.announcements.Fetch(gctx, orgnr)
			if err != nil {
				log.Warn().
					Err(err).
					Str("orgnr", orgnr).
					Msg("announcement fetch failed, continuing without it")
				return nil
			}
			extra = anns
			return nil
		})
	}
	_ = g.Wait()

	return out, extra
}

// merge folds the source records into one write payload. The first source
// with a value wins the identity fields and the provenance labels; list
// fields concatenate in source order, which is also the store's upsert
// preference for financial periods. Returns nil when no source produced
// a company name.
func merge(orgnr string, records []sourceRecord, extra []models.Announcement) *store.CompanyUpdate {
	merged := &models.Company{Orgnr: orgnr}
	update := &store.CompanyUpdate{Company: merged, SnapshotFirst: true}
	var basic, board, financials string

	for _, sr := range records {
		rec := sr.record
		if rec == nil {
			continue
		}
		if rec.Company != nil {
			applyCompany(merged, rec.Company)
			if basic == "" && rec.Company.Name != "" {
				basic = sr.source
			}
		}
		if len(rec.Roles) > 0 || rec.RolesExplicitlyEmpty {
			if update.Roles == nil {
				update.Roles = []models.Role{}
			}
			update.Roles = append(update.Roles, rec.Roles...)
			if board == "" {
				board = sr.source
			}
		}
		if len(rec.Financials) > 0 {
			update.Financials = append(update.Financials, rec.Financials...)
			if financials == "" {
				financials = sr.source
			}
		}
		if len(rec.Industries) > 0 {
			update.Industries = append(update.Industries, rec.Industries...)
		}
		if len(rec.Trademarks) > 0 {
			update.Trademarks = append(update.Trademarks, rec.Trademarks...)
		}
		if len(rec.Related) > 0 {
			update.Related = append(update.Related, rec.Related...)
		}
		if len(rec.Announcements) > 0 {
			update.Announcements = append(update.Announcements, rec.Announcements...)
		}
	}
	if len(extra) > 0 {
		update.Announcements = append(update.Announcements, extra...)
	}

	if merged.Name == "" {
		return nil
	}
	if merged.Status == "" {
		merged.Status = models.StatusInactive
	}
	if basic != "" {
		merged.SourceBasic = &basic
	}
	if board != "" {
		merged.SourceBoard = &board
	}
	if financials != "" {
		merged.SourceFinancials = &financials
	}
	update.Source = basic

	return update
}

// applyCompany copies src onto dst. The identity fields keep the first
// source's value; every other field takes the latest value a source
// actually provided.
func applyCompany(dst, src *models.Company) {
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.Status == "" {
		dst.Status = src.Status
	}
	if src.CompanyType != nil {
		dst.CompanyType = src.CompanyType
	}
	if src.RegistrationDate != nil {
		dst.RegistrationDate = src.RegistrationDate
	}
	if src.PostalStreet != nil {
		dst.PostalStreet = src.PostalStreet
	}
	if src.PostalCode != nil {
		dst.PostalCode = src.PostalCode
	}
	if src.PostalCity != nil {
		dst.PostalCity = src.PostalCity
	}
	if src.VisitingStreet != nil {
		dst.VisitingStreet = src.VisitingStreet
	}
	if src.VisitingCity != nil {
		dst.VisitingCity = src.VisitingCity
	}
	if src.Phone != nil {
		dst.Phone = src.Phone
	}
	if src.Email != nil {
		dst.Email = src.Email
	}
	if src.Website != nil {
		dst.Website = src.Website
	}
	if src.Municipality != nil {
		dst.Municipality = src.Municipality
	}
	if src.County != nil {
		dst.County = src.County
	}
	if src.LEICode != nil {
		dst.LEICode = src.LEICode
	}
	if src.ShareCapital != nil {
		dst.ShareCapital = src.ShareCapital
	}
	if src.IsGroup {
		dst.IsGroup = true
	}
	if src.ParentOrgnr != nil {
		dst.ParentOrgnr = src.ParentOrgnr
	}
	if src.ParentName != nil {
		dst.ParentName = src.ParentName
	}
	if src.CompaniesInGroup != nil {
		dst.CompaniesInGroup = src.CompaniesInGroup
	}
}
