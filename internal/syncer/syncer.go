// Package syncer runs the bulk jobs: company enrichment over a worker
// pool and the annual-report sweep across every tracked company. The
// report sweep is deliberately slow; the document endpoints tolerate no
// parallelism and punish bursts.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/store"
	"github.com/orgnr/bolagsdata/internal/xbrl"
)

const (
	// DefaultBatchWorkers is the enrichment pool width.
	DefaultBatchWorkers = 5

	// DefaultBatchSize is how many companies one report batch covers.
	DefaultBatchSize = 10

	// DefaultYearsBack is how far the report sweep reaches.
	DefaultYearsBack = 5

	maxBatchErrors = 10
	maxRunErrors   = 100
)

// Enricher refreshes one company through the full source fan-out.
type Enricher interface {
	GetCompany(ctx context.Context, orgnr string, force bool) (*store.CompanyRecord, error)
}

// ReportSyncer processes one company's filed annual reports.
type ReportSyncer interface {
	SyncCompany(ctx context.Context, orgnr string, years int, force bool) (*xbrl.SyncResult, error)
}

// OrgnrLister supplies the tracked-company set.
type OrgnrLister interface {
	ListTrackedOrgnrs(ctx context.Context) ([]string, error)
}

// Metrics receives per-company sweep outcomes.
type Metrics interface {
	CountSyncCompany(result string)
}

// Config holds the sweep pacing.
type Config struct {
	RequestDelay time.Duration // awaited before each company's report sync
	BatchPause   time.Duration // pause between report batches
}

// DefaultConfig returns the stock pacing: 5s between document syncs,
// 1s between batches.
func DefaultConfig() Config {
	return Config{
		RequestDelay: 5 * time.Second,
		BatchPause:   time.Second,
	}
}

// Syncer drives the bulk jobs.
type Syncer struct {
	enricher Enricher
	reports  ReportSyncer
	store    OrgnrLister
	metrics  Metrics
	config   Config
}

// New wires the bulk jobs to their collaborators.
func New(enricher Enricher, reports ReportSyncer, st OrgnrLister, config Config) *Syncer {
	if config.RequestDelay <= 0 {
		config.RequestDelay = 5 * time.Second
	}
	if config.BatchPause <= 0 {
		config.BatchPause = time.Second
	}
	return &Syncer{
		enricher: enricher,
		reports:  reports,
		store:    st,
		config:   config,
	}
}

// WithMetrics attaches a metrics sink.
func (s *Syncer) WithMetrics(m Metrics) *Syncer {
	s.metrics = m
	return s
}

func (s *Syncer) countSync(result string) {
	if s.metrics != nil {
		s.metrics.CountSyncCompany(result)
	}
}

// EnrichResult is the outcome for one orgnr in a batch run.
type EnrichResult struct {
	Orgnr  string               `json:"orgnr"`
	Record *store.CompanyRecord `json:"record,omitempty"`
	Err    error                `json:"-"`
}

// Progress is invoked once per completed item. Completion order is
// unspecified.
type Progress func(done, total int, orgnr string, err error)

// EnrichBatch refreshes every orgnr through the enricher under a pool of
// workers. Failures are captured per item, never returned; the map is
// keyed by normalized orgnr.
func (s *Syncer) EnrichBatch(ctx context.Context, orgnrs []string, workers int, force bool, onProgress Progress) map[string]EnrichResult {
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}

	results := make(map[string]EnrichResult, len(orgnrs))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, orgnr := range orgnrs {
		g.Go(func() error {
			n := models.NormalizeOrgnr(orgnr)
			rec, err := s.enricher.GetCompany(gctx, n, force)
			if err != nil {
				log.Warn().Err(err).Str("orgnr", n).Msg("batch enrichment item failed")
			}

			mu.Lock()
			done++
			d := done
			results[n] = EnrichResult{Orgnr: n, Record: rec, Err: err}
			mu.Unlock()

			if onProgress != nil {
				onProgress(d, len(orgnrs), n, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// RunResult summarizes one tracked-company report sweep.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Companies int           `json:"companies"`
	Batches   int           `json:"batches"`
	Found     int           `json:"found"`
	Processed int           `json:"processed"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Errors    []string      `json:"errors,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// SyncAllTrackedCompanies sweeps the filed reports of every stored
// company in batches. Concurrency above one is clamped; the document
// endpoints must be called sequentially, and the configured request
// delay is awaited inside the semaphore before every company.
func (s *Syncer) SyncAllTrackedCompanies(ctx context.Context, years, batchSize, concurrency int, force bool) (*RunResult, error) {
	if years <= 0 {
		years = DefaultYearsBack
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if concurrency != 1 {
		concurrency = 1
	}

	start := time.Now()
	run := &RunResult{RunID: uuid.NewString()}

	orgnrs, err := s.store.ListTrackedOrgnrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tracked companies: %w", err)
	}
	run.Companies = len(orgnrs)

	log.Info().
		Str("run_id", run.RunID).
		Int("companies", len(orgnrs)).
		Int("batch_size", batchSize).
		Int("years", years).
		Msg("report sweep started")

	sem := semaphore.NewWeighted(int64(concurrency))
	var mu sync.Mutex

	for lo := 0; lo < len(orgnrs); lo += batchSize {
		hi := min(lo+batchSize, len(orgnrs))
		batch := orgnrs[lo:hi]
		run.Batches++
		batchErrors := 0

		g, gctx := errgroup.WithContext(ctx)
		for _, orgnr := range batch {
			g.Go(func() error {
				if err := sem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer sem.Release(1)

				// Pacing sits inside the semaphore so document requests
				// stay strictly sequential.
				select {
				case <-time.After(s.config.RequestDelay):
				case <-gctx.Done():
					return gctx.Err()
				}

				res, err := s.reports.SyncCompany(gctx, orgnr, years, force)
				if err != nil {
					s.countSync("failure")
				} else {
					s.countSync("success")
				}

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					run.Failed++
					if batchErrors < maxBatchErrors && len(run.Errors) < maxRunErrors {
						run.Errors = append(run.Errors, fmt.Sprintf("%s: %v", orgnr, err))
						batchErrors++
					}
					return nil
				}
				run.Found += res.Found
				run.Processed += res.Processed
				run.Skipped += res.Skipped
				run.Failed += res.Failed
				for _, e := range res.Errors {
					if batchErrors >= maxBatchErrors || len(run.Errors) >= maxRunErrors {
						break
					}
					run.Errors = append(run.Errors, e)
					batchErrors++
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			run.Duration = time.Since(start)
			return run, err
		}

		log.Info().
			Str("run_id", run.RunID).
			Int("batch", run.Batches).
			Int("of", (len(orgnrs)+batchSize-1)/batchSize).
			Int("processed", run.Processed).
			Int("failed", run.Failed).
			Msg("report batch done")

		if hi < len(orgnrs) {
			select {
			case <-time.After(s.config.BatchPause):
			case <-ctx.Done():
				run.Duration = time.Since(start)
				return run, ctx.Err()
			}
		}
	}

	run.Duration = time.Since(start)
	log.Info().
		Str("run_id", run.RunID).
		Int("companies", run.Companies).
		Int("processed", run.Processed).
		Int("skipped", run.Skipped).
		Int("failed", run.Failed).
		Dur("duration", run.Duration).
		Msg("report sweep finished")
	return run, nil
}

// SyncCompany processes one company's filed reports.
func (s *Syncer) SyncCompany(ctx context.Context, orgnr string, years int, force bool) (*xbrl.SyncResult, error) {
	if years <= 0 {
		years = DefaultYearsBack
	}
	return s.reports.SyncCompany(ctx, orgnr, years, force)
}
