package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/orgnr/bolagsdata/internal/models"
	"github.com/orgnr/bolagsdata/internal/store"
	"github.com/orgnr/bolagsdata/internal/xbrl"
)

// poolTracker records the peak number of concurrent callers.
type poolTracker struct {
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (p *poolTracker) enter() {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.peak {
		p.peak = p.inFlight
	}
	p.mu.Unlock()
}

func (p *poolTracker) leave() {
	p.mu.Lock()
	p.inFlight--
	p.mu.Unlock()
}

func (p *poolTracker) max() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.peak
}

type fakeEnricher struct {
	pool poolTracker
	fail map[string]error
}

func (f *fakeEnricher) GetCompany(_ context.Context, orgnr string, _ bool) (*store.CompanyRecord, error) {
	f.pool.enter()
	defer f.pool.leave()
	time.Sleep(2 * time.Millisecond)
	if err := f.fail[orgnr]; err != nil {
		return nil, err
	}
	return &store.CompanyRecord{Company: models.Company{Orgnr: orgnr, Name: "Bolag " + orgnr}}, nil
}

type fakeReports struct {
	pool   poolTracker
	fail   map[string]error
	result xbrl.SyncResult
	calls  atomic.Int32
	years  atomic.Int32
}

func (f *fakeReports) SyncCompany(_ context.Context, orgnr string, years int, _ bool) (*xbrl.SyncResult, error) {
	f.pool.enter()
	defer f.pool.leave()
	f.calls.Add(1)
	f.years.Store(int32(years))
	time.Sleep(time.Millisecond)
	if err := f.fail[orgnr]; err != nil {
		return nil, err
	}
	res := f.result
	res.Orgnr = orgnr
	return &res, nil
}

type fakeLister struct {
	orgnrs []string
	err    error
}

func (f *fakeLister) ListTrackedOrgnrs(context.Context) ([]string, error) {
	return f.orgnrs, f.err
}

func fastConfig() Config {
	return Config{RequestDelay: time.Millisecond, BatchPause: time.Millisecond}
}

func orgnrSeq(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("55600%05d", i)
	}
	return out
}

func TestEnrichBatchCollectsResults(t *testing.T) {
	enricher := &fakeEnricher{fail: map[string]error{"5560000002": errors.New("upstream down")}}
	s := New(enricher, &fakeReports{}, &fakeLister{}, fastConfig())

	orgnrs := orgnrSeq(5)
	var progressCalls, lastDone atomic.Int32
	results := s.EnrichBatch(context.Background(), orgnrs, 2, false, func(done, total int, orgnr string, err error) {
		progressCalls.Add(1)
		if int32(done) > lastDone.Load() {
			lastDone.Store(int32(done))
		}
		if total != 5 {
			t.Errorf("total = %d, want 5", total)
		}
	})

	if len(results) != 5 {
		t.Fatalf("results = %d, want 5", len(results))
	}
	for orgnr, res := range results {
		if orgnr == "5560000002" {
			if res.Err == nil {
				t.Error("failing item lost its error")
			}
			continue
		}
		if res.Err != nil || res.Record == nil {
			t.Errorf("%s: err=%v record=%v", orgnr, res.Err, res.Record)
		}
	}
	if progressCalls.Load() != 5 {
		t.Errorf("progress called %d times, want 5", progressCalls.Load())
	}
	if lastDone.Load() != 5 {
		t.Errorf("final done = %d, want 5", lastDone.Load())
	}
}

func TestEnrichBatchHonorsWorkerCap(t *testing.T) {
	enricher := &fakeEnricher{}
	s := New(enricher, &fakeReports{}, &fakeLister{}, fastConfig())

	s.EnrichBatch(context.Background(), orgnrSeq(12), 3, false, nil)

	if got := enricher.pool.max(); got > 3 {
		t.Fatalf("peak workers = %d, want at most 3", got)
	}
}

func TestEnrichBatchNormalizesKeys(t *testing.T) {
	enricher := &fakeEnricher{}
	s := New(enricher, &fakeReports{}, &fakeLister{}, fastConfig())

	results := s.EnrichBatch(context.Background(), []string{"556016-0680"}, 1, false, nil)

	if _, ok := results["5560160680"]; !ok {
		t.Fatalf("results keyed %v, want normalized orgnr", results)
	}
}

func TestSyncAllTalliesBatches(t *testing.T) {
	reports := &fakeReports{result: xbrl.SyncResult{Found: 2, Processed: 1, Skipped: 1}}
	lister := &fakeLister{orgnrs: orgnrSeq(4)}
	s := New(&fakeEnricher{}, reports, lister, fastConfig())

	run, err := s.SyncAllTrackedCompanies(context.Background(), 5, 2, 1, false)
	if err != nil {
		t.Fatalf("SyncAllTrackedCompanies: %v", err)
	}
	if run.RunID == "" {
		t.Error("run has no id")
	}
	if run.Companies != 4 || run.Batches != 2 {
		t.Errorf("companies=%d batches=%d, want 4 and 2", run.Companies, run.Batches)
	}
	if run.Found != 8 || run.Processed != 4 || run.Skipped != 4 || run.Failed != 0 {
		t.Errorf("tallies = %+v", run)
	}
	if reports.calls.Load() != 4 {
		t.Errorf("sync called %d times, want 4", reports.calls.Load())
	}
}

func TestSyncAllClampsConcurrency(t *testing.T) {
	reports := &fakeReports{}
	lister := &fakeLister{orgnrs: orgnrSeq(6)}
	s := New(&fakeEnricher{}, reports, lister, fastConfig())

	if _, err := s.SyncAllTrackedCompanies(context.Background(), 5, 3, 5, false); err != nil {
		t.Fatalf("SyncAllTrackedCompanies: %v", err)
	}
	if got := reports.pool.max(); got != 1 {
		t.Fatalf("peak concurrency = %d, want 1", got)
	}
}

func TestSyncAllCapsBatchErrors(t *testing.T) {
	fail := make(map[string]error)
	orgnrs := orgnrSeq(15)
	for _, o := range orgnrs {
		fail[o] = errors.New("no documents endpoint")
	}
	reports := &fakeReports{fail: fail}
	s := New(&fakeEnricher{}, reports, &fakeLister{orgnrs: orgnrs}, fastConfig())

	run, err := s.SyncAllTrackedCompanies(context.Background(), 5, 15, 1, false)
	if err != nil {
		t.Fatalf("SyncAllTrackedCompanies: %v", err)
	}
	if run.Failed != 15 {
		t.Errorf("failed = %d, want 15", run.Failed)
	}
	if len(run.Errors) != maxBatchErrors {
		t.Errorf("errors = %d, want capped at %d", len(run.Errors), maxBatchErrors)
	}
}

func TestSyncAllCapsRunErrors(t *testing.T) {
	fail := make(map[string]error)
	orgnrs := orgnrSeq(110)
	for _, o := range orgnrs {
		fail[o] = errors.New("no documents endpoint")
	}
	reports := &fakeReports{fail: fail}
	s := New(&fakeEnricher{}, reports, &fakeLister{orgnrs: orgnrs}, fastConfig())

	run, err := s.SyncAllTrackedCompanies(context.Background(), 5, 10, 1, false)
	if err != nil {
		t.Fatalf("SyncAllTrackedCompanies: %v", err)
	}
	if run.Failed != 110 {
		t.Errorf("failed = %d, want 110", run.Failed)
	}
	if len(run.Errors) != maxRunErrors {
		t.Errorf("errors = %d, want capped at %d", len(run.Errors), maxRunErrors)
	}
}

func TestSyncAllListFailure(t *testing.T) {
	lister := &fakeLister{err: errors.New("db gone")}
	s := New(&fakeEnricher{}, &fakeReports{}, lister, fastConfig())

	if _, err := s.SyncAllTrackedCompanies(context.Background(), 5, 10, 1, false); err == nil {
		t.Fatal("want error when the orgnr list cannot be read")
	}
}

func TestSyncAllCancelledContext(t *testing.T) {
	reports := &fakeReports{}
	lister := &fakeLister{orgnrs: orgnrSeq(4)}
	s := New(&fakeEnricher{}, reports, lister, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.SyncAllTrackedCompanies(ctx, 5, 2, 1, false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if reports.calls.Load() != 0 {
		t.Errorf("sync called %d times after cancellation", reports.calls.Load())
	}
}

func TestSyncCompanyDefaultsYears(t *testing.T) {
	reports := &fakeReports{}
	s := New(&fakeEnricher{}, reports, &fakeLister{}, fastConfig())

	if _, err := s.SyncCompany(context.Background(), "5560160680", 0, false); err != nil {
		t.Fatalf("SyncCompany: %v", err)
	}
	if got := reports.years.Load(); got != DefaultYearsBack {
		t.Fatalf("years = %d, want %d", got, DefaultYearsBack)
	}
}
