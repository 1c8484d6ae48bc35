package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestAcquireSpacing(t *testing.T) {
	const interval = 50 * time.Millisecond
	l := New(time.Second)
	l.SetInterval("data.example.se", interval)

	ctx := context.Background()
	start := time.Now()
	const n = 5
	for i := 0; i < n; i++ {
		if err := l.Acquire(ctx, "data.example.se"); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	// first acquisition is free, the rest each wait a full interval
	if min := time.Duration(n-1) * interval; elapsed < min {
		t.Errorf("elapsed %v < %v for %d acquisitions", elapsed, min, n)
	}
}

func TestAcquireIndependentDomains(t *testing.T) {
	l := New(time.Second)
	l.SetInterval("a.example.se", 200*time.Millisecond)
	l.SetInterval("b.example.se", 200*time.Millisecond)

	ctx := context.Background()
	start := time.Now()
	if err := l.Acquire(ctx, "a.example.se"); err != nil {
		t.Fatal(err)
	}
	if err := l.Acquire(ctx, "b.example.se"); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("independent domains should not wait on each other, took %v", elapsed)
	}
}

func TestAcquireCancellation(t *testing.T) {
	l := New(time.Second)
	l.SetInterval("slow.example.se", 10*time.Second)

	ctx := context.Background()
	if err := l.Acquire(ctx, "slow.example.se"); err != nil {
		t.Fatal(err)
	}

	cancelCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := l.Acquire(cancelCtx, "slow.example.se"); err == nil {
		t.Error("expected context error while waiting for interval")
	}
}

func TestUnknownDomainUsesFallback(t *testing.T) {
	l := New(75 * time.Millisecond)

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, "unknown.example.se"); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("fallback interval not enforced, elapsed %v", elapsed)
	}
	if got := l.Interval("unknown.example.se"); got != 75*time.Millisecond {
		t.Errorf("Interval = %v, want fallback 75ms", got)
	}
}

func TestSetIntervalUpdatesLiveLimiter(t *testing.T) {
	l := New(time.Second)
	l.SetInterval("x.example.se", 10*time.Second)

	ctx := context.Background()
	if err := l.Acquire(ctx, "x.example.se"); err != nil {
		t.Fatal(err)
	}

	// Loosen the interval; the next acquisition must not wait 10s.
	l.SetInterval("x.example.se", time.Millisecond)
	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx, "x.example.se") }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire still waiting after interval was loosened")
	}
}

func TestConcurrentAcquire(t *testing.T) {
	l := New(time.Millisecond)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- l.Acquire(ctx, "c.example.se")
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Acquire: %v", err)
		}
	}
}

func TestStatsTracksWaits(t *testing.T) {
	l := New(time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, "x.example.se"); err != nil {
			t.Fatal(err)
		}
	}

	stats := l.Stats()
	s, ok := stats["x.example.se"]
	if !ok {
		t.Fatal("missing stats for domain")
	}
	if s.Interval != time.Millisecond {
		t.Errorf("interval = %v, want 1ms", s.Interval)
	}
}
