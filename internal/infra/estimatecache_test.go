package infra

import (
	"context"
	"errors"
	"testing"
	"time"

	"profit_go/internal/domain"
)

// fakeClock lets tests advance time without sleeping.
type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func testEstimate(v float64) domain.RevenueEstimate {
	return domain.RevenueEstimate{PerBaseUnitPerDay: v, SourceUnit: "TH", Unit: domain.UnitHash}
}

func TestEstimateCache_PositiveTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := NewEstimateCacheWithClock(10*time.Minute, time.Minute, clock.Now)

	c.StorePositive("Bitcoin", testEstimate(1.5))

	// Lower-cased lookup must hit the same entry.
	est, negative, ok := c.Lookup("bitcoin")
	if !ok || negative {
		t.Fatal("expected a live positive entry")
	}
	if est.PerBaseUnitPerDay != 1.5 {
		t.Errorf("cached value = %v, want 1.5", est.PerBaseUnitPerDay)
	}

	clock.Advance(10*time.Minute + time.Second)

	if _, _, ok := c.Lookup("bitcoin"); ok {
		t.Error("entry should have expired after the positive TTL")
	}
}

func TestEstimateCache_NegativeTTL(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := NewEstimateCacheWithClock(10*time.Minute, time.Minute, clock.Now)

	c.StoreNegative("deadcoin")

	est, negative, ok := c.Lookup("DEADCOIN")
	if !ok || !negative {
		t.Fatal("expected a live negative entry")
	}
	if est != nil {
		t.Error("negative entry should carry no value")
	}

	clock.Advance(61 * time.Second)

	if _, _, ok := c.Lookup("deadcoin"); ok {
		t.Error("negative entry should expire faster than a positive one")
	}
}

func TestEstimateCache_GetOrFetch(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := NewEstimateCacheWithClock(10*time.Minute, time.Minute, clock.Now)
	ctx := context.Background()

	fetches := 0
	fetch := func(ctx context.Context) (*domain.RevenueEstimate, error) {
		fetches++
		e := testEstimate(2.0)
		return &e, nil
	}

	for i := 0; i < 3; i++ {
		est, err := c.GetOrFetch(ctx, "bitcoin", fetch)
		if err != nil {
			t.Fatalf("GetOrFetch failed: %v", err)
		}
		if est == nil || est.PerBaseUnitPerDay != 2.0 {
			t.Fatalf("unexpected estimate: %v", est)
		}
	}

	if fetches != 1 {
		t.Errorf("fetch ran %d times, want 1 (cache should absorb repeats)", fetches)
	}
}

func TestEstimateCache_GetOrFetch_NegativeCachesFailure(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	c := NewEstimateCacheWithClock(10*time.Minute, time.Minute, clock.Now)
	ctx := context.Background()

	fetches := 0
	failing := func(ctx context.Context) (*domain.RevenueEstimate, error) {
		fetches++
		return nil, errors.New("upstream down")
	}

	if _, err := c.GetOrFetch(ctx, "deadcoin", failing); err == nil {
		t.Error("first call should surface the fetch error")
	}

	// Second call within the negative TTL must not re-fetch.
	est, err := c.GetOrFetch(ctx, "deadcoin", failing)
	if err != nil {
		t.Errorf("negative-cached call should not error, got %v", err)
	}
	if est != nil {
		t.Errorf("negative-cached call should return nil estimate, got %v", est)
	}
	if fetches != 1 {
		t.Errorf("fetch ran %d times, want 1 (negative cache should absorb retries)", fetches)
	}

	// After the TTL the upstream is retried.
	clock.Advance(2 * time.Minute)
	c.GetOrFetch(ctx, "deadcoin", failing)
	if fetches != 2 {
		t.Errorf("fetch ran %d times after TTL expiry, want 2", fetches)
	}
}
