package infra

import (
	"context"
	"strings"
	"sync"
	"time"

	"profit_go/internal/domain"
)

type cacheEntry struct {
	value     domain.RevenueEstimate
	negative  bool
	expiresAt time.Time
}

// EstimateCache is an in-memory TTL cache for external revenue estimates.
// Failed lookups are cached too ("negative" entries) with a short TTL so a
// failing upstream is not hammered on every machine. Keys are lower-cased
// so the same coin referenced by different casings shares one entry. The
// clock is injectable so TTL policy is testable without sleeping.
type EstimateCache struct {
	mu          sync.RWMutex
	entries     map[string]cacheEntry
	positiveTTL time.Duration
	negativeTTL time.Duration
	now         func() time.Time
}

// NewEstimateCache creates a cache with the given TTLs and the wall clock.
func NewEstimateCache(positiveTTL, negativeTTL time.Duration) *EstimateCache {
	return NewEstimateCacheWithClock(positiveTTL, negativeTTL, time.Now)
}

// NewEstimateCacheWithClock creates a cache with an injected clock.
func NewEstimateCacheWithClock(positiveTTL, negativeTTL time.Duration, now func() time.Time) *EstimateCache {
	return &EstimateCache{
		entries:     make(map[string]cacheEntry),
		positiveTTL: positiveTTL,
		negativeTTL: negativeTTL,
		now:         now,
	}
}

// Lookup returns the cached estimate for key. ok reports whether a live
// entry exists at all; negative reports a confirmed-no-data entry. Both a
// negative entry and a missing one mean "no value", but callers that need
// to distinguish "confirmed no data" from "not yet tried" can.
func (c *EstimateCache) Lookup(key string) (est *domain.RevenueEstimate, negative bool, ok bool) {
	key = strings.ToLower(key)

	c.mu.RLock()
	entry, found := c.entries[key]
	c.mu.RUnlock()

	if !found || c.now().After(entry.expiresAt) {
		return nil, false, false
	}
	if entry.negative {
		return nil, true, true
	}
	v := entry.value
	return &v, false, true
}

// StorePositive caches a successful estimate under the positive TTL.
func (c *EstimateCache) StorePositive(key string, est domain.RevenueEstimate) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[strings.ToLower(key)] = cacheEntry{
		value:     est,
		expiresAt: c.now().Add(c.positiveTTL),
	}
}

// StoreNegative caches a confirmed-no-data result under the negative TTL.
func (c *EstimateCache) StoreNegative(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[strings.ToLower(key)] = cacheEntry{
		negative:  true,
		expiresAt: c.now().Add(c.negativeTTL),
	}
}

// GetOrFetch returns the cached estimate or invokes fetch on a miss.
// A fetch error or nil result is negative-cached; the error is returned
// so the caller can log it, but it must be treated as "no estimate", not
// as a batch failure.
func (c *EstimateCache) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (*domain.RevenueEstimate, error)) (*domain.RevenueEstimate, error) {
	if est, negative, ok := c.Lookup(key); ok {
		GlobalMetrics.RecordCacheHit()
		if negative {
			return nil, nil
		}
		return est, nil
	}

	est, err := fetch(ctx)
	if err != nil || est == nil {
		c.StoreNegative(key)
		GlobalMetrics.RecordCacheNegative()
		return nil, err
	}

	c.StorePositive(key, *est)
	return est, nil
}

// Len returns the number of live and expired entries currently held.
func (c *EstimateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
