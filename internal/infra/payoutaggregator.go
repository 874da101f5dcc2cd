package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"profit_go/internal/domain"
)

// algorithmStats is one algorithm's entry in the marketplace API response.
// The API returns a map keyed by algorithm name; paying is the current
// payout in BTC per base unit per day.
type algorithmStats struct {
	Name           string  `json:"name"`
	Paying         float64 `json:"paying"`
	Port           int     `json:"port"`
	CurrentWorkers int     `json:"workers"`
	HashrateShared float64 `json:"hashrate"`
}

// PayoutAggregator queries a mining-marketplace aggregation API for a
// single per-algorithm payout rate, the second estimator tier. Results go
// through the same TTL cache as per-coin estimates, so a failing upstream
// is negative-cached instead of being re-hit for every machine.
type PayoutAggregator struct {
	apiURL  string
	timeout time.Duration
	client  *http.Client
	cache   *EstimateCache
}

// NewPayoutAggregator creates an aggregator client from the application config.
func NewPayoutAggregator(cfg *Config) *PayoutAggregator {
	p := cfg.Providers.Aggregator
	return NewPayoutAggregatorWithConfig(
		p.URL,
		time.Duration(p.TimeoutSec)*time.Second,
		time.Duration(p.PositiveTTLSec)*time.Second,
		time.Duration(p.NegativeTTLSec)*time.Second,
	)
}

// NewPayoutAggregatorWithConfig creates an aggregator client with explicit settings.
func NewPayoutAggregatorWithConfig(apiURL string, timeout, positiveTTL, negativeTTL time.Duration) *PayoutAggregator {
	return &PayoutAggregator{
		apiURL:  apiURL,
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
		cache: NewEstimateCache(positiveTTL, negativeTTL),
	}
}

// AlgorithmPayout returns the payout rate (BTC per base unit per day) for
// one algorithm key, from cache when live. A missing algorithm or
// non-positive rate is an error; the caller degrades to the next estimator
// tier. Failures are negative-cached under the short TTL.
func (a *PayoutAggregator) AlgorithmPayout(ctx context.Context, algoKey string) (float64, error) {
	key := strings.ToLower(algoKey)
	est, err := a.cache.GetOrFetch(ctx, key, func(ctx context.Context) (*domain.RevenueEstimate, error) {
		payout, err := a.doFetch(ctx, key)
		if err != nil {
			return nil, err
		}
		return &domain.RevenueEstimate{PerBaseUnitPerDay: payout}, nil
	})
	if err != nil {
		return 0, err
	}
	if est == nil {
		return 0, domain.NewUpstreamError("lookup", fmt.Errorf("algorithm %q recently unavailable", algoKey))
	}
	return est.PerBaseUnitPerDay, nil
}

func (a *PayoutAggregator) doFetch(ctx context.Context, algoKey string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiURL, nil)
	if err != nil {
		return 0, domain.NewFatalUpstreamError("request", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		GlobalMetrics.RecordProviderFailure()
		return 0, domain.NewUpstreamError("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		GlobalMetrics.RecordProviderFailure()
		return 0, domain.NewUpstreamError("fetch", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		GlobalMetrics.RecordProviderFailure()
		return 0, domain.NewUpstreamError("read", err)
	}

	var stats map[string]algorithmStats
	if err := json.Unmarshal(body, &stats); err != nil {
		return 0, domain.NewUpstreamError("decode", err)
	}

	entry, ok := stats[algoKey]
	if !ok {
		return 0, domain.NewUpstreamError("lookup", fmt.Errorf("algorithm %q not listed", algoKey))
	}
	if entry.Paying <= 0 || math.IsNaN(entry.Paying) || math.IsInf(entry.Paying, 0) {
		return 0, domain.NewUpstreamError("lookup", fmt.Errorf("non-positive payout for %q", algoKey))
	}

	return entry.Paying, nil
}
