package infra

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"profit_go/internal/domain"
)

// revenuePattern matches the per-coin page's published figure, e.g.
// "estimated revenue $1.23 per TH/s". This regex is the single fragile
// point of contact with the upstream page format; it lives only here so
// the whole adapter can be swapped when the page changes.
var revenuePattern = regexp.MustCompile(`(?i)estimated\s+revenue\s+\$([\d,]+(?:\.\d+)?)\s+per\s+([A-Za-z]+(?:/s)?)`)

// CoinEstimator fetches the published revenue-per-unit figure for one coin
// from a third-party page, normalizes it to per-base-unit and caches the
// result (positively or negatively).
type CoinEstimator struct {
	baseURL string
	client  *http.Client
	timeout time.Duration
	cache   *EstimateCache
}

// NewCoinEstimator creates an estimator from the application config.
func NewCoinEstimator(cfg *Config) *CoinEstimator {
	p := cfg.Providers.CoinEstimator
	return NewCoinEstimatorWithConfig(
		p.BaseURL,
		time.Duration(p.TimeoutSec)*time.Second,
		time.Duration(p.PositiveTTLSec)*time.Second,
		time.Duration(p.NegativeTTLSec)*time.Second,
	)
}

// NewCoinEstimatorWithConfig creates an estimator with explicit settings.
func NewCoinEstimatorWithConfig(baseURL string, timeout, positiveTTL, negativeTTL time.Duration) *CoinEstimator {
	return &CoinEstimator{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
		client: &http.Client{
			Timeout: timeout,
		},
		cache: NewEstimateCache(positiveTTL, negativeTTL),
	}
}

// Cache exposes the underlying estimate cache, used by the pipeline to
// distinguish confirmed-negative coins from not-yet-tried ones.
func (e *CoinEstimator) Cache() *EstimateCache {
	return e.cache
}

// RevenuePerBaseUnitPerDay returns the coin's revenue estimate, from cache
// when live. A nil estimate with nil error means confirmed no data.
func (e *CoinEstimator) RevenuePerBaseUnitPerDay(ctx context.Context, key string) (*domain.RevenueEstimate, error) {
	key = strings.ToLower(key)
	return e.cache.GetOrFetch(ctx, key, func(ctx context.Context) (*domain.RevenueEstimate, error) {
		return e.doFetch(ctx, key)
	})
}

func (e *CoinEstimator) doFetch(ctx context.Context, key string) (*domain.RevenueEstimate, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	defer func() {
		GlobalMetrics.RecordFetch(time.Since(started).Nanoseconds())
	}()

	reqURL := e.baseURL + "/coins/" + url.PathEscape(key)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, domain.NewFatalUpstreamError("request", err)
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		GlobalMetrics.RecordProviderFailure()
		return nil, domain.NewUpstreamError("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		GlobalMetrics.RecordProviderFailure()
		return nil, domain.NewUpstreamError("fetch", fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		GlobalMetrics.RecordProviderFailure()
		return nil, domain.NewUpstreamError("read", err)
	}

	return parseRevenuePage(string(body))
}

// parseRevenuePage extracts "estimated revenue $X per <unit>" and converts
// the per-unit value to per-base-unit by dividing by the unit's SI
// multiplier.
func parseRevenuePage(page string) (*domain.RevenueEstimate, error) {
	matches := revenuePattern.FindStringSubmatch(page)
	if len(matches) < 3 {
		return nil, domain.NewUpstreamError("parse", fmt.Errorf("revenue pattern not found"))
	}

	numStr := strings.ReplaceAll(matches[1], ",", "")
	perUnit, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return nil, domain.NewUpstreamError("parse", err)
	}

	mult, family, err := domain.UnitMultiplier(matches[2])
	if err != nil {
		return nil, domain.NewUpstreamError("parse", err)
	}

	perBase := perUnit / mult
	if perBase <= 0 || math.IsNaN(perBase) || math.IsInf(perBase, 0) {
		return nil, domain.NewUpstreamError("parse", fmt.Errorf("non-positive revenue %v", perBase))
	}

	return &domain.RevenueEstimate{
		PerBaseUnitPerDay: perBase,
		SourceUnit:        matches[2],
		Unit:              family,
	}, nil
}
