package engine

import (
	"context"
	"fmt"
	"strings"

	"profit_go/internal/domain"

	"github.com/shopspring/decimal"
)

// DefaultCandidateCap bounds how many candidate coins one machine may fan
// out to, so a machine with an unrestricted coin list cannot issue an
// unbounded number of estimator lookups.
const DefaultCandidateCap = 25

// Fixed confidence values for the non-per-coin tiers.
const (
	confidenceAggregator = 55
	confidenceCatalog    = 10
)

// EstimateLookup returns the prefetched per-base-unit-per-day revenue for
// a lower-cased coin key, if one was found during the prefetch phase.
type EstimateLookup func(coinKey string) (float64, bool)

// PayoutLookup returns the aggregator's payout rate (BTC per base unit per
// day) for an algorithm key.
type PayoutLookup func(ctx context.Context, algoKey string) (float64, error)

// Resolution is the outcome of the estimator fallback chain for one machine.
type Resolution struct {
	RevenueUSDPerDay decimal.Decimal
	Source           domain.RevenueSource
	Confidence       int
	Reason           string
	BestCoin         *domain.Coin
}

// Resolver runs the fixed estimator tier chain:
// per-coin -> aggregator -> static catalog fallback.
// The ordering is a correctness property and must not change.
type Resolver struct {
	Estimates    EstimateLookup
	Payout       PayoutLookup
	BTCPriceUSD  decimal.Decimal
	CandidateCap int
}

// Resolve picks the best available revenue figure for one machine.
// algoCoins is the full coin list under the machine's algorithm, used when
// the machine carries no explicit permit list. Returns ErrNoEstimate when
// every tier misses; the caller counts the machine as skipped.
func (r *Resolver) Resolve(ctx context.Context, machine *domain.Machine, algo *domain.Algorithm, algoCoins []domain.Coin, base domain.BaseRate) (*Resolution, error) {
	if res := r.resolvePerCoin(machine, algoCoins, base); res != nil {
		return res, nil
	}
	if res := r.resolveAggregator(ctx, algo, base); res != nil {
		return res, nil
	}
	if res := r.resolveCatalogFallback(algo, base); res != nil {
		return res, nil
	}
	return nil, fmt.Errorf("machine %d: %w", machine.ID, domain.ErrNoEstimate)
}

// Candidates returns the machine's candidate coin list: its explicit
// permit list when non-empty, otherwise every coin under its algorithm,
// capped at the resolver's candidate cap.
func (r *Resolver) Candidates(machine *domain.Machine, algoCoins []domain.Coin) []domain.Coin {
	coins := machine.PermittedCoins
	if len(coins) == 0 {
		coins = algoCoins
	}
	limit := r.CandidateCap
	if limit <= 0 {
		limit = DefaultCandidateCap
	}
	if len(coins) > limit {
		coins = coins[:limit]
	}
	return coins
}

func (r *Resolver) resolvePerCoin(machine *domain.Machine, algoCoins []domain.Coin, base domain.BaseRate) *Resolution {
	candidates := r.Candidates(machine, algoCoins)

	var best, second float64
	var bestCoin *domain.Coin
	found := 0

	for i := range candidates {
		coin := &candidates[i]
		val, ok := r.Estimates(strings.ToLower(coin.Key))
		if !ok || val <= 0 {
			continue
		}
		found++
		if bestCoin == nil || val > best {
			if bestCoin != nil {
				second = best
			}
			best = val
			bestCoin = coin
		} else if val > second {
			second = val
		}
	}

	if bestCoin == nil {
		return nil
	}

	var secondPtr *float64
	if found > 1 {
		secondPtr = &second
	}
	confidence := ConfidenceFromMargin(best, secondPtr)

	reason := fmt.Sprintf("%s is the only candidate with per-coin data", bestCoin.Symbol)
	if secondPtr != nil {
		margin := (best - second) / best * 100
		reason = fmt.Sprintf("%s leads the next candidate by %.1f%%", bestCoin.Symbol, margin)
	}

	return &Resolution{
		RevenueUSDPerDay: decimal.NewFromFloat(best * base.Value),
		Source:           domain.SourcePerCoin,
		Confidence:       confidence,
		Reason:           reason,
		BestCoin:         bestCoin,
	}
}

func (r *Resolver) resolveAggregator(ctx context.Context, algo *domain.Algorithm, base domain.BaseRate) *Resolution {
	if r.Payout == nil || !r.BTCPriceUSD.IsPositive() {
		return nil
	}

	key := algo.AggregatorKey
	if key == "" {
		key = algo.Key
	}

	payout, err := r.Payout(ctx, key)
	if err != nil || payout <= 0 {
		return nil
	}

	// payout is BTC per base unit per day; scale by speed and BTC/USD.
	revenue := decimal.NewFromFloat(payout * base.Value).Mul(r.BTCPriceUSD)

	return &Resolution{
		RevenueUSDPerDay: revenue,
		Source:           domain.SourceAggregator,
		Confidence:       confidenceAggregator,
		Reason:           fmt.Sprintf("per-coin data unavailable, aggregator payout for %s", key),
	}
}

func (r *Resolver) resolveCatalogFallback(algo *domain.Algorithm, base domain.BaseRate) *Resolution {
	if algo.FallbackRate <= 0 || algo.FallbackUnit == "" {
		return nil
	}

	mult, family, err := domain.UnitMultiplier(algo.FallbackUnit)
	if err != nil || family != base.Unit {
		return nil
	}

	revenue := decimal.NewFromFloat(base.Value / mult * algo.FallbackRate)

	return &Resolution{
		RevenueUSDPerDay: revenue,
		Source:           domain.SourceCatalogFallback,
		Confidence:       confidenceCatalog,
		Reason:           fmt.Sprintf("static catalog rate for %s", algo.Key),
	}
}
