package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"profit_go/internal/domain"

	"github.com/shopspring/decimal"
)

func testMachine() *domain.Machine {
	return &domain.Machine{ID: 1, Name: "S21", AlgorithmID: 1, Hashrate: 100, HashrateUnit: "TH/s", PowerWatts: 3000}
}

func testAlgo() *domain.Algorithm {
	return &domain.Algorithm{ID: 1, Key: "sha256", Name: "SHA-256"}
}

func testCoins(keys ...string) []domain.Coin {
	coins := make([]domain.Coin, 0, len(keys))
	for i, k := range keys {
		coins = append(coins, domain.Coin{ID: uint(i + 1), Key: k, Symbol: k, AlgorithmID: 1})
	}
	return coins
}

func mustBase(t *testing.T, m *domain.Machine) domain.BaseRate {
	t.Helper()
	base, err := domain.ParseSpeedToBase(m.Hashrate, m.HashrateUnit)
	if err != nil {
		t.Fatalf("ParseSpeedToBase failed: %v", err)
	}
	return base
}

func TestResolver_PerCoinWins(t *testing.T) {
	estimates := map[string]float64{
		"bitcoin":     2.0e-12, // best: $200/day at 100 TH/s
		"bitcoincash": 1.0e-12,
		"fractal":     0.5e-12,
	}
	aggregatorCalls := 0

	r := &Resolver{
		Estimates: func(key string) (float64, bool) {
			v, ok := estimates[key]
			return v, ok
		},
		Payout: func(ctx context.Context, algoKey string) (float64, error) {
			aggregatorCalls++
			return 1, nil
		},
		BTCPriceUSD: decimal.NewFromInt(50000),
	}

	m := testMachine()
	res, err := r.Resolve(context.Background(), m, testAlgo(), testCoins("bitcoin", "bitcoincash", "fractal"), mustBase(t, m))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if res.Source != domain.SourcePerCoin {
		t.Errorf("source = %s, want per-coin", res.Source)
	}
	if res.BestCoin == nil || res.BestCoin.Key != "bitcoin" {
		t.Errorf("best coin = %v, want bitcoin", res.BestCoin)
	}
	// 2.0e-12 * 1e14 = 200
	approxEqual(t, res.RevenueUSDPerDay, decimal.NewFromInt(200), "revenue")
	// margin (2.0 - 1.0) / 2.0 = 0.5 -> 90
	if res.Confidence != 90 {
		t.Errorf("confidence = %d, want 90", res.Confidence)
	}

	// The lower tiers must never be consulted when per-coin data exists.
	if aggregatorCalls != 0 {
		t.Errorf("aggregator was consulted %d times, want 0", aggregatorCalls)
	}
}

func TestResolver_SingleCandidateConfidence(t *testing.T) {
	r := &Resolver{
		Estimates: func(key string) (float64, bool) {
			if key == "bitcoin" {
				return 1.5e-12, true
			}
			return 0, false
		},
	}

	m := testMachine()
	res, err := r.Resolve(context.Background(), m, testAlgo(), testCoins("bitcoin", "bitcoincash"), mustBase(t, m))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Confidence != 55 {
		t.Errorf("confidence with no runner-up = %d, want 55", res.Confidence)
	}
}

func TestResolver_AggregatorFallback(t *testing.T) {
	// End-to-end aggregator scenario: 100 TH/s, no per-coin data for any
	// candidate, payout in BTC per H/s per day, BTC at $50k.
	r := &Resolver{
		Estimates: func(key string) (float64, bool) { return 0, false },
		Payout: func(ctx context.Context, algoKey string) (float64, error) {
			if algoKey != "sha256" {
				return 0, fmt.Errorf("unknown algorithm %s", algoKey)
			}
			return 1e-16, nil
		},
		BTCPriceUSD: decimal.NewFromInt(50000),
	}

	m := testMachine()
	res, err := r.Resolve(context.Background(), m, testAlgo(), testCoins("bitcoin", "bitcoincash"), mustBase(t, m))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if res.Source != domain.SourceAggregator {
		t.Errorf("source = %s, want aggregator", res.Source)
	}
	if res.Confidence != 55 {
		t.Errorf("aggregator confidence = %d, want exactly 55", res.Confidence)
	}
	if !res.RevenueUSDPerDay.IsPositive() {
		t.Errorf("revenue should be positive, got %s", res.RevenueUSDPerDay)
	}
	// 1e-16 BTC/H/day * 1e14 H/s * 50000 USD = 500
	approxEqual(t, res.RevenueUSDPerDay, decimal.NewFromInt(500), "aggregator revenue")
}

func TestResolver_AggregatorKeyOverride(t *testing.T) {
	var asked string
	r := &Resolver{
		Estimates: func(key string) (float64, bool) { return 0, false },
		Payout: func(ctx context.Context, algoKey string) (float64, error) {
			asked = algoKey
			return 1e-16, nil
		},
		BTCPriceUSD: decimal.NewFromInt(50000),
	}

	algo := testAlgo()
	algo.AggregatorKey = "sha256asicboost"

	m := testMachine()
	if _, err := r.Resolve(context.Background(), m, algo, nil, mustBase(t, m)); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if asked != "sha256asicboost" {
		t.Errorf("aggregator asked for %q, want override key", asked)
	}
}

func TestResolver_CatalogFallback(t *testing.T) {
	r := &Resolver{
		Estimates: func(key string) (float64, bool) { return 0, false },
		Payout: func(ctx context.Context, algoKey string) (float64, error) {
			return 0, errors.New("aggregator down")
		},
		BTCPriceUSD: decimal.NewFromInt(50000),
	}

	algo := testAlgo()
	algo.FallbackRate = 2.5 // USD per TH/s per day
	algo.FallbackUnit = "TH/s"

	m := testMachine()
	res, err := r.Resolve(context.Background(), m, algo, nil, mustBase(t, m))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if res.Source != domain.SourceCatalogFallback {
		t.Errorf("source = %s, want catalog-fallback", res.Source)
	}
	if res.Confidence != 10 {
		t.Errorf("catalog fallback confidence = %d, want 10", res.Confidence)
	}
	// 100 TH/s * 2.5 USD/TH/day = 250
	approxEqual(t, res.RevenueUSDPerDay, decimal.NewFromInt(250), "fallback revenue")
}

func TestResolver_AllTiersMiss(t *testing.T) {
	r := &Resolver{
		Estimates: func(key string) (float64, bool) { return 0, false },
		Payout: func(ctx context.Context, algoKey string) (float64, error) {
			return 0, errors.New("aggregator down")
		},
		BTCPriceUSD: decimal.NewFromInt(50000),
	}

	m := testMachine()
	_, err := r.Resolve(context.Background(), m, testAlgo(), testCoins("bitcoin"), mustBase(t, m))
	if !errors.Is(err, domain.ErrNoEstimate) {
		t.Errorf("expected ErrNoEstimate, got %v", err)
	}
}

func TestResolver_Candidates(t *testing.T) {
	r := &Resolver{CandidateCap: 3}

	t.Run("permitted coins take precedence", func(t *testing.T) {
		m := testMachine()
		m.PermittedCoins = testCoins("bitcoin")
		got := r.Candidates(m, testCoins("a", "b", "c"))
		if len(got) != 1 || got[0].Key != "bitcoin" {
			t.Errorf("candidates = %v, want permitted list", got)
		}
	})

	t.Run("algorithm coins capped", func(t *testing.T) {
		m := testMachine()
		got := r.Candidates(m, testCoins("a", "b", "c", "d", "e"))
		if len(got) != 3 {
			t.Errorf("candidates = %d coins, want cap of 3", len(got))
		}
	})
}
