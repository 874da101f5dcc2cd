package domain

import "context"

// CoinEstimator fetches an independently published revenue figure for one
// coin. A nil estimate with a nil error means "confirmed no data" (the
// result is negative-cached by the implementation).
type CoinEstimator interface {
	RevenuePerBaseUnitPerDay(ctx context.Context, key string) (*RevenueEstimate, error)
}

// PayoutSource returns an algorithm-level payout rate in BTC per base unit
// per day from a mining-marketplace aggregation API.
type PayoutSource interface {
	AlgorithmPayout(ctx context.Context, algoKey string) (float64, error)
}

// PriceSource resolves a USD reference price for a crypto asset.
type PriceSource interface {
	ReferencePriceUSD(ctx context.Context, asset string) (ReferencePrice, error)
}
