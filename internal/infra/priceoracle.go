package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"profit_go/internal/domain"

	"github.com/shopspring/decimal"
)

// StoredPriceStore persists the last successfully fetched reference price
// so the oracle can survive a full provider outage.
type StoredPriceStore interface {
	LastPrice(asset string) (*domain.StoredPrice, error)
	SavePrice(p *domain.StoredPrice) error
}

// binanceResponse represents the Binance ticker API response
type binanceResponse struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// assetIDs maps our asset symbol to each provider's identifier.
var assetIDs = map[string]struct {
	binance   string
	coingecko string
}{
	"BTC": {"BTCUSDT", "bitcoin"},
	"ETH": {"ETHUSDT", "ethereum"},
	"LTC": {"LTCUSDT", "litecoin"},
}

// PriceOracle resolves a USD reference price by trying independent
// providers in a fixed priority order. Providers that fail, time out or
// return a non-finite/non-positive value are skipped silently; the last
// stored value from a previous run is the fallback of last resort.
type PriceOracle struct {
	binanceURL   string
	coingeckoURL string
	timeout      time.Duration
	client       *http.Client
	store        StoredPriceStore
}

// NewPriceOracle creates an oracle from the application config.
func NewPriceOracle(cfg *Config, store StoredPriceStore) *PriceOracle {
	return NewPriceOracleWithConfig(
		cfg.Providers.Price.BinanceURL,
		cfg.Providers.Price.CoinGeckoURL,
		time.Duration(cfg.Providers.Price.TimeoutSec)*time.Second,
		store,
	)
}

// NewPriceOracleWithConfig creates an oracle with explicit settings.
// store may be nil, in which case no stored-price fallback is available.
func NewPriceOracleWithConfig(binanceURL, coingeckoURL string, timeout time.Duration, store StoredPriceStore) *PriceOracle {
	if binanceURL == "" {
		binanceURL = "https://api.binance.com/api/v3/ticker/price"
	}
	if coingeckoURL == "" {
		coingeckoURL = "https://api.coingecko.com/api/v3/simple/price"
	}
	return &PriceOracle{
		binanceURL:   binanceURL,
		coingeckoURL: coingeckoURL,
		timeout:      timeout,
		client: &http.Client{
			Timeout: timeout,
		},
		store: store,
	}
}

// ReferencePriceUSD resolves the USD price for asset. The first provider
// to return a finite positive value wins. Returns ErrPriceUnavailable
// when every provider fails and no stored value exists; the caller must
// treat that as fatal for the whole computation run.
func (o *PriceOracle) ReferencePriceUSD(ctx context.Context, asset string) (domain.ReferencePrice, error) {
	asset = strings.ToUpper(asset)

	providers := []struct {
		name  string
		fetch func(ctx context.Context, asset string) (decimal.Decimal, error)
	}{
		{"binance", o.fetchFromBinance},
		{"coingecko", o.fetchFromCoinGecko},
	}

	for _, p := range providers {
		value, err := p.fetch(ctx, asset)
		if err != nil {
			GlobalMetrics.RecordProviderFailure()
			slog.Warn("Price provider failed", slog.String("provider", p.name), slog.String("asset", asset), slog.Any("error", err))
			continue
		}
		if !value.IsPositive() {
			slog.Warn("Price provider returned non-positive value", slog.String("provider", p.name), slog.String("asset", asset))
			continue
		}

		price := domain.ReferencePrice{Asset: asset, Value: value, Source: p.name}
		o.persist(price)
		return price, nil
	}

	// Every provider failed; fall back to the last stored value.
	if o.store != nil {
		stored, err := o.store.LastPrice(asset)
		if err == nil && stored != nil && stored.PriceUSD.IsPositive() {
			slog.Warn("All price providers failed, using stored price",
				slog.String("asset", asset),
				slog.String("price", stored.PriceUSD.String()),
				slog.Time("fetched_at", stored.FetchedAt),
			)
			return domain.ReferencePrice{Asset: asset, Value: stored.PriceUSD, Source: "stored"}, nil
		}
	}

	return domain.ReferencePrice{}, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, asset)
}

// persist writes the fetched price back as the future fallback, best-effort.
func (o *PriceOracle) persist(price domain.ReferencePrice) {
	if o.store == nil {
		return
	}
	err := o.store.SavePrice(&domain.StoredPrice{
		Asset:     price.Asset,
		PriceUSD:  price.Value,
		Source:    price.Source,
		FetchedAt: time.Now(),
	})
	if err != nil {
		slog.Warn("Failed to persist reference price", slog.String("asset", price.Asset), slog.Any("error", err))
	}
}

func (o *PriceOracle) fetchFromBinance(ctx context.Context, asset string) (decimal.Decimal, error) {
	ids, ok := assetIDs[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("no binance symbol for %s", asset)
	}

	body, err := o.get(ctx, fmt.Sprintf("%s?symbol=%s", o.binanceURL, ids.binance))
	if err != nil {
		return decimal.Zero, err
	}

	var data binanceResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return decimal.Zero, err
	}

	return decimal.NewFromString(data.Price)
}

func (o *PriceOracle) fetchFromCoinGecko(ctx context.Context, asset string) (decimal.Decimal, error) {
	ids, ok := assetIDs[asset]
	if !ok {
		return decimal.Zero, fmt.Errorf("no coingecko id for %s", asset)
	}

	body, err := o.get(ctx, fmt.Sprintf("%s?ids=%s&vs_currencies=usd", o.coingeckoURL, ids.coingecko))
	if err != nil {
		return decimal.Zero, err
	}

	var data map[string]map[string]float64
	if err := json.Unmarshal(body, &data); err != nil {
		return decimal.Zero, err
	}

	usd, ok := data[ids.coingecko]["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("price not found in response")
	}
	return decimal.NewFromFloat(usd), nil
}

// get performs one provider request with the oracle's own timeout.
func (o *PriceOracle) get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
