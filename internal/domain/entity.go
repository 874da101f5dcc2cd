package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Algorithm is read-only reference data describing a mining algorithm.
type Algorithm struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Key  string `gorm:"uniqueIndex" json:"key"` // canonical key, e.g. "sha256"
	Name string `json:"name"`

	// AggregatorKey overrides Key when querying the payout aggregator,
	// whose naming does not always match ours.
	AggregatorKey string `json:"aggregator_key,omitempty"`

	// FallbackRate is a hand-maintained last-resort revenue figure in USD
	// per FallbackUnit per day. Zero means no fallback exists.
	FallbackRate float64 `json:"fallback_rate,omitempty"`
	FallbackUnit string  `json:"fallback_unit,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Coin is a mineable currency under one algorithm.
type Coin struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Key         string `gorm:"uniqueIndex" json:"key"` // estimator identifier, e.g. "bitcoin"
	Symbol      string `gorm:"index" json:"symbol"`
	Name        string `json:"name"`
	AlgorithmID uint   `gorm:"index" json:"algorithm_id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// VendorOffer is one vendor's listing for a machine.
type VendorOffer struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	MachineID uint            `gorm:"index" json:"machine_id"`
	Vendor    string          `json:"vendor"`
	Price     decimal.Decimal `gorm:"type:decimal(18,2)" json:"price"`
	Currency  string          `json:"currency"` // ISO code, e.g. "USD", "EUR"
	// ShippingPrice is in the same currency as Price. Nil means unknown.
	ShippingPrice *decimal.Decimal `gorm:"type:decimal(18,2)" json:"shipping_price,omitempty"`
	InStock       bool             `gorm:"index" json:"in_stock"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Machine is one piece of mining hardware in the catalog. The catalog is
// written by the admin surface; this pipeline only reads it.
type Machine struct {
	ID           uint    `gorm:"primaryKey" json:"id"`
	Name         string  `json:"name"`
	AlgorithmID  uint    `gorm:"index" json:"algorithm_id"`
	Hashrate     float64 `json:"hashrate"`      // magnitude, unit in HashrateUnit
	HashrateUnit string  `json:"hashrate_unit"` // loosely formatted, e.g. "TH/s"
	PowerWatts   float64 `json:"power_watts"`

	// PermittedCoins restricts which coins the machine may mine. Empty
	// means any coin under its algorithm.
	PermittedCoins []Coin        `gorm:"many2many:machine_permitted_coins" json:"permitted_coins,omitempty"`
	Offers         []VendorOffer `json:"offers,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FxRate converts a currency into USD: 1 USD buys Rate units of Currency.
type FxRate struct {
	Currency  string          `gorm:"primaryKey" json:"currency"`
	Rate      decimal.Decimal `gorm:"type:decimal(18,8)" json:"rate"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// StoredPrice is the last reference price a run successfully fetched,
// kept as the price oracle's fallback of last resort.
type StoredPrice struct {
	Asset     string          `gorm:"primaryKey" json:"asset"`
	PriceUSD  decimal.Decimal `gorm:"type:decimal(18,8)" json:"price_usd"`
	Source    string          `json:"source"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// ReferencePrice is a resolved fiat price for one asset plus its provenance.
type ReferencePrice struct {
	Asset  string          `json:"asset"`
	Value  decimal.Decimal `json:"value"`
	Source string          `json:"source"`
}

// RevenueEstimate is an external estimator's figure for one coin: USD
// earned per day per base unit of speed. Ephemeral, cached in memory only.
type RevenueEstimate struct {
	PerBaseUnitPerDay float64  `json:"per_base_unit_per_day"`
	SourceUnit        string   `json:"source_unit"`
	Unit              RateUnit `json:"unit"`
}
