package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// RevenueSource identifies which estimator tier produced a snapshot's
// revenue figure. The set is closed and the order of tiers is a
// correctness property, not an extension point.
type RevenueSource string

const (
	SourcePerCoin         RevenueSource = "per-coin"
	SourceAggregator      RevenueSource = "aggregator"
	SourceCatalogFallback RevenueSource = "catalog-fallback"
)

// BreakdownSchemaVersion is bumped whenever BreakdownRecord gains fields,
// so old snapshot rows stay readable.
const BreakdownSchemaVersion = 1

// BreakdownRecord is the structured JSON blob persisted inside a snapshot:
// the full cost breakdown plus provenance for the chosen revenue source.
type BreakdownRecord struct {
	SchemaVersion int `json:"schema_version"`

	RevenueUSDPerDay    decimal.Decimal `json:"revenue_usd_per_day"`
	DailyElectricityUSD decimal.Decimal `json:"daily_electricity_usd"`
	DailyPoolFeeUSD     decimal.Decimal `json:"daily_pool_fee_usd"`
	DailyHostingUSD     decimal.Decimal `json:"daily_hosting_usd"`
	NetProfitUSDPerDay  decimal.Decimal `json:"net_profit_usd_per_day"`

	GrossMarginPct *decimal.Decimal `json:"gross_margin_pct,omitempty"`
	CapexTotalUSD  *decimal.Decimal `json:"capex_total_usd,omitempty"`
	ROIDays        *int             `json:"roi_days,omitempty"`
	PaybackDate    *string          `json:"payback_date,omitempty"` // YYYY-MM-DD

	Source      RevenueSource `json:"source"`
	Confidence  int           `json:"confidence"` // 0-100
	Reason      string        `json:"reason"`
	BestCoinKey string        `json:"best_coin_key,omitempty"`
}

// ProfitabilitySnapshot is the durable fact produced by one computation
// run for one machine. Write-once: rows are never updated, and all rows
// of one run share the same hour-truncated ComputedAt bucket.
type ProfitabilitySnapshot struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	MachineID  uint      `gorm:"uniqueIndex:idx_snapshot_machine_bucket" json:"machine_id"`
	ComputedAt time.Time `gorm:"uniqueIndex:idx_snapshot_machine_bucket;index" json:"computed_at"`

	BestCoinID *uint `json:"best_coin_id,omitempty"`

	RevenueUSDPerDay     decimal.Decimal `gorm:"type:decimal(18,6)" json:"revenue_usd_per_day"`
	ElectricityUSDPerDay decimal.Decimal `gorm:"type:decimal(18,6)" json:"electricity_usd_per_day"`
	NetProfitUSDPerDay   decimal.Decimal `gorm:"type:decimal(18,6)" json:"net_profit_usd_per_day"`

	LowestPriceUSD *decimal.Decimal `gorm:"type:decimal(18,2)" json:"lowest_price_usd,omitempty"`
	ROIDays        *int             `json:"roi_days,omitempty"`

	Breakdown string `gorm:"type:text" json:"breakdown"`

	CreatedAt time.Time `json:"created_at"`
}

// EncodeBreakdown serializes a breakdown record into the snapshot's blob.
func (s *ProfitabilitySnapshot) EncodeBreakdown(rec BreakdownRecord) error {
	rec.SchemaVersion = BreakdownSchemaVersion
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.Breakdown = string(raw)
	return nil
}

// DecodeBreakdown parses the snapshot's breakdown blob. Returns nil when
// the blob is empty or unparseable; callers fall back to the snapshot's
// top-level numeric fields.
func (s *ProfitabilitySnapshot) DecodeBreakdown() *BreakdownRecord {
	if s.Breakdown == "" {
		return nil
	}
	var rec BreakdownRecord
	if err := json.Unmarshal([]byte(s.Breakdown), &rec); err != nil {
		return nil
	}
	return &rec
}

// NewBreakdownRecord assembles the persisted record from a computed
// breakdown and the winning tier's provenance.
func NewBreakdownRecord(revenue decimal.Decimal, b CostBreakdown, source RevenueSource, confidence int, reason, bestCoinKey string) BreakdownRecord {
	rec := BreakdownRecord{
		RevenueUSDPerDay:    revenue,
		DailyElectricityUSD: b.DailyElectricityUSD,
		DailyPoolFeeUSD:     b.DailyPoolFeeUSD,
		DailyHostingUSD:     b.DailyHostingUSD,
		NetProfitUSDPerDay:  b.NetProfitUSDPerDay,
		GrossMarginPct:      b.GrossMarginPct,
		CapexTotalUSD:       b.CapexTotalUSD,
		ROIDays:             b.ROIDays,
		Source:              source,
		Confidence:          confidence,
		Reason:              reason,
		BestCoinKey:         bestCoinKey,
	}
	if b.PaybackDate != nil {
		d := b.PaybackDate.Format("2006-01-02")
		rec.PaybackDate = &d
	}
	return rec
}
