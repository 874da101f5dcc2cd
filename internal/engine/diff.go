package engine

import (
	"time"

	"profit_go/internal/domain"

	"github.com/shopspring/decimal"
)

// FieldDelta compares one financial field across two snapshots.
type FieldDelta struct {
	Current  decimal.Decimal  `json:"current"`
	Previous decimal.Decimal  `json:"previous"`
	Delta    decimal.Decimal  `json:"delta"`
	DeltaPct *decimal.Decimal `json:"delta_pct,omitempty"` // nil when previous is zero
}

// SnapshotDiff answers "what changed since the previous snapshot" for one
// machine.
type SnapshotDiff struct {
	MachineID  uint      `json:"machine_id"`
	CurrentAt  time.Time `json:"current_at"`
	PreviousAt time.Time `json:"previous_at"`

	Revenue     FieldDelta `json:"revenue"`
	Electricity FieldDelta `json:"electricity"`
	Fees        FieldDelta `json:"fees"` // pool + hosting combined
	NetProfit   FieldDelta `json:"net_profit"`

	BestCoinChanged  bool   `json:"best_coin_changed"`
	CurrentBestCoin  string `json:"current_best_coin,omitempty"`
	PreviousBestCoin string `json:"previous_best_coin,omitempty"`
	ConfidenceDelta  int    `json:"confidence_delta"`
}

// normalizedBreakdown is the common shape both snapshot generations reduce
// to before diffing, so the differ never branches on "might be missing".
type normalizedBreakdown struct {
	revenue     decimal.Decimal
	electricity decimal.Decimal
	fees        decimal.Decimal
	netProfit   decimal.Decimal
	bestCoinKey string
	confidence  int
}

// DiffSnapshots compares a machine's current snapshot against a previous
// one, field by field.
func DiffSnapshots(current, previous *domain.ProfitabilitySnapshot) *SnapshotDiff {
	cur := normalize(current)
	prev := normalize(previous)

	return &SnapshotDiff{
		MachineID:        current.MachineID,
		CurrentAt:        current.ComputedAt,
		PreviousAt:       previous.ComputedAt,
		Revenue:          delta(cur.revenue, prev.revenue),
		Electricity:      delta(cur.electricity, prev.electricity),
		Fees:             delta(cur.fees, prev.fees),
		NetProfit:        delta(cur.netProfit, prev.netProfit),
		BestCoinChanged:  cur.bestCoinKey != prev.bestCoinKey,
		CurrentBestCoin:  cur.bestCoinKey,
		PreviousBestCoin: prev.bestCoinKey,
		ConfidenceDelta:  cur.confidence - prev.confidence,
	}
}

// normalize prefers the structured breakdown blob. When it is absent or
// unparseable it falls back to the snapshot's top-level numeric fields,
// inferring the unsplit pool+hosting fees as revenue - electricity - net.
func normalize(s *domain.ProfitabilitySnapshot) normalizedBreakdown {
	if rec := s.DecodeBreakdown(); rec != nil {
		return normalizedBreakdown{
			revenue:     rec.RevenueUSDPerDay,
			electricity: rec.DailyElectricityUSD,
			fees:        rec.DailyPoolFeeUSD.Add(rec.DailyHostingUSD),
			netProfit:   rec.NetProfitUSDPerDay,
			bestCoinKey: rec.BestCoinKey,
			confidence:  rec.Confidence,
		}
	}

	fees := s.RevenueUSDPerDay.Sub(s.ElectricityUSDPerDay).Sub(s.NetProfitUSDPerDay)
	return normalizedBreakdown{
		revenue:     s.RevenueUSDPerDay,
		electricity: s.ElectricityUSDPerDay,
		fees:        fees,
		netProfit:   s.NetProfitUSDPerDay,
	}
}

func delta(cur, prev decimal.Decimal) FieldDelta {
	d := FieldDelta{
		Current:  cur,
		Previous: prev,
		Delta:    cur.Sub(prev),
	}
	if !prev.IsZero() {
		pct := d.Delta.Div(prev.Abs()).Mul(hundred)
		d.DeltaPct = &pct
	}
	return d
}

// SelectPrevious applies the "previous" selection policy to a list of
// snapshots sorted newest first: among snapshots strictly older than the
// newest, prefer the one closest to exactly 24 hours before now; if none
// qualifies, fall back to the second-newest overall.
func SelectPrevious(sorted []domain.ProfitabilitySnapshot, now time.Time) *domain.ProfitabilitySnapshot {
	if len(sorted) < 2 {
		return nil
	}

	target := now.Add(-24 * time.Hour)
	newest := sorted[0].ComputedAt

	var best *domain.ProfitabilitySnapshot
	var bestDist time.Duration
	for i := 1; i < len(sorted); i++ {
		s := &sorted[i]
		if !s.ComputedAt.Before(newest) {
			continue
		}
		dist := s.ComputedAt.Sub(target)
		if dist < 0 {
			dist = -dist
		}
		if best == nil || dist < bestDist {
			best = s
			bestDist = dist
		}
	}

	if best == nil {
		best = &sorted[1]
	}
	return best
}
