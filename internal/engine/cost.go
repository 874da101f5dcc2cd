package engine

import (
	"math"
	"time"

	"profit_go/internal/domain"

	"github.com/shopspring/decimal"
)

// CostInputs are the raw inputs to one cost-breakdown computation.
// All inputs are clamped to their valid domains before use.
type CostInputs struct {
	PowerWatts           float64
	ElectricityUSDPerKWh float64
	RevenueUSDPerDay     decimal.Decimal
	PoolFeePct           float64
	HostingUSDPerDay     decimal.Decimal
	Capex                domain.CapexInputs
	ComputedAt           time.Time
}

var hundred = decimal.NewFromInt(100)

// ComputeCostBreakdown turns a machine's power draw, revenue and fee
// parameters into a structured daily cost breakdown. Pure function, no I/O.
func ComputeCostBreakdown(in CostInputs) domain.CostBreakdown {
	revenue := in.RevenueUSDPerDay
	if revenue.IsNegative() {
		revenue = decimal.Zero
	}

	feePct := clampFloat(in.PoolFeePct, 0, 100)
	hosting := in.HostingUSDPerDay
	if hosting.IsNegative() {
		hosting = decimal.Zero
	}

	electricity := domain.ElectricityUSDPerDay(in.PowerWatts, in.ElectricityUSDPerKWh)
	poolFee := revenue.Mul(decimal.NewFromFloat(feePct)).Div(hundred)
	net := revenue.Sub(electricity).Sub(poolFee).Sub(hosting)

	b := domain.CostBreakdown{
		DailyElectricityUSD: electricity,
		DailyPoolFeeUSD:     poolFee,
		DailyHostingUSD:     hosting,
		NetProfitUSDPerDay:  net,
	}

	if revenue.IsPositive() {
		margin := net.Div(revenue).Mul(hundred)
		b.GrossMarginPct = &margin
	}

	b.CapexTotalUSD = capexTotal(in.Capex)

	// ROI only exists for a machine that is known to cost something and
	// that actually turns a daily profit.
	if b.CapexTotalUSD != nil && b.CapexTotalUSD.IsPositive() && net.IsPositive() {
		days := int(b.CapexTotalUSD.Div(net).Ceil().IntPart())
		b.ROIDays = &days
		payback := in.ComputedAt.AddDate(0, 0, days)
		b.PaybackDate = &payback
	}

	return b
}

// capexTotal sums the known capex components, clamping negatives to zero.
// Returns nil when no component is present at all: "no capex known" is not
// the same thing as "zero capex".
func capexTotal(c domain.CapexInputs) *decimal.Decimal {
	components := []*decimal.Decimal{c.HardwareUSD, c.ShippingUSD, c.VATUSD, c.OtherUSD}

	total := decimal.Zero
	present := false
	for _, comp := range components {
		if comp == nil {
			continue
		}
		present = true
		if comp.IsPositive() {
			total = total.Add(*comp)
		}
	}
	if !present {
		return nil
	}
	return &total
}

func clampFloat(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
