package domain

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// ElectricityUSDPerDay computes the daily electricity cost for a constant
// power draw: (watts / 1000) * 24h * price per kWh. Negative or non-finite
// inputs clamp to zero so a malformed machine spec degrades to a free-power
// estimate instead of aborting a batch.
func ElectricityUSDPerDay(powerWatts, usdPerKWh float64) decimal.Decimal {
	if powerWatts <= 0 || usdPerKWh <= 0 ||
		math.IsNaN(powerWatts) || math.IsInf(powerWatts, 0) ||
		math.IsNaN(usdPerKWh) || math.IsInf(usdPerKWh, 0) {
		return decimal.Zero
	}
	kw := decimal.NewFromFloat(powerWatts).Div(decimal.NewFromInt(1000))
	return kw.Mul(decimal.NewFromInt(24)).Mul(decimal.NewFromFloat(usdPerKWh))
}

// CapexInputs are the one-time acquisition costs known for a machine.
// A nil field means "unknown", which is different from zero.
type CapexInputs struct {
	HardwareUSD *decimal.Decimal
	ShippingUSD *decimal.Decimal
	VATUSD      *decimal.Decimal
	OtherUSD    *decimal.Decimal
}

// CostBreakdown is the derived per-day economics of one machine.
// It has no identity and is recomputed on every call; it is only ever
// persisted embedded in a snapshot's breakdown record.
type CostBreakdown struct {
	DailyElectricityUSD decimal.Decimal
	DailyPoolFeeUSD     decimal.Decimal
	DailyHostingUSD     decimal.Decimal
	NetProfitUSDPerDay  decimal.Decimal

	// GrossMarginPct is nil when revenue is zero (margin is undefined).
	GrossMarginPct *decimal.Decimal

	// CapexTotalUSD is nil when no capex component is known. "No capex
	// known" must never be conflated with "zero capex" for ROI purposes.
	CapexTotalUSD *decimal.Decimal

	// ROIDays is nil unless capex is known and positive and the machine
	// nets a strictly positive daily profit.
	ROIDays *int

	// PaybackDate is the calendar date capex is recovered, when ROIDays
	// is defined.
	PaybackDate *time.Time
}
