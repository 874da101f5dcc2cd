package engine

import (
	"testing"
	"time"

	"profit_go/internal/domain"

	"github.com/shopspring/decimal"
)

var tolerance = decimal.NewFromFloat(0.0001)

func approxEqual(t *testing.T, got, want decimal.Decimal, label string) {
	t.Helper()
	if got.Sub(want).Abs().GreaterThan(tolerance) {
		t.Errorf("%s = %s, want ~%s", label, got, want)
	}
}

func TestComputeCostBreakdown(t *testing.T) {
	// 5000W at 1/6 USD/kWh yields $20/day electricity. With revenue 100,
	// pool fee 2% and hosting 5: net = 100 - 20 - 2 - 5 = 73, margin 73%.
	in := CostInputs{
		PowerWatts:           5000,
		ElectricityUSDPerKWh: 1.0 / 6.0,
		RevenueUSDPerDay:     decimal.NewFromInt(100),
		PoolFeePct:           2,
		HostingUSDPerDay:     decimal.NewFromInt(5),
		ComputedAt:           time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}

	b := ComputeCostBreakdown(in)

	approxEqual(t, b.DailyElectricityUSD, decimal.NewFromInt(20), "electricity")
	approxEqual(t, b.DailyPoolFeeUSD, decimal.NewFromInt(2), "pool fee")
	approxEqual(t, b.DailyHostingUSD, decimal.NewFromInt(5), "hosting")
	approxEqual(t, b.NetProfitUSDPerDay, decimal.NewFromInt(73), "net profit")

	if b.GrossMarginPct == nil {
		t.Fatal("gross margin should be defined for positive revenue")
	}
	approxEqual(t, *b.GrossMarginPct, decimal.NewFromInt(73), "gross margin")

	if b.CapexTotalUSD != nil {
		t.Error("capex total should be nil when no components are known")
	}
	if b.ROIDays != nil {
		t.Error("ROI should be undefined without capex")
	}
}

func TestComputeCostBreakdown_ROI(t *testing.T) {
	hardware := decimal.NewFromInt(700)
	shipping := decimal.NewFromInt(30)
	computedAt := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	in := CostInputs{
		PowerWatts:           5000,
		ElectricityUSDPerKWh: 1.0 / 6.0,
		RevenueUSDPerDay:     decimal.NewFromInt(100),
		PoolFeePct:           2,
		HostingUSDPerDay:     decimal.NewFromInt(5),
		Capex: domain.CapexInputs{
			HardwareUSD: &hardware,
			ShippingUSD: &shipping,
		},
		ComputedAt: computedAt,
	}

	b := ComputeCostBreakdown(in)

	if b.CapexTotalUSD == nil {
		t.Fatal("capex total should be defined")
	}
	approxEqual(t, *b.CapexTotalUSD, decimal.NewFromInt(730), "capex total")

	if b.ROIDays == nil {
		t.Fatal("ROI should be defined")
	}
	if *b.ROIDays != 10 {
		t.Errorf("ROI days = %d, want 10 (ceil(730/73))", *b.ROIDays)
	}

	if b.PaybackDate == nil {
		t.Fatal("payback date should be defined")
	}
	wantPayback := computedAt.AddDate(0, 0, 10)
	if !b.PaybackDate.Equal(wantPayback) {
		t.Errorf("payback date = %v, want %v", b.PaybackDate, wantPayback)
	}
}

func TestComputeCostBreakdown_NoROIWithoutProfit(t *testing.T) {
	hardware := decimal.NewFromInt(1000)

	// Electricity alone exceeds revenue, so the machine never pays back.
	in := CostInputs{
		PowerWatts:           5000,
		ElectricityUSDPerKWh: 1.0,
		RevenueUSDPerDay:     decimal.NewFromInt(10),
		Capex:                domain.CapexInputs{HardwareUSD: &hardware},
		ComputedAt:           time.Now(),
	}

	b := ComputeCostBreakdown(in)

	if !b.NetProfitUSDPerDay.IsNegative() {
		t.Fatalf("net profit should be negative, got %s", b.NetProfitUSDPerDay)
	}
	if b.ROIDays != nil {
		t.Error("ROI must be undefined when net profit <= 0, even with positive capex")
	}
	if b.PaybackDate != nil {
		t.Error("payback date must be undefined when ROI is undefined")
	}
}

func TestComputeCostBreakdown_Clamping(t *testing.T) {
	in := CostInputs{
		PowerWatts:           -500,
		ElectricityUSDPerKWh: -1,
		RevenueUSDPerDay:     decimal.NewFromInt(-5),
		PoolFeePct:           250,
		HostingUSDPerDay:     decimal.NewFromInt(-3),
		ComputedAt:           time.Now(),
	}

	b := ComputeCostBreakdown(in)

	if !b.DailyElectricityUSD.IsZero() {
		t.Errorf("negative power/price should clamp electricity to zero, got %s", b.DailyElectricityUSD)
	}
	if !b.DailyPoolFeeUSD.IsZero() {
		t.Errorf("pool fee on clamped zero revenue should be zero, got %s", b.DailyPoolFeeUSD)
	}
	if !b.DailyHostingUSD.IsZero() {
		t.Errorf("negative hosting should clamp to zero, got %s", b.DailyHostingUSD)
	}
	if b.GrossMarginPct != nil {
		t.Error("gross margin should be undefined when revenue is zero")
	}
}

func TestComputeCostBreakdown_ZeroCapexIsNotUnknown(t *testing.T) {
	zero := decimal.Zero
	in := CostInputs{
		RevenueUSDPerDay: decimal.NewFromInt(100),
		Capex:            domain.CapexInputs{HardwareUSD: &zero},
		ComputedAt:       time.Now(),
	}

	b := ComputeCostBreakdown(in)

	if b.CapexTotalUSD == nil {
		t.Fatal("capex total should be defined (zero) when a component is present")
	}
	if !b.CapexTotalUSD.IsZero() {
		t.Errorf("capex total = %s, want 0", b.CapexTotalUSD)
	}
	// Zero capex is known but not positive, so no ROI horizon.
	if b.ROIDays != nil {
		t.Error("ROI should be undefined for zero capex")
	}
}
