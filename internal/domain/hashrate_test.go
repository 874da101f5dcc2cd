package domain

import (
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseSpeedToBase(t *testing.T) {
	cases := []struct {
		magnitude float64
		unit      string
		want      float64
		wantUnit  RateUnit
	}{
		{100, "TH/s", 100e12, UnitHash},
		{1, "H/s", 1, UnitHash},
		{5, "GH/S", 5e9, UnitHash},
		{2.5, "mh/s", 2.5e6, UnitHash},
		{1, "HS", 1, UnitHash},
		{3, "kh/s", 3e3, UnitHash},
		{7, " TH / s ", 7e12, UnitHash},
		{1, "Sol/s", 1, UnitSol},
		{4, "MSOL/S", 4e6, UnitSol},
		{2, "ksol/s", 2e3, UnitSol},
		{9, "PH/s", 9e15, UnitHash},
		{6, "TH/sec", 6e12, UnitHash},
		{2, "sol/sec", 2, UnitSol},
	}

	for _, tc := range cases {
		got, err := ParseSpeedToBase(tc.magnitude, tc.unit)
		if err != nil {
			t.Errorf("ParseSpeedToBase(%v, %q) error: %v", tc.magnitude, tc.unit, err)
			continue
		}
		if got.Unit != tc.wantUnit {
			t.Errorf("ParseSpeedToBase(%v, %q) unit = %s, want %s", tc.magnitude, tc.unit, got.Unit, tc.wantUnit)
		}
		if math.Abs(got.Value-tc.want) > tc.want*1e-12 {
			t.Errorf("ParseSpeedToBase(%v, %q) = %v, want %v", tc.magnitude, tc.unit, got.Value, tc.want)
		}
	}
}

func TestParseSpeedToBase_Invalid(t *testing.T) {
	invalid := []struct {
		magnitude float64
		unit      string
	}{
		{1, "XH/s"},
		{1, "foo"},
		{1, ""},
		{1, "W/s"},
		{math.NaN(), "TH/s"},
		{math.Inf(1), "TH/s"},
	}

	for _, tc := range invalid {
		_, err := ParseSpeedToBase(tc.magnitude, tc.unit)
		if err == nil {
			t.Errorf("ParseSpeedToBase(%v, %q) expected error", tc.magnitude, tc.unit)
		}
		if !errors.Is(err, ErrUnknownUnit) {
			t.Errorf("ParseSpeedToBase(%v, %q) error should wrap ErrUnknownUnit, got %v", tc.magnitude, tc.unit, err)
		}
	}
}

func TestParseSpeedToBase_RoundTrip(t *testing.T) {
	// Converting a base value into a prefixed unit and back must recover
	// the original within floating-point tolerance.
	prefixed := []struct {
		unit string
		mult float64
	}{
		{"kh/s", 1e3},
		{"MH/s", 1e6},
		{"GH/s", 1e9},
		{"TH/s", 1e12},
		{"PH/s", 1e15},
		{"ksol/s", 1e3},
		{"MSol/s", 1e6},
	}

	base := 123456.789e12
	for _, p := range prefixed {
		magnitude := base / p.mult
		got, err := ParseSpeedToBase(magnitude, p.unit)
		if err != nil {
			t.Fatalf("round trip via %q failed: %v", p.unit, err)
		}
		if math.Abs(got.Value-base)/base > 1e-12 {
			t.Errorf("round trip via %q = %v, want %v", p.unit, got.Value, base)
		}
	}
}

func TestUnitMultiplier(t *testing.T) {
	mult, unit, err := UnitMultiplier("MH/s")
	if err != nil {
		t.Fatalf("UnitMultiplier failed: %v", err)
	}
	if mult != 1e6 || unit != UnitHash {
		t.Errorf("UnitMultiplier(MH/s) = %v %s, want 1e6 H/s", mult, unit)
	}
}

func TestElectricityUSDPerDay(t *testing.T) {
	// 3000W at $0.10/kWh: 3kW * 24h * 0.10 = $7.20/day
	got := ElectricityUSDPerDay(3000, 0.10)
	if !got.Equal(decimal.RequireFromString("7.2")) {
		t.Errorf("ElectricityUSDPerDay(3000, 0.10) = %s, want 7.2", got)
	}

	zeroCases := []struct {
		watts, rate float64
	}{
		{0, 0.10},
		{3000, 0},
		{-100, 0.10},
		{3000, -0.5},
		{math.NaN(), 0.10},
		{3000, math.Inf(1)},
	}
	for _, tc := range zeroCases {
		if got := ElectricityUSDPerDay(tc.watts, tc.rate); !got.IsZero() {
			t.Errorf("ElectricityUSDPerDay(%v, %v) = %s, want 0", tc.watts, tc.rate, got)
		}
	}
}

func TestBaseRateFormat(t *testing.T) {
	r := BaseRate{Value: 100e12, Unit: UnitHash}
	if r.Format() != "100.00 TH/s" {
		t.Errorf("Format() = %q, want %q", r.Format(), "100.00 TH/s")
	}
}
