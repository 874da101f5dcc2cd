package domain

import (
	"fmt"
	"math"
	"strings"
)

// RateUnit is the unprefixed base unit a hashrate is normalized to.
type RateUnit string

const (
	UnitHash RateUnit = "H/s"
	UnitSol  RateUnit = "Sol/s"
)

// BaseRate is a mining speed expressed in its unprefixed base unit.
type BaseRate struct {
	Value float64
	Unit  RateUnit
}

// siPrefixes maps an SI prefix letter to its multiplier.
// Catalog entries above zetta do not exist in practice.
var siPrefixes = map[string]float64{
	"":  1,
	"K": 1e3,
	"M": 1e6,
	"G": 1e9,
	"T": 1e12,
	"P": 1e15,
	"E": 1e18,
	"Z": 1e21,
}

// ParseSpeedToBase converts a magnitude with a loosely formatted unit label
// ("TH/s", "MSOL/S", "hs", "Sol/s") into the equivalent rate in the base unit.
// Unit labels are case- and space-insensitive. An unrecognized prefix or a
// non-finite magnitude returns an error so the caller can skip the machine.
func ParseSpeedToBase(magnitude float64, unit string) (BaseRate, error) {
	if math.IsNaN(magnitude) || math.IsInf(magnitude, 0) {
		return BaseRate{}, fmt.Errorf("%w: non-finite magnitude", ErrUnknownUnit)
	}

	norm := strings.ToUpper(unit)
	norm = strings.ReplaceAll(norm, " ", "")
	// "/SEC" must go before "/S", which would otherwise leave "EC" behind.
	norm = strings.TrimSuffix(norm, "/SEC")
	norm = strings.ReplaceAll(norm, "/S", "")

	var family RateUnit
	var prefix string
	switch {
	case strings.HasSuffix(norm, "SOL"):
		family = UnitSol
		prefix = strings.TrimSuffix(norm, "SOL")
	case strings.HasSuffix(norm, "HS"):
		family = UnitHash
		prefix = strings.TrimSuffix(norm, "HS")
	case strings.HasSuffix(norm, "H"):
		family = UnitHash
		prefix = strings.TrimSuffix(norm, "H")
	default:
		return BaseRate{}, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}

	mult, ok := siPrefixes[prefix]
	if !ok {
		return BaseRate{}, fmt.Errorf("%w: prefix %q in %q", ErrUnknownUnit, prefix, unit)
	}

	return BaseRate{Value: magnitude * mult, Unit: family}, nil
}

// UnitMultiplier returns the SI multiplier and family for a unit label,
// e.g. "MH/s" -> 1e6, H/s. Used to convert per-unit figures published by
// external sources into per-base-unit figures.
func UnitMultiplier(unit string) (float64, RateUnit, error) {
	r, err := ParseSpeedToBase(1, unit)
	if err != nil {
		return 0, "", err
	}
	return r.Value, r.Unit, nil
}

// Format renders the rate with the largest SI prefix that keeps the
// magnitude >= 1, for human-readable reason strings.
func (r BaseRate) Format() string {
	order := []string{"Z", "E", "P", "T", "G", "M", "K", ""}
	for _, p := range order {
		m := siPrefixes[p]
		if r.Value >= m {
			return fmt.Sprintf("%.2f %s%s", r.Value/m, p, string(r.Unit))
		}
	}
	return fmt.Sprintf("%.2f %s", r.Value, string(r.Unit))
}
