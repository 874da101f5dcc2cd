package engine

// ConfidenceFromMargin scores how decisively the best per-coin estimate
// beat the runner-up, on a 0-100 scale. A clearly dominant coin earns a
// high score; a near-tie earns a low one, because the "best coin" choice
// is likely to flip between runs on noise alone. A missing runner-up means
// no comparison is possible and scores a neutral 55.
func ConfidenceFromMargin(best float64, second *float64) int {
	if second == nil {
		return 55
	}
	if best <= 0 {
		return 30
	}

	margin := (best - *second) / best
	switch {
	case margin >= 0.30:
		return 90
	case margin >= 0.15:
		return 75
	case margin >= 0.07:
		return 60
	case margin >= 0.03:
		return 45
	default:
		return 30
	}
}
