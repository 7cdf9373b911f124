package scoring

import "math"

// Composite combines the sub-scores into the final 0-100 risk score.
//
// Irregular income is not penalised twice: when income consistency is below
// the gig-worker threshold but inflow still comfortably exceeds outflow, a
// fixed bonus is added before rounding. The result is always clamped.
func Composite(s SubScores, w Weights, f RiskFactors, g GigWorkerPolicy) (int, bool) {
	raw := s.ADB*w.ADB + s.Ratio*w.Ratio + s.NSF*w.NSF

	bonus := false
	if f.IncomeConsistency < g.ConsistencyThreshold &&
		f.IncomeSpendRatio.InexactFloat64() > g.RatioThreshold {
		raw += float64(g.Bonus)
		bonus = true
	}

	score := int(math.Round(raw))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score, bonus
}
