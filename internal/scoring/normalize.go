package scoring

import "math"

// SubScores are the normalised 0-100 scores of each factor.
type SubScores struct {
	ADB   float64
	Ratio float64
	NSF   float64
}

// Score maps x onto the curve by linear interpolation between the
// surrounding breakpoints. Values outside the curve take the score of the
// nearest end. The result is clamped to [0,100].
func (c Curve) Score(x float64) float64 {
	if len(c) == 0 {
		return 0
	}
	if x <= c[0].Value {
		return clampScore(c[0].Score)
	}
	last := c[len(c)-1]
	if x >= last.Value {
		return clampScore(last.Score)
	}
	for i := 1; i < len(c); i++ {
		hi := c[i]
		if x > hi.Value {
			continue
		}
		lo := c[i-1]
		frac := (x - lo.Value) / (hi.Value - lo.Value)
		return clampScore(lo.Score + frac*(hi.Score-lo.Score))
	}
	return clampScore(last.Score)
}

// Normalize converts raw factors into sub-scores using the configured curves.
func Normalize(f RiskFactors, cfg Config) SubScores {
	return SubScores{
		ADB:   cfg.ADBCurve.Score(f.AvgDailyBalance.InexactFloat64()),
		Ratio: cfg.RatioCurve.Score(f.IncomeSpendRatio.InexactFloat64()),
		NSF:   cfg.NSFCurve.Score(float64(f.NSFCount)),
	}
}

func clampScore(s float64) float64 {
	if math.IsNaN(s) {
		return 0
	}
	return math.Max(0, math.Min(100, s))
}
