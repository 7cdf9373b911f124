package scoring

import (
	"fmt"
	"math"
)

// weightEpsilon is the tolerance allowed on the weight sum.
const weightEpsilon = 1e-6

// Breakpoint maps a raw factor value to a sub-score.
type Breakpoint struct {
	Value float64
	Score float64
}

// Curve is a piecewise-linear mapping ordered by ascending Value.
type Curve []Breakpoint

// Tier maps the inclusive score range [ScoreMin, ScoreMax] to a limit.
type Tier struct {
	ScoreMin   int
	ScoreMax   int
	LimitCents int64
}

// Tiers is an ordered partition of [0,100].
type Tiers []Tier

// Weights are the per-factor weights of the composite score.
type Weights struct {
	ADB   float64
	Ratio float64
	NSF   float64
}

// ThinFilePolicy configures the sparse-history override.
type ThinFilePolicy struct {
	MinTransactions   int
	MinHistoryDays    int
	StarterLimitCents int64
	// ApproveEmptyHistory treats a history with no transactions at all as
	// a clean thin file instead of declining it.
	ApproveEmptyHistory bool
}

// GigWorkerPolicy configures the irregular-income fairness bonus.
type GigWorkerPolicy struct {
	ConsistencyThreshold float64
	RatioThreshold       float64
	Bonus                int
}

// Config is the complete, read-only scoring configuration.
type Config struct {
	ApprovalThreshold int
	WindowDays        int
	ThinFile          ThinFilePolicy
	Weights           Weights
	ADBCurve          Curve
	RatioCurve        Curve
	NSFCurve          Curve
	GigWorker         GigWorkerPolicy
	Tiers             Tiers
}

// DefaultConfig returns the production policy defaults.
func DefaultConfig() Config {
	return Config{
		ApprovalThreshold: 30,
		WindowDays:        90,
		ThinFile: ThinFilePolicy{
			MinTransactions:   10,
			MinHistoryDays:    30,
			StarterLimitCents: 10_000,
		},
		Weights: Weights{ADB: 0.30, Ratio: 0.35, NSF: 0.35},
		ADBCurve: Curve{
			{Value: -200, Score: 0},
			{Value: 0, Score: 20},
			{Value: 100, Score: 40},
			{Value: 500, Score: 70},
			{Value: 1500, Score: 90},
			{Value: 2000, Score: 100},
		},
		RatioCurve: Curve{
			{Value: 0, Score: 0},
			{Value: 0.8, Score: 25},
			{Value: 1.0, Score: 50},
			{Value: 1.3, Score: 75},
			{Value: 2.0, Score: 90},
			{Value: 3.0, Score: 100},
		},
		NSFCurve: Curve{
			{Value: 0, Score: 100},
			{Value: 1, Score: 75},
			{Value: 2, Score: 50},
			{Value: 3, Score: 5},
			{Value: 4, Score: 0},
		},
		GigWorker: GigWorkerPolicy{
			ConsistencyThreshold: 0.5,
			RatioThreshold:       1.2,
			Bonus:                10,
		},
		Tiers: Tiers{
			{ScoreMin: 0, ScoreMax: 29, LimitCents: 0},
			{ScoreMin: 30, ScoreMax: 44, LimitCents: 10_000},
			{ScoreMin: 45, ScoreMax: 59, LimitCents: 20_000},
			{ScoreMin: 60, ScoreMax: 74, LimitCents: 30_000},
			{ScoreMin: 75, ScoreMax: 84, LimitCents: 40_000},
			{ScoreMin: 85, ScoreMax: 94, LimitCents: 50_000},
			{ScoreMin: 95, ScoreMax: 100, LimitCents: 60_000},
		},
	}
}

// Validate checks every invariant of the configuration and reports all
// violations at once. The returned error is a *ConfigError.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.WindowDays <= 0 {
		add("window_days must be positive, got %d", c.WindowDays)
	}
	if c.ThinFile.MinTransactions < 0 {
		add("thin_file.min_transactions must not be negative")
	}
	if c.ThinFile.MinHistoryDays < 0 {
		add("thin_file.min_history_days must not be negative")
	}
	if c.ThinFile.StarterLimitCents <= 0 {
		add("thin_file.starter_limit_cents must be positive")
	}

	w := c.Weights
	if w.ADB < 0 || w.Ratio < 0 || w.NSF < 0 {
		add("weights must not be negative")
	}
	if sum := w.ADB + w.Ratio + w.NSF; math.Abs(sum-1.0) > weightEpsilon {
		add("weights must sum to 1.0, got %.6f", sum)
	}

	for _, p := range c.ADBCurve.problems("adb_curve", false) {
		add("%s", p)
	}
	for _, p := range c.RatioCurve.problems("ratio_curve", false) {
		add("%s", p)
	}
	for _, p := range c.NSFCurve.problems("nsf_curve", true) {
		add("%s", p)
	}

	if c.GigWorker.Bonus < 0 || c.GigWorker.Bonus > 100 {
		add("gig_worker.bonus must be within [0,100], got %d", c.GigWorker.Bonus)
	}

	tierProblems := c.Tiers.problems()
	for _, p := range tierProblems {
		add("%s", p)
	}
	if len(tierProblems) == 0 {
		for _, p := range c.Tiers.thresholdProblems(c.ApprovalThreshold) {
			add("%s", p)
		}
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

func (c Curve) problems(name string, decreasing bool) []string {
	var out []string
	if len(c) < 2 {
		return []string{fmt.Sprintf("%s needs at least 2 breakpoints, got %d", name, len(c))}
	}
	for i, bp := range c {
		if bp.Score < 0 || bp.Score > 100 || math.IsNaN(bp.Score) {
			out = append(out, fmt.Sprintf("%s[%d] score %.2f outside [0,100]", name, i, bp.Score))
		}
		if i == 0 {
			continue
		}
		prev := c[i-1]
		if !(bp.Value > prev.Value) {
			out = append(out, fmt.Sprintf("%s[%d] value %.4f not greater than %.4f", name, i, bp.Value, prev.Value))
		}
		if decreasing && bp.Score > prev.Score {
			out = append(out, fmt.Sprintf("%s[%d] score must not increase", name, i))
		}
		if !decreasing && bp.Score < prev.Score {
			out = append(out, fmt.Sprintf("%s[%d] score must not decrease", name, i))
		}
	}
	return out
}

func (t Tiers) problems() []string {
	if len(t) == 0 {
		return []string{"tiers must not be empty"}
	}
	var out []string
	if t[0].ScoreMin != 0 {
		out = append(out, fmt.Sprintf("tiers must start at score 0, got %d", t[0].ScoreMin))
	}
	if last := t[len(t)-1]; last.ScoreMax != 100 {
		out = append(out, fmt.Sprintf("tiers must end at score 100, got %d", last.ScoreMax))
	}
	for i, tier := range t {
		if tier.ScoreMin > tier.ScoreMax {
			out = append(out, fmt.Sprintf("tier[%d] min %d above max %d", i, tier.ScoreMin, tier.ScoreMax))
		}
		if tier.LimitCents < 0 {
			out = append(out, fmt.Sprintf("tier[%d] limit must not be negative", i))
		}
		if i == 0 {
			continue
		}
		prev := t[i-1]
		switch {
		case tier.ScoreMin <= prev.ScoreMax:
			out = append(out, fmt.Sprintf("tier[%d] overlaps tier[%d]", i, i-1))
		case tier.ScoreMin > prev.ScoreMax+1:
			out = append(out, fmt.Sprintf("gap between tier[%d] and tier[%d]", i-1, i))
		}
		if tier.LimitCents < prev.LimitCents {
			out = append(out, fmt.Sprintf("tier[%d] limit lower than tier[%d]", i, i-1))
		}
	}
	return out
}

// thresholdProblems checks that approval by threshold and approval by a
// non-zero limit can never disagree.
func (t Tiers) thresholdProblems(threshold int) []string {
	if threshold < 0 || threshold > 100 {
		return []string{fmt.Sprintf("approval_threshold must be within [0,100], got %d", threshold)}
	}
	var out []string
	onBoundary := false
	for i, tier := range t {
		if tier.ScoreMin == threshold {
			onBoundary = true
		}
		if tier.ScoreMax < threshold && tier.LimitCents != 0 {
			out = append(out, fmt.Sprintf("tier[%d] below approval threshold must have a zero limit", i))
		}
		if tier.ScoreMin >= threshold && tier.LimitCents == 0 {
			out = append(out, fmt.Sprintf("tier[%d] at or above approval threshold must have a positive limit", i))
		}
	}
	if !onBoundary {
		out = append(out, fmt.Sprintf("approval_threshold %d must start a tier", threshold))
	}
	return out
}
