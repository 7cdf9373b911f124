package scoring

import "sort"

// Limit returns the credit limit of the tier containing score. The table is
// validated to partition [0,100], so every in-range score has exactly one
// tier. Out-of-range scores are clamped first.
func (t Tiers) Limit(score int) int64 {
	if len(t) == 0 {
		return 0
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	i := sort.Search(len(t), func(i int) bool { return t[i].ScoreMax >= score })
	if i == len(t) {
		return t[len(t)-1].LimitCents
	}
	return t[i].LimitCents
}

// MaxLimit is the largest limit the table can offer.
func (t Tiers) MaxLimit() int64 {
	var max int64
	for _, tier := range t {
		if tier.LimitCents > max {
			max = tier.LimitCents
		}
	}
	return max
}
