package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const (
	// Income consistency needs this much data before it means anything.
	minInflowsForConsistency = 3
	minWeeksForConsistency   = 4
	neutralConsistency       = 0.5
)

// RatioSentinel is the income/spend ratio reported when there is inflow
// but no outflow at all.
var RatioSentinel = decimal.New(99999, -2)

// ExtractFactors computes the raw risk factors of a history. Transactions
// older than windowDays days before the latest one only contribute to the
// opening balance. ADB is averaged over windowDays days starting at the
// first in-window transaction, with the last balance carried to the end. An
// empty history yields zero factors.
func ExtractFactors(txns []Transaction, openingBalanceCents int64, windowDays int) RiskFactors {
	f := RiskFactors{
		AvgDailyBalance:  decimal.Zero,
		IncomeSpendRatio: decimal.Zero,
	}
	if len(txns) == 0 || windowDays <= 0 {
		return f
	}

	in, opening := window(txns, openingBalanceCents, windowDays)
	first, last := dayNumber(in[0].Date), dayNumber(in[len(in)-1].Date)

	f.TransactionCount = len(in)
	f.HistoryDays = int(last-first) + 1
	f.AvgDailyBalance = averageDailyBalance(in, opening, first, first+int64(windowDays)-1)
	f.IncomeSpendRatio = incomeSpendRatio(in)
	f.NSFCount = countNSF(in)
	f.IncomeConsistency = incomeConsistency(in)
	return f
}

// window returns the in-window transactions in chronological order together
// with the balance carried into the window.
func window(txns []Transaction, opening int64, windowDays int) ([]Transaction, int64) {
	sorted := make([]Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return dayNumber(sorted[i].Date) < dayNumber(sorted[j].Date)
	})

	start := dayNumber(sorted[len(sorted)-1].Date) - int64(windowDays) + 1
	i := 0
	for i < len(sorted) && dayNumber(sorted[i].Date) < start {
		opening += sorted[i].AmountCents
		i++
	}
	return sorted[i:], opening
}

func averageDailyBalance(in []Transaction, opening, first, last int64) decimal.Decimal {
	days := last - first + 1
	if days <= 0 {
		return decimal.Zero
	}

	balance := opening
	var total int64
	i := 0
	for d := first; d <= last; d++ {
		for i < len(in) && dayNumber(in[i].Date) == d {
			balance += in[i].AmountCents
			i++
		}
		total += balance
	}
	return decimal.NewFromInt(total).Div(decimal.NewFromInt(days * 100)).Round(2)
}

func incomeSpendRatio(in []Transaction) decimal.Decimal {
	var inflow, outflow int64
	for _, t := range in {
		if t.AmountCents > 0 {
			inflow += t.AmountCents
		} else {
			outflow -= t.AmountCents
		}
	}
	if outflow == 0 {
		if inflow > 0 {
			return RatioSentinel
		}
		return decimal.Zero
	}
	return decimal.NewFromInt(inflow).DivRound(decimal.NewFromInt(outflow), 4)
}

func countNSF(in []Transaction) int {
	n := 0
	for _, t := range in {
		if t.IsNSF {
			n++
		}
	}
	return n
}

// incomeConsistency is 1 - coefficient of variation of weekly inflow,
// clamped to [0,1]. Only ISO weeks that saw inflow are counted, so a
// bi-weekly salary still reads as regular.
func incomeConsistency(in []Transaction) float64 {
	weekly := make(map[int]int64)
	inflows := 0
	for _, t := range in {
		if t.AmountCents <= 0 {
			continue
		}
		year, week := t.Date.ISOWeek()
		weekly[year*100+week] += t.AmountCents
		inflows++
	}
	if inflows < minInflowsForConsistency || len(weekly) < minWeeksForConsistency {
		return neutralConsistency
	}

	keys := make([]int, 0, len(weekly))
	for k := range weekly {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	n := float64(len(keys))
	var sum float64
	for _, k := range keys {
		sum += float64(weekly[k])
	}
	mean := sum / n
	if mean <= 0 {
		return neutralConsistency
	}

	var sq float64
	for _, k := range keys {
		d := float64(weekly[k]) - mean
		sq += d * d
	}
	cv := math.Sqrt(sq/n) / mean
	return math.Max(0, math.Min(1, 1-cv))
}

var epoch = time.Date(1970, time.January, 1, 0, 0, 0, 0, time.UTC)

// dayNumber is the civil day of t, counted from the Unix epoch. Days before
// 1970 are negative.
func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return int64(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Sub(epoch) / (24 * time.Hour))
}
