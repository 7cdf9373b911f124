package scoring

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	adbLow      = decimal.NewFromInt(100)
	adbModerate = decimal.NewFromInt(500)
	ratioLow    = decimal.New(8, -1)
	ratioEven   = decimal.NewFromInt(1)
	ratioOK     = decimal.New(13, -1)
)

// Explain renders a decision as a short human-readable report, used by
// support tooling and the CLI.
func Explain(d Decision) string {
	var b strings.Builder

	if d.Approved {
		fmt.Fprintf(&b, "Decision: APPROVED ($%s limit)\n", decimal.New(d.CreditLimitCents, -2).StringFixed(0))
	} else {
		b.WriteString("Decision: DECLINED\n")
	}
	fmt.Fprintf(&b, "Outcome: %s\n", d.Outcome)
	fmt.Fprintf(&b, "Risk Score: %d/100\n", d.RiskScore)
	if d.GigBonusApplied {
		b.WriteString("Irregular-income adjustment applied\n")
	}
	b.WriteString("\nContributing Factors:\n")

	f := d.Factors
	adb := f.AvgDailyBalance
	switch {
	case adb.IsNegative():
		fmt.Fprintf(&b, "  - Average balance: $%s (NEGATIVE - high risk)\n", adb.StringFixed(2))
	case adb.LessThan(adbLow):
		fmt.Fprintf(&b, "  - Average balance: $%s (low cushion)\n", adb.StringFixed(2))
	case adb.LessThan(adbModerate):
		fmt.Fprintf(&b, "  - Average balance: $%s (moderate cushion)\n", adb.StringFixed(2))
	default:
		fmt.Fprintf(&b, "  - Average balance: $%s (healthy cushion)\n", adb.StringFixed(2))
	}

	r := f.IncomeSpendRatio
	switch {
	case r.LessThan(ratioLow):
		fmt.Fprintf(&b, "  - Income/spend ratio: %s (spending exceeds income)\n", r.StringFixed(2))
	case r.LessThan(ratioEven):
		fmt.Fprintf(&b, "  - Income/spend ratio: %s (near break-even)\n", r.StringFixed(2))
	case r.LessThan(ratioOK):
		fmt.Fprintf(&b, "  - Income/spend ratio: %s (sustainable)\n", r.StringFixed(2))
	default:
		fmt.Fprintf(&b, "  - Income/spend ratio: %s (healthy margin)\n", r.StringFixed(2))
	}

	switch {
	case f.NSFCount == 0:
		fmt.Fprintf(&b, "  - NSF events: %d (excellent)\n", f.NSFCount)
	case f.NSFCount <= 2:
		fmt.Fprintf(&b, "  - NSF events: %d (minor concern)\n", f.NSFCount)
	default:
		fmt.Fprintf(&b, "  - NSF events: %d (significant concern)\n", f.NSFCount)
	}
	fmt.Fprintf(&b, "  - History: %d transactions over %d days\n", f.TransactionCount, f.HistoryDays)

	return b.String()
}
