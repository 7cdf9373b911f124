package scoring

// Classify flags histories too sparse for normal scoring. A thin file with
// any NSF event is negative; a thin file without one is clean.
func Classify(f RiskFactors, p ThinFilePolicy) FileStatus {
	if f.TransactionCount >= p.MinTransactions && f.HistoryDays >= p.MinHistoryDays {
		return Normal
	}
	if f.NSFCount > 0 {
		return ThinFileNegative
	}
	return ThinFileClean
}
