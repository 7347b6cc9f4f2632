package indicators

// SMA calculates the simple moving average for the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// SMAAt calculates the SMA over the period ending at index end (inclusive).
// Used to compare this bar's average against the previous bar's.
func SMAAt(values []float64, period, end int) float64 {
	if period <= 0 || end+1 < period || end >= len(values) {
		return 0
	}
	sum := 0.0
	for i := end + 1 - period; i <= end; i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// RisingCrossover reports whether the short SMA crossed above the long SMA on
// the latest bar, having been at or below it on the previous bar.
func RisingCrossover(closes []float64, shortPeriod, longPeriod int) bool {
	last := len(closes) - 1
	if last < longPeriod {
		return false
	}
	shortPrev := SMAAt(closes, shortPeriod, last-1)
	longPrev := SMAAt(closes, longPeriod, last-1)
	shortCur := SMAAt(closes, shortPeriod, last)
	longCur := SMAAt(closes, longPeriod, last)
	if shortPrev == 0 || longPrev == 0 || shortCur == 0 || longCur == 0 {
		return false
	}
	return shortPrev <= longPrev && shortCur > longCur
}
