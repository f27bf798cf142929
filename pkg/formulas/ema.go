// Package formulas provides small, independently-testable numeric helpers
// used by the feature computer. Grounded on trader/pkg/formulas in the
// reference corpus: go-talib for moving averages, gonum/stat for
// dispersion statistics.
package formulas

import (
	"math"

	"github.com/markcheno/go-talib"
)

// MovingAverage returns the simple moving average over the last `length`
// closes, or 0 with ok=false if there isn't enough history. Falls back to
// talib's SMA rather than hand-rolling the loop, matching the corpus's
// CalculateSMA.
func MovingAverage(closes []float64, length int) (float64, bool) {
	if length <= 0 || len(closes) < length {
		return 0, false
	}
	sma := talib.Sma(closes, length)
	if len(sma) == 0 || math.IsNaN(sma[len(sma)-1]) {
		return 0, false
	}
	return sma[len(sma)-1], true
}

// EMA returns the exponential moving average over `length` periods,
// falling back to a plain mean when history is shorter than the window —
// the same "short history -> SMA fallback" rule trader/pkg/formulas/ema.go
// uses, so short-lived symbols still produce a usable (if less precise)
// moving-average feature instead of a hole in the Feature record.
func EMA(closes []float64, length int) (float64, bool) {
	if len(closes) == 0 {
		return 0, false
	}
	if len(closes) < length {
		return Mean(closes), true
	}
	ema := talib.Ema(closes, length)
	if len(ema) > 0 && !math.IsNaN(ema[len(ema)-1]) {
		return ema[len(ema)-1], true
	}
	return Mean(closes[len(closes)-length:]), true
}
