package formulas

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Mean is a nil-safe wrapper over gonum's weighted mean (nil weights).
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0
	}
	return stat.Mean(data, nil)
}

// StdDev is a nil-safe wrapper over gonum's sample standard deviation.
func StdDev(data []float64) float64 {
	if len(data) < 2 {
		return 0
	}
	return stat.StdDev(data, nil)
}

// Returns converts a close-price series into period-over-period returns,
// same convention as the corpus's CalculateReturns.
func Returns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] != 0 {
			out[i-1] = (prices[i] - prices[i-1]) / prices[i-1]
		}
	}
	return out
}

// Percentile returns the rank of `value` within `population` on [0,1],
// using gonum's empirical CDF rescaled so the smallest member ranks 0 and
// the largest ranks 1; values outside the population's range clamp to those
// ends, and a population of fewer than two returns 0.5. Used by C1's
// cross-sectional bucketing.
func Percentile(value float64, population []float64) float64 {
	if len(population) < 2 {
		return 0.5
	}
	sorted := append([]float64(nil), population...)
	sort.Float64s(sorted)
	n := float64(len(sorted))
	rank := stat.CDF(value, stat.Empirical, sorted, nil)*n - 1
	return math.Max(0, math.Min(1, rank/(n-1)))
}

// MaxDrawdown returns the largest peak-to-trough fractional decline within
// `series`, and the highest value in `series`.
func MaxDrawdown(series []float64) (dd float64, peak float64) {
	if len(series) == 0 {
		return 0, 0
	}
	peak = series[0]
	for _, v := range series {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			drop := (peak - v) / peak
			if drop > dd {
				dd = drop
			}
		}
	}
	return dd, peak
}

// IsFlat reports whether a close series has fewer than minUnique distinct
// values, the data-quality check behind spec.md §4.1's "flat history"
// error flag.
func IsFlat(closes []float64, minUnique int) bool {
	seen := make(map[float64]struct{}, len(closes))
	for _, c := range closes {
		seen[math.Round(c*1e6)/1e6] = struct{}{}
	}
	return len(seen) < minUnique
}
