// Package features implements C1, the Price & Feature Computer
// (spec.md §4.1): normalises quotes/history into per-symbol Feature
// records plus data-quality flags. Grounded on trader/pkg/formulas'
// go-talib/gonum wrappers, generalized from the corpus's single-symbol
// scoring inputs to a cross-sectional batch computation.
package features

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/harrowgate/dislocation-engine/internal/domain"
	"github.com/harrowgate/dislocation-engine/pkg/formulas"
)

// HistoryPoint is one (date, close) sample.
type HistoryPoint struct {
	Date  time.Time
	Close float64
}

// Computer turns quotes+history into Feature records.
type Computer struct {
	log zerolog.Logger
}

// New builds a Computer.
func New(log zerolog.Logger) *Computer {
	return &Computer{log: log.With().Str("component", "features").Logger()}
}

// Result is the batch output: one Feature per symbol with usable history,
// plus flags for symbols that were skipped or merely warned about.
type Result struct {
	Features map[string]domain.Feature
	Flags    []domain.Flag
}

// Compute implements spec.md §4.1 end to end: bar-interval detection,
// per-symbol feature extraction, and cross-sectional percentile bucketing.
func (c *Computer) Compute(universe []string, history map[string][]HistoryPoint, quotes map[string]float64) Result {
	res := Result{Features: make(map[string]domain.Feature)}

	duplicateCount := countDuplicateQuotes(quotes)
	if duplicateCount >= 3 {
		res.Flags = append(res.Flags, domain.Flag{
			Code: "DUPLICATE_QUOTES", Severity: domain.SeverityWarn,
			Message: "duplicate quote values across 3+ symbols", Observed: map[string]any{"count": duplicateCount},
		})
	}

	raw := make(map[string]rawFeature)
	for _, symbol := range universe {
		price, havePrice := quotes[symbol]
		closes := closesOf(history[symbol])

		if !havePrice || len(closes) == 0 {
			res.Flags = append(res.Flags, domain.Flag{
				Code: "INSUFFICIENT_HISTORY_FOR_FEATURES", Severity: domain.SeverityError,
				Message: "missing quote or history", Observed: map[string]any{"symbol": symbol},
			})
			continue
		}

		if formulas.IsFlat(closes, 5) {
			res.Flags = append(res.Flags, domain.Flag{
				Code: "INSUFFICIENT_HISTORY_FOR_FEATURES", Severity: domain.SeverityError,
				Message: "flat history (< 5 unique closes)", Observed: map[string]any{"symbol": symbol},
			})
			continue
		}

		interval := detectInterval(history[symbol])
		windows := domain.WindowsFor(interval)

		f := rawFeature{
			symbol:   symbol,
			interval: interval,
			price:    price,
			samples:  len(closes),
			unique:   uniqueCount(closes),
		}
		f.return5 = returnOver(closes, windows.Short)
		f.return20 = returnOver(closes, windows.Medium)
		f.return60 = returnOver(closes, windows.Long)
		f.vol20 = volOver(closes, windows.Medium)
		f.mdd60, _ = formulas.MaxDrawdown(lastN(closes, windows.Long))
		if ma, ok := formulas.MovingAverage(closes, windows.MAShort); ok {
			f.ma50 = ma
		} else {
			res.Flags = append(res.Flags, domain.Flag{
				Code: "INSUFFICIENT_SAMPLES_FOR_WINDOW", Severity: domain.SeverityWarn,
				Message: "not enough samples for short moving average", Observed: map[string]any{"symbol": symbol},
			})
		}
		if ma, ok := formulas.MovingAverage(closes, windows.MALong); ok {
			f.ma200 = ma
		} else if ema, ok := formulas.EMA(closes, windows.MALong); ok {
			f.ma200 = ema
		}

		raw[symbol] = f
	}

	ret60s := make([]float64, 0, len(raw))
	vols := make([]float64, 0, len(raw))
	for _, f := range raw {
		ret60s = append(ret60s, f.return60)
		vols = append(vols, f.vol20)
	}
	unreliable := len(raw) < 2
	if unreliable {
		res.Flags = append(res.Flags, domain.Flag{
			Code: "PERCENTILE_UNRELIABLE", Severity: domain.SeverityWarn,
			Message: "fewer than 2 symbols with samples; percentile buckets unknown",
		})
	}

	symbols := make([]string, 0, len(raw))
	for s := range raw {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		f := raw[symbol]
		ret60Bucket := domain.PctileUnknown
		volBucket := domain.PctileUnknown
		if !unreliable {
			ret60Bucket = bucketOf(formulas.Percentile(f.return60, ret60s))
			volBucket = bucketOf(formulas.Percentile(f.vol20, vols))
		}

		res.Features[symbol] = domain.Feature{
			Symbol:              symbol,
			Price:               f.price,
			BarInterval:         f.interval,
			Return5:             f.return5,
			Return20:            f.return20,
			Return60:            f.return60,
			Vol20:               f.vol20,
			MDD60:               f.mdd60,
			MA50:                f.ma50,
			MA200:               f.ma200,
			Ret60PctileBucket:   ret60Bucket,
			VolPctileBucket:     volBucket,
			HistorySamples:      f.samples,
			HistoryUniqueCloses: f.unique,
		}
	}

	return res
}

type rawFeature struct {
	symbol   string
	interval domain.BarInterval
	price    float64
	return5  float64
	return20 float64
	return60 float64
	vol20    float64
	mdd60    float64
	ma50     float64
	ma200    float64
	samples  int
	unique   int
}

func closesOf(points []HistoryPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close
	}
	return out
}

// detectInterval applies spec.md §4.1's median-gap rule: >= 5 days median
// gap is weekly, else daily.
func detectInterval(points []HistoryPoint) domain.BarInterval {
	if len(points) < 2 {
		return domain.BarWeekly
	}
	gaps := make([]float64, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		gaps = append(gaps, points[i].Date.Sub(points[i-1].Date).Hours()/24)
	}
	sort.Float64s(gaps)
	median := gaps[len(gaps)/2]
	if median >= 5 {
		return domain.BarWeekly
	}
	return domain.BarDaily
}

func returnOver(closes []float64, span int) float64 {
	if span <= 0 || len(closes) <= span {
		if len(closes) < 2 {
			return 0
		}
		span = len(closes) - 1
	}
	first := closes[len(closes)-1-span]
	last := closes[len(closes)-1]
	if first == 0 {
		return 0
	}
	return (last - first) / first
}

func volOver(closes []float64, span int) float64 {
	window := lastN(closes, span+1)
	returns := formulas.Returns(window)
	return formulas.StdDev(returns)
}

func lastN(s []float64, n int) []float64 {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

func uniqueCount(closes []float64) int {
	seen := make(map[float64]struct{}, len(closes))
	for _, c := range closes {
		seen[c] = struct{}{}
	}
	return len(seen)
}

func bucketOf(pct float64) domain.PctileBucket {
	switch {
	case pct < 0.33:
		return domain.PctileLow
	case pct > 0.66:
		return domain.PctileHigh
	default:
		return domain.PctileMid
	}
}

func countDuplicateQuotes(quotes map[string]float64) int {
	seen := make(map[float64]int, len(quotes))
	for _, v := range quotes {
		seen[v]++
	}
	max := 0
	for _, n := range seen {
		if n > max {
			max = n
		}
	}
	return max
}
