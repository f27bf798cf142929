// Package allocator implements C4, the Target Allocator (spec.md §4.4):
// ranks candidate symbols by momentum x regime-tilt and emits universal
// target weights. Grounded on the corpus's scoring/scorers package shape
// (one scorer per concern, composed by a ranking caller) though the
// momentum/tilt arithmetic itself is spec.md's fixed heuristic, not a
// ported scorer — spec.md Non-goals exclude portfolio optimisation beyond
// fixed heuristics.
package allocator

import (
	"sort"

	"github.com/harrowgate/dislocation-engine/internal/domain"
)

// Bucket classifies a symbol for tilt-multiplier purposes (spec.md §4.4).
type Bucket string

const (
	BucketEquityLarge   Bucket = "equity_large"
	BucketGrowth        Bucket = "growth"
	BucketSmall         Bucket = "small"
	BucketDurationLong  Bucket = "duration_long"
	BucketDurationShort Bucket = "duration_short"
	BucketGold          Bucket = "gold"
)

// Candidate is one universal symbol eligible for allocation.
type Candidate struct {
	Symbol string
	Bucket Bucket
}

// Target is one selected symbol's weight in the universal target.
type Target struct {
	Symbol string
	Score  float64
	Weight float64
}

// Allocate implements spec.md §4.4: momentum x tilt scoring, top-N
// selection, proportional-to-positive-score weighting with an equal-weight
// fallback.
func Allocate(candidates []Candidate, features map[string]domain.Feature, regime domain.RegimeSnapshot, maxPositions int) []Target {
	type scored struct {
		symbol string
		score  float64
	}

	var all []scored
	for _, c := range candidates {
		f, ok := features[c.Symbol]
		if !ok {
			continue
		}
		momentum := momentumOf(f)
		tilt := tiltMultiplier(c.Bucket, regime)
		all = append(all, scored{symbol: c.Symbol, score: momentum * tilt})
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if maxPositions > 0 && len(all) > maxPositions {
		all = all[:maxPositions]
	}

	var positiveSum float64
	for _, s := range all {
		if s.score > 0 {
			positiveSum += s.score
		}
	}

	targets := make([]Target, len(all))
	for i, s := range all {
		var weight float64
		if positiveSum > 0 {
			if s.score > 0 {
				weight = s.score / positiveSum
			}
		} else if len(all) > 0 {
			weight = 1.0 / float64(len(all))
		}
		targets[i] = Target{Symbol: s.symbol, Score: s.score, Weight: weight}
	}
	return targets
}

// momentumOf is (last-first)/first over the weekly 12-bar lookback, which
// Feature.Return60 already represents for weekly-interval symbols
// (spec.md §4.4: "weekly: 12 bars" matches the weekly Long window).
func momentumOf(f domain.Feature) float64 {
	return f.Return60
}

func tiltMultiplier(bucket Bucket, regime domain.RegimeSnapshot) float64 {
	mult := 1.0
	switch bucket {
	case BucketEquityLarge, BucketGrowth, BucketSmall:
		switch regime.Equity.Label {
		case domain.EquityRiskOn:
			mult *= 1.2
		case domain.EquityRiskOff:
			mult *= 0.8
		}
		if regime.Equity.ConfidenceBucket() == "low" {
			mult *= 0.9
		}
		if regime.Equity.TransitionRisk == domain.TransitionHigh {
			mult *= 0.9
		}
	case BucketDurationLong:
		if regime.Equity.Label == domain.EquityRiskOff {
			mult *= 1.1
		}
		if regime.Rates.Label == domain.RatesRestrictive || regime.VolLabel == domain.VolRising {
			mult *= 0.85
		}
		if regime.Rates.Label == domain.RatesFalling {
			mult *= 1.1
		}
	case BucketDurationShort:
		if regime.Rates.Label == domain.RatesRestrictive {
			mult *= 1.05
		}
	case BucketGold:
		if regime.VolLabel == domain.VolStressed {
			mult *= 1.1
		}
		if regime.Equity.Label == domain.EquityRiskOff {
			mult *= 1.1
		}
	}
	return mult
}
