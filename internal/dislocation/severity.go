// Package dislocation implements C6 (severity scoring, spec.md §4.6) and
// C7 (the sleeve lifecycle machine, spec.md §4.7). Grounded on the
// corpus's tail-statistics extraction idiom in trader/pkg/formulas/cvar.go
// (sort then slice the tail) for peak/fast/slow drawdown computation, and
// on the corpus's explicit state-machine-over-booleans redesign direction
// (spec.md §9) for the lifecycle machine in lifecycle.go.
package dislocation

import (
	"github.com/harrowgate/dislocation-engine/internal/config"
	"github.com/harrowgate/dislocation-engine/internal/domain"
)

// Scorer computes DislocationSeverity from an anchor's close series.
type Scorer struct {
	cfg config.DislocationConfig
}

// New builds a Scorer.
func New(cfg config.DislocationConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score implements spec.md §4.6: base tier from peak drawdown over
// peak_lookback bars, escalated by fast/slow drawdown thresholds.
func (s *Scorer) Score(series []float64) domain.DislocationSeverity {
	lookback := s.cfg.PeakLookbackWeeks
	windowed := lastN(series, lookback)

	peakDD, _ := maxDrawdownFromCurrent(windowed)
	fastDD := fastDrop(series)
	slowDD := dropOver(series, s.cfg.SlowWindowWeeks)

	tier := baseTier(peakDD, s.cfg.Tiers)
	if fastDD >= s.cfg.FastT3 {
		tier = maxInt(tier, 3)
	} else if fastDD >= s.cfg.FastT2 {
		tier = maxInt(tier, 2)
	}
	if slowDD >= s.cfg.SlowT3 {
		tier = maxInt(tier, 3)
	} else if slowDD >= s.cfg.SlowT2 {
		tier = maxInt(tier, 2)
	}

	name := "calm"
	if tier >= 0 && tier < len(domain.TierNames) {
		name = domain.TierNames[tier]
	}

	overlayExtra := 0.0
	for _, t := range s.cfg.Tiers {
		if t.Tier == tier {
			overlayExtra = t.OverlayExtraExposurePct
		}
	}

	return domain.DislocationSeverity{
		Tier:                    tier,
		Name:                    name,
		OverlayExtraExposurePct: overlayExtra,
		Metrics:                 domain.SeverityMetrics{PeakDD: peakDD, FastDD: fastDD, SlowDD: slowDD},
		TierEngaged:             tier >= s.cfg.MinActiveTier,
	}
}

func baseTier(peakDD float64, tiers []config.SeverityTier) int {
	tier := 0
	for _, t := range tiers {
		if peakDD >= t.PeakDD {
			tier = t.Tier
		}
	}
	return tier
}

// maxDrawdownFromCurrent returns (max-current)/max over the window, per
// spec.md §4.6's literal peak_dd definition (not the running max over the
// whole window — the drawdown as measured from the window's peak to the
// most recent close).
func maxDrawdownFromCurrent(series []float64) (dd float64, peak float64) {
	if len(series) == 0 {
		return 0, 0
	}
	peak = series[0]
	for _, v := range series {
		if v > peak {
			peak = v
		}
	}
	current := series[len(series)-1]
	if peak <= 0 {
		return 0, peak
	}
	return (peak - current) / peak, peak
}

func fastDrop(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	prev := series[len(series)-2]
	cur := series[len(series)-1]
	if prev <= 0 {
		return 0
	}
	drop := (prev - cur) / prev
	if drop < 0 {
		return 0
	}
	return drop
}

func dropOver(series []float64, bars int) float64 {
	if bars <= 0 || len(series) <= bars {
		return 0
	}
	start := series[len(series)-1-bars]
	cur := series[len(series)-1]
	if start <= 0 {
		return 0
	}
	drop := (start - cur) / start
	if drop < 0 {
		return 0
	}
	return drop
}

func lastN(s []float64, n int) []float64 {
	if n <= 0 || n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
