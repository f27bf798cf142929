// Package regime implements C2, the Regime & Policy Deriver (spec.md §4.2):
// maps the anchor symbol's Feature to a RegimeSnapshot plus a base
// exposure cap. Grounded on the corpus's market_regime package for the
// "derive a labelled state from numeric thresholds, cache nothing across
// calls" shape (internal/market_regime/market_state.go), adapted from
// market-hours detection to equity/vol/rates labelling.
package regime

import (
	"github.com/rs/zerolog"

	"github.com/harrowgate/dislocation-engine/internal/domain"
)

// Deriver computes RegimeSnapshot and exposure policy from features.
type Deriver struct {
	log zerolog.Logger
}

// New builds a Deriver.
func New(log zerolog.Logger) *Deriver {
	return &Deriver{log: log.With().Str("component", "regime").Logger()}
}

// Policy is C2's derived exposure-cap output (spec.md §4.2).
type Policy struct {
	Reason           string
	BaseExposureCap  float64
}

// Derive implements spec.md §4.2's equity-label and exposure-cap rules.
func (d *Deriver) Derive(anchor domain.Feature, ratesLabel domain.RatesLabel, ratesStance string) (domain.RegimeSnapshot, Policy) {
	volBucketUnknown := anchor.VolPctileBucket == domain.PctileUnknown
	volLabel := volLabelFrom(anchor.VolPctileBucket)

	label := domain.EquityNeutral
	switch {
	case anchor.Return60 > 0.03 && anchor.Price > anchor.MA200:
		label = domain.EquityRiskOn
	case anchor.Return60 < -0.02 || anchor.VolPctileBucket == domain.PctileHigh:
		label = domain.EquityRiskOff
	}

	confidence := confidenceFor(label, anchor)
	if volBucketUnknown || anchor.Ret60PctileBucket == domain.PctileUnknown {
		confidence = minF(confidence, 0.4)
	}

	transitionRisk := domain.TransitionLow
	if confidence < 0.35 {
		transitionRisk = domain.TransitionHigh
	} else if confidence < 0.6 {
		transitionRisk = domain.TransitionElevated
	}

	snapshot := domain.RegimeSnapshot{
		Equity: domain.EquityRegime{Label: label, Confidence: confidence, TransitionRisk: transitionRisk},
		Rates:  domain.RatesRegime{Label: ratesLabel, Stance: ratesStance},
		VolLabel: volLabel,
	}

	cap := baseExposureCap(confidence)
	reason := "confidence-based cap"
	if volLabel == domain.VolStressed && cap > 0.35 {
		cap = 0.35
		reason = "clamped to 0.35 by stressed volatility"
	}

	d.log.Debug().Str("equity_label", string(label)).Float64("confidence", confidence).Float64("cap", cap).Msg("regime derived")

	return snapshot, Policy{BaseExposureCap: cap, Reason: reason}
}

func confidenceFor(label domain.EquityLabel, f domain.Feature) float64 {
	// Confidence scales with how decisively the anchor's 60-period return
	// clears the regime threshold, clamped to spec.md §4.2's [0.2, 1] band.
	var strength float64
	switch label {
	case domain.EquityRiskOn:
		strength = (f.Return60 - 0.03) / 0.10
	case domain.EquityRiskOff:
		strength = (-0.02 - f.Return60) / 0.10
	default:
		strength = 0.3
	}
	c := 0.5 + strength
	return clamp(c, 0.2, 1.0)
}

func baseExposureCap(confidence float64) float64 {
	switch {
	case confidence < 0.35:
		return 0.35
	case confidence < 0.6:
		return 0.6
	default:
		return 1.0
	}
}

func volLabelFrom(bucket domain.PctileBucket) domain.VolLabel {
	switch bucket {
	case domain.PctileHigh:
		return domain.VolStressed
	case domain.PctileMid:
		return domain.VolRising
	default:
		return domain.VolLow
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
