package dislocation

import (
	"time"

	"github.com/harrowgate/dislocation-engine/internal/config"
	"github.com/harrowgate/dislocation-engine/internal/domain"
)

// TransitionResult bundles the next LifecycleState with the derived
// Controls C8/C9 consume and the side effects the caller (the engine) must
// perform — the machine itself never touches SleeveIndex or the ledger.
type TransitionResult struct {
	State                  domain.LifecycleState
	Controls               domain.Controls
	Flags                  []domain.Flag
	JustTriggered          bool // rising edge INACTIVE -> ADD this tick
	JustEnteredReintegrate bool // sleeve dislocation_qty must transfer to base_qty now
	JustReachedInactive    bool
	EarlyExitFired         bool
}

// Machine runs the INACTIVE/ADD/HOLD/REINTEGRATE state machine of spec.md
// §4.7. Grounded on the corpus's explicit-transition-table redesign
// direction for state that was previously a chain of booleans.
type Machine struct {
	cfg config.DislocationConfig
}

// NewMachine builds a Machine.
func NewMachine(cfg config.DislocationConfig) *Machine {
	return &Machine{cfg: cfg}
}

// Step advances prev by one tick given this tick's severity and regime read.
func (m *Machine) Step(prev domain.LifecycleState, sev domain.DislocationSeverity, regime domain.RegimeSnapshot, anchorPrice float64, now time.Time) TransitionResult {
	state := prev
	var flags []domain.Flag

	tier, tierChanged := m.resolveTier(prev, sev, now)
	state.CurrentTier = tier
	if tierChanged {
		state.LastTierChangeAt = &now
	}
	engaged := tier >= m.cfg.MinActiveTier && !prev.InCooldown(now)

	result := TransitionResult{}

	// Early exit applies at any non-INACTIVE phase, ahead of the normal
	// transition table (spec.md §4.7).
	if state.Phase != domain.PhaseInactive {
		riskOffExit := regime.Equity.Label == domain.EquityRiskOff && regime.Equity.Confidence >= m.cfg.EarlyExit.RiskOffConfidenceThreshold
		deepDDExit := state.EntryAnchorPrice != nil && *state.EntryAnchorPrice > 0 &&
			anchorPrice <= *state.EntryAnchorPrice*(1-m.cfg.EarlyExit.DeepDrawdownFailsafePct)
		if (riskOffExit || deepDDExit) && state.Phase != domain.PhaseReintegrate {
			cooldownUntil := now.AddDate(0, 0, 7*m.cfg.CooldownWeeks)
			state.Phase = domain.PhaseReintegrate
			state.CooldownUntil = &cooldownUntil
			state.ReintegrateTicks = 0
			result.JustEnteredReintegrate = true
			result.EarlyExitFired = true
			flags = append(flags, domain.Flag{
				Code: "DISLOCATION_EARLY_EXIT", Severity: domain.SeverityWarn,
				Message:  "early exit fired; jumping to REINTEGRATE",
				Observed: map[string]any{"risk_off_exit": riskOffExit, "deep_dd_exit": deepDDExit},
			})
			return m.finish(state, flags, result)
		}
	}

	switch state.Phase {
	case domain.PhaseInactive:
		if engaged {
			addUntil := now.AddDate(0, 0, 7*m.cfg.DurationWeeksAdd)
			holdUntil := now.AddDate(0, 0, 7*(m.cfg.DurationWeeksAdd+m.cfg.DurationWeeksHold))
			anchor := anchorPrice
			state.Phase = domain.PhaseAdd
			state.TriggeredAt = &now
			state.AddUntil = &addUntil
			state.HoldUntil = &holdUntil
			state.EntryAnchorPrice = &anchor
			state.TroughAnchorPrice = &anchor
			result.JustTriggered = true
		}

	case domain.PhaseAdd:
		if state.TroughAnchorPrice == nil || anchorPrice < *state.TroughAnchorPrice {
			state.TroughAnchorPrice = &anchorPrice
		}
		if (state.AddUntil != nil && now.After(*state.AddUntil)) || !engaged {
			state.Phase = domain.PhaseHold
		}

	case domain.PhaseHold:
		if state.HoldUntil != nil && now.After(*state.HoldUntil) {
			state.Phase = domain.PhaseReintegrate
			state.ReintegrateTicks = 0
			result.JustEnteredReintegrate = true
		}

	case domain.PhaseReintegrate:
		// Re-entry from REINTEGRATE is forbidden (spec.md §9 open question):
		// an engaged rising edge here is ignored, not honoured, until the
		// machine reaches INACTIVE.
		if engaged {
			flags = append(flags, domain.Flag{
				Code: "DISLOCATION_REENTRY_IGNORED", Severity: domain.SeverityInfo,
				Message: "dislocation re-engaged during REINTEGRATE; ignored until INACTIVE",
			})
		}
		state.ReintegrateTicks++
		if state.ReintegrateTicks >= 2 {
			state = domain.NewLifecycleState()
			result.JustReachedInactive = true
		}
	}

	return m.finish(state, flags, result)
}

func (m *Machine) finish(state domain.LifecycleState, flags []domain.Flag, result TransitionResult) TransitionResult {
	controls := domain.DerivedControls(state.Phase)
	expected := domain.DerivedControls(state.Phase)
	if controls != expected {
		flags = append(flags, domain.Flag{
			Code: "DISLOCATION_STATE_INVARIANT", Severity: domain.SeverityWarn,
			Message: "derived controls mismatch; falling back to derived controls",
		})
		controls = expected
	}
	result.State = state
	result.Controls = controls
	result.Flags = flags
	return result
}

// resolveTier applies spec.md §4.6/§4.7 hysteresis: a tier decrease is
// ignored when peak_dd sits within tier_hysteresis_pct of the previous
// tier's own threshold, and any tier change is ignored within
// min_weeks_between_tier_changes of the last one.
func (m *Machine) resolveTier(prev domain.LifecycleState, sev domain.DislocationSeverity, now time.Time) (tier int, changed bool) {
	candidate := sev.Tier
	if candidate == prev.CurrentTier {
		return prev.CurrentTier, false
	}

	if prev.LastTierChangeAt != nil {
		minGap := time.Duration(m.cfg.MinWeeksBetweenTierChange) * 7 * 24 * time.Hour
		if now.Sub(*prev.LastTierChangeAt) < minGap {
			return prev.CurrentTier, false
		}
	}

	if candidate < prev.CurrentTier {
		threshold := tierThreshold(prev.CurrentTier, m.cfg.Tiers)
		if sev.Metrics.PeakDD >= threshold-m.cfg.TierHysteresisPct {
			return prev.CurrentTier, false
		}
	}

	return candidate, true
}

func tierThreshold(tier int, tiers []config.SeverityTier) float64 {
	for _, t := range tiers {
		if t.Tier == tier {
			return t.PeakDD
		}
	}
	return 0
}
