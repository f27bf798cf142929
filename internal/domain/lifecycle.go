package domain

import "time"

// Phase is the sleeve lifecycle machine's state (spec.md §3, §4.7).
type Phase string

const (
	PhaseInactive    Phase = "INACTIVE"
	PhaseAdd         Phase = "ADD"
	PhaseHold        Phase = "HOLD"
	PhaseReintegrate Phase = "REINTEGRATE"
)

// LifecycleState is the long-lived dislocation-sleeve state machine record
// (spec.md §3). Pointer fields are nil until the episode that sets them
// begins; they are cleared when INACTIVE is reached.
type LifecycleState struct {
	TriggeredAt       *time.Time `json:"triggered_at,omitempty"`
	AddUntil          *time.Time `json:"add_until,omitempty"`
	HoldUntil         *time.Time `json:"hold_until,omitempty"`
	ReintegrateAfter  *time.Time `json:"reintegrate_after,omitempty"`
	EntryAnchorPrice  *float64   `json:"entry_anchor_price,omitempty"`
	TroughAnchorPrice *float64   `json:"trough_anchor_price,omitempty"`
	CooldownUntil     *time.Time `json:"cooldown_until,omitempty"`
	LastTierChangeAt  *time.Time `json:"last_tier_change_at,omitempty"`
	Phase             Phase      `json:"phase"`
	ReintegrateTicks  int        `json:"reintegrate_ticks"`
	CurrentTier       int        `json:"current_tier"`
}

// NewLifecycleState returns the INACTIVE zero state.
func NewLifecycleState() LifecycleState {
	return LifecycleState{Phase: PhaseInactive}
}

// Controls are the behaviors a given phase derives, per spec.md §3's
// invariant table. They are always recomputed from Phase, never stored,
// so they cannot drift from it (spec.md §4.7's invariant assertion exists
// to catch exactly that class of bug if one ever creeps in upstream).
type Controls struct {
	AllowAdd           bool
	SellProtected      bool
	AllowReintegration bool
	Active             bool
}

// DerivedControls computes Controls purely from Phase.
func DerivedControls(phase Phase) Controls {
	switch phase {
	case PhaseAdd:
		return Controls{AllowAdd: true, SellProtected: true, Active: true}
	case PhaseHold:
		return Controls{SellProtected: true, Active: true}
	case PhaseReintegrate:
		return Controls{AllowReintegration: true, Active: true}
	default:
		return Controls{}
	}
}

// InCooldown reports whether `now` falls within a prior early-exit cooldown.
func (l LifecycleState) InCooldown(now time.Time) bool {
	return l.CooldownUntil != nil && now.Before(*l.CooldownUntil)
}
