package domain

import "time"

// OptionKind distinguishes the two option sleeves (spec.md §3, §4.10).
type OptionKind string

const (
	OptionPut  OptionKind = "PUT"
	OptionCall OptionKind = "CALL"
)

// ContractMultiplier is fixed at 100 shares/contract per spec.md §3.
const ContractMultiplier = 100

// OptionPosition is one open option leg.
type OptionPosition struct {
	OpenAt         time.Time  `json:"open_at"`
	Underlying     string     `json:"underlying"`
	Kind           OptionKind `json:"kind"`
	Strike         float64    `json:"strike"`
	PremiumPerShare float64   `json:"premium_per_share"`
	ExpiryTick     int        `json:"expiry_tick"`
	OpenedTick     int        `json:"opened_tick"`
	Contracts      int        `json:"contracts"`
}

// NotionalCost is contracts * premium_per_share * multiplier, the cash
// debited on open.
func (o OptionPosition) NotionalCost() float64 {
	return float64(o.Contracts) * o.PremiumPerShare * ContractMultiplier
}

// SleeveState is one option sleeve's lifecycle (spec.md §3).
type SleeveState string

const (
	SleeveInactive  SleeveState = "INACTIVE"
	SleeveDeployed  SleeveState = "DEPLOYED"
	SleeveUnwinding SleeveState = "UNWINDING"
)

// OptionSleeveState wraps at-most-one open position for a sleeve.
type OptionSleeveState struct {
	Position *OptionPosition `json:"position,omitempty"`
	State    SleeveState     `json:"state"`
}

// OptionSleeves bundles the two mutually-prioritised sleeves of C10.
type OptionSleeves struct {
	Insurance OptionSleeveState `json:"insurance"`
	Growth    OptionSleeveState `json:"growth"`
}

// NewOptionSleeves returns both sleeves INACTIVE.
func NewOptionSleeves() OptionSleeves {
	return OptionSleeves{
		Insurance: OptionSleeveState{State: SleeveInactive},
		Growth:    OptionSleeveState{State: SleeveInactive},
	}
}

// ReserveUsedTotal sums notional cost across both sleeves' open positions.
func (s OptionSleeves) ReserveUsedTotal() float64 {
	var total float64
	if s.Insurance.Position != nil {
		total += s.Insurance.Position.NotionalCost()
	}
	if s.Growth.Position != nil {
		total += s.Growth.Position.NotionalCost()
	}
	return total
}
