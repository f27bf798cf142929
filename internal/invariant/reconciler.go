// Package invariant implements C11 (spec.md §4.11, §8): the post-tick
// reconciler that checks cash conservation, NAV finiteness, option mark
// consistency, the reserve wall, and sleeve integrity, without ever rolling
// back a tick. Grounded on the corpus's collect-violations-don't-throw
// idiom in internal/modules/planning/constraints/enforcer.go, generalized
// from a single "blocked" outcome to a list of named violations.
package invariant

import (
	"fmt"
	"math"

	"github.com/harrowgate/dislocation-engine/internal/domain"
)

const epsilon = 1e-6
const cashEpsilon = 0.01
const markEpsilon = 0.01

// Input bundles everything the reconciler needs to check spec.md §4.11's
// five assertions.
type Input struct {
	PriorCash          float64
	PostCash           float64
	CashEvents         []domain.CashEvent
	NAV                float64
	OptionsMarketValue float64
	OptionMarks        []float64
	ReserveUsedTotal   float64
	ReserveBudget      float64
	SleeveIndex        domain.SleeveIndex
	Holdings           map[string]domain.Lot
}

// Reconcile runs every check and returns the combined report. A failed
// check never blocks the tick — spec.md §4.11 is explicit that violations
// are surfaced for operator attention, not auto-repaired.
func Reconcile(in Input) domain.InvariantReport {
	var violations []string

	expectedDelta := domain.SumCashEvents(in.CashEvents)
	actualDelta := in.PostCash - in.PriorCash
	if math.Abs(actualDelta-expectedDelta) > cashEpsilon {
		violations = append(violations, fmt.Sprintf("unexplained cash delta: actual=%.4f expected=%.4f", actualDelta, expectedDelta))
	}

	if math.IsNaN(in.NAV) || math.IsInf(in.NAV, 0) || in.NAV < 0 {
		violations = append(violations, fmt.Sprintf("NAV is not finite/non-negative: %v", in.NAV))
	}

	var markSum float64
	for _, m := range in.OptionMarks {
		markSum += m
	}
	if math.Abs(markSum-in.OptionsMarketValue) > markEpsilon {
		violations = append(violations, fmt.Sprintf("options market value mismatch: sum=%.4f reported=%.4f", markSum, in.OptionsMarketValue))
	}

	if in.ReserveUsedTotal > in.ReserveBudget+epsilon {
		violations = append(violations, fmt.Sprintf("reserve used exceeds reserve budget: used=%.6f budget=%.6f", in.ReserveUsedTotal, in.ReserveBudget))
	}

	for symbol, lot := range in.Holdings {
		entry := in.SleeveIndex.Entries[symbol]
		if entry.BaseQty+entry.DislocationQty != lot.Quantity {
			violations = append(violations, fmt.Sprintf("sleeve mismatch for %s: base+dislocation=%d holdings=%d", symbol, entry.BaseQty+entry.DislocationQty, lot.Quantity))
		}
	}
	for symbol, entry := range in.SleeveIndex.Entries {
		if _, held := in.Holdings[symbol]; !held && entry.BaseQty+entry.DislocationQty != 0 {
			violations = append(violations, fmt.Sprintf("sleeve entry for %s has no matching holding", symbol))
		}
	}

	return domain.InvariantReport{OK: len(violations) == 0, Violations: violations}
}
