// Package overlay implements C9, the Overlay Budget Planner (spec.md §4.9):
// sizes the opportunistic ADD-phase dislocation buy budget and turns it
// into whole-share orders via a largest-remainder allocation. Grounded on
// the corpus's budget-then-allocate two-step pattern in
// internal/modules/planning/domain/config.go's exposure-cap fields, and on
// the largest-remainder seat-allocation idiom common across the corpus's
// weighted-split helpers (trader/pkg/formulas).
package overlay

import (
	"math"
	"sort"

	"github.com/harrowgate/dislocation-engine/internal/config"
	"github.com/harrowgate/dislocation-engine/internal/domain"
)

// Target is one overlay candidate: an executable symbol with a relative
// weight (pre-normalised against the other overlay targets) and price.
type Target struct {
	Symbol string
	Weight float64
	Price  float64
}

// Input bundles everything PlanBudget needs beyond cfg.
type Input struct {
	Phase             domain.Phase
	Engaged           bool
	Cash              float64
	MinCashFloor      float64
	NAV               float64
	OverlayExtraPct   float64
	CurrentExposureCap float64
	CurrentInvested   float64
	AddWeekIndex      int // 0-based week within the ADD window
	DurationWeeksAdd  int
}

// Result is C9's output.
type Result struct {
	Orders      []domain.Order
	Flags       []domain.Flag
	Diagnostics domain.OverlayDiagnostics
}

// PlanBudget implements spec.md §4.9 end to end: gate, size, pace, and
// allocate whole shares across targets.
func PlanBudget(in Input, targets []Target, cfg config.DislocationConfig, maxTotalExposureCapPct float64) Result {
	diag := domain.OverlayDiagnostics{AddWeekIndex: in.AddWeekIndex}

	if in.Phase != domain.PhaseAdd || !in.Engaged {
		return Result{Diagnostics: diag, Flags: []domain.Flag{{
			Code: "OVERLAY_DISABLED_NOT_IN_ADD_PHASE", Severity: domain.SeverityInfo,
			Message: "overlay budget is zero outside an engaged ADD phase",
		}}}
	}

	availableCash := math.Max(0, in.Cash-in.MinCashFloor)
	nominal := in.OverlayExtraPct * in.NAV
	allowedInvested := math.Min(maxTotalExposureCapPct, in.CurrentExposureCap) * in.NAV
	remainingCapacity := math.Max(0, allowedInvested-in.CurrentInvested)

	budget := math.Min(nominal, math.Min(remainingCapacity, availableCash))

	diag.AvailableCash = availableCash
	diag.Nominal = nominal
	diag.RemainingCapacity = remainingCapacity

	// Pacing: this tick's budget is capped at (k+1)/W_add of the nominal
	// target. Overlay bought in earlier ADD weeks is not subtracted from the
	// cap, so it bounds each tick's deployment, not the cumulative total.
	if in.DurationWeeksAdd > 0 {
		pacedCap := float64(in.AddWeekIndex+1) / float64(in.DurationWeeksAdd) * nominal
		diag.PacedCap = pacedCap
		if budget > pacedCap {
			budget = pacedCap
		}
	}

	var flags []domain.Flag

	// spec.md §9's resolution: min_budget check runs before min_lot.
	if budget > 0 && budget < cfg.OverlayMinBudgetUSD {
		if cfg.OverlayMinBudgetPolicy == "gate" {
			flags = append(flags, domain.Flag{
				Code: "OVERLAY_SKIPPED_MIN_BUDGET", Severity: domain.SeverityWarn,
				Message: "overlay budget below minimum; skipped",
			})
			budget = 0
		} else {
			flags = append(flags, domain.Flag{
				Code: "OVERLAY_BELOW_MIN_BUDGET", Severity: domain.SeverityInfo,
				Message: "overlay budget below minimum but policy is warn; proceeding",
			})
		}
	}

	if budget > 0 {
		cheapest := cheapestPrice(targets)
		if cheapest <= 0 || budget < cheapest {
			flags = append(flags, domain.Flag{
				Code: "OVERLAY_UNDER_MIN_LOT", Severity: domain.SeverityWarn,
				Message: "overlay budget cannot afford even the cheapest target lot",
			})
			budget = 0
		}
	}

	diag.Budget = budget

	if budget <= 0 {
		return Result{Diagnostics: diag, Flags: flags}
	}

	orders := allocateWholeShares(targets, budget)
	return Result{Orders: orders, Diagnostics: diag, Flags: flags}
}

// allocateWholeShares implements spec.md §4.9's largest-remainder rule:
// floor each target's desired share count, then hand out leftover budget
// one share at a time to the symbol with the greatest fractional remainder
// that the leftover can still afford.
func allocateWholeShares(targets []Target, budget float64) []domain.Order {
	type row struct {
		symbol     string
		price      float64
		desired    float64
		qty        int
		remainder  float64
	}

	rows := make([]row, 0, len(targets))
	for _, t := range targets {
		if t.Price <= 0 {
			continue
		}
		desired := t.Weight * budget
		qty := int(math.Floor(desired / t.Price))
		rows = append(rows, row{symbol: t.Symbol, price: t.Price, desired: desired, qty: qty, remainder: desired - float64(qty)*t.Price})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].symbol < rows[j].symbol })

	spent := 0.0
	for _, r := range rows {
		spent += float64(r.qty) * r.price
	}
	leftover := budget - spent

	for {
		bestIdx := -1
		bestRemainder := -1.0
		for i, r := range rows {
			if r.price > leftover {
				continue
			}
			if r.remainder > bestRemainder {
				bestRemainder = r.remainder
				bestIdx = i
			}
		}
		if bestIdx == -1 {
			break
		}
		rows[bestIdx].qty++
		leftover -= rows[bestIdx].price
		rows[bestIdx].remainder = 0
	}

	var orders []domain.Order
	for _, r := range rows {
		if r.qty <= 0 {
			continue
		}
		orders = append(orders, domain.Order{
			Symbol: r.symbol, Side: domain.SideBuy, Sleeve: domain.SleeveDislocation,
			Quantity: r.qty, EstNotional: float64(r.qty) * r.price,
			Thesis: "opportunistic dislocation overlay", Invalidation: "lifecycle phase leaves ADD",
		})
	}
	return orders
}

func cheapestPrice(targets []Target) float64 {
	cheapest := math.Inf(1)
	for _, t := range targets {
		if t.Price > 0 && t.Price < cheapest {
			cheapest = t.Price
		}
	}
	if math.IsInf(cheapest, 1) {
		return 0
	}
	return cheapest
}
