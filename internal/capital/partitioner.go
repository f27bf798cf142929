// Package capital implements C3, the Capital Partitioner (spec.md §4.3):
// computes NAV and splits it between the core and reserve pools. Grounded
// on the corpus's CashRepository Get/Upsert shape for the idea of a small,
// single-purpose accounting component with no branching logic beyond
// arithmetic.
package capital

import (
	"github.com/harrowgate/dislocation-engine/internal/config"
	"github.com/harrowgate/dislocation-engine/internal/domain"
)

// Budgets is C3's output (spec.md §4.3, §6 BudgetDiagnostics).
type Budgets struct {
	NAVPreInfusion  float64
	NAVPostInfusion float64
	CoreBudget      float64
	ReserveBudget   float64
	MinCashFloor    float64
}

// NAV computes cash + equity + option marks, per spec.md §4.3.
func NAV(portfolio domain.Portfolio, prices map[string]float64, optionMarks float64) float64 {
	return float64(portfolio.Cash) + float64(portfolio.Equity(prices)) + optionMarks
}

// Partition applies a cash infusion, then computes NAV and the core/reserve
// split and cash floor (spec.md §4.3's ordering: infusion before budgets).
func Partition(portfolio *domain.Portfolio, prices map[string]float64, optionMarks float64, infusion float64, cfg config.CapitalConfig, minCashPct float64) Budgets {
	preInfusionNAV := NAV(*portfolio, prices, optionMarks)

	if infusion != 0 {
		portfolio.Cash += domain.Money(infusion)
	}
	postInfusionNAV := NAV(*portfolio, prices, optionMarks)

	return Budgets{
		NAVPreInfusion:  preInfusionNAV,
		NAVPostInfusion: postInfusionNAV,
		CoreBudget:      postInfusionNAV * cfg.CorePct,
		ReserveBudget:   postInfusionNAV * cfg.ReservePct,
		MinCashFloor:    maxF(0, minCashPct*postInfusionNAV),
	}
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
