// Package rebalance implements C8, the Rebalance Engine (spec.md §4.8):
// diffs current holdings against target weights and emits an ordered
// SELL-then-BUY whole-share plan, honouring sell protection, drift bands,
// and minimum trade notional. Grounded on the corpus's sell-quality /
// protected-position idiom in
// internal/modules/opportunities/calculators/rebalance_sells.go, adapted
// from "protect high-quality positions from selling" to "protect the
// dislocation sleeve from selling while ADD/HOLD is active."
package rebalance

import (
	"math"
	"sort"

	"github.com/harrowgate/dislocation-engine/internal/config"
	"github.com/harrowgate/dislocation-engine/internal/domain"
)

// SymbolState is one executed symbol's current vs. target position, already
// expressed in the symbol the engine would actually trade (proxy or self).
type SymbolState struct {
	Symbol         string
	CurrentQty     int
	TargetQty      int
	Price          float64
	BaseQty        int
	DislocationQty int
	// HighQuality mirrors the corpus's sell-quality idiom (high trailing
	// return, not high volatility); it only reorders a sell that would
	// already fire for lower priority, it never blocks one.
	HighQuality bool
}

// Result is C8's output.
type Result struct {
	SkipReason   string
	Orders       []domain.Order
	Flags        []domain.Flag
	Skipped      bool
	Unexecutable bool
}

// Plan implements spec.md §4.8 in full, including the drift-skip gate.
func Plan(rows []SymbolState, nav float64, cash float64, sellProtected bool, regimeChanged bool, cfg config.RebalanceConfig) Result {
	if !cfg.Enabled {
		return Result{Skipped: true, SkipReason: "SKIPPED_NO_DRIFT"}
	}

	sorted := make([]SymbolState, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	driftDemandsAction := regimeChanged
	var currentInvested, targetInvested float64
	for _, r := range sorted {
		currentInvested += float64(r.CurrentQty) * r.Price
		targetInvested += float64(r.TargetQty) * r.Price
		if positionDrift(r, nav) >= cfg.PositionDriftThreshold {
			driftDemandsAction = true
		}
	}
	portfolioDrift := 0.0
	if nav > 0 {
		portfolioDrift = math.Abs(currentInvested/nav - targetInvested/nav)
	}
	if portfolioDrift >= cfg.PortfolioDriftThreshold {
		driftDemandsAction = true
	}

	if !driftDemandsAction {
		return Result{Skipped: true, SkipReason: "SKIPPED_NO_DRIFT"}
	}

	var res Result
	var sellNotionalTotal float64
	var downgradedSells []domain.Order

	appendSell := func(r SymbolState, o domain.Order) {
		if cfg.ProtectHighQuality && r.HighQuality {
			res.Flags = append(res.Flags, domain.Flag{
				Code: "SELL_QUALITY_DOWNGRADED", Severity: domain.SeverityInfo,
				Message:  "sell against a high-quality symbol ordered last, not blocked",
				Observed: map[string]any{"symbol": r.Symbol},
			})
			downgradedSells = append(downgradedSells, o)
			return
		}
		res.Orders = append(res.Orders, o)
	}

	for _, r := range sorted {
		if r.TargetQty >= r.CurrentQty {
			continue
		}
		delta := r.CurrentQty - r.TargetQty
		if delta <= cfg.RebalanceDustSharesThreshold {
			continue
		}
		if float64(delta)*r.Price < cfg.MinTradeNotionalUSD {
			continue
		}

		if sellProtected {
			sellQty := min(delta, r.BaseQty)
			if sellQty <= 0 {
				continue
			}
			blocked := delta - sellQty
			if blocked > 0 {
				res.Flags = append(res.Flags, domain.Flag{
					Code: "SELL_PROTECTION_APPLIED", Severity: domain.SeverityInfo,
					Message:  "sell reduced to respect dislocation sleeve protection",
					Observed: map[string]any{"symbol": r.Symbol, "blocked_qty": blocked},
				})
			}
			notional := float64(sellQty) * r.Price
			sellNotionalTotal += notional
			appendSell(r, domain.Order{
				Symbol: r.Symbol, Side: domain.SideSell, Sleeve: domain.SleeveBase,
				Quantity: sellQty, EstNotional: notional,
				Thesis: "trim toward target weight", Invalidation: "target weight rises again",
			})
			continue
		}

		fromBase := min(delta, r.BaseQty)
		remainder := delta - fromBase
		fromDislocation := min(remainder, r.DislocationQty)
		if fromBase > 0 {
			notional := float64(fromBase) * r.Price
			sellNotionalTotal += notional
			appendSell(r, domain.Order{
				Symbol: r.Symbol, Side: domain.SideSell, Sleeve: domain.SleeveBase,
				Quantity: fromBase, EstNotional: notional,
				Thesis: "trim toward target weight", Invalidation: "target weight rises again",
			})
		}
		if fromDislocation > 0 {
			notional := float64(fromDislocation) * r.Price
			sellNotionalTotal += notional
			appendSell(r, domain.Order{
				Symbol: r.Symbol, Side: domain.SideSell, Sleeve: domain.SleeveDislocation,
				Quantity: fromDislocation, EstNotional: notional,
				Thesis: "unwind dislocation overlay toward target weight", Invalidation: "target weight rises again",
			})
		}
	}
	res.Orders = append(res.Orders, downgradedSells...)

	cashAvail := cash + sellNotionalTotal

	for _, r := range sorted {
		if r.TargetQty <= r.CurrentQty {
			continue
		}
		delta := r.TargetQty - r.CurrentQty
		notional := float64(delta) * r.Price
		if notional < cfg.MinTradeNotionalUSD {
			continue
		}
		if notional > cashAvail {
			if r.Price <= 0 {
				continue
			}
			delta = int(math.Floor(cashAvail / r.Price))
			if delta <= 0 {
				res.Flags = append(res.Flags, domain.Flag{
					Code: "REBALANCE_BUY_SKIPPED_INSUFFICIENT_CASH", Severity: domain.SeverityWarn,
					Message:  "buy skipped: insufficient cash after sells",
					Observed: map[string]any{"symbol": r.Symbol},
				})
				continue
			}
			notional = float64(delta) * r.Price
		}
		cashAvail -= notional
		res.Orders = append(res.Orders, domain.Order{
			Symbol: r.Symbol, Side: domain.SideBuy, Sleeve: domain.SleeveBase,
			Quantity: delta, EstNotional: notional,
			Thesis: "build toward target weight", Invalidation: "target weight falls to zero",
		})
	}

	if len(res.Orders) == 0 {
		res.Unexecutable = true
		res.Flags = append(res.Flags, domain.Flag{
			Code: "REBALANCE_UNEXECUTABLE", Severity: domain.SeverityError,
			Message: "drift demanded action but no executable sell or buy could be produced",
		})
	}

	return res
}

func positionDrift(r SymbolState, nav float64) float64 {
	if nav <= 0 {
		return 0
	}
	return math.Abs(float64(r.CurrentQty)*r.Price/nav - float64(r.TargetQty)*r.Price/nav)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
