// Package options implements C10, the Option Sleeve Arbitrator (spec.md
// §4.10): decides OPEN/HOLD/CLOSE for one insurance PUT and one growth
// CALL, drawing only from the reserve pool. Grounded on the corpus's
// exclusive-sleeve-priority convention (insurance-style protective spend
// ranked ahead of opportunistic spend) seen in
// internal/modules/planning/domain/config.go's separate insurance/growth
// reserve blocks, and on the teacher's deterministic-premium-proxy idiom
// (no live options chain is ever consulted; premium is always modelled).
package options

import (
	"math"
	"time"

	"github.com/harrowgate/dislocation-engine/internal/config"
	"github.com/harrowgate/dislocation-engine/internal/domain"
)

const (
	kappaInsurance = 0.005
	kappaGrowth    = 0.02
)

// Input is the per-tick context the arbitrator needs, independent of which
// sleeve is being decided.
type Input struct {
	Now             time.Time
	UnderlyingPrice float64
	Regime          domain.RegimeSnapshot
	Phase           domain.Phase
	SeverityTier    int
	CurrentTick     int // weeks since epoch
	JustTriggered   bool
	EarlyExitFired  bool
	NAV             float64
	ReserveBudget   float64
}

// Result bundles both sleeves' next state and this tick's side effects.
type Result struct {
	Sleeves     domain.OptionSleeves
	CashEvents  []domain.CashEvent
	Flags       []domain.Flag
	Diagnostics domain.OptionActionDiagnostics
}

// Step decides both sleeves for this tick. Insurance is resolved first
// since it has reserve priority (spec.md §4.10: "Insurance has priority").
func Step(in Input, prev domain.OptionSleeves, cfg config.BotConfig) Result {
	var res Result
	res.Sleeves = prev

	insuranceBudget := insuranceBudgetFor(cfg, in.NAV, in.ReserveBudget, in.ReserveBudget)
	insAction, insSleeve, insEvents, insFlags := decideInsurance(in, prev.Insurance, insuranceBudget, cfg.Insurance)
	res.Sleeves.Insurance = insSleeve
	res.CashEvents = append(res.CashEvents, insEvents...)
	res.Flags = append(res.Flags, insFlags...)
	res.Diagnostics.Insurance = insAction

	reserveRemainingForGrowth := math.Max(0, in.ReserveBudget-notionalOf(res.Sleeves.Insurance))
	growthBudget := math.Min(reserveRemainingForGrowth, in.ReserveBudget*cfg.Growth.SpendPct)
	insuranceInactive := prev.Insurance.State == domain.SleeveInactive &&
		res.Sleeves.Insurance.State == domain.SleeveInactive
	grAction, grSleeve, grEvents, grFlags := decideGrowth(in, prev.Growth, growthBudget, insuranceInactive, cfg.Growth)
	res.Sleeves.Growth = grSleeve
	res.CashEvents = append(res.CashEvents, grEvents...)
	res.Flags = append(res.Flags, grFlags...)
	res.Diagnostics.Growth = grAction

	return res
}

func insuranceBudgetFor(cfg config.BotConfig, nav, reserveBudget, reserveRemaining float64) float64 {
	if cfg.InsuranceReserveMode == "light" {
		return minOf(nav*0.02, reserveBudget*0.05, 200, reserveRemaining)
	}
	return math.Min(reserveRemaining, reserveBudget*cfg.Insurance.SpendPct)
}

func decideInsurance(in Input, sleeve domain.OptionSleeveState, budget float64, sleeveCfg config.OptionSleeveConfig) (action string, next domain.OptionSleeveState, events []domain.CashEvent, flags []domain.Flag) {
	next = sleeve

	if sleeve.Position != nil {
		closeNow := in.Phase == domain.PhaseInactive || in.EarlyExitFired
		if closeNow {
			proceeds := markPosition(*sleeve.Position, in.CurrentTick, in.SeverityTier, in.UnderlyingPrice)
			events = append(events, domain.CashEvent{
				Kind: domain.EventOptCloseCredit, Amount: proceeds, Sleeve: "insurance",
				Symbol: sleeve.Position.Underlying, Reason: "lifecycle returned to INACTIVE or early exit fired",
			})
			return "CLOSE", domain.OptionSleeveState{State: domain.SleeveInactive}, events, flags
		}
		ttm := sleeve.Position.ExpiryTick - in.CurrentTick
		if ttm <= 0 {
			events = append(events, domain.CashEvent{Kind: domain.EventOptExpire, Amount: 0, Sleeve: "insurance", Symbol: sleeve.Position.Underlying, Reason: "expired"})
			return "CLOSE", domain.OptionSleeveState{State: domain.SleeveInactive}, events, flags
		}
		return "HOLD", sleeve, events, flags
	}

	if !in.JustTriggered {
		return "NONE", sleeve, events, flags
	}

	pos, ok, skipFlag := openPosition(domain.OptionPut, in, budget, kappaInsurance, sleeveCfg)
	if !ok {
		if skipFlag != nil {
			flags = append(flags, *skipFlag)
		}
		return "NONE", sleeve, events, flags
	}
	events = append(events, domain.CashEvent{
		Kind: domain.EventOptOpenDebit, Amount: -pos.NotionalCost(), Sleeve: "insurance",
		Symbol: pos.Underlying, Reason: "insurance opened on dislocation rising edge",
	})
	return "OPEN", domain.OptionSleeveState{State: domain.SleeveDeployed, Position: &pos}, events, flags
}

func decideGrowth(in Input, sleeve domain.OptionSleeveState, budget float64, insuranceInactive bool, sleeveCfg config.OptionSleeveConfig) (action string, next domain.OptionSleeveState, events []domain.CashEvent, flags []domain.Flag) {
	next = sleeve
	eligible := in.Regime.Equity.Label == domain.EquityRiskOn && in.Phase == domain.PhaseInactive && insuranceInactive

	if sleeve.Position != nil {
		if !eligible {
			proceeds := markPosition(*sleeve.Position, in.CurrentTick, in.SeverityTier, in.UnderlyingPrice)
			events = append(events, domain.CashEvent{
				Kind: domain.EventOptCloseCredit, Amount: proceeds, Sleeve: "growth",
				Symbol: sleeve.Position.Underlying, Reason: "growth window closed",
			})
			return "CLOSE", domain.OptionSleeveState{State: domain.SleeveInactive}, events, flags
		}
		ttm := sleeve.Position.ExpiryTick - in.CurrentTick
		if ttm <= 0 {
			events = append(events, domain.CashEvent{Kind: domain.EventOptExpire, Amount: 0, Sleeve: "growth", Symbol: sleeve.Position.Underlying, Reason: "expired"})
			return "CLOSE", domain.OptionSleeveState{State: domain.SleeveInactive}, events, flags
		}
		return "HOLD", sleeve, events, flags
	}

	if !eligible {
		return "NONE", sleeve, events, flags
	}

	pos, ok, skipFlag := openPosition(domain.OptionCall, in, budget, kappaGrowth, sleeveCfg)
	if !ok {
		if skipFlag != nil {
			flags = append(flags, *skipFlag)
		}
		return "NONE", sleeve, events, flags
	}
	events = append(events, domain.CashEvent{
		Kind: domain.EventOptOpenDebit, Amount: -pos.NotionalCost(), Sleeve: "growth",
		Symbol: pos.Underlying, Reason: "growth window opened in risk-on INACTIVE state",
	})
	return "OPEN", domain.OptionSleeveState{State: domain.SleeveDeployed, Position: &pos}, events, flags
}

// openPosition sizes a new at-the-money position, deterministically
// expiring at the midpoint of [min_months, max_months] (spec.md leaves
// strike/expiry selection unspecified; this is the module's own
// deterministic choice, approximating a month as 4 weeks).
func openPosition(kind domain.OptionKind, in Input, budget float64, kappa float64, sleeveCfg config.OptionSleeveConfig) (domain.OptionPosition, bool, *domain.Flag) {
	volProxy := volProxyFor(in.SeverityTier)
	premiumPerShare := in.UnderlyingPrice * kappa * volProxy
	if premiumPerShare <= 0 || budget <= 0 {
		return domain.OptionPosition{}, false, nil
	}
	contracts := int(math.Floor(budget / (premiumPerShare * domain.ContractMultiplier)))
	if contracts < 1 {
		return domain.OptionPosition{}, false, &domain.Flag{
			Code: "OPTION_CONTRACTS_ROUND_TO_ZERO", Severity: domain.SeverityInfo,
			Message: "option budget too small to buy one contract",
		}
	}
	midMonths := float64(sleeveCfg.MinMonths+sleeveCfg.MaxMonths) / 2
	expiryWeeks := int(math.Round(midMonths * 4))
	return domain.OptionPosition{
		OpenAt:          in.Now,
		Underlying:      "SPY",
		Kind:            kind,
		Strike:          in.UnderlyingPrice,
		PremiumPerShare: premiumPerShare,
		OpenedTick:      in.CurrentTick,
		ExpiryTick:      in.CurrentTick + expiryWeeks,
		Contracts:       contracts,
	}, true, nil
}

func volProxyFor(tier int) float64 {
	switch {
	case tier <= 0:
		return 1.0
	case tier < 3:
		return 1.2
	default:
		return 1.5
	}
}

// markPosition implements spec.md §4.10's mark-to-market convention: cost
// on the opening tick, intrinsic+extrinsic afterward, per-share then scaled
// to contract notional.
func markPosition(pos domain.OptionPosition, currentTick int, severityTier int, currentPrice float64) float64 {
	if pos.OpenedTick == currentTick {
		return pos.NotionalCost()
	}
	ttm := pos.ExpiryTick - currentTick
	if ttm <= 0 {
		return intrinsicPerShare(pos, currentPrice) * float64(pos.Contracts) * domain.ContractMultiplier
	}
	volProxy := volProxyFor(severityTier)
	extrinsic := pos.PremiumPerShare * volProxy * (float64(ttm) / math.Max(float64(ttm+8), 8))
	perShare := intrinsicPerShare(pos, currentPrice) + extrinsic
	return perShare * float64(pos.Contracts) * domain.ContractMultiplier
}

func intrinsicPerShare(pos domain.OptionPosition, currentPrice float64) float64 {
	switch pos.Kind {
	case domain.OptionPut:
		return math.Max(pos.Strike-currentPrice, 0)
	default:
		return math.Max(currentPrice-pos.Strike, 0)
	}
}

// Mark exposes the sleeve arbitrator's mark-to-market convention to
// callers outside Step — the engine's invariant reconciliation (spec.md
// §4.11) needs to recompute the same per-position mark C10 uses
// internally rather than keep a second copy of the formula.
func Mark(pos domain.OptionPosition, currentTick int, severityTier int, currentPrice float64) float64 {
	return markPosition(pos, currentTick, severityTier, currentPrice)
}

func notionalOf(s domain.OptionSleeveState) float64 {
	if s.Position == nil {
		return 0
	}
	return s.Position.NotionalCost()
}

func minOf(vals ...float64) float64 {
	m := math.Inf(1)
	for _, v := range vals {
		if v < m {
			m = v
		}
	}
	return m
}
