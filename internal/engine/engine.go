// Package engine implements the Tick orchestrator: the single pure
// function `(prior_state, inputs) -> (next_state, TickResult)` that wires
// C1-C11 together in the exact ordering spec.md §5 mandates. Grounded on
// the corpus's own composition-root idiom (cmd/server/main.go wiring one
// concern after another into a single run path), generalized from
// long-lived service wiring to a single deterministic tick call.
package engine

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/harrowgate/dislocation-engine/internal/allocator"
	"github.com/harrowgate/dislocation-engine/internal/capital"
	"github.com/harrowgate/dislocation-engine/internal/config"
	"github.com/harrowgate/dislocation-engine/internal/dislocation"
	"github.com/harrowgate/dislocation-engine/internal/domain"
	"github.com/harrowgate/dislocation-engine/internal/features"
	"github.com/harrowgate/dislocation-engine/internal/invariant"
	"github.com/harrowgate/dislocation-engine/internal/mapper"
	"github.com/harrowgate/dislocation-engine/internal/options"
	"github.com/harrowgate/dislocation-engine/internal/overlay"
	"github.com/harrowgate/dislocation-engine/internal/rebalance"
	"github.com/harrowgate/dislocation-engine/internal/regime"
)

// ScenarioOverrides is spec.md §6's optional `scenario_events` input, used
// by replays and tests to force a tier or return series without faking
// years of history.
type ScenarioOverrides struct {
	ForcedReturns   map[string]float64
	ForcedTier      *int
	CashInfusionUSD float64
}

// Input bundles every per-tick input spec.md §6 names besides EngineState
// and BotConfig.
type Input struct {
	AsOf             time.Time
	Quotes           map[string]float64
	History          map[string][]features.HistoryPoint
	Universe         []string
	CandidateBuckets map[string]allocator.Bucket
	ProxyMap         map[string][]string
	RatesLabel       domain.RatesLabel
	RatesStance      string
	PriorRegime      *domain.RegimeSnapshot
	Scenario         ScenarioOverrides
}

// Engine holds the stateless component instances the tick wires together.
// It carries no portfolio state itself — that lives entirely in the
// EngineState passed to and returned from Tick (spec.md §5: no package-level
// globals).
type Engine struct {
	cfg       config.BotConfig
	features  *features.Computer
	regime    *regime.Deriver
	severity  *dislocation.Scorer
	lifecycle *dislocation.Machine
	log       zerolog.Logger
}

func New(cfg config.BotConfig, log zerolog.Logger) *Engine {
	log = log.With().Str("component", "engine").Logger()
	return &Engine{
		cfg:       cfg,
		features:  features.New(log),
		regime:    regime.New(log),
		severity:  dislocation.New(cfg.Dislocation),
		lifecycle: dislocation.NewMachine(cfg.Dislocation),
		log:       log,
	}
}

// Tick runs spec.md §5's thirteen ordering steps once and returns the
// committed next state alongside the ephemeral TickResult.
func (e *Engine) Tick(prior domain.EngineState, in Input) (domain.EngineState, domain.TickResult) {
	next := prior
	next.Portfolio = prior.Portfolio.Clone()

	var allFlags []domain.Flag
	var cashEvents []domain.CashEvent

	// (1) reconcile sleeves
	allFlags = append(allFlags, next.SleeveIndex.Reconcile(next.Portfolio.Holdings, in.AsOf)...)

	quotes := applyForcedReturns(in.Quotes, in.Scenario.ForcedReturns)
	currentTick := weekTick(in.AsOf)

	// (2)+(3) apply infusions, then compute NAV & budgets. The option
	// mark used here comes from the prior tick's positions under the
	// prior tier, since severity (step 6) hasn't run yet this tick —
	// the pre/post-infusion NAV and the core/reserve budgets derived from
	// it are all built from this mark.
	optionMarksForBudget := sumFloats(optionMarks(prior.OptionSleeves, currentTick, prior.LifecycleState.CurrentTier, quotes))
	budgets := capital.Partition(&next.Portfolio, quotes, optionMarksForBudget, in.Scenario.CashInfusionUSD, e.cfg.Capital, e.cfg.MinCashPct)
	if in.Scenario.CashInfusionUSD != 0 {
		cashEvents = append(cashEvents, domain.CashEvent{
			Kind: domain.EventInfusion, Amount: in.Scenario.CashInfusionUSD, Reason: "scenario cash infusion",
		})
	}

	// (4) regime & targets
	featResult := e.features.Compute(in.Universe, in.History, quotes)
	allFlags = append(allFlags, featResult.Flags...)

	anchorFeature := featResult.Features[e.cfg.Dislocation.AnchorSymbol]
	regimeSnapshot, policy := e.regime.Derive(anchorFeature, in.RatesLabel, in.RatesStance)

	candidates := make([]allocator.Candidate, 0, len(in.Universe))
	for _, symbol := range in.Universe {
		bucket := allocator.BucketEquityLarge
		if b, ok := in.CandidateBuckets[symbol]; ok {
			bucket = b
		}
		candidates = append(candidates, allocator.Candidate{Symbol: symbol, Bucket: bucket})
	}
	targets := allocator.Allocate(candidates, featResult.Features, regimeSnapshot, e.cfg.MaxPositions)

	// (5) map
	weighted := make([]mapper.WeightedSymbol, len(targets))
	for i, t := range targets {
		weighted[i] = mapper.WeightedSymbol{Symbol: t.Symbol, Weight: t.Weight}
	}
	mapped := mapper.Map(weighted, quotes, budgets.CoreBudget, in.ProxyMap)
	allFlags = append(allFlags, mapped.Flags...)

	// (6) severity
	anchorSeries := closesOf(in.History[e.cfg.Dislocation.AnchorSymbol])
	severity := e.severity.Score(anchorSeries)
	if in.Scenario.ForcedTier != nil {
		severity.Tier = *in.Scenario.ForcedTier
		severity.TierEngaged = severity.Tier >= e.cfg.Dislocation.MinActiveTier
	}

	// (7) lifecycle
	anchorPrice := quotes[e.cfg.Dislocation.AnchorSymbol]
	transition := e.lifecycle.Step(prior.LifecycleState, severity, regimeSnapshot, anchorPrice, in.AsOf)
	next.LifecycleState = transition.State
	allFlags = append(allFlags, transition.Flags...)
	if transition.JustEnteredReintegrate {
		for symbol, entry := range next.SleeveIndex.Entries {
			if entry.DislocationQty <= 0 {
				continue
			}
			next.SleeveIndex.TransferToBase(symbol, in.AsOf)
			cashEvents = append(cashEvents, domain.CashEvent{
				Kind: domain.EventReintegrateTransfer, Amount: 0, Symbol: symbol,
				Reason: "dislocation quantity transferred to base on REINTEGRATE entry",
			})
		}
	}

	// (8) rebalance
	rows := buildSymbolStates(next.Portfolio, next.SleeveIndex, mapped.Diagnostics.ExecutedBySymbol, quotes, budgets.CoreBudget, featResult.Features)
	regimeChanged := detectRegimeChange(in.PriorRegime, regimeSnapshot, e.cfg.Rebalance)
	rebalanceResult := rebalance.Plan(rows, budgets.NAVPostInfusion, float64(next.Portfolio.Cash), transition.Controls.SellProtected, regimeChanged, e.cfg.Rebalance)
	allFlags = append(allFlags, rebalanceResult.Flags...)

	// (9) apply sells
	var orders []domain.Order
	for _, o := range rebalanceResult.Orders {
		if o.Side != domain.SideSell {
			continue
		}
		orders = append(orders, o)
		applyOrderFill(&next, o, quotes[o.Symbol], in.AsOf, &cashEvents)
	}

	// (10) overlay buys
	overlayTargets := buildOverlayTargets(mapped, quotes)
	overlayInput := overlay.Input{
		Phase:              next.LifecycleState.Phase,
		Engaged:            severity.TierEngaged && !next.LifecycleState.InCooldown(in.AsOf),
		Cash:               float64(next.Portfolio.Cash),
		MinCashFloor:       budgets.MinCashFloor,
		NAV:                budgets.NAVPostInfusion,
		OverlayExtraPct:    severity.OverlayExtraExposurePct,
		CurrentExposureCap: policy.BaseExposureCap,
		CurrentInvested:    float64(next.Portfolio.Equity(quotes)),
		AddWeekIndex:       addWeekIndexFor(next.LifecycleState, in.AsOf),
		DurationWeeksAdd:   e.cfg.Dislocation.DurationWeeksAdd,
	}
	overlayResult := overlay.PlanBudget(overlayInput, overlayTargets, e.cfg.Dislocation, e.cfg.Dislocation.MaxTotalExposureCapPct)
	allFlags = append(allFlags, overlayResult.Flags...)

	// (11) apply buys
	for _, o := range rebalanceResult.Orders {
		if o.Side != domain.SideBuy {
			continue
		}
		orders = append(orders, o)
		applyOrderFill(&next, o, quotes[o.Symbol], in.AsOf, &cashEvents)
	}
	for _, o := range overlayResult.Orders {
		orders = append(orders, o)
		applyOrderFill(&next, o, quotes[o.Symbol], in.AsOf, &cashEvents)
	}

	// (12) option arbitration
	optInput := options.Input{
		Now: in.AsOf, UnderlyingPrice: anchorPrice, Regime: regimeSnapshot, Phase: next.LifecycleState.Phase,
		SeverityTier: severity.Tier, CurrentTick: currentTick, JustTriggered: transition.JustTriggered,
		EarlyExitFired: transition.EarlyExitFired, NAV: budgets.NAVPostInfusion, ReserveBudget: budgets.ReserveBudget,
	}
	optResult := options.Step(optInput, next.OptionSleeves, e.cfg)
	next.OptionSleeves = optResult.Sleeves
	allFlags = append(allFlags, optResult.Flags...)
	for _, ev := range optResult.CashEvents {
		next.Portfolio.Cash += domain.Money(ev.Amount)
		cashEvents = append(cashEvents, ev)
	}

	// (13) reconcile invariants
	finalMarks := optionMarks(next.OptionSleeves, currentTick, severity.Tier, quotes)
	finalMarksTotal := sumFloats(finalMarks)
	report := invariant.Reconcile(invariant.Input{
		PriorCash:          float64(prior.Portfolio.Cash),
		PostCash:           float64(next.Portfolio.Cash),
		CashEvents:         cashEvents,
		NAV:                capital.NAV(next.Portfolio, quotes, finalMarksTotal),
		OptionsMarketValue: finalMarksTotal,
		OptionMarks:        finalMarks,
		ReserveUsedTotal:   next.OptionSleeves.ReserveUsedTotal(),
		ReserveBudget:      budgets.ReserveBudget,
		SleeveIndex:        next.SleeveIndex,
		Holdings:           next.Portfolio.Holdings,
	})

	unexecutable := rebalanceResult.Unexecutable || domain.AnyBlocks(allFlags)

	result := domain.TickResult{
		Orders:          orders,
		CashEvents:      cashEvents,
		Unexecutable:    unexecutable,
		InvariantReport: report,
		Diagnostics: domain.Diagnostics{
			Mapping: mapped.Diagnostics,
			Budgets: domain.BudgetDiagnostics{
				NAVPreInfusion:  budgets.NAVPreInfusion,
				NAVPostInfusion: budgets.NAVPostInfusion,
				CoreBudget:      budgets.CoreBudget,
				ReserveBudget:   budgets.ReserveBudget,
				MinCashFloor:    budgets.MinCashFloor,
			},
			Overlay:  overlayResult.Diagnostics,
			Options:  optResult.Diagnostics,
			Phase:    next.LifecycleState.Phase,
			Severity: severity,
			Flags:    allFlags,
		},
	}

	e.log.Info().
		Time("as_of", in.AsOf).
		Str("phase", string(next.LifecycleState.Phase)).
		Int("orders", len(orders)).
		Bool("invariant_ok", report.OK).
		Msg("tick completed")

	return next, result
}

func applyForcedReturns(quotes map[string]float64, forced map[string]float64) map[string]float64 {
	if len(forced) == 0 {
		return quotes
	}
	out := make(map[string]float64, len(quotes))
	for symbol, price := range quotes {
		out[symbol] = price
	}
	for symbol, ret := range forced {
		if price, ok := out[symbol]; ok {
			out[symbol] = price * (1 + ret)
		}
	}
	return out
}

func closesOf(points []features.HistoryPoint) []float64 {
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = p.Close
	}
	return out
}

// buildSymbolStates aggregates current holdings and executed target
// weights into the rows C8 diffs against, using each executed symbol's
// share of the core budget to derive its target whole-share count.
func buildSymbolStates(portfolio domain.Portfolio, sleeves domain.SleeveIndex, executedWeights map[string]float64, quotes map[string]float64, coreBudget float64, features map[string]domain.Feature) []rebalance.SymbolState {
	symbols := make(map[string]struct{}, len(executedWeights)+len(portfolio.Holdings))
	for symbol := range executedWeights {
		symbols[symbol] = struct{}{}
	}
	for symbol := range portfolio.Holdings {
		symbols[symbol] = struct{}{}
	}

	rows := make([]rebalance.SymbolState, 0, len(symbols))
	for symbol := range symbols {
		price := quotes[symbol]
		lot := portfolio.Holdings[symbol]
		entry := sleeves.Entries[symbol]

		targetQty := 0
		if price > 0 {
			targetQty = int(math.Floor(executedWeights[symbol] * coreBudget / price))
		}

		feat := features[symbol]
		highQuality := feat.Ret60PctileBucket == domain.PctileHigh && feat.VolPctileBucket != domain.PctileHigh

		rows = append(rows, rebalance.SymbolState{
			Symbol: symbol, CurrentQty: lot.Quantity, TargetQty: targetQty, Price: price,
			BaseQty: entry.BaseQty, DislocationQty: entry.DislocationQty,
			HighQuality: highQuality,
		})
	}
	return rows
}

func buildOverlayTargets(mapped mapper.Result, quotes map[string]float64) []overlay.Target {
	targets := make([]overlay.Target, 0, len(mapped.Diagnostics.ExecutedBySymbol))
	for symbol, weight := range mapped.Diagnostics.ExecutedBySymbol {
		targets = append(targets, overlay.Target{Symbol: symbol, Weight: weight, Price: quotes[symbol]})
	}
	return targets
}

// detectRegimeChange implements spec.md §4.8's "regime change is any
// configured key whose value differs from the prior snapshot, or an
// equity-confidence bucket change".
func detectRegimeChange(prior *domain.RegimeSnapshot, current domain.RegimeSnapshot, cfg config.RebalanceConfig) bool {
	if !cfg.AlwaysRebalanceOnRegimeChange || prior == nil {
		return false
	}
	for _, key := range cfg.RegimeChangeKeys {
		switch key {
		case "equity.label":
			if prior.Equity.Label != current.Equity.Label {
				return true
			}
		case "rates.label":
			if prior.Rates.Label != current.Rates.Label {
				return true
			}
		case "vol_label":
			if prior.VolLabel != current.VolLabel {
				return true
			}
		}
	}
	return prior.Equity.ConfidenceBucket() != current.Equity.ConfidenceBucket()
}

// applyOrderFill mutates portfolio cash/holdings, the sleeve index, and
// the cash event ledger slice for one executed order.
func applyOrderFill(state *domain.EngineState, o domain.Order, price float64, now time.Time, cashEvents *[]domain.CashEvent) {
	state.Portfolio.ApplyFill(o.Symbol, string(o.Side), o.Quantity, price)

	kind := domain.EventSellCredit
	amount := o.EstNotional
	if o.Side == domain.SideBuy {
		kind = domain.EventBuyDebit
		amount = -o.EstNotional
	}
	*cashEvents = append(*cashEvents, domain.CashEvent{
		Kind: kind, Amount: amount, Symbol: o.Symbol, Sleeve: string(o.Sleeve), Reason: o.Thesis,
	})

	entry := state.SleeveIndex.Entries[o.Symbol]
	switch {
	case o.Side == domain.SideSell && o.Sleeve == domain.SleeveDislocation:
		entry.DislocationQty = maxInt(0, entry.DislocationQty-o.Quantity)
	case o.Side == domain.SideSell:
		entry.BaseQty = maxInt(0, entry.BaseQty-o.Quantity)
	case o.Sleeve == domain.SleeveDislocation:
		entry.DislocationQty += o.Quantity
	default:
		entry.BaseQty += o.Quantity
	}
	entry.UpdatedAt = now

	if entry.BaseQty == 0 && entry.DislocationQty == 0 {
		delete(state.SleeveIndex.Entries, o.Symbol)
	} else {
		state.SleeveIndex.Entries[o.Symbol] = entry
	}
}

// addWeekIndexFor derives the 0-based ADD-phase week index C9's pacing
// cap needs from how long ago the episode's rising edge fired.
func addWeekIndexFor(state domain.LifecycleState, now time.Time) int {
	if state.Phase != domain.PhaseAdd || state.TriggeredAt == nil {
		return 0
	}
	weeks := int(now.Sub(*state.TriggeredAt).Hours() / (24 * 7))
	if weeks < 0 {
		return 0
	}
	return weeks
}

// weekTick converts a timestamp to the "weeks since epoch" tick unit
// option expiry/ttm arithmetic uses (spec.md §4.10: "ttm in tick units
// (weeks)").
func weekTick(t time.Time) int {
	return int(t.Unix() / (7 * 24 * 3600))
}

func optionMarks(sleeves domain.OptionSleeves, currentTick int, severityTier int, quotes map[string]float64) []float64 {
	var marks []float64
	if sleeves.Insurance.Position != nil {
		pos := sleeves.Insurance.Position
		marks = append(marks, options.Mark(*pos, currentTick, severityTier, quotes[pos.Underlying]))
	}
	if sleeves.Growth.Position != nil {
		pos := sleeves.Growth.Position
		marks = append(marks, options.Mark(*pos, currentTick, severityTier, quotes[pos.Underlying]))
	}
	return marks
}

func sumFloats(vals []float64) float64 {
	var total float64
	for _, v := range vals {
		total += v
	}
	return total
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
