package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrowgate/dislocation-engine/internal/allocator"
	"github.com/harrowgate/dislocation-engine/internal/config"
	"github.com/harrowgate/dislocation-engine/internal/domain"
	"github.com/harrowgate/dislocation-engine/internal/features"
)

// flatWeeklyHistory builds 26 weekly closes oscillating gently around base
// so the series has >= 5 unique values (clears the flat-history gate)
// while keeping peak drawdown negligible (spec.md §8 scenario 1's "flat
// +-0.5 over 26 weeks").
func flatWeeklyHistory(asOf time.Time, base float64) []features.HistoryPoint {
	offsets := []float64{0, 0.3, -0.2, 0.4, -0.1}
	points := make([]features.HistoryPoint, 26)
	start := asOf.AddDate(0, 0, -7*25)
	for i := 0; i < 26; i++ {
		points[i] = features.HistoryPoint{
			Date:  start.AddDate(0, 0, 7*i),
			Close: base + offsets[i%len(offsets)],
		}
	}
	return points
}

func TestTick_CalmNeutralTickProducesDirectBuysWithinCoreBudget(t *testing.T) {
	asOf := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	cfg := config.NewDefaultConfiguration()
	e := New(cfg, zerolog.Nop())

	prior := domain.NewEngineState(domain.Money(cfg.StartingCapitalUSD))

	in := Input{
		AsOf:     asOf,
		Universe: []string{"SPY", "QQQ", "TLT"},
		Quotes:   map[string]float64{"SPY": 100, "QQQ": 110, "TLT": 85},
		History: map[string][]features.HistoryPoint{
			"SPY": flatWeeklyHistory(asOf, 100),
			"QQQ": flatWeeklyHistory(asOf, 110),
			"TLT": flatWeeklyHistory(asOf, 85),
		},
		CandidateBuckets: map[string]allocator.Bucket{
			"SPY": allocator.BucketEquityLarge,
			"QQQ": allocator.BucketGrowth,
			"TLT": allocator.BucketDurationLong,
		},
		ProxyMap:    map[string][]string{},
		RatesLabel:  domain.RatesNeutral,
		RatesStance: "hold",
	}

	next, result := e.Tick(prior, in)

	assert.Equal(t, domain.PhaseInactive, next.LifecycleState.Phase)
	assert.Equal(t, 0, result.Diagnostics.Severity.Tier)
	assert.False(t, result.Diagnostics.Severity.TierEngaged)
	require.True(t, result.InvariantReport.OK, "violations: %v", result.InvariantReport.Violations)
	assert.False(t, result.Unexecutable)

	require.NotEmpty(t, result.Orders)
	var totalNotional float64
	for _, o := range result.Orders {
		assert.Equal(t, domain.SideBuy, o.Side)
		assert.Equal(t, domain.SleeveBase, o.Sleeve)
		assert.Greater(t, o.Quantity, 0)
		totalNotional += o.EstNotional
	}
	assert.LessOrEqual(t, totalNotional, result.Diagnostics.Budgets.CoreBudget+0.01)

	wantCash := domain.Money(cfg.StartingCapitalUSD) - domain.Money(totalNotional)
	assert.InDelta(t, float64(wantCash), float64(next.Portfolio.Cash), 0.01)
	assert.GreaterOrEqual(t, float64(next.Portfolio.Cash), 0.0)

	gotDelta := domain.SumCashEvents(result.CashEvents)
	assert.InDelta(t, -totalNotional, gotDelta, 0.01)
}

func TestTick_WholeShareAffordabilityWithProxy(t *testing.T) {
	asOf := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	cfg := config.NewDefaultConfiguration()
	cfg.StartingCapitalUSD = 300
	cfg.MaxPositions = 1
	e := New(cfg, zerolog.Nop())

	prior := domain.NewEngineState(domain.Money(300))

	in := Input{
		AsOf:     asOf,
		Universe: []string{"QQQ"},
		Quotes:   map[string]float64{"QQQ": 450, "QQQM": 160},
		History: map[string][]features.HistoryPoint{
			"QQQ": flatWeeklyHistory(asOf, 450),
		},
		CandidateBuckets: map[string]allocator.Bucket{"QQQ": allocator.BucketGrowth},
		ProxyMap:         map[string][]string{"QQQ": {"QQQM"}},
		RatesLabel:       domain.RatesNeutral,
		RatesStance:      "hold",
	}

	next, result := e.Tick(prior, in)

	require.True(t, result.InvariantReport.OK, "violations: %v", result.InvariantReport.Violations)
	assert.True(t, result.Diagnostics.Mapping.RatioPreserved)

	require.Len(t, result.Orders, 1)
	order := result.Orders[0]
	assert.Equal(t, "QQQM", order.Symbol)
	assert.Equal(t, domain.SideBuy, order.Side)
	assert.GreaterOrEqual(t, order.Quantity, 1)

	assert.Equal(t, order.Quantity, next.Portfolio.Holdings["QQQM"].Quantity)
}

func TestTick_EarlyExitFailsafeForcesReintegrateAndClosesInsurance(t *testing.T) {
	asOf := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	cfg := config.NewDefaultConfiguration()
	e := New(cfg, zerolog.Nop())

	anchor := 100.0
	entryAnchor := anchor
	prior := domain.NewEngineState(domain.Money(cfg.StartingCapitalUSD))
	prior.LifecycleState = domain.LifecycleState{
		Phase:            domain.PhaseAdd,
		EntryAnchorPrice: &entryAnchor,
	}
	prior.OptionSleeves.Insurance = domain.OptionSleeveState{
		State: domain.SleeveDeployed,
		Position: &domain.OptionPosition{
			Underlying: "SPY", Kind: domain.OptionPut, Strike: 100,
			PremiumPerShare: 1, Contracts: 2, OpenedTick: weekTick(asOf) - 1, ExpiryTick: weekTick(asOf) + 10,
		},
	}

	in := Input{
		AsOf:     asOf,
		Universe: []string{"SPY"},
		Quotes:   map[string]float64{"SPY": 68},
		History: map[string][]features.HistoryPoint{
			"SPY": flatWeeklyHistory(asOf, 68),
		},
		CandidateBuckets: map[string]allocator.Bucket{"SPY": allocator.BucketEquityLarge},
		ProxyMap:         map[string][]string{},
		RatesLabel:       domain.RatesNeutral,
		RatesStance:      "hold",
	}

	next, result := e.Tick(prior, in)

	assert.Equal(t, domain.PhaseReintegrate, next.LifecycleState.Phase)
	require.NotNil(t, next.LifecycleState.CooldownUntil)
	assert.Equal(t, domain.SleeveInactive, next.OptionSleeves.Insurance.State)
	assert.Equal(t, "CLOSE", result.Diagnostics.Options.Insurance)

	var sawCloseCredit bool
	for _, ev := range result.CashEvents {
		if ev.Kind == domain.EventOptCloseCredit {
			sawCloseCredit = true
		}
	}
	assert.True(t, sawCloseCredit)
}
