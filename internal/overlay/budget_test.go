package overlay

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrowgate/dislocation-engine/internal/config"
	"github.com/harrowgate/dislocation-engine/internal/domain"
)

func TestPlanBudget_GatedOutsideAddPhase(t *testing.T) {
	cfg := config.NewDefaultConfiguration().Dislocation
	res := PlanBudget(Input{Phase: domain.PhaseHold, Engaged: true}, nil, cfg, 0.7)
	assert.Empty(t, res.Orders)
	assert.Equal(t, 0.0, res.Diagnostics.Budget)
	require.Len(t, res.Flags, 1)
	assert.Equal(t, "OVERLAY_DISABLED_NOT_IN_ADD_PHASE", res.Flags[0].Code)
}

func TestPlanBudget_GatedBelowMinBudget(t *testing.T) {
	cfg := config.NewDefaultConfiguration().Dislocation
	in := Input{
		Phase: domain.PhaseAdd, Engaged: true, Cash: 1000, MinCashFloor: 0,
		NAV: 2000, OverlayExtraPct: 0.02, CurrentExposureCap: 0.7, CurrentInvested: 0,
		AddWeekIndex: 0, DurationWeeksAdd: 3,
	}
	res := PlanBudget(in, []Target{{Symbol: "SPY", Weight: 1, Price: 100}}, cfg, 0.7)
	assert.Equal(t, 0.0, res.Diagnostics.Budget)
	assert.Empty(t, res.Orders)
}

func TestPlanBudget_AllocatesWholeSharesByLargestRemainder(t *testing.T) {
	cfg := config.NewDefaultConfiguration().Dislocation
	cfg.OverlayMinBudgetUSD = 10
	in := Input{
		Phase: domain.PhaseAdd, Engaged: true, Cash: 1000, MinCashFloor: 0,
		NAV: 10000, OverlayExtraPct: 0.10, CurrentExposureCap: 0.7, CurrentInvested: 1000,
		AddWeekIndex: 2, DurationWeeksAdd: 3,
	}
	targets := []Target{{Symbol: "SPY", Weight: 0.6, Price: 100}, {Symbol: "TLT", Weight: 0.4, Price: 85}}
	res := PlanBudget(in, targets, cfg, 0.7)

	require.NotEmpty(t, res.Orders)
	var totalSpent float64
	for _, o := range res.Orders {
		totalSpent += o.EstNotional
		assert.Equal(t, domain.SleeveDislocation, o.Sleeve)
		assert.Greater(t, o.Quantity, 0)
	}
	assert.LessOrEqual(t, totalSpent, res.Diagnostics.Budget+1e-9)
}

func TestPlanBudget_PacingCapsEarlyWeeks(t *testing.T) {
	cfg := config.NewDefaultConfiguration().Dislocation
	cfg.OverlayMinBudgetUSD = 0
	in := Input{
		Phase: domain.PhaseAdd, Engaged: true, Cash: 10000, MinCashFloor: 0,
		NAV: 10000, OverlayExtraPct: 0.30, CurrentExposureCap: 1.0, CurrentInvested: 0,
		AddWeekIndex: 0, DurationWeeksAdd: 3,
	}
	res := PlanBudget(in, []Target{{Symbol: "SPY", Weight: 1, Price: 100}}, cfg, 1.0)
	// nominal = 3000, but week index 0 of 3 caps cumulative deployment to 1/3 of nominal = 1000
	assert.InDelta(t, 1000, res.Diagnostics.Budget, 1e-6)
}

func TestPlanBudget_UnderMinLotZeroesBudget(t *testing.T) {
	cfg := config.NewDefaultConfiguration().Dislocation
	cfg.OverlayMinBudgetUSD = 0
	in := Input{
		Phase: domain.PhaseAdd, Engaged: true, Cash: 50, MinCashFloor: 0,
		NAV: 1000, OverlayExtraPct: 0.05, CurrentExposureCap: 0.7, CurrentInvested: 0,
		AddWeekIndex: 2, DurationWeeksAdd: 3,
	}
	res := PlanBudget(in, []Target{{Symbol: "BRK.A", Weight: 1, Price: 500000}}, cfg, 0.7)
	assert.Equal(t, 0.0, res.Diagnostics.Budget)
}
