package capital

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harrowgate/dislocation-engine/internal/config"
	"github.com/harrowgate/dislocation-engine/internal/domain"
)

func TestPartition_NoInfusion(t *testing.T) {
	p := domain.NewPortfolio(2000)
	budgets := Partition(&p, map[string]float64{}, 0, 0, config.CapitalConfig{CorePct: 0.7, ReservePct: 0.3}, 0)

	assert.Equal(t, 2000.0, budgets.NAVPreInfusion)
	assert.Equal(t, 2000.0, budgets.NAVPostInfusion)
	assert.InDelta(t, 1400, budgets.CoreBudget, 1e-9)
	assert.InDelta(t, 600, budgets.ReserveBudget, 1e-9)
}

func TestPartition_AppliesInfusionBeforeBudgets(t *testing.T) {
	p := domain.NewPortfolio(1000)
	budgets := Partition(&p, map[string]float64{}, 0, 500, config.CapitalConfig{CorePct: 0.7, ReservePct: 0.3}, 0)

	assert.Equal(t, 1000.0, budgets.NAVPreInfusion)
	assert.Equal(t, 1500.0, budgets.NAVPostInfusion)
	assert.InDelta(t, 1050, budgets.CoreBudget, 1e-9)
	assert.Equal(t, domain.Money(1500), p.Cash)
}

func TestPartition_MinCashFloor(t *testing.T) {
	p := domain.NewPortfolio(2000)
	budgets := Partition(&p, map[string]float64{}, 0, 0, config.CapitalConfig{CorePct: 0.7, ReservePct: 0.3}, 0.1)
	assert.InDelta(t, 200, budgets.MinCashFloor, 1e-9)
}
