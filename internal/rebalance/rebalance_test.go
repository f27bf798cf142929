package rebalance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrowgate/dislocation-engine/internal/config"
	"github.com/harrowgate/dislocation-engine/internal/domain"
)

func cfg() config.RebalanceConfig {
	return config.NewDefaultConfiguration().Rebalance
}

func TestPlan_SkipsWhenNoDrift(t *testing.T) {
	rows := []SymbolState{{Symbol: "SPY", CurrentQty: 10, TargetQty: 10, Price: 100, BaseQty: 10}}
	res := Plan(rows, 1000, 0, false, false, cfg())
	assert.True(t, res.Skipped)
	assert.Equal(t, "SKIPPED_NO_DRIFT", res.SkipReason)
}

func TestPlan_SellProtectionLimitsToBaseQty(t *testing.T) {
	rows := []SymbolState{{Symbol: "QQQM", CurrentQty: 3, TargetQty: 1, Price: 160, BaseQty: 1, DislocationQty: 2}}
	res := Plan(rows, 10000, 1000, true, true, cfg())

	require.Len(t, res.Orders, 1)
	assert.Equal(t, 1, res.Orders[0].Quantity)
	assert.Equal(t, domain.SleeveBase, res.Orders[0].Sleeve)
	found := false
	for _, f := range res.Flags {
		if f.Code == "SELL_PROTECTION_APPLIED" {
			found = true
			assert.Equal(t, 1, f.Observed["blocked_qty"])
		}
	}
	assert.True(t, found)
}

func TestPlan_SellsThenBuysOrderedAndCashConstrained(t *testing.T) {
	rows := []SymbolState{
		{Symbol: "TLT", CurrentQty: 5, TargetQty: 0, Price: 85, BaseQty: 5},
		{Symbol: "SPY", CurrentQty: 0, TargetQty: 10, Price: 100, BaseQty: 0},
	}
	res := Plan(rows, 2000, 0, false, true, cfg())

	require.Len(t, res.Orders, 2)
	assert.Equal(t, domain.SideSell, res.Orders[0].Side)
	assert.Equal(t, domain.SideBuy, res.Orders[1].Side)
	// sell proceeds = 5*85=425, so buy is capped to floor(425/100)=4 shares
	assert.Equal(t, 4, res.Orders[1].Quantity)
}

func TestPlan_HighQualitySellDowngradedToLastNotBlocked(t *testing.T) {
	rows := []SymbolState{
		{Symbol: "QQQ", CurrentQty: 10, TargetQty: 0, Price: 100, BaseQty: 10, HighQuality: true},
		{Symbol: "TLT", CurrentQty: 5, TargetQty: 0, Price: 85, BaseQty: 5},
	}
	res := Plan(rows, 2000, 0, false, true, cfg())

	require.Len(t, res.Orders, 2)
	assert.Equal(t, "TLT", res.Orders[0].Symbol)
	assert.Equal(t, "QQQ", res.Orders[1].Symbol)
	found := false
	for _, f := range res.Flags {
		if f.Code == "SELL_QUALITY_DOWNGRADED" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestPlan_UnexecutableWhenNoOrdersProducedDespiteDrift(t *testing.T) {
	c := cfg()
	c.MinTradeNotionalUSD = 1_000_000
	rows := []SymbolState{{Symbol: "SPY", CurrentQty: 0, TargetQty: 10, Price: 100, BaseQty: 0}}
	res := Plan(rows, 1000, 0, false, true, c)

	assert.True(t, res.Unexecutable)
	assert.Empty(t, res.Orders)
}
