package state

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrowgate/dislocation-engine/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	s, err := Open(path, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoad_BootstrapsFreshStateWhenEmpty(t *testing.T) {
	s := openTestStore(t)

	st, err := s.Load(domain.Money(5000))
	require.NoError(t, err)
	assert.Equal(t, domain.Money(5000), st.Portfolio.Cash)
	assert.Empty(t, st.Portfolio.Holdings)
	assert.Equal(t, domain.PhaseInactive, st.LifecycleState.Phase)
	assert.Equal(t, domain.SleeveInactive, st.OptionSleeves.Insurance.State)
}

func TestSaveThenLoad_RoundTripsEveryComponent(t *testing.T) {
	s := openTestStore(t)

	st := domain.NewEngineState(domain.Money(10000))
	st.Portfolio.Cash = 4200
	st.Portfolio.Holdings["SPY"] = domain.Lot{Symbol: "SPY", Quantity: 10, AvgPrice: 400}
	st.SleeveIndex.Entries["SPY"] = domain.SleeveEntry{BaseQty: 8, DislocationQty: 2}
	st.LifecycleState.Phase = domain.PhaseAdd
	st.LifecycleState.CurrentTier = 2
	st.OptionSleeves.Insurance.State = domain.SleeveDeployed
	st.OptionSleeves.Insurance.Position = &domain.OptionPosition{
		Underlying: "SPY", Kind: domain.OptionPut, Strike: 400, Contracts: 3,
	}

	require.NoError(t, s.Save(st))

	loaded, err := s.Load(domain.Money(10000))
	require.NoError(t, err)

	assert.Equal(t, domain.Money(4200), loaded.Portfolio.Cash)
	assert.Equal(t, 10, loaded.Portfolio.Holdings["SPY"].Quantity)
	assert.Equal(t, 8, loaded.SleeveIndex.Entries["SPY"].BaseQty)
	assert.Equal(t, 2, loaded.SleeveIndex.Entries["SPY"].DislocationQty)
	assert.Equal(t, domain.PhaseAdd, loaded.LifecycleState.Phase)
	assert.Equal(t, 2, loaded.LifecycleState.CurrentTier)
	assert.Equal(t, domain.SleeveDeployed, loaded.OptionSleeves.Insurance.State)
	require.NotNil(t, loaded.OptionSleeves.Insurance.Position)
	assert.Equal(t, 3, loaded.OptionSleeves.Insurance.Position.Contracts)
}

func TestSave_OverwritesPriorComponent(t *testing.T) {
	s := openTestStore(t)

	st := domain.NewEngineState(domain.Money(1000))
	require.NoError(t, s.Save(st))

	st.Portfolio.Cash = 250
	require.NoError(t, s.Save(st))

	loaded, err := s.Load(domain.Money(1000))
	require.NoError(t, err)
	assert.Equal(t, domain.Money(250), loaded.Portfolio.Cash)
}
