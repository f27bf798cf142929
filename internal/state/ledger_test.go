package state

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrowgate/dislocation-engine/internal/domain"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l, err := OpenLedger(path, zerolog.Nop())
	require.NoError(t, err)
	return l
}

func TestAppend_WritesAndRoundTripsEachEventType(t *testing.T) {
	l := openTestLedger(t)

	require.NoError(t, l.Append(RunStartedData{}))
	require.NoError(t, l.Append(FillRecordedData{
		Order: domain.Order{Symbol: "SPY", Side: domain.SideBuy, Quantity: 5},
		Price: 410.5,
	}))
	require.NoError(t, l.Append(CashRecordedData{Event: domain.CashEvent{Kind: domain.EventBuyDebit, Amount: -2052.5}}))
	require.NoError(t, l.Append(RunCompletedData{NAV: 12000, ViolationCount: 0, OrdersFilled: 1}))

	entries, err := l.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, EventRunStarted, entries[0].Type)
	assert.NotEmpty(t, entries[0].ID)

	fill, ok := entries[1].Data.(*FillRecordedData)
	require.True(t, ok)
	assert.Equal(t, "SPY", fill.Order.Symbol)
	assert.Equal(t, 5, fill.Order.Quantity)
	assert.Equal(t, 410.5, fill.Price)

	cash, ok := entries[2].Data.(*CashRecordedData)
	require.True(t, ok)
	assert.Equal(t, domain.EventBuyDebit, cash.Event.Kind)
	assert.Equal(t, -2052.5, cash.Event.Amount)

	completed, ok := entries[3].Data.(*RunCompletedData)
	require.True(t, ok)
	assert.Equal(t, 12000.0, completed.NAV)
	assert.Equal(t, 1, completed.OrdersFilled)
}

func TestAppend_IsAppendOnlyAcrossMultipleOpens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	l1, err := OpenLedger(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, l1.Append(RunStartedData{}))

	l2, err := OpenLedger(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, l2.Append(RunCompletedData{NAV: 1000}))

	entries, err := l2.ReadAll()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, EventRunStarted, entries[0].Type)
	assert.Equal(t, EventRunCompleted, entries[1].Type)
}

func TestReadAll_EmptyLedgerReturnsNoEntries(t *testing.T) {
	l := openTestLedger(t)

	entries, err := l.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
