package domain

import "time"

// SleeveEntry partitions one symbol's quantity between the long-standing
// "base" allocation and an opportunistic "dislocation" overlay, per
// spec.md §3. Invariant (checked at tick start and by the invariant
// reconciler): BaseQty + DislocationQty == holdings[symbol].Quantity.
type SleeveEntry struct {
	UpdatedAt      time.Time `json:"updated_at"`
	BaseQty        int       `json:"base_qty"`
	DislocationQty int       `json:"dislocation_qty"`
}

// SleeveIndex is the side-index keyed by symbol. Portfolio owns holdings;
// SleeveIndex only labels how those holdings were acquired.
type SleeveIndex struct {
	Entries map[string]SleeveEntry `json:"entries"`
}

// NewSleeveIndex returns an empty index.
func NewSleeveIndex() SleeveIndex {
	return SleeveIndex{Entries: make(map[string]SleeveEntry)}
}

// Reconcile re-establishes the sleeve invariant against the current
// holdings (spec.md §4 ordering step 1): any symbol present in holdings but
// absent from the index is assumed fully "base"; any symbol in the index
// whose total no longer matches holdings is trimmed from dislocation first,
// then base, so the index never claims more shares than are held.
func (s *SleeveIndex) Reconcile(holdings map[string]Lot, now time.Time) []Flag {
	var flags []Flag
	if s.Entries == nil {
		s.Entries = make(map[string]SleeveEntry)
	}

	for symbol, lot := range holdings {
		entry, ok := s.Entries[symbol]
		if !ok {
			s.Entries[symbol] = SleeveEntry{BaseQty: lot.Quantity, DislocationQty: 0, UpdatedAt: now}
			continue
		}
		total := entry.BaseQty + entry.DislocationQty
		if total == lot.Quantity {
			continue
		}
		flags = append(flags, Flag{
			Code:     "SLEEVE_RECONCILED",
			Severity: SeverityWarn,
			Message:  "sleeve quantity diverged from holdings; trimmed to match",
			Observed: map[string]any{"symbol": symbol, "sleeve_total": total, "holding_qty": lot.Quantity},
		})
		if total > lot.Quantity {
			excess := total - lot.Quantity
			trimFromDislocation := min(excess, entry.DislocationQty)
			entry.DislocationQty -= trimFromDislocation
			excess -= trimFromDislocation
			entry.BaseQty -= min(excess, entry.BaseQty)
		} else {
			entry.BaseQty += lot.Quantity - total
		}
		entry.UpdatedAt = now
		s.Entries[symbol] = entry
	}

	// Symbols no longer held are dropped from the index entirely.
	for symbol := range s.Entries {
		if _, held := holdings[symbol]; !held {
			delete(s.Entries, symbol)
		}
	}
	return flags
}

// TransferToBase atomically moves a symbol's entire dislocation quantity
// into base, used on the first REINTEGRATE tick (spec.md §4.7).
func (s *SleeveIndex) TransferToBase(symbol string, now time.Time) {
	entry := s.Entries[symbol]
	entry.BaseQty += entry.DislocationQty
	entry.DislocationQty = 0
	entry.UpdatedAt = now
	s.Entries[symbol] = entry
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
