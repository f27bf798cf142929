package state

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harrowgate/dislocation-engine/internal/domain"
)

// EventType enumerates the append-only ledger's event taxonomy
// (spec.md §6's "ledger.jsonl").
type EventType string

const (
	EventRunStarted   EventType = "RUN_STARTED"
	EventFillRecorded EventType = "FILL_RECORDED"
	EventCashRecorded EventType = "CASH_RECORDED"
	EventRunCompleted EventType = "RUN_COMPLETED"
)

// EventData is anything that can be appended to the ledger. Grounded on
// internal/events/event_data.go's EventData interface.
type EventData interface {
	EventType() EventType
}

// RunStartedData marks the start of a tick.
type RunStartedData struct {
	AsOf time.Time `json:"as_of"`
}

func (d RunStartedData) EventType() EventType { return EventRunStarted }

// FillRecordedData records one executed order.
type FillRecordedData struct {
	Order domain.Order `json:"order"`
	Price float64      `json:"price"`
}

func (d FillRecordedData) EventType() EventType { return EventFillRecorded }

// CashRecordedData wraps a single signed cash event.
type CashRecordedData struct {
	Event domain.CashEvent `json:"event"`
}

func (d CashRecordedData) EventType() EventType { return EventCashRecorded }

// RunCompletedData summarizes a finished tick.
type RunCompletedData struct {
	NAV            float64 `json:"nav"`
	ViolationCount int     `json:"violation_count"`
	OrdersFilled   int     `json:"orders_filled"`
}

func (d RunCompletedData) EventType() EventType { return EventRunCompleted }

// Entry is one ledger line: a typed envelope around EventData, following
// EventWithData's Type/Timestamp/Data shape.
type Entry struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      EventData `json:"data"`
}

// MarshalJSON flattens Data to raw JSON alongside the envelope fields,
// mirroring EventWithData.MarshalJSON.
func (e Entry) MarshalJSON() ([]byte, error) {
	type alias Entry
	raw, err := json.Marshal(e.Data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		alias
		Data json.RawMessage `json:"data"`
	}{alias: alias(e), Data: raw})
}

// UnmarshalJSON dispatches Data's concrete type from the Type field,
// mirroring EventWithData.UnmarshalJSON.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var aux struct {
		ID        string          `json:"id"`
		Type      EventType       `json:"type"`
		Timestamp time.Time       `json:"timestamp"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	e.ID, e.Type, e.Timestamp = aux.ID, aux.Type, aux.Timestamp

	var target EventData
	switch aux.Type {
	case EventRunStarted:
		target = &RunStartedData{}
	case EventFillRecorded:
		target = &FillRecordedData{}
	case EventCashRecorded:
		target = &CashRecordedData{}
	case EventRunCompleted:
		target = &RunCompletedData{}
	default:
		return fmt.Errorf("unknown ledger event type %q", aux.Type)
	}
	if err := json.Unmarshal(aux.Data, target); err != nil {
		return err
	}
	e.Data = target
	return nil
}

// Ledger appends newline-delimited JSON entries to a single file — never
// rewritten, never truncated, per spec.md §6's "append-only event log".
type Ledger struct {
	path string
	log  zerolog.Logger
	mu   sync.Mutex
}

func OpenLedger(path string, log zerolog.Logger) (*Ledger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", path, err)
	}
	f.Close()
	return &Ledger{path: path, log: log.With().Str("repo", "ledger").Logger()}, nil
}

// Append writes one entry and fsyncs before returning, so a crash right
// after a tick never loses the last line.
func (l *Ledger) Append(data EventData) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger %s: %w", l.path, err)
	}
	defer f.Close()

	entry := Entry{ID: uuid.NewString(), Type: data.EventType(), Timestamp: time.Now().UTC(), Data: data}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write ledger entry: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync ledger: %w", err)
	}

	l.log.Debug().Str("type", string(entry.Type)).Msg("ledger entry appended")
	return nil
}

// ReadAll loads every entry for inspection/replay — used by tests, never by
// the tick path or the CLI.
func (l *Ledger) ReadAll() ([]Entry, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open ledger %s: %w", l.path, err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("decode ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan ledger: %w", err)
	}
	return entries, nil
}
