// Package state persists EngineState between ticks and appends the
// event ledger. Store follows the corpus's repository-over-database/sql
// shape; grounded on
// internal/modules/cash_flows/cash_repository.go's Get/Upsert pair, widened
// from one row-per-currency to one row-per-component since EngineState has
// four independently-evolving parts (Portfolio, SleeveIndex, LifecycleState,
// OptionSleeves) rather than cash_flows' single float64.
package state

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/harrowgate/dislocation-engine/internal/domain"
)

const (
	componentPortfolio = "portfolio"
	componentSleeves   = "sleeve_index"
	componentLifecycle = "lifecycle_state"
	componentOptions   = "option_sleeves"
)

// Store is the engine's single SQLite-backed repository for EngineState.
// One process, one file — spec.md §5 describes a single-threaded,
// cooperative tick loop, so the store carries no internal locking beyond
// what database/sql already serializes through one *sql.DB.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if absent) the SQLite database at path and runs
// the engine_state migration.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	s := &Store{db: db, log: log.With().Str("repo", "engine_state").Logger()}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS engine_state (
			component   TEXT PRIMARY KEY,
			blob        BLOB NOT NULL,
			updated_at  INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("migrate engine_state: %w", err)
	}
	return nil
}

// Load reconstructs EngineState from whatever components are already
// persisted, bootstrapping any missing one fresh — per spec.md §3's
// lifecycle notes, a never-before-seen component starts from its own zero
// state rather than failing the load.
func (s *Store) Load(startingCapital domain.Money) (domain.EngineState, error) {
	fresh := domain.NewEngineState(startingCapital)
	out := fresh

	if blob, ok, err := s.getBlob(componentPortfolio); err != nil {
		return domain.EngineState{}, err
	} else if ok {
		if err := msgpack.Unmarshal(blob, &out.Portfolio); err != nil {
			return domain.EngineState{}, fmt.Errorf("decode portfolio: %w", err)
		}
	}

	if blob, ok, err := s.getBlob(componentSleeves); err != nil {
		return domain.EngineState{}, err
	} else if ok {
		if err := msgpack.Unmarshal(blob, &out.SleeveIndex); err != nil {
			return domain.EngineState{}, fmt.Errorf("decode sleeve index: %w", err)
		}
	}

	if blob, ok, err := s.getBlob(componentLifecycle); err != nil {
		return domain.EngineState{}, err
	} else if ok {
		if err := msgpack.Unmarshal(blob, &out.LifecycleState); err != nil {
			return domain.EngineState{}, fmt.Errorf("decode lifecycle state: %w", err)
		}
	}

	if blob, ok, err := s.getBlob(componentOptions); err != nil {
		return domain.EngineState{}, err
	} else if ok {
		if err := msgpack.Unmarshal(blob, &out.OptionSleeves); err != nil {
			return domain.EngineState{}, fmt.Errorf("decode option sleeves: %w", err)
		}
	}

	return out, nil
}

// Save persists every component of state as of the end of a tick. Each
// component is its own row so a reader only interested in, say, the
// lifecycle state doesn't need to decode the whole bundle.
func (s *Store) Save(st domain.EngineState) error {
	if err := s.putComponent(componentPortfolio, st.Portfolio); err != nil {
		return err
	}
	if err := s.putComponent(componentSleeves, st.SleeveIndex); err != nil {
		return err
	}
	if err := s.putComponent(componentLifecycle, st.LifecycleState); err != nil {
		return err
	}
	if err := s.putComponent(componentOptions, st.OptionSleeves); err != nil {
		return err
	}
	s.log.Debug().Msg("engine state saved")
	return nil
}

func (s *Store) getBlob(component string) ([]byte, bool, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT blob FROM engine_state WHERE component = ?", component).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", component, err)
	}
	return blob, true, nil
}

func (s *Store) putComponent(component string, v any) error {
	blob, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", component, err)
	}

	query := `
		INSERT INTO engine_state (component, blob, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(component) DO UPDATE SET
			blob = excluded.blob,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query, component, blob, time.Now().Unix()); err != nil {
		return fmt.Errorf("upsert %s: %w", component, err)
	}
	return nil
}
