package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"insidersim/internal/event"
)

// Schema for the run archive.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id                      TEXT PRIMARY KEY,
    created_at              INTEGER NOT NULL,
    seed                    INTEGER NOT NULL,
    warmup_steps            INTEGER NOT NULL,
    test_steps              INTEGER NOT NULL,
    confirmation_threshold  INTEGER NOT NULL,
    degrade_threshold       REAL NOT NULL,
    event_count             INTEGER NOT NULL,
    digest                  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);

CREATE TABLE IF NOT EXISTS events (
    run_id      TEXT NOT NULL REFERENCES runs(id),
    seq         INTEGER NOT NULL,
    step        INTEGER NOT NULL,
    event_type  TEXT NOT NULL,
    actor_id    INTEGER NOT NULL,
    resource    TEXT NOT NULL,
    action      TEXT NOT NULL,
    label       TEXT NOT NULL,
    scenario    TEXT,
    phase       TEXT,
    meta        TEXT,
    PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_events_run_step ON events(run_id, step);
`

// Store is the SQLite run archive.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and applies
// the schema.
func Open(path string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// SaveRun stores a run header and its full event log in one transaction.
// The events' slice order becomes the stored sequence order.
func (s *Store) SaveRun(run *Run, events []event.Event) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO runs (id, created_at, seed, warmup_steps, test_steps, confirmation_threshold, degrade_threshold, event_count, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt, run.Seed, run.WarmupSteps, run.TestSteps, run.ConfirmationThreshold, run.DegradeThreshold, run.EventCount, run.Digest,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO events (run_id, seq, step, event_type, actor_id, resource, action, label, scenario, phase, meta)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer stmt.Close()

	for i := range events {
		e := &events[i]
		meta, err := e.MetaJSON()
		if err != nil {
			return fmt.Errorf("encode event %d meta: %w", i, err)
		}
		var metaCol, scenarioCol, phaseCol any
		if meta != nil {
			metaCol = string(meta)
		}
		if e.Scenario != "" {
			scenarioCol = string(e.Scenario)
		}
		if e.Phase != "" {
			phaseCol = string(e.Phase)
		}
		if _, err := stmt.Exec(run.ID, i, e.Step, string(e.Type), e.ActorID, e.Resource, e.Action, string(e.Label), scenarioCol, phaseCol, metaCol); err != nil {
			return fmt.Errorf("insert event %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetRun retrieves a run header by ID. It returns nil without error when
// no run with that ID exists.
func (s *Store) GetRun(id string) (*Run, error) {
	var r Run
	err := s.db.QueryRow(`
		SELECT id, created_at, seed, warmup_steps, test_steps, confirmation_threshold, degrade_threshold, event_count, digest
		FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.CreatedAt, &r.Seed, &r.WarmupSteps, &r.TestSteps, &r.ConfirmationThreshold, &r.DegradeThreshold, &r.EventCount, &r.Digest)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return &r, nil
}

// ListRuns returns all stored run headers, newest first.
func (s *Store) ListRuns() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, seed, warmup_steps, test_steps, confirmation_threshold, degrade_threshold, event_count, digest
		FROM runs
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Seed, &r.WarmupSteps, &r.TestSteps, &r.ConfirmationThreshold, &r.DegradeThreshold, &r.EventCount, &r.Digest); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	return runs, nil
}

// LoadEvents reloads a run's event log in its original emission order,
// rebuilding the typed payloads from the stored meta column.
func (s *Store) LoadEvents(runID string) ([]event.Event, error) {
	rows, err := s.db.Query(`
		SELECT step, event_type, actor_id, resource, action, label, scenario, phase, meta
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []event.Event
	for rows.Next() {
		var e event.Event
		var typ, label string
		var scenario, phase, meta sql.NullString

		if err := rows.Scan(&e.Step, &typ, &e.ActorID, &e.Resource, &e.Action, &label, &scenario, &phase, &meta); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}

		e.Type = event.Type(typ)
		e.Label = event.Label(label)
		if scenario.Valid {
			e.Scenario = event.Scenario(scenario.String)
		}
		if phase.Valid {
			e.Phase = event.Phase(phase.String)
		}
		if meta.Valid {
			if err := e.ApplyMetaJSON([]byte(meta.String)); err != nil {
				return nil, fmt.Errorf("decode event meta: %w", err)
			}
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}
