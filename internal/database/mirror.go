// Package database backs the read-only Postgres mirror of SprintState
// (a SPEC_FULL supplement): a separate reporting dashboard can query
// sprint history without opening the daemon's IPC bus. Writes here are
// best-effort and never a dependency of the daemon's own correctness —
// the local state file (pkg/sprint.StateStore) remains the single
// writer of record (spec §5).
package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/devbackplane/backplane/pkg/sprint"
)

// Mirror writes best-effort SprintState snapshots to Postgres.
type Mirror struct {
	db *sqlx.DB
}

// Open connects via lib/pq and ensures the mirror table exists.
func Open(dsn string) (*Mirror, error) {
	raw, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db := sqlx.NewDb(raw, "postgres")
	if err := db.Ping(); err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, err
	}
	return &Mirror{db: db}, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS sprint_state_mirror (
    sprint_id    TEXT PRIMARY KEY,
    sprint_name  TEXT NOT NULL,
    issue_count  INT NOT NULL,
    state_json   JSONB NOT NULL,
    recorded_at  TIMESTAMPTZ NOT NULL
)`

// Write upserts one snapshot of state, keyed on the current sprint's
// ID. Errors are returned for the caller to log; they must never block
// or roll back the local state write that triggered this mirror.
func (m *Mirror) Write(state *sprint.SprintState) error {
	if state == nil || state.CurrentSprint == nil {
		return nil
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = m.db.Exec(`
		INSERT INTO sprint_state_mirror (sprint_id, sprint_name, issue_count, state_json, recorded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sprint_id) DO UPDATE SET
			sprint_name = EXCLUDED.sprint_name, issue_count = EXCLUDED.issue_count,
			state_json = EXCLUDED.state_json, recorded_at = EXCLUDED.recorded_at`,
		state.CurrentSprint.ID, state.CurrentSprint.Name, len(state.Issues), payload, time.Now())
	return err
}

// Close releases the underlying connection pool.
func (m *Mirror) Close() error {
	return m.db.Close()
}
