package sprint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	sharederrors "github.com/devbackplane/backplane/pkg/shared/errors"
)

// StateStore owns the single SprintState document at
// state/sprint_state_v2.json (spec §6). It is the daemon's exclusive
// writer; everything else reads through IPC snapshots (spec §5).
type StateStore struct {
	path string
	mu   sync.Mutex
}

func NewStateStore(stateRoot string) *StateStore {
	return &StateStore{path: filepath.Join(stateRoot, "sprint_state_v2.json")}
}

// legacyDocument captures the one rename migration spec §6 requires:
// a boolean botEnabled field predates the automatic_mode/
// manually_started split.
type legacyDocument struct {
	SprintState
	BotEnabled *bool `json:"botEnabled,omitempty"`
}

// Load reads the state file, tolerating absence (returns nil, nil)
// and migrating the legacy botEnabled field on the way in.
func (s *StateStore) Load() (*SprintState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("load sprint state", "state_store", s.path, err)
	}

	var doc legacyDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, sharederrors.FailedToWithDetails("parse sprint state", "state_store", s.path, err)
	}

	// Only migrate when the new fields are genuinely absent from the
	// document: a document that already carries automaticMode/
	// manuallyStarted (even alongside a stale botEnabled left over from
	// a partial upgrade) must not have those values clobbered.
	var probe struct {
		AutomaticMode   json.RawMessage `json:"automaticMode"`
		ManuallyStarted json.RawMessage `json:"manuallyStarted"`
	}
	_ = json.Unmarshal(raw, &probe)
	newFieldsPresent := probe.AutomaticMode != nil || probe.ManuallyStarted != nil

	state := doc.SprintState
	if doc.BotEnabled != nil && !newFieldsPresent {
		state.AutomaticMode = *doc.BotEnabled
		// manuallyStarted never inherits the legacy flag: a migrated
		// botEnabled:true daemon must still pass the working-hours
		// gate rather than bypass it (spec §4.L, §9).
		state.ManuallyStarted = false
	}
	return &state, nil
}

// Save atomically persists state (write-temp + rename, unlink temp on
// failure; spec §4.L, §6). The in-memory caller's state is untouched
// until the write succeeds (spec §7 PersistenceError contract).
func (s *StateStore) Save(state *SprintState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return sharederrors.FailedToWithDetails("create state directory", "state_store", filepath.Dir(s.path), err)
	}
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return sharederrors.FailedToWithDetails("marshal sprint state", "state_store", s.path, err)
	}
	if err := atomicWrite(s.path, payload); err != nil {
		return &sharederrors.PersistenceError{Path: s.path, Cause: err}
	}
	return nil
}
