package sprint

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStateDoc(t *testing.T, root, body string) {
	t.Helper()
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(root, "sprint_state_v2.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
}

func TestStateStore_Load_MigratesLegacyBotEnabledWithoutBypassingWorkingHours(t *testing.T) {
	root := t.TempDir()
	writeStateDoc(t, root, `{"issues": [], "botEnabled": true}`)

	state, err := NewStateStore(root).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !state.AutomaticMode {
		t.Fatal("expected automaticMode migrated from botEnabled")
	}
	if state.ManuallyStarted {
		t.Fatal("manuallyStarted must never inherit botEnabled's value")
	}
}

func TestStateStore_Load_SkipsMigrationWhenNewFieldsPresent(t *testing.T) {
	root := t.TempDir()
	writeStateDoc(t, root, `{"issues": [], "botEnabled": true, "automaticMode": false, "manuallyStarted": true}`)

	state, err := NewStateStore(root).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state.AutomaticMode {
		t.Fatal("explicit automaticMode:false must not be overwritten by legacy botEnabled")
	}
	if !state.ManuallyStarted {
		t.Fatal("explicit manuallyStarted:true must survive when new fields are already present")
	}
}

func TestStateStore_Load_ReturnsNilForMissingDocument(t *testing.T) {
	root := t.TempDir()
	state, err := NewStateStore(root).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state for a missing document, got %+v", state)
	}
}
