package yamladapter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devbackplane/backplane/pkg/memory"
)

func writeFixture(t *testing.T, dir, rel, content string) {
	t.Helper()
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestQuery_CurrentWork(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "state/current_work.yaml", `
active_issues:
  - key: AAP-1
    status: "In Progress"
    branch: "feat/aap-1"
`)

	a := New(dir)
	result, err := a.Query(context.Background(), "What am I working on?", memory.SourceFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
	item := result.Items[0]
	if !strings.Contains(item.Summary, "1 active issue") {
		t.Errorf("summary %q missing active issue count", item.Summary)
	}
	if !strings.Contains(item.Content, "AAP-1") || !strings.Contains(item.Content, "feat/aap-1") {
		t.Errorf("content %q missing issue details", item.Content)
	}
}

func TestQuery_NoCurrentWorkFile(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)
	result, err := a.Query(context.Background(), "what am I currently working on", memory.SourceFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 0 {
		t.Errorf("expected no items, got %d", len(result.Items))
	}
}

func TestSearch_SubstringMatch(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "notes/a.yaml", "topic: deployment pipeline retry logic\n")
	writeFixture(t, dir, "notes/b.yaml", "topic: unrelated\n")

	a := New(dir)
	result, err := a.Search(context.Background(), "retry logic", memory.SourceFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 match, got %d", len(result.Items))
	}
	if result.Items[0].Metadata["path"] != "notes/a.yaml" {
		t.Errorf("unexpected match path: %v", result.Items[0].Metadata["path"])
	}
}

func TestStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	a := New(dir)

	_, err := a.Store(context.Background(), "learned/patterns", map[string]interface{}{
		"learning": "retry with backoff",
		"category": "infra",
	}, memory.SourceFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "learned", "patterns.yaml"))
	if err != nil {
		t.Fatalf("expected stored file, got error: %v", err)
	}
	if !strings.Contains(string(raw), "retry with backoff") {
		t.Errorf("stored file missing content: %s", raw)
	}
}

func TestQueryByKey(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "state/current_work.yaml", `
active_issues:
  - key: AAP-1
    branch: feat/aap-1
`)

	a := New(dir)
	result, err := a.Query(context.Background(), "", memory.SourceFilter{Key: ".active_issues[0].branch"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
	if result.Items[0].Content != "feat/aap-1" {
		t.Errorf("expected feat/aap-1, got %q", result.Items[0].Content)
	}
}

func TestHealthCheck_MissingDirIsHealthy(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "does-not-exist"))
	status, err := a.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !status.Healthy {
		t.Errorf("expected healthy, got %+v", status)
	}
}
