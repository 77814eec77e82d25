package memory

import (
	"strings"
	"testing"
)

func TestFormat_GroupsBySourceAndFencesCode(t *testing.T) {
	result := QueryResult{
		Query:  "how does retry work",
		Intent: "code_lookup",
		Items: []MemoryItem{
			{Source: "repo", Type: "code_snippet", Relevance: 0.9, Summary: "retry helper", Content: "func Retry() {}", Metadata: map[string]interface{}{"language": "go"}},
			{Source: "chat", Type: "message", Relevance: 0.5, Summary: "discussion", Content: "we should add backoff"},
		},
	}

	out := Format(result)

	if !strings.Contains(out, "## Memory query: how does retry work") {
		t.Errorf("missing header: %s", out)
	}
	if !strings.Contains(out, "_intent: code_lookup_") {
		t.Errorf("missing intent line: %s", out)
	}
	if !strings.Contains(out, "### chat") || !strings.Contains(out, "### repo") {
		t.Errorf("missing source sections: %s", out)
	}
	if !strings.Contains(out, "```go\nfunc Retry() {}\n```") {
		t.Errorf("expected fenced code block: %s", out)
	}
	if strings.Contains(out, "```go\nwe should add backoff") {
		t.Errorf("prose item should not be fenced: %s", out)
	}
}

func TestFormat_NoResults(t *testing.T) {
	out := Format(QueryResult{Query: "anything"})
	if !strings.Contains(out, "No results.") {
		t.Errorf("expected no-results message, got %s", out)
	}
}

func TestFormat_ReportsErrors(t *testing.T) {
	result := QueryResult{
		Query:  "x",
		Items:  []MemoryItem{{Source: "yaml", Summary: "s", Relevance: 1}},
		Errors: map[string]string{"jira": "timeout"},
	}
	out := Format(result)
	if !strings.Contains(out, "### Errors") || !strings.Contains(out, "jira: timeout") {
		t.Errorf("expected errors section, got %s", out)
	}
}

func TestFormatCompact_RespectsSmallerBudget(t *testing.T) {
	var items []MemoryItem
	for i := 0; i < 50; i++ {
		items = append(items, MemoryItem{Source: "yaml", Type: "state", Relevance: 1, Summary: "item", Content: strings.Repeat("x", 200)})
	}
	result := QueryResult{Query: "q", Items: items}

	full := Format(result)
	compact := FormatCompact(result)

	if len(compact) >= len(full) {
		t.Errorf("expected compact output shorter than full: compact=%d full=%d", len(compact), len(full))
	}
}
