package sprint

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	sharederrors "github.com/devbackplane/backplane/pkg/shared/errors"
)

// History owns per-issue WorkLog files under <stateRoot>/sprint_work
// (spec §4.K, §6).
type History struct {
	root string
}

func NewHistory(stateRoot string) *History {
	return &History{root: stateRoot}
}

func (h *History) workLogPath(issueKey string) string {
	return filepath.Join(h.root, "sprint_work", issueKey+".yaml")
}

// GetWorkLogPath exposes the resolved path for IPC/UI consumers (spec
// §4.K get_work_log_path).
func (h *History) GetWorkLogPath(issueKey string) string {
	return h.workLogPath(issueKey)
}

// Init creates a fresh in-progress WorkLog seeded from issue (spec
// §4.K init).
func (h *History) Init(issue SprintIssue) *WorkLog {
	return &WorkLog{
		IssueKey:  issue.Key,
		Summary:   issue.Summary,
		IssueType: issue.IssueType,
		Started:   time.Now(),
		Status:    WorkLogInProgress,
	}
}

// Load reads issueKey's WorkLog, returning (nil, nil) if absent.
func (h *History) Load(issueKey string) (*WorkLog, error) {
	raw, err := os.ReadFile(h.workLogPath(issueKey))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("load work log", "history", issueKey, err)
	}
	var log WorkLog
	if err := yaml.Unmarshal(raw, &log); err != nil {
		return nil, sharederrors.FailedToWithDetails("parse work log", "history", issueKey, err)
	}
	return &log, nil
}

// Save atomically persists log (spec §4.K).
func (h *History) Save(issueKey string, log *WorkLog) error {
	dir := filepath.Join(h.root, "sprint_work")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return sharederrors.FailedToWithDetails("create work log directory", "history", dir, err)
	}
	payload, err := yaml.Marshal(log)
	if err != nil {
		return sharederrors.FailedToWithDetails("marshal work log", "history", issueKey, err)
	}
	path := h.workLogPath(issueKey)
	if err := atomicWrite(path, payload); err != nil {
		return &sharederrors.PersistenceError{Path: path, Cause: err}
	}
	return nil
}

// LogAction loads, appends one action, and saves in one call (spec
// §4.K log_action).
func (h *History) LogAction(issueKey, actionType, details string, data map[string]interface{}) error {
	log, err := h.Load(issueKey)
	if err != nil {
		return err
	}
	if log == nil {
		return sharederrors.FailedToWithDetails("log action", "history", issueKey, fmt.Errorf("no work log exists"))
	}
	log.AppendAction(actionType, details, data)
	return h.Save(issueKey, log)
}

// BuildContinuationPrompt renders a Markdown context document for
// later interactive resumption: identity, status, outcome artifacts,
// last <=10 actions, suggested next steps, files to review (spec
// §4.K).
func (h *History) BuildContinuationPrompt(issueKey string, log *WorkLog) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Continuation: %s\n\n", issueKey)
	fmt.Fprintf(&b, "- Summary: %s\n", log.Summary)
	fmt.Fprintf(&b, "- Type: %s\n", log.IssueType)
	fmt.Fprintf(&b, "- Status: %s\n", log.Status)
	if log.Completed != nil {
		fmt.Fprintf(&b, "- Completed: %s\n", log.Completed.Format(time.RFC3339))
	}
	b.WriteString("\n### Outcome so far\n")
	writeOutcomeList(&b, "Commits", log.Outcome.Commits)
	writeOutcomeList(&b, "Merge requests", log.Outcome.MergeRequests)
	writeOutcomeList(&b, "Files changed", log.Outcome.FilesChanged)
	writeOutcomeList(&b, "Branches created", log.Outcome.BranchesCreated)

	b.WriteString("\n### Recent actions\n")
	actions := log.Actions
	if len(actions) > 10 {
		actions = actions[len(actions)-10:]
	}
	for _, a := range actions {
		fmt.Fprintf(&b, "- [%s] %s: %s\n", a.Timestamp.Format(time.RFC3339), a.Type, a.Details)
	}

	b.WriteString("\n### Suggested next steps\n")
	switch log.Status {
	case WorkLogBlocked:
		b.WriteString("- Resolve the blocker noted above, then resume.\n")
	case WorkLogTimeout:
		b.WriteString("- Work was truncated by timeout; review partial changes before continuing.\n")
	case WorkLogFailed:
		b.WriteString("- Investigate the failure reason, then restart the issue.\n")
	default:
		b.WriteString("- Review the outcome artifacts above and continue from the last action.\n")
	}

	if len(log.Outcome.FilesChanged) > 0 {
		b.WriteString("\n### Files to review\n")
		for _, f := range log.Outcome.FilesChanged {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	return b.String()
}

func writeOutcomeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "- %s: %s\n", label, strings.Join(items, ", "))
}
