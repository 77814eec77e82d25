// Package sprint implements the Sprint Automation Daemon: a durable,
// auditable state machine that turns a tracker's sprint backlog into
// autonomous (or chat-assisted) execution, one issue at a time (spec
// §2 components H-N).
package sprint

import "time"

// Priority is SprintIssue's ordinal priority field.
type Priority string

const (
	PriorityBlocker  Priority = "blocker"
	PriorityCritical Priority = "critical"
	PriorityMajor    Priority = "major"
	PriorityMinor    Priority = "minor"
	PriorityTrivial  Priority = "trivial"
)

// ApprovalStatus drives whether the executor will pick up an issue.
type ApprovalStatus string

const (
	ApprovalPending    ApprovalStatus = "pending"
	ApprovalApproved   ApprovalStatus = "approved"
	ApprovalInProgress ApprovalStatus = "in_progress"
	ApprovalBlocked    ApprovalStatus = "blocked"
	ApprovalCompleted  ApprovalStatus = "completed"
)

// TimelineEvent is one entry in a SprintIssue's bounded history.
type TimelineEvent struct {
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Action      string    `json:"action" yaml:"action"`
	Description string    `json:"description" yaml:"description"`
	ChatLink    string    `json:"chatLink,omitempty" yaml:"chatLink,omitempty"`
	JiraLink    string    `json:"jiraLink,omitempty" yaml:"jiraLink,omitempty"`
}

// MaxTimelineEvents bounds SprintIssue.Timeline; the oldest entry is
// trimmed when a new one would exceed it.
const MaxTimelineEvents = 50

// SprintIssue is one work item (spec §3).
type SprintIssue struct {
	Key               string          `json:"key" yaml:"key"`
	Summary           string          `json:"summary" yaml:"summary"`
	StoryPoints       int             `json:"storyPoints" yaml:"storyPoints"`
	Priority          Priority        `json:"priority" yaml:"priority"`
	JiraStatus        string          `json:"jiraStatus" yaml:"jiraStatus"`
	IssueType         string          `json:"issueType" yaml:"issueType"`
	Assignee          string          `json:"assignee" yaml:"assignee"`
	ApprovalStatus    ApprovalStatus  `json:"approvalStatus" yaml:"approvalStatus"`
	WaitingReason     string          `json:"waitingReason,omitempty" yaml:"waitingReason,omitempty"`
	ChatID            string          `json:"chatId,omitempty" yaml:"chatId,omitempty"`
	Timeline          []TimelineEvent `json:"timeline" yaml:"timeline"`
	Created           time.Time       `json:"created" yaml:"created"`
	PriorityReasoning []string        `json:"priorityReasoning,omitempty" yaml:"priorityReasoning,omitempty"`

	// Rank is assigned by the prioritizer; not persisted input, but kept
	// on the struct so callers can render it without recomputation.
	Rank int `json:"rank,omitempty" yaml:"-"`
}

// AddTimelineEvent appends ev, trimming the oldest entry if the
// bounded capacity would otherwise be exceeded (spec §3 SprintIssue
// invariant).
func (i *SprintIssue) AddTimelineEvent(ev TimelineEvent) {
	i.Timeline = append(i.Timeline, ev)
	if len(i.Timeline) > MaxTimelineEvents {
		i.Timeline = i.Timeline[len(i.Timeline)-MaxTimelineEvents:]
	}
}

// SprintMeta describes one sprint's identity and window.
type SprintMeta struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	StartDate   time.Time `json:"startDate" yaml:"startDate"`
	EndDate     time.Time `json:"endDate" yaml:"endDate"`
	TotalPoints int       `json:"totalPoints" yaml:"totalPoints"`
}

// SprintState is the daemon-owned document (spec §3, §4.L, §6).
type SprintState struct {
	CurrentSprint    *SprintMeta   `json:"currentSprint" yaml:"currentSprint"`
	NextSprint       *SprintMeta   `json:"nextSprint,omitempty" yaml:"nextSprint,omitempty"`
	Issues           []SprintIssue `json:"issues" yaml:"issues"`
	AutomaticMode    bool          `json:"automaticMode" yaml:"automaticMode"`
	ManuallyStarted  bool          `json:"manuallyStarted" yaml:"manuallyStarted"`
	BackgroundTasks  bool          `json:"backgroundTasks" yaml:"backgroundTasks"`
	ProcessingIssue  string        `json:"processingIssue,omitempty" yaml:"processingIssue,omitempty"`
	LastUpdated      time.Time     `json:"lastUpdated" yaml:"lastUpdated"`
	LastTrackerSync  time.Time     `json:"lastTrackerSync,omitempty" yaml:"lastTrackerSync,omitempty"`
	LastReviewCheck  time.Time     `json:"lastReviewCheck,omitempty" yaml:"lastReviewCheck,omitempty"`
}

// FindIssue returns a pointer into s.Issues for key, or nil.
func (s *SprintState) FindIssue(key string) *SprintIssue {
	for i := range s.Issues {
		if s.Issues[i].Key == key {
			return &s.Issues[i]
		}
	}
	return nil
}

// WorkLogStatus is WorkLog.Status.
type WorkLogStatus string

const (
	WorkLogInProgress WorkLogStatus = "in_progress"
	WorkLogCompleted  WorkLogStatus = "completed"
	WorkLogBlocked    WorkLogStatus = "blocked"
	WorkLogFailed     WorkLogStatus = "failed"
	WorkLogTimeout    WorkLogStatus = "timeout"
)

// WorkLogAction is one append-only entry in a WorkLog (spec §3).
type WorkLogAction struct {
	Timestamp time.Time              `json:"timestamp" yaml:"timestamp"`
	Type      string                 `json:"type" yaml:"type"`
	Details   string                 `json:"details" yaml:"details"`
	Data      map[string]interface{} `json:"data,omitempty" yaml:"data,omitempty"`
}

// WorkLogOutcome captures everything the background agent's output is
// parsed into (spec §4.J).
type WorkLogOutcome struct {
	Commits         []string `json:"commits,omitempty" yaml:"commits,omitempty"`
	MergeRequests   []string `json:"mergeRequests,omitempty" yaml:"mergeRequests,omitempty"`
	FilesChanged    []string `json:"filesChanged,omitempty" yaml:"filesChanged,omitempty"`
	BranchesCreated []string `json:"branchesCreated,omitempty" yaml:"branchesCreated,omitempty"`
}

// WorkLog is one issue's per-run execution log (spec §3, §4.K).
type WorkLog struct {
	IssueKey            string          `json:"issueKey" yaml:"issueKey"`
	Summary             string          `json:"summary" yaml:"summary"`
	IssueType           string          `json:"issueType" yaml:"issueType"`
	Started             time.Time       `json:"started" yaml:"started"`
	Completed           *time.Time      `json:"completed,omitempty" yaml:"completed,omitempty"`
	Status              WorkLogStatus   `json:"status" yaml:"status"`
	Actions             []WorkLogAction `json:"actions" yaml:"actions"`
	Outcome             WorkLogOutcome  `json:"outcome" yaml:"outcome"`
	ContinuationPrompt  string          `json:"continuationPrompt,omitempty" yaml:"continuationPrompt,omitempty"`
}

// AppendAction records one action (spec §4.K log_action).
func (w *WorkLog) AppendAction(actionType, details string, data map[string]interface{}) {
	w.Actions = append(w.Actions, WorkLogAction{
		Timestamp: time.Now(), Type: actionType, Details: details, Data: data,
	})
}
