package sprint

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devbackplane/backplane/pkg/sprint/policy"
	"github.com/devbackplane/backplane/pkg/sprint/trackerclient"
)

// Planner turns tracker state into a local SprintState, preserving the
// local overlay fields across refreshes (spec §4.I).
type Planner struct {
	tracker          trackerclient.Client
	store            *StateStore
	project          string
	component        string
	localUser        string
	weights          PrioritizerWeights
	actionableSet    []string
	actionablePolicy *policy.Engine
	log              *logrus.Logger
}

func NewPlanner(tracker trackerclient.Client, store *StateStore, project, component, localUser string, weights PrioritizerWeights, actionableSet []string, actionablePolicy *policy.Engine, log *logrus.Logger) *Planner {
	if log == nil {
		log = logrus.New()
	}
	if len(actionableSet) == 0 {
		actionableSet = DefaultActionableStatuses
	}
	return &Planner{
		tracker: tracker, store: store, project: project, component: component,
		localUser: localUser, weights: weights, actionableSet: actionableSet,
		actionablePolicy: actionablePolicy, log: log,
	}
}

// RefreshFromTracker implements spec §4.I's six-step algorithm.
func (p *Planner) RefreshFromTracker(ctx context.Context) error {
	sprintMeta, err := p.tracker.FetchActiveSprint(ctx, p.project, p.component)
	if err != nil {
		return err
	}

	trackerIssues, err := p.tracker.FetchSprintIssues(ctx, sprintMeta.ID)
	if err != nil {
		return err
	}

	mine := filterByAssignee(trackerIssues, p.localUser)

	issues := make([]SprintIssue, len(mine))
	for i, ti := range mine {
		issues[i] = fromTrackerIssue(ti)
	}
	Prioritize(issues, p.weights, time.Now())

	existing, err := p.store.Load()
	if err != nil {
		return err
	}

	merged := make([]SprintIssue, len(issues))
	for i, issue := range issues {
		if existing != nil {
			if prior := existing.FindIssue(issue.Key); prior != nil {
				issue.ApprovalStatus = prior.ApprovalStatus
				issue.WaitingReason = prior.WaitingReason
				issue.ChatID = prior.ChatID
				issue.Timeline = prior.Timeline
				merged[i] = issue
				continue
			}
		}
		issue.ApprovalStatus = ApprovalPending
		merged[i] = issue
	}

	newState := &SprintState{
		CurrentSprint: &SprintMeta{ID: sprintMeta.ID, Name: sprintMeta.Name, StartDate: sprintMeta.StartDate, EndDate: sprintMeta.EndDate},
		Issues:        merged,
		LastUpdated:   time.Now(),
	}
	if existing != nil {
		newState.AutomaticMode = existing.AutomaticMode
		newState.ManuallyStarted = existing.ManuallyStarted
		newState.BackgroundTasks = existing.BackgroundTasks
		newState.ProcessingIssue = existing.ProcessingIssue
	}
	newState.LastTrackerSync = time.Now()

	return p.store.Save(newState)
}

// IsActionable consults the configured Rego policy when one is loaded,
// falling back to the pure Go default-set check otherwise (spec §4.I
// is_actionable, enrichment: operator-overridable via opa_policy_path).
func (p *Planner) IsActionable(issue SprintIssue) bool {
	if p.actionablePolicy != nil {
		decision, err := p.actionablePolicy.Eval(context.Background(), map[string]interface{}{
			"status":         issue.JiraStatus,
			"approval":       string(issue.ApprovalStatus),
			"waiting_reason": issue.WaitingReason,
		})
		if err == nil {
			return decision
		}
		p.log.WithError(err).Warn("actionable policy evaluation failed, falling back to default set")
	}
	return IsActionable(issue, p.actionableSet)
}

// filterByAssignee matches localUser against the tracker's single
// assignee string. Spec §4.I asks for a username-or-full-name match;
// trackerclient.Issue only carries one Assignee field, so that's the
// one value available to compare here.
func filterByAssignee(issues []trackerclient.Issue, localUser string) []trackerclient.Issue {
	needle := strings.ToLower(localUser)
	var out []trackerclient.Issue
	for _, issue := range issues {
		if strings.ToLower(issue.Assignee) == needle {
			out = append(out, issue)
		}
	}
	return out
}

func fromTrackerIssue(ti trackerclient.Issue) SprintIssue {
	return SprintIssue{
		Key:         ti.Key,
		Summary:     ti.Summary,
		StoryPoints: ti.StoryPoints,
		Priority:    Priority(strings.ToLower(ti.Priority)),
		JiraStatus:  ti.Status,
		IssueType:   ti.IssueType,
		Assignee:    ti.Assignee,
		Created:     ti.Created,
	}
}
