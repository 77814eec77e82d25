package sprint

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/devbackplane/backplane/pkg/sprint/agent"
	"github.com/devbackplane/backplane/pkg/sprint/policy"
	"github.com/devbackplane/backplane/pkg/sprint/trackerclient"
)

// ReviewChecker runs periodically over in-review issues: merge
// readiness, hold-comment detection, auto-merge (spec §4.N).
type ReviewChecker struct {
	store          *StateStore
	tracker        trackerclient.Client
	invoker        *agent.Invoker
	reviewStatuses []string
	mergePolicy    *policy.Engine
	log            *zap.Logger

	statusTimeout time.Duration
	mergeTimeout  time.Duration
}

func NewReviewChecker(store *StateStore, tracker trackerclient.Client, invoker *agent.Invoker, reviewStatuses []string, mergePolicy *policy.Engine, log *zap.Logger) *ReviewChecker {
	if log == nil {
		log = zap.NewNop()
	}
	if len(reviewStatuses) == 0 {
		reviewStatuses = []string{"in review"}
	}
	return &ReviewChecker{
		store: store, tracker: tracker, invoker: invoker, reviewStatuses: reviewStatuses,
		mergePolicy: mergePolicy, log: log,
		statusTimeout: 120 * time.Second, mergeTimeout: 180 * time.Second,
	}
}

// Check implements spec §4.N: iterate issues whose jira status is in
// the configured review set and advance each through the merge-check
// protocol.
func (r *ReviewChecker) Check(ctx context.Context) error {
	state, err := r.store.Load()
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}

	changed := false
	for i := range state.Issues {
		issue := &state.Issues[i]
		if !r.inReviewSet(issue.JiraStatus) {
			continue
		}
		if r.checkOne(ctx, issue) {
			changed = true
		}
	}

	if changed {
		state.LastReviewCheck = time.Now()
		return r.store.Save(state)
	}
	return nil
}

func (r *ReviewChecker) inReviewSet(status string) bool {
	lower := strings.ToLower(status)
	for _, s := range r.reviewStatuses {
		if strings.ToLower(s) == lower {
			return true
		}
	}
	return false
}

// checkOne returns true if it mutated issue.
func (r *ReviewChecker) checkOne(ctx context.Context, issue *SprintIssue) bool {
	prompt := reviewStatusPrompt(issue.Key)
	result, err := r.invoker.Invoke(ctx, prompt, r.statusTimeout)
	if err != nil {
		r.log.Warn("review status query failed", zap.String("issue_key", issue.Key), zap.Error(err))
		return false
	}
	if result.TimedOut {
		r.log.Info("review status query timed out, skipping", zap.String("issue_key", issue.Key))
		return false
	}

	marker, mrID := ParseReviewMarker(result.Stdout)
	switch marker {
	case ReviewReadyToMerge:
		if mrID == "" {
			r.addTimeline(issue, "review_check", "ready to merge but no MR id reported")
			return true
		}
		if !r.mergeAllowed(ctx, issue, mrID) {
			r.addTimeline(issue, "review_check", "merge withheld by policy")
			return true
		}
		return r.merge(ctx, issue, mrID)

	case ReviewApprovedWithHold:
		reason := result.Stdout
		if !ContainsHoldPhrase(reason) {
			reason = "hold noted by reviewer"
		}
		issue.AddTimelineEvent(TimelineEvent{Timestamp: time.Now(), Action: "approved_with_hold", Description: reason})
		return true

	case ReviewNeedsApproval, ReviewCIFailing, ReviewChangesRequested, ReviewNoMR:
		r.addTimeline(issue, "review_check", string(marker))
		return true

	default:
		return false
	}
}

// mergeAllowed consults the configured Rego merge-gate policy when one
// is loaded; with no policy configured, a ready-to-merge marker is
// sufficient on its own (spec §4.N default).
func (r *ReviewChecker) mergeAllowed(ctx context.Context, issue *SprintIssue, mrID string) bool {
	if r.mergePolicy == nil {
		return true
	}
	decision, err := r.mergePolicy.Eval(ctx, map[string]interface{}{
		"issue_key": issue.Key,
		"mr_id":     mrID,
		"status":    issue.JiraStatus,
	})
	if err != nil {
		r.log.Warn("merge policy evaluation failed, denying merge", zap.String("issue_key", issue.Key), zap.Error(err))
		return false
	}
	return decision
}

func (r *ReviewChecker) merge(ctx context.Context, issue *SprintIssue, mrID string) bool {
	prompt := reviewMergePrompt(issue.Key, mrID)
	result, err := r.invoker.Invoke(ctx, prompt, r.mergeTimeout)
	if err != nil {
		r.log.Warn("merge invocation failed", zap.String("issue_key", issue.Key), zap.Error(err))
		return false
	}

	mergeResult := ParseMergeResult(result.Stdout)
	if mergeResult != MergeSuccess {
		r.addTimeline(issue, "merge_attempt", string(mergeResult))
		return true
	}

	issue.JiraStatus = "Done"
	issue.ApprovalStatus = ApprovalCompleted
	issue.AddTimelineEvent(TimelineEvent{Timestamp: time.Now(), Action: "merged", Description: "merge request " + mrID + " merged and issue closed"})
	return true
}

func (r *ReviewChecker) addTimeline(issue *SprintIssue, action, description string) {
	issue.AddTimelineEvent(TimelineEvent{Timestamp: time.Now(), Action: action, Description: description})
}

func reviewStatusPrompt(issueKey string) string {
	return "Look up the merge request for issue " + issueKey +
		" and reply with exactly one status marker: [READY_TO_MERGE], [APPROVED_WITH_HOLD], " +
		"[NEEDS_APPROVAL], [CI_FAILING], [CHANGES_REQUESTED], or [NO_MR]. " +
		"If applicable, include [MR_ID: <n>] and a brief reason."
}

func reviewMergePrompt(issueKey, mrID string) string {
	return "Merge merge request " + mrID + " for issue " + issueKey +
		" and close the tracker issue. Reply with exactly one marker: " +
		"[MERGE_RESULT: SUCCESS], [MERGE_RESULT: MERGE_FAILED], or [MERGE_RESULT: CLOSE_FAILED]."
}
