package sprint

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/devbackplane/backplane/pkg/sprint/agent"
	"github.com/devbackplane/backplane/pkg/sprint/chatpeer"
	"github.com/devbackplane/backplane/pkg/sprint/trackerclient"
)

// ProcessResult is process_next's return shape (spec §4.J).
type ProcessResult struct {
	Processed bool
	Waiting   bool
	IssueKey  string
	Reason    string
}

// Executor runs one issue at a time through the workflow state
// machine (spec §4.J).
type Executor struct {
	store     *StateStore
	history   *History
	stateRoot string
	tracker   trackerclient.Client
	chat      chatpeer.Peer
	invoker   *agent.Invoker
	planner   *Planner
	log       *zap.Logger

	backgroundDeadline time.Duration
}

func NewExecutor(store *StateStore, history *History, stateRoot string, tracker trackerclient.Client, chat chatpeer.Peer, invoker *agent.Invoker, planner *Planner, backgroundDeadline time.Duration, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	if backgroundDeadline <= 0 {
		backgroundDeadline = 1800 * time.Second
	}
	return &Executor{
		store: store, history: history, stateRoot: stateRoot, tracker: tracker,
		chat: chat, invoker: invoker, planner: planner, backgroundDeadline: backgroundDeadline, log: log,
	}
}

// ProcessNext implements spec §4.J's entry point. onProcessed is
// called only when a background run completes the issue; blocked,
// failed, timed-out and foreground runs do not call it.
func (e *Executor) ProcessNext(ctx context.Context, onProcessed func(SprintIssue)) (ProcessResult, error) {
	state, err := e.store.Load()
	if err != nil {
		return ProcessResult{}, err
	}
	if state == nil {
		return ProcessResult{}, nil
	}

	var target *SprintIssue
	for i := range state.Issues {
		issue := &state.Issues[i]
		if issue.ApprovalStatus == ApprovalApproved && e.planner.IsActionable(*issue) {
			target = issue
			break
		}
	}
	if target == nil {
		return ProcessResult{}, nil
	}

	return e.run(ctx, state, target, state.BackgroundTasks, "", onProcessed)
}

// ForceStart implements the force-start IPC path (spec §4.J): bypasses
// discovery, enters the state machine from loading, and logs a
// force_start decision reason.
func (e *Executor) ForceStart(ctx context.Context, issueKey string, background bool, onProcessed func(SprintIssue)) (ProcessResult, error) {
	state, err := e.store.Load()
	if err != nil {
		return ProcessResult{}, err
	}
	if state == nil {
		return ProcessResult{}, nil
	}
	target := state.FindIssue(issueKey)
	if target == nil {
		return ProcessResult{Reason: "issue not found"}, nil
	}
	return e.run(ctx, state, target, background, "force_start", onProcessed)
}

// Abort implements the abort IPC path (spec §4.J): sets the issue
// blocked with a fixed reason and clears processing_issue if it
// matches. It never touches an in-flight background process.
func (e *Executor) Abort(issueKey string) error {
	state, err := e.store.Load()
	if err != nil {
		return err
	}
	if state == nil {
		return nil
	}
	issue := state.FindIssue(issueKey)
	if issue == nil {
		return nil
	}
	issue.ApprovalStatus = ApprovalBlocked
	issue.WaitingReason = "user took control"
	if state.ProcessingIssue == issueKey {
		state.ProcessingIssue = ""
	}
	state.LastUpdated = time.Now()
	return e.store.Save(state)
}

func (e *Executor) run(ctx context.Context, state *SprintState, issue *SprintIssue, background bool, decisionReason string, onProcessed func(SprintIssue)) (ProcessResult, error) {
	mode := ExecutionForeground
	if background {
		mode = ExecutionBackground
	}

	tracer, err := NewTracer(e.stateRoot, issue.Key, WorkflowCodeChange, mode, e.log)
	if err != nil {
		return ProcessResult{}, err
	}

	tracer.Transition(StateLoading, "process_next", nil)
	if decisionReason != "" {
		tracer.LogStep("force_start", nil, StepSuccess, nil, "force_start", decisionReason)
	}
	tracer.Transition(StateAnalyzing, "process_next", nil)
	tracer.Transition(StateClassifying, "process_next", nil)
	tracer.Transition(StateCheckingActionable, "process_next", nil)

	var result ProcessResult
	if mode == ExecutionForeground {
		result, err = e.runForeground(ctx, state, issue, tracer)
	} else {
		result, err = e.runBackground(ctx, state, issue, tracer, onProcessed)
	}
	if saveErr := tracer.Save(); saveErr != nil {
		e.log.Error("failed to persist execution trace", zap.Error(saveErr), zap.String("issue_key", issue.Key))
	}
	return result, err
}

func (e *Executor) runForeground(ctx context.Context, state *SprintState, issue *SprintIssue, tracer *Tracer) (ProcessResult, error) {
	pingCtx, cancel := context.WithTimeout(ctx, chatpeer.PingTimeout)
	defer cancel()
	if !e.chat.Ping(pingCtx) {
		return ProcessResult{Waiting: true, IssueKey: issue.Key, Reason: "chat peer unavailable"}, nil
	}

	tracer.Transition(StateTransitioningJira, "foreground", nil)
	if err := e.tracker.SetIssueStatus(ctx, issue.Key, "In Progress"); err != nil {
		tracer.MarkFailed(err.Error())
		return ProcessResult{}, err
	}

	issue.ApprovalStatus = ApprovalInProgress
	issue.JiraStatus = "In Progress"
	state.ProcessingIssue = issue.Key
	issue.AddTimelineEvent(TimelineEvent{Timestamp: time.Now(), Action: "transitioning_jira", Description: "moved to In Progress"})

	tracer.Transition(StateStartingWork, "foreground", nil)
	tracer.Transition(StateBuildingPrompt, "foreground", nil)
	prompt, err := BuildWorkPrompt(*issue)
	if err != nil {
		tracer.MarkFailed(err.Error())
		return ProcessResult{}, err
	}

	tracer.Transition(StateLaunchingChat, "foreground", nil)
	launch, err := e.chat.LaunchIssueChat(ctx, issue.Key, issue.Summary, prompt, true)
	if err != nil || !launch.Success {
		tracer.MarkFailed("failed to launch chat session")
		return ProcessResult{}, err
	}
	issue.ChatID = launch.ChatID

	tracer.Transition(StateImplementing, "foreground", map[string]interface{}{"chat_id": launch.ChatID})

	if err := e.store.Save(state); err != nil {
		return ProcessResult{}, err
	}
	return ProcessResult{Processed: true, IssueKey: issue.Key}, nil
}

func (e *Executor) runBackground(ctx context.Context, state *SprintState, issue *SprintIssue, tracer *Tracer, onProcessed func(SprintIssue)) (ProcessResult, error) {
	workLog := e.history.Init(*issue)
	if err := e.history.Save(issue.Key, workLog); err != nil {
		return ProcessResult{}, err
	}

	tracer.Transition(StateTransitioningJira, "background", nil)
	if err := e.tracker.SetIssueStatus(ctx, issue.Key, "In Progress"); err != nil {
		tracer.MarkFailed(err.Error())
		return ProcessResult{}, err
	}
	state.ProcessingIssue = issue.Key

	prompt, err := BuildWorkPrompt(*issue)
	if err != nil {
		tracer.MarkFailed(err.Error())
		return ProcessResult{}, err
	}

	invokeResult, err := e.invoker.Invoke(ctx, prompt, e.backgroundDeadline)
	if err != nil {
		return e.finishBackgroundFailure(state, issue, tracer, workLog, err.Error())
	}

	if invokeResult.TimedOut {
		workLog.Status = WorkLogTimeout
		completed := time.Now()
		workLog.Completed = &completed
		workLog.ContinuationPrompt = e.history.BuildContinuationPrompt(issue.Key, workLog)
		tracer.MarkFailed("background agent exceeded wall-clock deadline")
		state.ProcessingIssue = ""
		if err := e.history.Save(issue.Key, workLog); err != nil {
			return ProcessResult{}, err
		}
		if err := e.store.Save(state); err != nil {
			return ProcessResult{}, err
		}
		return ProcessResult{Processed: true, IssueKey: issue.Key, Reason: "timeout"}, nil
	}

	outcome := ExtractOutcome(invokeResult.Stdout)
	workLog.Outcome = outcome
	status, detail := ParseStatusMarker(invokeResult.Stdout)

	switch {
	case status == BotStatusCompleted || (status == BotStatusNone && invokeResult.ExitCode == 0):
		tracer.Transition(StateCreatingMR, "background", nil)
		tracer.Transition(StateAwaitingReview, "background", nil)
		if err := e.tracker.SetIssueStatus(ctx, issue.Key, "In Review"); err != nil {
			return ProcessResult{}, err
		}
		issue.ApprovalStatus = ApprovalCompleted
		issue.JiraStatus = "In Review"
		state.ProcessingIssue = ""
		workLog.Status = WorkLogCompleted
		completed := time.Now()
		workLog.Completed = &completed
		tracer.MarkCompleted("background execution completed")
		if onProcessed != nil {
			onProcessed(*issue)
		}

	case status == BotStatusBlocked:
		reason := detail
		if reason == "" {
			reason = "agent reported blocked"
		}
		return e.finishBackgroundFailure(state, issue, tracer, workLog, reason)

	default: // FAILED, or nonzero exit with no marker
		reason := detail
		if reason == "" {
			reason = invokeResult.Stderr
		}
		return e.finishBackgroundFailure(state, issue, tracer, workLog, reason)
	}

	if err := e.history.Save(issue.Key, workLog); err != nil {
		return ProcessResult{}, err
	}
	if err := e.store.Save(state); err != nil {
		return ProcessResult{}, err
	}
	return ProcessResult{Processed: true, IssueKey: issue.Key}, nil
}

func (e *Executor) finishBackgroundFailure(state *SprintState, issue *SprintIssue, tracer *Tracer, workLog *WorkLog, reason string) (ProcessResult, error) {
	tracer.MarkBlocked(reason, "")
	issue.ApprovalStatus = ApprovalBlocked
	issue.WaitingReason = reason
	state.ProcessingIssue = ""
	workLog.Status = WorkLogBlocked
	completed := time.Now()
	workLog.Completed = &completed

	if err := e.history.Save(issue.Key, workLog); err != nil {
		return ProcessResult{}, err
	}
	if err := e.store.Save(state); err != nil {
		return ProcessResult{}, err
	}
	return ProcessResult{Processed: true, IssueKey: issue.Key, Reason: reason}, nil
}
