package sprint

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	sharederrors "github.com/devbackplane/backplane/pkg/shared/errors"
)

// State is one node of the execution state machine (spec §4.H).
type State string

const (
	StateIdle                State = "idle"
	StateLoading              State = "loading"
	StateAnalyzing            State = "analyzing"
	StateClassifying          State = "classifying"
	StateCheckingActionable   State = "checking_actionable"
	StateTransitioningJira    State = "transitioning_jira"
	StateStartingWork         State = "starting_work"
	StateResearching          State = "researching"
	StateBuildingPrompt       State = "building_prompt"
	StateLaunchingChat        State = "launching_chat"
	StateImplementing         State = "implementing"
	StateDocumenting          State = "documenting"
	StateCreatingMR           State = "creating_mr"
	StateAwaitingReview       State = "awaiting_review"
	StateMerging              State = "merging"
	StateClosing              State = "closing"
	StateBlocked              State = "blocked"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
)

// transitions is the allowed-successor table from spec §4.H, verbatim.
var transitions = map[State][]State{
	StateIdle:                {StateLoading},
	StateLoading:              {StateAnalyzing, StateFailed},
	StateAnalyzing:            {StateClassifying, StateBlocked, StateFailed},
	StateClassifying:          {StateCheckingActionable, StateFailed},
	StateCheckingActionable:   {StateTransitioningJira, StateBlocked, StateFailed},
	StateTransitioningJira:    {StateStartingWork, StateResearching, StateFailed},
	StateStartingWork:         {StateBuildingPrompt, StateBlocked, StateFailed},
	StateResearching:          {StateDocumenting, StateBuildingPrompt, StateBlocked, StateFailed},
	StateBuildingPrompt:       {StateLaunchingChat, StateImplementing, StateFailed},
	StateLaunchingChat:        {StateImplementing, StateFailed},
	StateImplementing:         {StateCreatingMR, StateBlocked, StateCompleted, StateFailed},
	StateDocumenting:          {StateClosing, StateBlocked, StateFailed},
	StateCreatingMR:           {StateAwaitingReview, StateBlocked, StateFailed},
	StateAwaitingReview:       {StateMerging, StateBlocked, StateImplementing},
	StateMerging:              {StateClosing, StateFailed},
	StateClosing:              {StateCompleted, StateFailed},
	StateBlocked:              {StateAnalyzing, StateImplementing, StateCompleted},
	StateCompleted:            {},
	StateFailed:               {StateIdle},
}

func isTerminal(s State) bool { return s == StateCompleted || s == StateFailed }

func allowedTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StepStatus is StepTrace.Status.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepTrace is one recorded unit of work within an ExecutionTrace.
type StepTrace struct {
	StepID     string                 `json:"stepId" yaml:"stepId"`
	Name       string                 `json:"name" yaml:"name"`
	Status     StepStatus             `json:"status" yaml:"status"`
	StartedAt  time.Time              `json:"startedAt" yaml:"startedAt"`
	DurationMs int64                  `json:"durationMs,omitempty" yaml:"durationMs,omitempty"`
	Inputs     map[string]interface{} `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs    map[string]interface{} `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Decision   string                 `json:"decision,omitempty" yaml:"decision,omitempty"`
	Reason     string                 `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error      string                 `json:"error,omitempty" yaml:"error,omitempty"`
	SkillName  string                 `json:"skillName,omitempty" yaml:"skillName,omitempty"`
	ToolName   string                 `json:"toolName,omitempty" yaml:"toolName,omitempty"`
	ChatID     string                 `json:"chatId,omitempty" yaml:"chatId,omitempty"`
}

// StateTransition is one recorded edge, valid or not (kept for
// forensic value per spec §4.H).
type StateTransition struct {
	From      State                  `json:"from" yaml:"from"`
	To        State                  `json:"to" yaml:"to"`
	Timestamp time.Time              `json:"timestamp" yaml:"timestamp"`
	Trigger   string                 `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty" yaml:"data,omitempty"`
	Valid     bool                   `json:"valid" yaml:"valid"`
}

// WorkflowType classifies an ExecutionTrace's intended shape.
type WorkflowType string

const (
	WorkflowCodeChange WorkflowType = "code_change"
	WorkflowSpike      WorkflowType = "spike"
)

// ExecutionMode is foreground (chat-driven) vs background (headless).
type ExecutionMode string

const (
	ExecutionForeground ExecutionMode = "foreground"
	ExecutionBackground ExecutionMode = "background"
)

// ExecutionTrace is the full per-issue audit document (spec §3, §4.H).
type ExecutionTrace struct {
	IssueKey      string            `json:"issueKey" yaml:"issueKey"`
	WorkflowType  WorkflowType      `json:"workflowType" yaml:"workflowType"`
	ExecutionMode ExecutionMode     `json:"executionMode" yaml:"executionMode"`
	StartedAt     time.Time         `json:"startedAt" yaml:"startedAt"`
	CompletedAt   *time.Time        `json:"completedAt,omitempty" yaml:"completedAt,omitempty"`
	CurrentState  State             `json:"currentState" yaml:"currentState"`
	Steps         []StepTrace       `json:"steps" yaml:"steps"`
	Transitions   []StateTransition `json:"transitions" yaml:"transitions"`

	runningStep string // step_id of the step currently in "running" status
}

// Tracer operates on one in-memory ExecutionTrace and persists it to
// disk; one Tracer instance must not be shared across issues (spec
// §4.H "A trace is addressed by issue_key").
type Tracer struct {
	mu    sync.Mutex
	trace *ExecutionTrace
	dir   string
	log   *zap.Logger
}

// NewTracer starts a fresh idle trace for issueKey, or rehydrates an
// existing one from disk if present.
func NewTracer(stateDir, issueKey string, workflowType WorkflowType, mode ExecutionMode, log *zap.Logger) (*Tracer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dir := filepath.Join(stateDir, "sprint_traces")
	t := &Tracer{dir: dir, log: log}

	existing, err := Load(stateDir, issueKey)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		t.trace = existing
		return t, nil
	}

	t.trace = &ExecutionTrace{
		IssueKey:      issueKey,
		WorkflowType:  workflowType,
		ExecutionMode: mode,
		StartedAt:     time.Now(),
		CurrentState:  StateIdle,
	}
	return t, nil
}

// Load reads a persisted trace for issueKey, returning (nil, nil) if
// it doesn't exist (spec §4.H load).
func Load(stateDir, issueKey string) (*ExecutionTrace, error) {
	path := tracePath(stateDir, issueKey)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, sharederrors.FailedToWithDetails("load execution trace", "tracer", path, err)
	}
	var trace ExecutionTrace
	if err := yaml.Unmarshal(raw, &trace); err != nil {
		return nil, sharederrors.FailedToWithDetails("parse execution trace", "tracer", path, err)
	}
	return &trace, nil
}

func tracePath(stateDir, issueKey string) string {
	return filepath.Join(stateDir, "sprint_traces", issueKey+".yaml")
}

// StartStep records a new running step and returns its id (spec
// §4.H).
func (t *Tracer) StartStep(name string, inputs map[string]interface{}, skillName, toolName string) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.NewString()
	t.trace.Steps = append(t.trace.Steps, StepTrace{
		StepID: id, Name: name, Status: StepRunning, StartedAt: time.Now(),
		Inputs: inputs, SkillName: skillName, ToolName: toolName,
	})
	t.trace.runningStep = id
	return id
}

// EndStep finalizes stepID (or the current running step if empty).
func (t *Tracer) EndStep(stepID string, status StepStatus, outputs map[string]interface{}, decision, reason, errMsg, chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if stepID == "" {
		stepID = t.trace.runningStep
	}
	for i := range t.trace.Steps {
		if t.trace.Steps[i].StepID != stepID {
			continue
		}
		step := &t.trace.Steps[i]
		step.Status = status
		step.Outputs = outputs
		step.Decision = decision
		step.Reason = reason
		step.Error = errMsg
		step.ChatID = chatID
		step.DurationMs = time.Since(step.StartedAt).Milliseconds()
		break
	}
	if stepID == t.trace.runningStep {
		t.trace.runningStep = ""
	}
}

// LogStep is the start+end convenience helper (spec §4.H log_step).
func (t *Tracer) LogStep(name string, inputs map[string]interface{}, status StepStatus, outputs map[string]interface{}, decision, reason string) {
	id := t.StartStep(name, inputs, "", "")
	t.EndStep(id, status, outputs, decision, reason, "", "")
}

// Transition validates and records a state change (spec §4.H). An
// invalid transition is still recorded (forensic value) and logged as
// a warning; the boolean return tells the caller whether it was
// accepted.
func (t *Tracer) Transition(to State, trigger string, data map[string]interface{}) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.trace.CurrentState
	valid := allowedTransition(from, to)
	if !valid {
		t.log.Warn("invalid state transition",
			zap.String("issue_key", t.trace.IssueKey),
			zap.String("from", string(from)), zap.String("to", string(to)))
	}

	t.trace.Transitions = append(t.trace.Transitions, StateTransition{
		From: from, To: to, Timestamp: time.Now(), Trigger: trigger, Data: data, Valid: valid,
	})
	t.trace.CurrentState = to
	if isTerminal(to) {
		now := time.Now()
		t.trace.CompletedAt = &now
	}
	return valid
}

// MarkBlocked is the composite helper of the same name (spec §4.H).
func (t *Tracer) MarkBlocked(reason, waitingFor string) {
	data := map[string]interface{}{"reason": reason}
	if waitingFor != "" {
		data["waiting_for"] = waitingFor
	}
	t.Transition(StateBlocked, "mark_blocked", data)
}

// MarkCompleted is the composite helper of the same name.
func (t *Tracer) MarkCompleted(summary string) {
	var data map[string]interface{}
	if summary != "" {
		data = map[string]interface{}{"summary": summary}
	}
	t.Transition(StateCompleted, "mark_completed", data)
}

// MarkFailed is the composite helper of the same name.
func (t *Tracer) MarkFailed(errMsg string) {
	t.Transition(StateFailed, "mark_failed", map[string]interface{}{"error": errMsg})
}

// CurrentState reports the trace's current node.
func (t *Tracer) CurrentState() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.trace.CurrentState
}

// Snapshot returns a copy of the underlying ExecutionTrace for
// rendering or IPC responses.
func (t *Tracer) Snapshot() ExecutionTrace {
	t.mu.Lock()
	defer t.mu.Unlock()
	return *t.trace
}

// Save atomically persists the full trace document (spec §4.H save).
func (t *Tracer) Save() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return sharederrors.FailedToWithDetails("create trace directory", "tracer", t.dir, err)
	}
	payload, err := yaml.Marshal(t.trace)
	if err != nil {
		return sharederrors.FailedToWithDetails("marshal execution trace", "tracer", t.trace.IssueKey, err)
	}
	path := filepath.Join(t.dir, t.trace.IssueKey+".yaml")
	if err := atomicWrite(path, payload); err != nil {
		return &sharederrors.PersistenceError{Path: path, Cause: err}
	}
	return nil
}

// RenderStateDiagram renders a small ASCII walk of the path actually
// taken, highlighting the current node (spec §4.H rendering helper).
func (t *Tracer) RenderStateDiagram() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.trace.Transitions) == 0 {
		return string(t.trace.CurrentState)
	}
	out := string(t.trace.Transitions[0].From)
	for _, tr := range t.trace.Transitions {
		marker := "->"
		if !tr.Valid {
			marker = "-x>"
		}
		out += fmt.Sprintf(" %s %s", marker, tr.To)
	}
	return out
}

// RenderStepTimeline renders one line per recorded step.
func (t *Tracer) RenderStepTimeline() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	lines := make([]string, 0, len(t.trace.Steps))
	for _, s := range t.trace.Steps {
		lines = append(lines, fmt.Sprintf("[%s] %s (%s, %dms)", s.StartedAt.Format(time.RFC3339), s.Name, s.Status, s.DurationMs))
	}
	return lines
}
