package ipc

import (
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devbackplane/backplane/pkg/sprint"
	"github.com/devbackplane/backplane/pkg/sprint/chatpeer"
)

type keyRequest struct {
	IssueKey string `json:"issue_key"`
	Reason   string `json:"reason,omitempty"`
}

func (h *Handlers) listIssues(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status     string `json:"status,omitempty"`
		Actionable *bool  `json:"actionable,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}

	state, err := h.Store.Load()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	if state == nil {
		writeJSON(w, http.StatusOK, ok(map[string]interface{}{"issues": []interface{}{}, "total": 0}))
		return
	}

	type issueView struct {
		sprint.SprintIssue
		IsActionable bool `json:"isActionable"`
	}

	var views []issueView
	counts := map[string]int{}
	for _, issue := range state.Issues {
		actionable := h.Planner.IsActionable(issue)
		if req.Status != "" && issue.JiraStatus != req.Status {
			continue
		}
		if req.Actionable != nil && actionable != *req.Actionable {
			continue
		}
		views = append(views, issueView{SprintIssue: issue, IsActionable: actionable})
		counts[string(issue.ApprovalStatus)]++
	}

	writeJSON(w, http.StatusOK, ok(map[string]interface{}{
		"issues": views, "total": len(views), "byStatus": counts,
	}))
}

func (h *Handlers) approveIssue(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}
	state, err := h.Store.Load()
	if err != nil || state == nil {
		writeJSON(w, http.StatusInternalServerError, fail("sprint state unavailable"))
		return
	}
	issue := state.FindIssue(req.IssueKey)
	if issue == nil {
		writeJSON(w, http.StatusNotFound, fail("issue not found"))
		return
	}
	if !h.Planner.IsActionable(*issue) {
		writeJSON(w, http.StatusConflict, fail("issue is not actionable"))
		return
	}
	issue.ApprovalStatus = sprint.ApprovalApproved
	if err := h.Store.Save(state); err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(nil))
}

func (h *Handlers) rejectIssue(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}
	h.setApproval(w, req, sprint.ApprovalPending)
}

func (h *Handlers) abortIssue(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}
	if err := h.Executor.Abort(req.IssueKey); err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(nil))
}

func (h *Handlers) skipIssue(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}
	h.setApproval(w, req, sprint.ApprovalBlocked)
}

func (h *Handlers) setApproval(w http.ResponseWriter, req keyRequest, status sprint.ApprovalStatus) {
	state, err := h.Store.Load()
	if err != nil || state == nil {
		writeJSON(w, http.StatusInternalServerError, fail("sprint state unavailable"))
		return
	}
	issue := state.FindIssue(req.IssueKey)
	if issue == nil {
		writeJSON(w, http.StatusNotFound, fail("issue not found"))
		return
	}
	issue.ApprovalStatus = status
	if req.Reason != "" {
		issue.WaitingReason = req.Reason
	}
	if err := h.Store.Save(state); err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(nil))
}

func (h *Handlers) approveAll(w http.ResponseWriter, r *http.Request) {
	state, err := h.Store.Load()
	if err != nil || state == nil {
		writeJSON(w, http.StatusInternalServerError, fail("sprint state unavailable"))
		return
	}
	approved, autoCompleted := 0, 0
	for i := range state.Issues {
		issue := &state.Issues[i]
		if issue.ApprovalStatus != sprint.ApprovalPending {
			continue
		}
		if h.Planner.IsActionable(*issue) {
			issue.ApprovalStatus = sprint.ApprovalApproved
			approved++
		} else {
			issue.ApprovalStatus = sprint.ApprovalCompleted
			autoCompleted++
		}
	}
	if err := h.Store.Save(state); err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(map[string]interface{}{"approved": approved, "autoCompleted": autoCompleted}))
}

func (h *Handlers) rejectAll(w http.ResponseWriter, r *http.Request) {
	state, err := h.Store.Load()
	if err != nil || state == nil {
		writeJSON(w, http.StatusInternalServerError, fail("sprint state unavailable"))
		return
	}
	count := 0
	for i := range state.Issues {
		issue := &state.Issues[i]
		if issue.ApprovalStatus == sprint.ApprovalApproved {
			issue.ApprovalStatus = sprint.ApprovalPending
			count++
		}
	}
	if err := h.Store.Save(state); err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(map[string]interface{}{"rejected": count}))
}

func (h *Handlers) refresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r, 60*time.Second)
	defer cancel()
	if err := h.Planner.RefreshFromTracker(ctx); err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(nil))
}

func (h *Handlers) enable(w http.ResponseWriter, r *http.Request)  { h.flipMode(w, true, "automatic") }
func (h *Handlers) disable(w http.ResponseWriter, r *http.Request) { h.flipMode(w, false, "automatic") }
func (h *Handlers) start(w http.ResponseWriter, r *http.Request)   { h.flipMode(w, true, "manual") }
func (h *Handlers) stop(w http.ResponseWriter, r *http.Request)    { h.flipMode(w, false, "manual") }

func (h *Handlers) flipMode(w http.ResponseWriter, value bool, kind string) {
	state, err := h.Store.Load()
	if err != nil || state == nil {
		writeJSON(w, http.StatusInternalServerError, fail("sprint state unavailable"))
		return
	}
	if kind == "automatic" {
		state.AutomaticMode = value
	} else {
		state.ManuallyStarted = value
	}
	if err := h.Store.Save(state); err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(nil))
}

func (h *Handlers) toggleBackground(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Enabled *bool `json:"enabled,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}
	state, err := h.Store.Load()
	if err != nil || state == nil {
		writeJSON(w, http.StatusInternalServerError, fail("sprint state unavailable"))
		return
	}
	if req.Enabled != nil {
		state.BackgroundTasks = *req.Enabled
	} else {
		state.BackgroundTasks = !state.BackgroundTasks
	}
	if err := h.Store.Save(state); err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(map[string]interface{}{"backgroundTasks": state.BackgroundTasks}))
}

func (h *Handlers) getState(w http.ResponseWriter, r *http.Request) {
	state, err := h.Store.Load()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	runtime := map[string]interface{}{
		"isActive":           h.Daemon != nil && (state != nil && (state.ManuallyStarted || state.AutomaticMode)),
		"withinWorkingHours": h.Daemon != nil && h.Daemon.WithinWorkingHoursNow(),
	}
	if h.Daemon != nil {
		runtime["lastTrackerSync"] = h.Daemon.LastTrackerSync()
		runtime["lastReviewCheck"] = h.Daemon.LastReviewCheck()
	}
	writeJSON(w, http.StatusOK, ok(map[string]interface{}{"state": state, "runtime": runtime}))
}

func (h *Handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}
	log, err := h.History.Load(req.IssueKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(log))
}

func (h *Handlers) getTrace(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}
	trace, err := sprint.Load(h.StateRoot, req.IssueKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	if trace == nil {
		writeJSON(w, http.StatusNotFound, fail("trace not found"))
		return
	}
	writeJSON(w, http.StatusOK, ok(trace))
}

func (h *Handlers) listTraces(w http.ResponseWriter, r *http.Request) {
	state, err := h.Store.Load()
	if err != nil || state == nil {
		writeJSON(w, http.StatusOK, ok(map[string]interface{}{"traces": []string{}}))
		return
	}
	var keys []string
	for _, issue := range state.Issues {
		keys = append(keys, issue.Key)
	}
	writeJSON(w, http.StatusOK, ok(map[string]interface{}{"traces": keys}))
}

func (h *Handlers) getWorkLog(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}
	log, err := h.History.Load(req.IssueKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	if log == nil {
		writeJSON(w, http.StatusNotFound, fail("work log not found"))
		return
	}
	writeJSON(w, http.StatusOK, ok(log))
}

func (h *Handlers) startIssue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IssueKey   string `json:"issue_key"`
		Background bool   `json:"background,omitempty"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}
	ctx, cancel := requestContext(r, 30*time.Second)
	defer cancel()
	result, err := h.Executor.ForceStart(ctx, req.IssueKey, req.Background, nil)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(result))
}

func (h *Handlers) processNext(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := requestContext(r, 30*time.Second)
	defer cancel()
	result, err := h.Executor.ProcessNext(ctx, nil)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(result))
}

func (h *Handlers) writeState(w http.ResponseWriter, r *http.Request) {
	state, err := h.Store.Load()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	if state == nil {
		writeJSON(w, http.StatusOK, ok(nil))
		return
	}
	if err := h.Store.Save(state); err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(nil))
}

// getConfig returns the live SprintConfig block (spec §4.M get_config).
func (h *Handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	h.configMu.Lock()
	defer h.configMu.Unlock()
	if h.Config == nil {
		writeJSON(w, http.StatusOK, ok(nil))
		return
	}
	writeJSON(w, http.StatusOK, ok(h.Config))
}

// setConfig partially updates config keys (spec §4.M set_config "**"):
// the request body is a mapping of the keys to change, decoded over
// the existing config so unset keys are left untouched.
func (h *Handlers) setConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]interface{}
	if err := decodeBody(r, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}

	h.configMu.Lock()
	defer h.configMu.Unlock()
	if h.Config == nil {
		writeJSON(w, http.StatusOK, ok(nil))
		return
	}
	raw, err := yaml.Marshal(patch)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}
	if err := yaml.Unmarshal(raw, h.Config); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(h.Config))
}

// openInCursor fetches the issue's work log and asks the UI chat peer
// to open an interactive session seeded with its continuation prompt
// (spec §4.M open_in_cursor, §4.K BuildContinuationPrompt).
func (h *Handlers) openInCursor(w http.ResponseWriter, r *http.Request) {
	var req keyRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}

	log, err := h.History.Load(req.IssueKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	if log == nil {
		writeJSON(w, http.StatusNotFound, fail("work log not found"))
		return
	}

	peer := h.ChatPeer
	if peer == nil {
		peer = chatpeer.Unavailable{}
	}
	prompt := h.History.BuildContinuationPrompt(req.IssueKey, log)

	ctx, cancel := requestContext(r, chatpeer.PingTimeout)
	defer cancel()
	result, err := peer.LaunchIssueChat(ctx, req.IssueKey, log.Summary, prompt, false)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, fail(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ok(result))
}
