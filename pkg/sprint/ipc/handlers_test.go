package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devbackplane/backplane/internal/config"
	"github.com/devbackplane/backplane/pkg/sprint"
	"github.com/devbackplane/backplane/pkg/sprint/chatpeer"
)

type stubChatPeer struct {
	lastKey    string
	lastPrompt string
}

func (s *stubChatPeer) Ping(ctx context.Context) bool { return true }

func (s *stubChatPeer) LaunchIssueChat(ctx context.Context, key, summary, prompt string, returnToPrevious bool) (chatpeer.LaunchResult, error) {
	s.lastKey = key
	s.lastPrompt = prompt
	return chatpeer.LaunchResult{Success: true, ChatID: "chat-1"}, nil
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestGetConfig_ReturnsLiveSprintConfig(t *testing.T) {
	h := &Handlers{Config: &config.SprintConfig{TrackerProject: "AAP", CheckIntervalSeconds: 300}}
	router := NewRouter(h, nil)

	req := httptest.NewRequest(http.MethodPost, ObjectPath+"/get_config", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	data, ok := resp.Data.(map[string]interface{})
	if !ok || data["tracker_project"] != "AAP" {
		t.Fatalf("unexpected config payload: %+v", resp.Data)
	}
}

func TestSetConfig_PartiallyUpdatesWithoutClobberingOtherKeys(t *testing.T) {
	h := &Handlers{Config: &config.SprintConfig{TrackerProject: "AAP", CheckIntervalSeconds: 300}}
	router := NewRouter(h, nil)

	body, _ := json.Marshal(map[string]interface{}{"check_interval_seconds": 60})
	req := httptest.NewRequest(http.MethodPost, ObjectPath+"/set_config", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if h.Config.CheckIntervalSeconds != 60 {
		t.Fatalf("expected check_interval_seconds updated to 60, got %d", h.Config.CheckIntervalSeconds)
	}
	if h.Config.TrackerProject != "AAP" {
		t.Fatalf("expected tracker_project untouched, got %q", h.Config.TrackerProject)
	}
}

func TestOpenInCursor_SeedsChatPeerWithContinuationPrompt(t *testing.T) {
	root := t.TempDir()
	history := sprint.NewHistory(root)
	log := history.Init(sprint.SprintIssue{Key: "AAP-1", Summary: "fix the thing", IssueType: "Bug"})
	log.Status = sprint.WorkLogBlocked
	if err := history.Save("AAP-1", log); err != nil {
		t.Fatalf("save work log: %v", err)
	}

	peer := &stubChatPeer{}
	h := &Handlers{History: history, ChatPeer: peer}
	router := NewRouter(h, nil)

	body, _ := json.Marshal(map[string]interface{}{"issue_key": "AAP-1"})
	req := httptest.NewRequest(http.MethodPost, ObjectPath+"/open_in_cursor", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if peer.lastKey != "AAP-1" {
		t.Fatalf("expected chat peer launched for AAP-1, got %q", peer.lastKey)
	}
	if peer.lastPrompt == "" {
		t.Fatal("expected a non-empty continuation prompt")
	}
}

func TestOpenInCursor_NotFoundWithoutWorkLog(t *testing.T) {
	root := t.TempDir()
	h := &Handlers{History: sprint.NewHistory(root), ChatPeer: &stubChatPeer{}}
	router := NewRouter(h, nil)

	body, _ := json.Marshal(map[string]interface{}{"issue_key": "AAP-404"})
	req := httptest.NewRequest(http.MethodPost, ObjectPath+"/open_in_cursor", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
