package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/devbackplane/backplane/internal/config"
)

func TestBuild_DefaultConfigComposesWithoutNetworkAccess(t *testing.T) {
	loaded, err := config.Load("/nonexistent/path/backplane.yaml")
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}

	app, err := build(loaded)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer app.Close()

	if app.daemon == nil {
		t.Fatal("expected a composed daemon")
	}
	if app.httpSrv == nil {
		t.Fatal("expected a composed http server")
	}
}

func TestQueryCommand_ReportsFailureOnUnreachableDaemon(t *testing.T) {
	if got := queryCommand("http://127.0.0.1:1", "get_state", nil); got == 0 {
		t.Fatal("expected nonzero exit for an unreachable daemon")
	}
}

func TestQueryCommand_PrintsSuccessResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "data": map[string]string{"ok": "yes"}})
	}))
	defer srv.Close()

	if got := queryCommand(srv.URL, "get_state", nil); got != 0 {
		t.Fatalf("expected exit 0, got %d", got)
	}
}

func TestQueryCommand_ReportsFailureOnUnsuccessfulResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": "boom"})
	}))
	defer srv.Close()

	if got := queryCommand(srv.URL, "stop", nil); got == 0 {
		t.Fatal("expected nonzero exit for a failed response")
	}
}
