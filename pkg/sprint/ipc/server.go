// Package ipc exposes the Sprint Daemon's operations over one
// well-known HTTP surface (spec §4.M, §6): "a process-bus (one
// well-known service name, one object path, one interface name)".
// No dbus library exists anywhere in the retrieval pack for this spec,
// so the bus contract is realized as one chi router under a fixed
// prefix (the "object path"), method names as lower_snake_case routes
// (the "interface"), request/response bodies as JSON mappings with a
// success field — matching §6's own wire description verbatim
// ("inputs accept named scalar parameters and/or one structured
// mapping; outputs are one mapping with success and data/error").
package ipc

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/lestrrat-go/jwx/v3/jwt"
	"go.uber.org/zap"

	"github.com/devbackplane/backplane/internal/config"
	"github.com/devbackplane/backplane/pkg/sprint"
	"github.com/devbackplane/backplane/pkg/sprint/chatpeer"
	sharederrors "github.com/devbackplane/backplane/pkg/shared/errors"
)

// ObjectPath is the one well-known path every method is mounted under
// (spec §6 "one object path").
const ObjectPath = "/bus/sprint-daemon/v1"

// Handlers groups everything the IPC surface needs to fulfil spec
// §4.M's method list without owning any of it.
type Handlers struct {
	Store     *sprint.StateStore
	Executor  *sprint.Executor
	Planner   *sprint.Planner
	Daemon    *sprint.Daemon
	History   *sprint.History
	StateRoot string // root dir passed to sprint.Load for get_trace

	// Config is the live SprintConfig block get_config/set_config
	// read and partially update; configMu guards concurrent access
	// since IPC handlers run on chi's per-request goroutines.
	Config   *config.SprintConfig
	configMu sync.Mutex

	// ChatPeer is the UI chat peer open_in_cursor asks to launch an
	// interactive session; defaults to chatpeer.Unavailable{} when no
	// UI process has registered.
	ChatPeer chatpeer.Peer

	JWTKeySet interface{} // set via jwx/v3 jwk.Set when auth is enabled; nil disables auth
	log       *zap.Logger
}

// Response is the uniform {success, data|error} envelope (spec §4.M,
// §7 IPCError).
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func ok(data interface{}) Response    { return Response{Success: true, Data: data} }
func fail(err string) Response        { return Response{Success: false, Error: err} }

// NewRouter builds the chi router mounting every §4.M handler under
// ObjectPath, with CORS open to any origin and an optional
// JWT bearer check.
func NewRouter(h *Handlers, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h.log = log

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}))

	r.Route(ObjectPath, func(r chi.Router) {
		if h.JWTKeySet != nil {
			r.Use(h.authMiddleware)
		}
		r.Post("/list_issues", h.listIssues)
		r.Post("/approve_issue", h.approveIssue)
		r.Post("/reject_issue", h.rejectIssue)
		r.Post("/abort_issue", h.abortIssue)
		r.Post("/skip_issue", h.skipIssue)
		r.Post("/approve_all", h.approveAll)
		r.Post("/reject_all", h.rejectAll)
		r.Post("/refresh", h.refresh)
		r.Post("/enable", h.enable)
		r.Post("/disable", h.disable)
		r.Post("/start", h.start)
		r.Post("/stop", h.stop)
		r.Post("/toggle_background", h.toggleBackground)
		r.Post("/get_state", h.getState)
		r.Post("/get_history", h.getHistory)
		r.Post("/get_trace", h.getTrace)
		r.Post("/list_traces", h.listTraces)
		r.Post("/get_work_log", h.getWorkLog)
		r.Post("/start_issue", h.startIssue)
		r.Post("/process_next", h.processNext)
		r.Post("/write_state", h.writeState)
		r.Post("/get_config", h.getConfig)
		r.Post("/set_config", h.setConfig)
		r.Post("/open_in_cursor", h.openInCursor)
	})
	return r
}

func (h *Handlers) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")
		if len(raw) < 8 || raw[:7] != "Bearer " {
			writeJSON(w, http.StatusUnauthorized, fail("missing bearer token"))
			return
		}
		if _, err := jwt.Parse([]byte(raw[7:])); err != nil {
			writeJSON(w, http.StatusUnauthorized, fail("invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func decodeBody(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil && err.Error() != "EOF" {
		return &sharederrors.IPCError{Method: r.URL.Path, Reason: err.Error()}
	}
	return nil
}

func requestContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}
