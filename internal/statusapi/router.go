// Package statusapi exposes a read-only HTTP+websocket observability
// surface over a running engine: task listing and a live stream of
// lifecycle transitions. It observes the core; it never drives it.
package statusapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dwizi/databridge/internal/heartbeat"
	"github.com/dwizi/databridge/internal/task"
	"github.com/dwizi/databridge/internal/taskstore"
)

// Engine is the narrow facade dependency this package needs.
type Engine interface {
	TaskList(userCode string, pageNo, limitSize int) ([]task.Task, error)
	TaskInfo(userCode string, taskCode int64) (task.Task, error)
	HeartbeatSnapshot(staleAfter time.Duration) heartbeat.Snapshot
	NodeIdentity() string
	SetTaskTransitionObserver(observer func(taskCode int64, event string))
}

// Dependencies configures the router.
type Dependencies struct {
	Engine              Engine
	Logger              *slog.Logger
	HeartbeatStaleAfter time.Duration
}

type router struct {
	deps Dependencies
	hub  *hub
}

// NewRouter builds the HTTP handler: /healthz, /api/v1/info,
// /api/v1/heartbeat, /api/v1/tasks, and the /tasks/stream websocket
// feed.
func NewRouter(deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	rt := &router{deps: deps, hub: newHub(deps.Logger)}
	deps.Engine.SetTaskTransitionObserver(rt.hub.broadcastTransition)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.handleHealth)
	mux.HandleFunc("/api/v1/info", rt.handleInfo)
	mux.HandleFunc("/api/v1/heartbeat", rt.handleHeartbeat)
	mux.HandleFunc("/api/v1/tasks", rt.handleTasks)
	mux.HandleFunc("/tasks/stream", rt.hub.handleStream)
	return mux
}

func (r *router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (r *router) handleInfo(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":          "databridge",
		"node_identity": r.deps.Engine.NodeIdentity(),
	})
}

func (r *router) handleHeartbeat(w http.ResponseWriter, req *http.Request) {
	snapshot := r.deps.Engine.HeartbeatSnapshot(r.deps.HeartbeatStaleAfter)
	writeJSON(w, http.StatusOK, snapshot)
}

func (r *router) handleTasks(w http.ResponseWriter, req *http.Request) {
	userCode := strings.TrimSpace(req.URL.Query().Get("user_code"))
	if userCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_code query parameter is required"})
		return
	}

	if taskCodeInput := strings.TrimSpace(req.URL.Query().Get("task_code")); taskCodeInput != "" {
		taskCode, err := strconv.ParseInt(taskCodeInput, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task_code must be an integer"})
			return
		}
		found, err := r.deps.Engine.TaskInfo(userCode, taskCode)
		if err != nil {
			status := http.StatusInternalServerError
			if err == taskstore.ErrNotFound {
				status = http.StatusNotFound
			}
			writeJSON(w, status, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, taskResponse(found))
		return
	}

	pageNo, _ := strconv.Atoi(req.URL.Query().Get("page"))
	limitSize, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	items, err := r.deps.Engine.TaskList(userCode, pageNo, limitSize)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	results := make([]map[string]any, 0, len(items))
	for _, item := range items {
		results = append(results, taskResponse(item))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": results, "count": len(results)})
}

func taskResponse(t task.Task) map[string]any {
	header := t.GetHeader()
	return map[string]any{
		"task_code":     header.Code,
		"user_code":     header.UserCode,
		"kind":          t.Kind(),
		"status":        header.Status.String(),
		"has_error":     header.HasError,
		"error_message": header.ErrorMessage,
		"identify_code": header.IdentifyCode,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
