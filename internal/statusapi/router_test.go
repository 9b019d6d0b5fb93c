package statusapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dwizi/databridge/internal/heartbeat"
	"github.com/dwizi/databridge/internal/task"
)

type fakeEngine struct {
	tasks    []task.Task
	observer func(int64, string)
}

func (f *fakeEngine) TaskList(userCode string, pageNo, limitSize int) ([]task.Task, error) {
	return f.tasks, nil
}

func (f *fakeEngine) TaskInfo(userCode string, taskCode int64) (task.Task, error) {
	for _, t := range f.tasks {
		if t.GetHeader().Code == taskCode {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeEngine) HeartbeatSnapshot(staleAfter time.Duration) heartbeat.Snapshot {
	return heartbeat.Snapshot{Overall: "healthy"}
}

func (f *fakeEngine) NodeIdentity() string { return "node-1" }

func (f *fakeEngine) SetTaskTransitionObserver(observer func(int64, string)) {
	f.observer = observer
}

func newImportTask(code int64, userCode string) *task.Import {
	return &task.Import{Header: task.Header{Code: code, UserCode: userCode, Status: task.StatusFinished}}
}

func TestHandleTasksRequiresUserCode(t *testing.T) {
	eng := &fakeEngine{}
	handler := NewRouter(Dependencies{Engine: eng})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleTasksListsByUser(t *testing.T) {
	eng := &fakeEngine{tasks: []task.Task{newImportTask(1, "user-1")}}
	handler := NewRouter(Dependencies{Engine: eng})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/tasks?user_code=user-1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Count != 1 {
		t.Fatalf("expected 1 task, got %d", body.Count)
	}
}

func TestHandleHeartbeatReportsSnapshot(t *testing.T) {
	eng := &fakeEngine{}
	handler := NewRouter(Dependencies{Engine: eng})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/heartbeat", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var snapshot heartbeat.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snapshot.Overall != "healthy" {
		t.Fatalf("unexpected overall state: %q", snapshot.Overall)
	}
}

func TestNewRouterWiresTransitionObserver(t *testing.T) {
	eng := &fakeEngine{}
	NewRouter(Dependencies{Engine: eng})
	if eng.observer == nil {
		t.Fatalf("expected router to register a transition observer")
	}
}
