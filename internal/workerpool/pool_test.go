package workerpool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dwizi/databridge/internal/task"
)

type fakeStore struct {
	mu         sync.Mutex
	pending    []task.Task
	processed  []int64
	finished   []int64
	dropCalls  int
}

func (s *fakeStore) Initialize(string) error { return nil }
func (s *fakeStore) Destroy() error          { return nil }
func (s *fakeStore) AddTask(t task.Task) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, t)
	return true, nil
}
func (s *fakeStore) ProcessTask(taskCode int64, nodeIdentity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed = append(s.processed, taskCode)
	return nil
}
func (s *fakeStore) NextTask(nodeIdentity string) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		return nil, nil
	}
	next := s.pending[0]
	s.pending = s.pending[1:]
	return next, nil
}
func (s *fakeStore) FinishTask(taskCode int64, hasError bool, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = append(s.finished, taskCode)
	return nil
}
func (s *fakeStore) DropTask(userCode string, taskCode int64) (bool, error) { return true, nil }
func (s *fakeStore) DropExpired(expireMillis int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropCalls++
	return 0, nil
}
func (s *fakeStore) TaskList(string, int, int) ([]task.Task, error) { return nil, nil }
func (s *fakeStore) TaskInfo(string, int64) (task.Task, error)      { return nil, nil }

type blockingWorker struct {
	t     task.Task
	done  chan struct{}
	ran   chan struct{}
}

func (w *blockingWorker) Task() task.Task { return w.t }
func (w *blockingWorker) Run(ctx context.Context) (bool, string) {
	close(w.ran)
	<-w.done
	return false, ""
}

type fakeDispatcher struct {
	mu      sync.Mutex
	workers map[int64]*blockingWorker
	reject  bool
}

func (d *fakeDispatcher) NewWorker(t task.Task) (Worker, error) {
	if d.reject {
		return nil, errUnknownKind
	}
	w := &blockingWorker{t: t, done: make(chan struct{}), ran: make(chan struct{})}
	d.mu.Lock()
	d.workers[t.GetHeader().Code] = w
	d.mu.Unlock()
	return w, nil
}

var errUnknownKind = &unknownKindError{}

type unknownKindError struct{}

func (e *unknownKindError) Error() string { return "unknown task kind" }

func newImportTask(code int64) *task.Import {
	return &task.Import{Header: task.Header{Code: code, Status: task.StatusCreated}}
}

func TestScheduleTickStartsWorkerUpToThreadLimit(t *testing.T) {
	store := &fakeStore{}
	if _, err := store.AddTask(newImportTask(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.AddTask(newImportTask(2)); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := store.AddTask(newImportTask(3)); err != nil {
		t.Fatalf("add: %v", err)
	}

	dispatcher := &fakeDispatcher{workers: map[int64]*blockingWorker{}}
	pool := New(store, dispatcher, "node-a", 2, DisabledExpiry, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.scheduleTick(ctx)

	if pool.RunningCount() != 2 {
		t.Fatalf("expected 2 running workers (thread limit), got %d", pool.RunningCount())
	}

	for _, code := range []int64{1, 2} {
		w := dispatcher.workers[code]
		select {
		case <-w.ran:
		case <-time.After(time.Second):
			t.Fatalf("worker %d never started", code)
		}
		close(w.done)
	}

	deadline := time.Now().Add(time.Second)
	for pool.RunningCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if pool.RunningCount() != 0 {
		t.Fatalf("expected workers to finish and vacate the running set")
	}
}

func TestScheduleTickReentrancyGuardSkipsOverlappingTick(t *testing.T) {
	store := &fakeStore{}
	dispatcher := &fakeDispatcher{workers: map[int64]*blockingWorker{}}
	pool := New(store, dispatcher, "node-a", 5, DisabledExpiry, nil)

	pool.scheduleTicking.Store(true)
	pool.scheduleTick(context.Background())

	if pool.RunningCount() != 0 {
		t.Fatalf("tick should have been skipped while guard was held")
	}
}

func TestExpireTickNoOpWhenDisabled(t *testing.T) {
	store := &fakeStore{}
	dispatcher := &fakeDispatcher{workers: map[int64]*blockingWorker{}}
	pool := New(store, dispatcher, "node-a", 1, DisabledExpiry, nil)
	pool.expireTick(context.Background())
	if store.dropCalls != 0 {
		t.Fatalf("expected no drop calls when expiry disabled, got %d", store.dropCalls)
	}
}

func TestExpireTickCallsStoreWhenEnabled(t *testing.T) {
	store := &fakeStore{}
	dispatcher := &fakeDispatcher{workers: map[int64]*blockingWorker{}}
	pool := New(store, dispatcher, "node-a", 1, int64(time.Hour/time.Millisecond), nil)
	pool.expireTick(context.Background())
	if store.dropCalls != 1 {
		t.Fatalf("expected one drop call, got %d", store.dropCalls)
	}
}

func TestScheduleTickAbortsOnUnknownKind(t *testing.T) {
	store := &fakeStore{}
	if _, err := store.AddTask(newImportTask(1)); err != nil {
		t.Fatalf("add: %v", err)
	}
	dispatcher := &fakeDispatcher{workers: map[int64]*blockingWorker{}, reject: true}
	pool := New(store, dispatcher, "node-a", 5, DisabledExpiry, nil)
	pool.scheduleTick(context.Background())
	if pool.RunningCount() != 0 {
		t.Fatalf("expected no workers started after an unknown-kind abort")
	}
}
