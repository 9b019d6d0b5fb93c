// Package engine is the facade that wires the core's components
// (registry, recordfile, taskstore, applyengine, workerpool,
// exportworker) into one lifecycle, and is the only package callers
// outside this module need to import.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dwizi/databridge/internal/applyengine"
	"github.com/dwizi/databridge/internal/config"
	"github.com/dwizi/databridge/internal/exportworker"
	"github.com/dwizi/databridge/internal/heartbeat"
	"github.com/dwizi/databridge/internal/nodeid"
	"github.com/dwizi/databridge/internal/recordfile"
	"github.com/dwizi/databridge/internal/registry"
	"github.com/dwizi/databridge/internal/task"
	"github.com/dwizi/databridge/internal/taskstore"
	"github.com/dwizi/databridge/internal/workerpool"
)

// Engine owns the running instance: a task store, a worker pool
// draining it, and the identifiers needed to submit new work. A zero
// Engine is not usable; build one with New then Initialize it.
type Engine struct {
	registry *registry.Registry
	source   applyengine.DataSource
	opener   exportworker.WorkbookOpener
	logger   *slog.Logger

	mu           sync.Mutex
	cfg          config.StorageConfig
	store        taskstore.Store
	pool         *workerpool.Pool
	idgen        *task.IDGenerator
	nodeIdentity string
	heartbeats   *heartbeat.Registry
	monitor      *heartbeat.Monitor

	cancel context.CancelFunc
	group  *errgroup.Group
}

// New builds an Engine around its external collaborators. reg holds
// the transfer-column registrations callers must populate before
// submitting tasks; source and opener are the external data source and
// workbook sink the import/export workers drive.
func New(reg *registry.Registry, source applyengine.DataSource, opener exportworker.WorkbookOpener, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{registry: reg, source: source, opener: opener, logger: logger}
}

// Initialize (re)builds the store, dispatcher and worker pool for cfg.
// If the Engine was already running, it is torn down first. Calling
// Initialize again with an unchanged cfg.LastModified is a no-op.
func (e *Engine) Initialize(cfg config.StorageConfig) error {
	cfg.Clamp()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.store != nil && e.cfg.LastModified == cfg.LastModified {
		return nil
	}
	if e.store != nil {
		e.shutdownLocked()
	}

	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return fmt.Errorf("create base path: %w", err)
	}

	identity, err := nodeid.Derive(cfg.BasePath)
	if err != nil {
		return fmt.Errorf("derive node identity: %w", err)
	}

	store, err := taskstore.Open(cfg.StorageProvider, cfg.BasePath, e.logger)
	if err != nil {
		return fmt.Errorf("open task store: %w", err)
	}
	if err := store.Initialize(cfg.BasePath); err != nil {
		return fmt.Errorf("initialize task store: %w", err)
	}

	// Every recordfile.Generator/Parser in this process identifies
	// tables the way the registry does: hex(sha256(tableName)).
	recordfile.TableIdentifierFunc = registry.TableIdentifier

	disp := &dispatcher{
		basePath:       cfg.BasePath,
		source:         e.source,
		registry:       e.registry,
		workbookOpener: e.opener,
		logger:         e.logger,
	}

	pool := workerpool.New(store, disp, identity, cfg.ThreadLimit, cfg.ExpireMillis, e.logger)
	heartbeats := heartbeat.NewRegistry()
	pool.SetHeartbeatReporter(heartbeats)
	monitor := heartbeat.NewMonitor(heartbeats, heartbeat.MonitorConfig{Logger: e.logger})

	e.cfg = cfg
	e.store = store
	e.pool = pool
	e.idgen = task.NewIDGenerator(nodeOrdinal(identity))
	e.nodeIdentity = identity
	e.heartbeats = heartbeats
	e.monitor = monitor
	return nil
}

func nodeOrdinal(identity string) int64 {
	var ordinal int64
	for i := 0; i < len(identity) && i < 8; i++ {
		ordinal = ordinal<<8 | int64(identity[i])
	}
	return ordinal
}

// Start runs the schedule ticker, expire ticker and heartbeat monitor
// until ctx is cancelled or Close is called. It returns immediately;
// call Close (or cancel ctx and ignore the background error) to stop.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool == nil {
		return fmt.Errorf("engine: Start called before Initialize")
	}
	if e.cancel != nil {
		return fmt.Errorf("engine: already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error { return e.pool.StartSchedule(groupCtx) })
	group.Go(func() error { return e.pool.StartExpire(groupCtx) })
	group.Go(func() error { return e.monitor.Start(groupCtx) })

	e.cancel = cancel
	e.group = group
	return nil
}

// Close stops the running tickers, waits (up to ten seconds) for this
// node's running workers to finish, and releases the task store. Safe
// to call on an Engine that was never started.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shutdownLocked()
}

func (e *Engine) shutdownLocked() error {
	if e.cancel != nil {
		e.cancel()
		if e.group != nil {
			if err := e.group.Wait(); err != nil {
				e.logger.Error("engine shutdown: background loop returned error", "error", err)
			}
		}
		e.cancel = nil
		e.group = nil
	}
	if e.pool != nil {
		// Bounded drain: give this node's in-flight workers up to ten
		// seconds to report back before the store is destroyed.
		deadline := time.Now().Add(10 * time.Second)
		for e.pool.RunningCount() > 0 && time.Now().Before(deadline) {
			time.Sleep(20 * time.Millisecond)
		}
	}
	if e.store != nil {
		err := e.store.Destroy()
		e.store = nil
		return err
	}
	return nil
}

// AddImportTask writes stream to this node's storage area and
// registers an Import task for it. It returns the assigned task code.
func (e *Engine) AddImportTask(stream io.Reader, userCode string, transactional bool, timeoutSec int) (int64, error) {
	e.mu.Lock()
	cfg, idgen, store := e.cfg, e.idgen, e.store
	e.mu.Unlock()
	if store == nil {
		return 0, fmt.Errorf("engine: not initialized")
	}

	taskCode := idgen.Next()
	path := ImportPath(cfg.BasePath, taskCode)
	if err := writeStream(path, stream); err != nil {
		return 0, fmt.Errorf("write import stream: %w", err)
	}

	t := &task.Import{
		Header: task.Header{
			Code:       taskCode,
			UserCode:   userCode,
			CreateTime: time.Now().UTC(),
			Status:     task.StatusCreated,
		},
		DataPath:      path,
		Transactional: transactional,
		TimeoutSec:    timeoutSec,
	}
	if _, err := store.AddTask(t); err != nil {
		return 0, fmt.Errorf("add import task: %w", err)
	}
	return taskCode, nil
}

// AddExportTask registers an Export task running queries against the
// data source, written to a workbook at compatibilityMode's extension.
func (e *Engine) AddExportTask(userCode string, compatibilityMode bool, queries ...task.QueryInfo) (int64, error) {
	e.mu.Lock()
	idgen, store := e.idgen, e.store
	e.mu.Unlock()
	if store == nil {
		return 0, fmt.Errorf("engine: not initialized")
	}

	taskCode := idgen.Next()
	t := &task.Export{
		Header: task.Header{
			Code:       taskCode,
			UserCode:   userCode,
			CreateTime: time.Now().UTC(),
			Status:     task.StatusCreated,
		},
		CompatibilityMode: compatibilityMode,
		QueryList:         append([]task.QueryInfo(nil), queries...),
	}
	if _, err := store.AddTask(t); err != nil {
		return 0, fmt.Errorf("add export task: %w", err)
	}
	return taskCode, nil
}

// DropTask deletes a task's record and, for an Import task, its owning
// .dat file. The .dat file is owned by the task: it is removed
// best-effort before the record; if removal fails the record is
// retained and DropTask returns false rather than leaving an orphaned
// file with no task to account for it.
func (e *Engine) DropTask(userCode string, taskCode int64) (bool, error) {
	store := e.currentStore()
	if store == nil {
		return false, fmt.Errorf("engine: not initialized")
	}

	info, err := store.TaskInfo(userCode, taskCode)
	if err != nil {
		if err == taskstore.ErrNotFound {
			return false, nil
		}
		return false, err
	}

	if imp, ok := info.(*task.Import); ok && imp.DataPath != "" {
		if err := os.Remove(imp.DataPath); err != nil && !os.IsNotExist(err) {
			e.logger.Error("drop task: remove data file failed", "task_code", taskCode, "path", imp.DataPath, "error", err)
			return false, nil
		}
	}

	return store.DropTask(userCode, taskCode)
}

func (e *Engine) TaskList(userCode string, pageNo, limitSize int) ([]task.Task, error) {
	store := e.currentStore()
	if store == nil {
		return nil, fmt.Errorf("engine: not initialized")
	}
	return store.TaskList(userCode, pageNo, limitSize)
}

func (e *Engine) TaskInfo(userCode string, taskCode int64) (task.Task, error) {
	store := e.currentStore()
	if store == nil {
		return nil, fmt.Errorf("engine: not initialized")
	}
	return store.TaskInfo(userCode, taskCode)
}

// HeartbeatSnapshot reports the current lifecycle state of the
// schedule and expire tickers, for a status surface.
func (e *Engine) HeartbeatSnapshot(staleAfter time.Duration) heartbeat.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.heartbeats == nil {
		return heartbeat.Snapshot{}
	}
	return e.heartbeats.Snapshot(staleAfter)
}

// NodeIdentity returns the identity this engine claims tasks under.
func (e *Engine) NodeIdentity() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nodeIdentity
}

// SetTaskTransitionObserver attaches a callback invoked on claim,
// process and finish for every task this engine's pool runs; nil
// disables it. Meant for a read-only status surface.
func (e *Engine) SetTaskTransitionObserver(observer func(taskCode int64, event string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool != nil {
		e.pool.SetTransitionObserver(observer)
	}
}

func (e *Engine) currentStore() taskstore.Store {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store
}

func writeStream(path string, stream io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(file, stream)
	return err
}
