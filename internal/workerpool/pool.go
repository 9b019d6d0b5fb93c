// Package workerpool implements the bounded worker pool and the two
// cooperative 1Hz tickers (schedule, expire) that drain a task store.
package workerpool

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dwizi/databridge/internal/heartbeat"
	"github.com/dwizi/databridge/internal/taskstore"
)

// DisabledExpiry marks an expireMillis value that turns the expire
// ticker into a no-op.
const DisabledExpiry int64 = -1

const tickInterval = time.Second

// Pool claims tasks from a Store via a nodeIdentity, dispatches them
// to kind-specific Workers up to threadLimit concurrently, and removes
// finished tasks past expireMillis.
type Pool struct {
	store        taskstore.Store
	dispatcher   Dispatcher
	nodeIdentity string
	threadLimit  int
	expireMillis int64
	logger       *slog.Logger
	reporter     heartbeat.Reporter

	mu       sync.Mutex
	running  map[int64]struct{}
	observer func(taskCode int64, event string)

	scheduleTicking atomic.Bool
	expireTicking   atomic.Bool
}

// SetTransitionObserver attaches a callback invoked on claim, process
// and finish for every task this pool runs; nil disables it. Intended
// for a read-only status surface, never for control flow.
func (p *Pool) SetTransitionObserver(observer func(taskCode int64, event string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = observer
}

func (p *Pool) notify(taskCode int64, event string) {
	p.mu.Lock()
	observer := p.observer
	p.mu.Unlock()
	if observer != nil {
		observer(taskCode, event)
	}
}

// New builds a Pool. threadLimit <= 0 is clamped to 1; expireMillis < 0
// other than DisabledExpiry is treated as DisabledExpiry.
func New(store taskstore.Store, dispatcher Dispatcher, nodeIdentity string, threadLimit int, expireMillis int64, logger *slog.Logger) *Pool {
	if threadLimit <= 0 {
		threadLimit = 1
	}
	if expireMillis < 0 {
		expireMillis = DisabledExpiry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		store:        store,
		dispatcher:   dispatcher,
		nodeIdentity: nodeIdentity,
		threadLimit:  threadLimit,
		expireMillis: expireMillis,
		logger:       logger,
		running:      make(map[int64]struct{}),
	}
}

// SetHeartbeatReporter attaches a lifecycle reporter; nil disables reporting.
func (p *Pool) SetHeartbeatReporter(reporter heartbeat.Reporter) {
	p.reporter = reporter
}

// RunningCount reports how many workers are currently in flight.
func (p *Pool) RunningCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// StartSchedule runs the 1Hz schedule ticker until ctx is cancelled.
func (p *Pool) StartSchedule(ctx context.Context) error {
	return p.runTicker(ctx, "scheduler", p.scheduleTick)
}

// StartExpire runs the 1Hz expire ticker until ctx is cancelled.
func (p *Pool) StartExpire(ctx context.Context) error {
	return p.runTicker(ctx, "expire", p.expireTick)
}

func (p *Pool) runTicker(ctx context.Context, component string, tick func(context.Context)) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	if p.reporter != nil {
		p.reporter.Starting(component, "started")
	}
	for {
		select {
		case <-ctx.Done():
			if p.reporter != nil {
				p.reporter.Stopped(component, "stopped")
			}
			return nil
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// scheduleTick implements the schedule ticker: re-entrancy guarded,
// claims up to threadLimit tasks and starts a worker for each.
func (p *Pool) scheduleTick(ctx context.Context) {
	if !p.scheduleTicking.CompareAndSwap(false, true) {
		return
	}
	defer p.scheduleTicking.Store(false)

	for p.RunningCount() < p.threadLimit {
		next, err := p.store.NextTask(p.nodeIdentity)
		if err != nil {
			p.logger.Error("schedule tick: next task failed", "error", err)
			if p.reporter != nil {
				p.reporter.Degrade("scheduler", "next task failed", err)
			}
			return
		}
		if next == nil {
			return
		}

		header := next.GetHeader()
		if p.alreadyRunning(header.Code) {
			return
		}

		worker, err := p.dispatcher.NewWorker(next)
		if err != nil {
			p.logger.Error("schedule tick: unknown task kind, aborting tick", "task_code", header.Code, "error", err)
			return
		}

		p.mu.Lock()
		p.running[header.Code] = struct{}{}
		p.mu.Unlock()
		p.notify(header.Code, "claimed")

		go p.run(ctx, worker)
	}
}

func (p *Pool) alreadyRunning(taskCode int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.running[taskCode]
	return ok
}

func (p *Pool) run(ctx context.Context, worker Worker) {
	t := worker.Task()
	header := t.GetHeader()

	if err := p.store.ProcessTask(header.Code, p.nodeIdentity); err != nil {
		p.logger.Error("mark task processing failed", "task_code", header.Code, "error", err)
	}
	p.notify(header.Code, "processing")

	hasError, errorMessage := worker.Run(ctx)
	p.finish(header.Code, hasError, errorMessage)
}

// finish removes a completed task from the running set and reports the
// outcome to the store.
func (p *Pool) finish(taskCode int64, hasError bool, errorMessage string) {
	p.mu.Lock()
	delete(p.running, taskCode)
	p.mu.Unlock()

	if err := p.store.FinishTask(taskCode, hasError, errorMessage); err != nil {
		p.logger.Error("finish task failed", "task_code", taskCode, "error", err)
	}
	p.notify(taskCode, "finished")
}

// expireTick implements the expire ticker: re-entrancy guarded, no-op
// when expiry is disabled.
func (p *Pool) expireTick(ctx context.Context) {
	if p.expireMillis == DisabledExpiry {
		return
	}
	if !p.expireTicking.CompareAndSwap(false, true) {
		return
	}
	defer p.expireTicking.Store(false)

	removed, err := p.store.DropExpired(p.expireMillis)
	if err != nil {
		p.logger.Error("expire tick failed", "error", err)
		if p.reporter != nil {
			p.reporter.Degrade("expire", "drop expired failed", err)
		}
		return
	}
	if removed > 0 {
		p.logger.Debug("expired tasks dropped", "count", removed)
	}
}
