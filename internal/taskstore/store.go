// Package taskstore defines the task persistence contract used by the
// scheduler and worker pool, plus a mutex-protected in-memory reference
// implementation. Alternate backings (see sqlitestore.go) implement the
// same Store interface.
package taskstore

import (
	"errors"

	"github.com/dwizi/databridge/internal/task"
)

// ErrNotFound is returned by lookups that address a task that does not
// exist (or is not owned by the requesting user).
var ErrNotFound = errors.New("taskstore: task not found")

// DefaultPageSize and DefaultPageNo back the 1-based paging contract of
// TaskList when the caller passes a non-positive value.
const (
	DefaultPageNo   = 1
	DefaultPageSize = 20
)

// Store is the persistence contract the facade and worker pool depend
// on. All mutating methods must appear atomic per task; implementations
// may use a single store-wide lock, per-task locks, or optimistic
// retries, as long as the per-task invariants hold.
type Store interface {
	// Initialize performs optional one-time setup (e.g. opening a
	// database file under basePath). Implementations for which this is
	// a no-op may ignore the argument.
	Initialize(basePath string) error
	// Destroy releases any resources acquired by Initialize.
	Destroy() error

	// AddTask rejects duplicates by task code equality and returns true
	// on success or if an identical task already exists.
	AddTask(t task.Task) (bool, error)
	// ProcessTask transitions a CREATED task claimed by nodeIdentity to
	// PROCESSING and stamps StartTime. It is idempotent: calling it
	// again for an already-PROCESSING task owned by the same node is a
	// no-op success.
	ProcessTask(taskCode int64, nodeIdentity string) error
	// NextTask returns the next claimable task for nodeIdentity:
	// preferably one already PROCESSING and claimed by nodeIdentity
	// (resume), else the first unclaimed CREATED task (claim). It
	// returns nil, nil when nothing is available.
	NextTask(nodeIdentity string) (task.Task, error)
	// FinishTask transitions a PROCESSING task to FINISHED, stamping
	// EndTime, HasError and ErrorMessage. No-op if the task is not
	// PROCESSING.
	FinishTask(taskCode int64, hasError bool, errorMessage string) error
	// DropTask deletes a task by its owning user. Returns false if no
	// matching task was found.
	DropTask(userCode string, taskCode int64) (bool, error)
	// DropExpired deletes every FINISHED task whose EndTime is before
	// now + expireMillis (an additive cutoff, not subtractive) and
	// returns how many were removed. A non-negative expireMillis
	// therefore deletes every finished task immediately, since EndTime
	// is never after now.
	DropExpired(expireMillis int64) (int, error)
	// TaskList returns a 1-based page of tasks owned by userCode.
	// pageNo <= 0 and limitSize <= 0 fall back to DefaultPageNo and
	// DefaultPageSize respectively.
	TaskList(userCode string, pageNo, limitSize int) ([]task.Task, error)
	// TaskInfo returns the task owned by userCode with the given code,
	// or ErrNotFound.
	TaskInfo(userCode string, taskCode int64) (task.Task, error)
}
