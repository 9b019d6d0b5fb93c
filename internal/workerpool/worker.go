package workerpool

import (
	"context"

	"github.com/dwizi/databridge/internal/task"
)

// Worker runs one task to completion. Run blocks until the task is
// fully processed (or the context is cancelled) and reports the
// outcome the pool will pass to store.FinishTask.
type Worker interface {
	Task() task.Task
	Run(ctx context.Context) (hasError bool, errorMessage string)
}

// Dispatcher builds the kind-specific Worker for a claimed task. An
// error return means the task kind is unrecognized; the scheduling
// tick that encounters it aborts without progress.
type Dispatcher interface {
	NewWorker(t task.Task) (Worker, error)
}
