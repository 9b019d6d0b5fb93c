package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dwizi/databridge/internal/applyengine"
	"github.com/dwizi/databridge/internal/exportworker"
	"github.com/dwizi/databridge/internal/recordfile"
	"github.com/dwizi/databridge/internal/registry"
	"github.com/dwizi/databridge/internal/task"
	"github.com/dwizi/databridge/internal/workerpool"
)

// dispatcher builds the concrete import/export Worker for a claimed
// task, gluing recordfile, applyengine, exportworker and the registry
// together behind workerpool's narrow Dispatcher seam.
type dispatcher struct {
	basePath       string
	source         applyengine.DataSource
	registry       *registry.Registry
	workbookOpener exportworker.WorkbookOpener
	logger         *slog.Logger
}

var _ workerpool.Dispatcher = (*dispatcher)(nil)

func (d *dispatcher) NewWorker(t task.Task) (workerpool.Worker, error) {
	switch v := t.(type) {
	case *task.Import:
		return &importWorker{task: v, dispatcher: d}, nil
	case *task.Export:
		return &exportWorker{task: v, dispatcher: d}, nil
	default:
		return nil, fmt.Errorf("engine: unknown task kind %T", t)
	}
}

func (d *dispatcher) columnLookup() recordfile.ColumnLookup {
	return recordfile.LookupFunc(func(tableIdentifier string) []recordfile.Column {
		return registry.AsColumns(d.registry.Lookup(tableIdentifier))
	})
}

// importWorker applies one Import task's binary record stream against
// the data source, batching under one transaction when requested.
type importWorker struct {
	task       *task.Import
	dispatcher *dispatcher
}

func (w *importWorker) Task() task.Task { return w.task }

func (w *importWorker) Run(ctx context.Context) (hasError bool, errorMessage string) {
	d := w.dispatcher
	parser, err := recordfile.Open(w.task.DataPath, d.columnLookup())
	if err != nil {
		return true, fmt.Sprintf("open record file: %v", err)
	}
	defer parser.Close()

	eng := applyengine.New(d.source, d.registry, d.logger)
	batch, err := eng.Begin(ctx, w.task.Transactional, w.task.TimeoutSec)
	if err != nil {
		return true, fmt.Sprintf("begin batch: %v", err)
	}

	var aborted error
	successCount, failedCount, err := parser.ProcessAll(false, func(record recordfile.DataRecord) recordfile.RecordResult {
		outcome := batch.Apply(record)
		if outcome.Abort != nil {
			aborted = outcome.Abort
			return recordfile.RecordResult{Abort: outcome.Abort}
		}
		return recordfile.RecordResult{Success: outcome.Success}
	})
	if endErr := batch.End(); endErr != nil && aborted == nil {
		aborted = endErr
	}

	if err != nil {
		d.logger.Error("import worker: process all failed", "task_code", w.task.Code, "error", err)
		return true, fmt.Sprintf("process records: %v", err)
	}
	if aborted != nil {
		return true, fmt.Sprintf("transactional batch aborted: %v", aborted)
	}
	if failedCount > 0 {
		return true, fmt.Sprintf("%d of %d records failed to apply", failedCount, successCount+failedCount)
	}
	return false, ""
}

// exportWorker runs one Export task's query list into a workbook.
type exportWorker struct {
	task       *task.Export
	dispatcher *dispatcher
}

func (w *exportWorker) Task() task.Task { return w.task }

func (w *exportWorker) Run(ctx context.Context) (hasError bool, errorMessage string) {
	d := w.dispatcher
	path := ExportPath(d.basePath, w.task.Code, w.task.CompatibilityMode)
	return exportworker.Run(ctx, w.task, path, d.source, d.registry, d.workbookOpener, d.logger)
}
