// Package applyengine turns one parsed binary record into a delete or
// upsert against an external DataSource, with optional transactional
// batching and rollback classification.
package applyengine

import (
	"context"
	"log/slog"

	"github.com/dwizi/databridge/internal/recordfile"
	"github.com/dwizi/databridge/internal/registry"
)

// ColumnProjector is the registry dependency the engine needs:
// resolving a table identifier's registered columns so a record's
// string-keyed maps can be unmarshalled into primary-key and non-key
// value maps.
type ColumnProjector interface {
	Lookup(tableIdentifier string) []registry.TransferColumn
}

// Engine applies DataRecords against a DataSource.
type Engine struct {
	source    DataSource
	registry  ColumnProjector
	logger    *slog.Logger
}

// New builds an Engine. A nil logger falls back to slog.Default.
func New(source DataSource, reg ColumnProjector, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{source: source, registry: reg, logger: logger}
}

// Batch groups a sequence of Apply calls under one transaction when
// transactional is true. Begin/End are no-ops otherwise.
type Batch struct {
	engine        *Engine
	transactional bool
	ctx           context.Context
}

// Begin opens a batch. If transactional, it calls
// DataSource.BeginTransactional with the fixed READ_COMMITTED
// isolation and the three rollback kinds the spec wires in.
func (e *Engine) Begin(ctx context.Context, transactional bool, timeoutSec int) (*Batch, error) {
	batch := &Batch{engine: e, transactional: transactional, ctx: ctx}
	if !transactional {
		return batch, nil
	}
	err := e.source.BeginTransactional(ctx, timeoutSec, ReadCommitted, []RollbackKind{RollbackInsert, RollbackUpdate, RollbackDrop})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// End closes a transactional batch (no-op otherwise).
func (b *Batch) End() error {
	if !b.transactional {
		return nil
	}
	return b.engine.source.EndTransactional(b.ctx)
}

// ApplyOutcome reports what happened to one record, feeding the
// parser's ProcessAll tally and abort decision.
type ApplyOutcome struct {
	Success bool
	// Abort is set when a transactional batch must stop: either the
	// record's failure kind is one of the configured rollback kinds, or
	// rollback itself failed.
	Abort error
}

// Apply projects record through the registry and applies it: delete
// when RemoveOperate, otherwise lock-then-update-or-insert. In a
// transactional batch, a failure whose kind is InsertError, UpdateError
// or DropError triggers DataSource.Rollback and aborts; any other
// failure is reported as a per-record failure and the batch continues.
func (b *Batch) Apply(record recordfile.DataRecord) ApplyOutcome {
	engine := b.engine
	columns := engine.registry.Lookup(record.IdentifyCode)
	filterMap, convertMap := registry.SplitPrimaryKey(columns, record.DataMap)

	var err error
	if record.RemoveOperate {
		_, err = engine.source.Delete(b.ctx, record.IdentifyCode, filterMap)
		if err != nil {
			err = &DropError{Cause: err}
		}
	} else {
		err = engine.upsert(b.ctx, record.IdentifyCode, filterMap, convertMap)
	}

	if err == nil {
		return ApplyOutcome{Success: true}
	}

	engine.logger.Debug("apply record failed", "table_id", record.IdentifyCode, "error", err)

	if !b.transactional {
		return ApplyOutcome{Success: false}
	}
	if _, rollbackKind := kindOf(err); rollbackKind {
		if rollbackErr := engine.source.Rollback(b.ctx, err); rollbackErr != nil {
			return ApplyOutcome{Abort: rollbackErr}
		}
		return ApplyOutcome{Abort: err}
	}
	return ApplyOutcome{Success: false}
}

func (e *Engine) upsert(ctx context.Context, tableID string, filterMap, convertMap map[string]any) error {
	locked, err := e.source.LockRecord(ctx, tableID, filterMap)
	if err != nil {
		return &UpdateError{Cause: err}
	}
	if locked {
		if _, err := e.source.Update(ctx, tableID, convertMap, filterMap); err != nil {
			return &UpdateError{Cause: err}
		}
		return nil
	}

	allMap := make(map[string]any, len(filterMap)+len(convertMap))
	for k, v := range filterMap {
		allMap[k] = v
	}
	for k, v := range convertMap {
		allMap[k] = v
	}
	if _, err := e.source.Insert(ctx, tableID, allMap); err != nil {
		return &InsertError{Cause: err}
	}
	return nil
}
