package applyengine

import (
	"context"

	"github.com/dwizi/databridge/internal/task"
)

// Isolation names the transaction isolation level requested of the
// data source when a transactional import begins. The core only ever
// requests ReadCommitted; it is named as a type so a DataSource
// implementation can refuse an unsupported level loudly.
type Isolation string

const ReadCommitted Isolation = "READ_COMMITTED"

// Row is one result row from DataSource.Query: column name -> value.
type Row map[string]any

// RowIterator walks the result of one query. Next returns false once
// exhausted or on error; Err reports which.
type RowIterator interface {
	Next(ctx context.Context) bool
	Row() Row
	Err() error
	Close() error
}

// DataSource is the external collaborator the apply engine and export
// worker drive. The core treats it as opaque: no SQL dialect, pooling,
// or schema knowledge crosses this boundary.
type DataSource interface {
	BeginTransactional(ctx context.Context, timeout int, isolation Isolation, rollbackKinds []RollbackKind) error
	Rollback(ctx context.Context, cause error) error
	EndTransactional(ctx context.Context) error

	LockRecord(ctx context.Context, tableID string, filterMap map[string]any) (bool, error)
	Insert(ctx context.Context, tableID string, dataMap map[string]any) (generatedKeys map[string]any, err error)
	Update(ctx context.Context, tableID string, dataMap, filterMap map[string]any) (rowsAffected int, err error)
	Delete(ctx context.Context, tableID string, filterMap map[string]any) (rowsAffected int, err error)
	Query(ctx context.Context, queryInfo task.QueryInfo) (RowIterator, error)
}
