// Package exportworker runs an Export task's queries against a data
// source and appends the results into a spreadsheet workbook, packing
// each row through the marshalling registry.
package exportworker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dwizi/databridge/internal/applyengine"
	"github.com/dwizi/databridge/internal/registry"
	"github.com/dwizi/databridge/internal/task"
)

// WorkbookWriter is the opaque spreadsheet sink the core writes
// through. Concrete implementations (xlsx, csv-per-sheet, ...) live
// outside this package.
type WorkbookWriter interface {
	AppendRow(sheetName string, cells []any) error
	Close() error
}

// ColumnProjector resolves a table's registered columns so a query
// row can be packed at each column's declared external index.
type ColumnProjector interface {
	Lookup(tableIdentifier string) []registry.TransferColumn
}

// WorkbookOpener opens the writer for an export task at the path
// selected by CompatibilityMode.
type WorkbookOpener func(path string, compatibilityMode bool) (WorkbookWriter, error)

// Run executes every QueryInfo in t against source, packing each
// resulting row into the workbook at path. It returns hasError and an
// accumulated errorMessage rather than an error, matching the worker
// contract the pool expects.
func Run(ctx context.Context, t *task.Export, path string, source applyengine.DataSource, reg ColumnProjector, open WorkbookOpener, logger *slog.Logger) (hasError bool, errorMessage string) {
	if logger == nil {
		logger = slog.Default()
	}

	writer, err := open(path, t.CompatibilityMode)
	if err != nil {
		return true, fmt.Sprintf("open workbook: %v", err)
	}

	var failures []string
	for _, queryInfo := range t.QueryList {
		if err := runQuery(ctx, writer, source, reg, queryInfo); err != nil {
			logger.Error("export query failed", "table", queryInfo.TableName, "error", err)
			failures = append(failures, fmt.Sprintf("query %s: %v", queryInfo.TableName, err))
		}
	}

	if err := writer.Close(); err != nil {
		failures = append(failures, fmt.Sprintf("close workbook: %v", err))
	}

	if len(failures) == 0 {
		return false, ""
	}
	message := failures[0]
	for _, f := range failures[1:] {
		message += "\r\n" + f
	}
	return true, message
}

func runQuery(ctx context.Context, writer WorkbookWriter, source applyengine.DataSource, reg ColumnProjector, queryInfo task.QueryInfo) error {
	tableID := registry.TableIdentifier(queryInfo.TableName)
	columns := reg.Lookup(tableID)

	iterator, err := source.Query(ctx, queryInfo)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer iterator.Close()

	for iterator.Next(ctx) {
		row := iterator.Row()
		values := make(map[string]any, len(row))
		for k, v := range row {
			values[k] = v
		}
		cells := registry.EncodeExportRow(columns, values)
		if err := writer.AppendRow(queryInfo.TableName, cells); err != nil {
			return fmt.Errorf("append row: %w", err)
		}
	}
	return iterator.Err()
}
