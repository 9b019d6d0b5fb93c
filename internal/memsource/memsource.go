// Package memsource is a mutex-protected in-memory DataSource, the
// same reference-implementation posture taskstore.MemoryStore takes
// for the task store: enough to run the engine end to end without a
// real database, not a production adapter.
package memsource

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dwizi/databridge/internal/applyengine"
	"github.com/dwizi/databridge/internal/task"
)

// Source implements applyengine.DataSource over an in-process map of
// tables, each a slice of row maps keyed by column name.
type Source struct {
	mu     sync.Mutex
	tables map[string][]map[string]any

	inTransaction bool
	snapshot      map[string][]map[string]any
}

// New builds an empty Source.
func New() *Source {
	return &Source{tables: make(map[string][]map[string]any)}
}

var _ applyengine.DataSource = (*Source)(nil)

func (s *Source) BeginTransactional(ctx context.Context, timeout int, isolation applyengine.Isolation, rollbackKinds []applyengine.RollbackKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inTransaction = true
	s.snapshot = cloneTables(s.tables)
	return nil
}

func (s *Source) Rollback(ctx context.Context, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inTransaction {
		s.tables = s.snapshot
	}
	s.snapshot = nil
	s.inTransaction = false
	return nil
}

func (s *Source) EndTransactional(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = nil
	s.inTransaction = false
	return nil
}

func (s *Source) LockRecord(ctx context.Context, tableID string, filterMap map[string]any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, found := s.findLocked(tableID, filterMap)
	return found, nil
}

func (s *Source) Insert(ctx context.Context, tableID string, dataMap map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row := make(map[string]any, len(dataMap))
	for k, v := range dataMap {
		row[k] = v
	}
	s.tables[tableID] = append(s.tables[tableID], row)
	return nil, nil
}

func (s *Source) Update(ctx context.Context, tableID string, dataMap, filterMap map[string]any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, found := s.findLocked(tableID, filterMap)
	if !found {
		return 0, nil
	}
	for k, v := range dataMap {
		s.tables[tableID][index][k] = v
	}
	return 1, nil
}

func (s *Source) Delete(ctx context.Context, tableID string, filterMap map[string]any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index, found := s.findLocked(tableID, filterMap)
	if !found {
		return 0, nil
	}
	rows := s.tables[tableID]
	s.tables[tableID] = append(rows[:index], rows[index+1:]...)
	return 1, nil
}

func (s *Source) Query(ctx context.Context, queryInfo task.QueryInfo) (applyengine.RowIterator, error) {
	s.mu.Lock()
	rows := append([]map[string]any(nil), s.tables[queryInfo.TableName]...)
	s.mu.Unlock()
	return &rowIterator{rows: rows, index: -1}, nil
}

func (s *Source) findLocked(tableID string, filterMap map[string]any) (int, bool) {
	for i, row := range s.tables[tableID] {
		if rowMatches(row, filterMap) {
			return i, true
		}
	}
	return -1, false
}

func rowMatches(row, filterMap map[string]any) bool {
	for k, v := range filterMap {
		if fmt.Sprintf("%v", row[k]) != fmt.Sprintf("%v", v) {
			return false
		}
	}
	return true
}

func cloneTables(tables map[string][]map[string]any) map[string][]map[string]any {
	out := make(map[string][]map[string]any, len(tables))
	for table, rows := range tables {
		cloned := make([]map[string]any, len(rows))
		for i, row := range rows {
			cloned[i] = make(map[string]any, len(row))
			for k, v := range row {
				cloned[i][k] = v
			}
		}
		out[table] = cloned
	}
	return out
}

type rowIterator struct {
	rows  []map[string]any
	index int
}

func (it *rowIterator) Next(ctx context.Context) bool {
	it.index++
	return it.index < len(it.rows)
}

func (it *rowIterator) Row() applyengine.Row {
	return applyengine.Row(it.rows[it.index])
}

func (it *rowIterator) Err() error   { return nil }
func (it *rowIterator) Close() error { return nil }

// SortedTableNames is a debugging helper that reports, in sorted
// order, which tables currently hold a row slice.
func (s *Source) SortedTableNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
