// Package registry holds the process-wide column marshalling tables
// used to translate between external (textual/spreadsheet) values and
// the binary record stream: one ordered list of TransferColumn per
// logical table, keyed by a hex(sha256(tableName)) identifier.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dwizi/databridge/internal/recordfile"
)

// TableIdentifier returns the fixed-width, privacy-preserving handle
// used on the wire wherever a table name would otherwise appear.
func TableIdentifier(tableName string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(tableName)))
	return hex.EncodeToString(sum[:])
}

// TransferColumn describes one column of a table as seen from outside
// the core: its logical name, its position in an externally projected
// row (spreadsheet or import payload), whether it participates in the
// primary key, and the marshal/unmarshal pair used to cross the
// string boundary of the binary record format.
type TransferColumn struct {
	ColumnName  string
	ColumnIndex int
	IsPrimaryKey bool
	Marshal     func(any) string
	Unmarshal   func(string) any
}

// Registry is a mutable table -> ordered column list map. Reads never
// observe a torn list: Register swaps an immutable slice pointer under
// lock, so a caller holding a previously returned slice from Lookup is
// never surprised mid-iteration.
type Registry struct {
	mu      sync.RWMutex
	tables  map[string][]TransferColumn
	logger  *slog.Logger
}

// New builds an empty registry. A nil logger falls back to slog.Default.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tables: make(map[string][]TransferColumn),
		logger: logger,
	}
}

// Register sorts columns ascending by ColumnIndex (ties broken by
// ColumnName) and stores them under the table's identifier.
// Re-registering an already-known table logs a warning and replaces
// the prior column list outright.
func (r *Registry) Register(tableName string, columns []TransferColumn) string {
	id := TableIdentifier(tableName)
	sorted := append([]TransferColumn(nil), columns...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ColumnIndex != sorted[j].ColumnIndex {
			return sorted[i].ColumnIndex < sorted[j].ColumnIndex
		}
		return sorted[i].ColumnName < sorted[j].ColumnName
	})

	r.mu.Lock()
	_, exists := r.tables[id]
	r.tables[id] = sorted
	r.mu.Unlock()

	if exists {
		r.logger.Warn("replacing existing transfer column registration", "table", tableName, "table_id", id)
	}
	return id
}

// Lookup returns the ordered column list for a table identifier, or an
// empty slice if the table was never registered. Callers must treat a
// nil/empty result as "skip marshalling for this record", not an error.
func (r *Registry) Lookup(tableIdentifier string) []TransferColumn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tables[tableIdentifier]
}

// HasPrimaryKey reports whether the table's column list declares at
// least one primary-key column, a precondition for applying
// updates/deletes during import.
func (r *Registry) HasPrimaryKey(tableIdentifier string) bool {
	for _, column := range r.Lookup(tableIdentifier) {
		if column.IsPrimaryKey {
			return true
		}
	}
	return false
}

// AsColumns narrows a slice of TransferColumn down to the recordfile
// package's minimal view (name + primary-key flag), so the parser can
// split a record's data map without importing this package directly.
func AsColumns(columns []TransferColumn) []recordfile.Column {
	out := make([]recordfile.Column, len(columns))
	for i, c := range columns {
		out[i] = recordfile.Column{Name: c.ColumnName, IsPrimaryKey: c.IsPrimaryKey}
	}
	return out
}

// MaxColumnIndex returns the highest ColumnIndex registered for a
// table, or -1 if the table has no externally-projected columns. It is
// used by export encoding to size the per-row cell slice.
func MaxColumnIndex(columns []TransferColumn) int {
	max := -1
	for _, column := range columns {
		if column.ColumnIndex > max {
			max = column.ColumnIndex
		}
	}
	return max
}
