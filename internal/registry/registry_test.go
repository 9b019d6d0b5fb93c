package registry

import (
	"fmt"
	"strconv"
	"testing"
)

func identityColumns() []TransferColumn {
	return []TransferColumn{
		{
			ColumnName:   "age",
			ColumnIndex:  2,
			Marshal:      func(v any) string { return fmt.Sprintf("%v", v) },
			Unmarshal:    func(s string) any { n, _ := strconv.Atoi(s); return n },
		},
		{
			ColumnName:   "id",
			ColumnIndex:  0,
			IsPrimaryKey: true,
			Marshal:      func(v any) string { return fmt.Sprintf("%v", v) },
			Unmarshal:    func(s string) any { n, _ := strconv.Atoi(s); return n },
		},
		{
			ColumnName: "name",
			ColumnIndex: 1,
			Marshal:    func(v any) string { return fmt.Sprintf("%v", v) },
			Unmarshal:  func(s string) any { return s },
		},
	}
}

func TestRegisterSortsByColumnIndex(t *testing.T) {
	r := New(nil)
	id := r.Register("people", identityColumns())

	columns := r.Lookup(id)
	if len(columns) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(columns))
	}
	wantOrder := []string{"id", "name", "age"}
	for i, name := range wantOrder {
		if columns[i].ColumnName != name {
			t.Fatalf("column %d = %s, want %s", i, columns[i].ColumnName, name)
		}
	}
}

func TestRegisterTieBreaksByColumnName(t *testing.T) {
	r := New(nil)
	id := r.Register("tied", []TransferColumn{
		{ColumnName: "zeta", ColumnIndex: 0},
		{ColumnName: "alpha", ColumnIndex: 0},
	})
	columns := r.Lookup(id)
	if columns[0].ColumnName != "alpha" || columns[1].ColumnName != "zeta" {
		t.Fatalf("expected alpha before zeta on tie, got %v, %v", columns[0].ColumnName, columns[1].ColumnName)
	}
}

func TestLookupUnknownTableReturnsEmpty(t *testing.T) {
	r := New(nil)
	if columns := r.Lookup("does-not-exist"); len(columns) != 0 {
		t.Fatalf("expected empty slice for unknown table, got %v", columns)
	}
}

func TestHasPrimaryKey(t *testing.T) {
	r := New(nil)
	id := r.Register("people", identityColumns())
	if !r.HasPrimaryKey(id) {
		t.Fatalf("expected people table to have a primary key")
	}
	noPK := r.Register("nopk", []TransferColumn{{ColumnName: "x", ColumnIndex: 0}})
	if r.HasPrimaryKey(noPK) {
		t.Fatalf("did not expect a primary key")
	}
}

func TestDecodeImportRow(t *testing.T) {
	columns := identityColumns()
	row := []string{"1", "ada", "36"}
	decoded := DecodeImportRow(columns, row)
	if decoded["id"] != "1" || decoded["name"] != "ada" || decoded["age"] != "36" {
		t.Fatalf("unexpected decode result: %#v", decoded)
	}
}

func TestDecodeImportRowSkipsOutOfRange(t *testing.T) {
	columns := []TransferColumn{{ColumnName: "id", ColumnIndex: 5}}
	decoded := DecodeImportRow(columns, []string{"a", "b"})
	if len(decoded) != 0 {
		t.Fatalf("expected no columns decoded, got %#v", decoded)
	}
}

func TestEncodeExportRow(t *testing.T) {
	columns := identityColumns()
	cells := EncodeExportRow(columns, map[string]any{"id": 1, "name": "ada", "age": 36})
	if len(cells) != 3 {
		t.Fatalf("expected 3 cells, got %d", len(cells))
	}
	if cells[0] != "1" || cells[1] != "ada" || cells[2] != "36" {
		t.Fatalf("unexpected cells: %#v", cells)
	}
}

func TestAsColumns(t *testing.T) {
	cols := AsColumns(identityColumns())
	if len(cols) != 3 {
		t.Fatalf("expected 3 columns, got %d", len(cols))
	}
	var sawPK bool
	for _, c := range cols {
		if c.Name == "id" {
			sawPK = c.IsPrimaryKey
		}
	}
	if !sawPK {
		t.Fatalf("expected id column to carry IsPrimaryKey through")
	}
}

func TestSplitPrimaryKey(t *testing.T) {
	columns := identityColumns()
	dataMap := map[string]string{"id": "1", "name": "ada", "age": "36", "unknown": "x"}
	pk, nonPK := SplitPrimaryKey(columns, dataMap)

	if len(pk) != 1 || pk["id"] != 1 {
		t.Fatalf("unexpected primary key map: %#v", pk)
	}
	if len(nonPK) != 2 || nonPK["name"] != "ada" || nonPK["age"] != 36 {
		t.Fatalf("unexpected non-key map: %#v", nonPK)
	}
	if _, ok := pk["unknown"]; ok {
		t.Fatalf("unregistered key must be ignored")
	}
	if _, ok := nonPK["unknown"]; ok {
		t.Fatalf("unregistered key must be ignored")
	}
}
