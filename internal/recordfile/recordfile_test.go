package recordfile

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func peopleColumns() []Column {
	return []Column{
		{Name: "id", IsPrimaryKey: true},
		{Name: "name"},
	}
}

func lookupFor(columns []Column) ColumnLookup {
	return LookupFunc(func(string) []Column { return columns })
}

func TestGeneratorParserRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "people.dat")

	gen, err := Create(path, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gen.Append("people", false, map[string]string{"id": "1", "name": "ada"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := gen.Append("people", true, map[string]string{"id": "2", "name": "bob"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := gen.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	parser, err := Open(path, lookupFor(peopleColumns()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer parser.Close()

	if parser.TotalCount() != 2 {
		t.Fatalf("expected total count 2, got %d", parser.TotalCount())
	}

	first, err := parser.ReadNext()
	if err != nil {
		t.Fatalf("read first: %v", err)
	}
	if first.RemoveOperate {
		t.Fatalf("first record should not be a delete")
	}
	if first.PrimaryKey["id"] != "1" {
		t.Fatalf("unexpected primary key: %#v", first.PrimaryKey)
	}
	if first.DataMap["name"] != "ada" {
		t.Fatalf("unexpected data map: %#v", first.DataMap)
	}

	second, err := parser.ReadNext()
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !second.RemoveOperate {
		t.Fatalf("second record should be a delete")
	}
	if second.PrimaryKey["id"] != "2" {
		t.Fatalf("unexpected primary key: %#v", second.PrimaryKey)
	}

	if _, err := parser.ReadNext(); err != io.EOF {
		t.Fatalf("expected io.EOF after last record, got %v", err)
	}
}

func TestGeneratorAssignsTypeIndexPerTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "multi.dat")

	gen, err := Create(path, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gen.Append("a", false, map[string]string{"id": "1"}); err != nil {
		t.Fatalf("append a: %v", err)
	}
	if err := gen.Append("b", false, map[string]string{"id": "2"}); err != nil {
		t.Fatalf("append b: %v", err)
	}
	if err := gen.Append("a", false, map[string]string{"id": "3"}); err != nil {
		t.Fatalf("append a again: %v", err)
	}
	if err := gen.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(gen.typeOrder) != 2 {
		t.Fatalf("expected 2 distinct tables in type table, got %d", len(gen.typeOrder))
	}
	if gen.typeIndex[TableIdentifierFunc("a")] != 0 {
		t.Fatalf("expected table a to get type index 0")
	}
	if gen.typeIndex[TableIdentifierFunc("b")] != 1 {
		t.Fatalf("expected table b to get type index 1")
	}
}

func TestParserFooterOffsetMatchesHeaderPointer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offset.dat")

	gen, err := Create(path, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gen.Append("people", false, map[string]string{"id": "1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	wantBodyEnd := gen.pos
	if err := gen.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := readFileHeader(t, path)
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if int64(raw) != wantBodyEnd {
		t.Fatalf("header pointer = %d, want %d", raw, wantBodyEnd)
	}
}

func readFileHeader(t *testing.T, path string) (uint64, error) {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	buf := make([]byte, headerWidth)
	if _, err := io.ReadFull(f, buf); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf), nil
}

func TestProcessAllCountsSuccessAndFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apply.dat")

	gen, err := Create(path, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gen.Append("people", false, map[string]string{"id": "1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := gen.Append("people", false, map[string]string{"id": "2"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := gen.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	parser, err := Open(path, lookupFor(peopleColumns()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer parser.Close()

	seen := 0
	success, failed, err := parser.ProcessAll(false, func(record DataRecord) RecordResult {
		seen++
		return RecordResult{Success: record.PrimaryKey["id"] == "1"}
	})
	if err != nil {
		t.Fatalf("process all: %v", err)
	}
	if seen != 2 {
		t.Fatalf("expected 2 records visited, got %d", seen)
	}
	if success != 1 || failed != 1 {
		t.Fatalf("expected 1 success and 1 failure, got success=%d failed=%d", success, failed)
	}
}

func TestReadNextFailsWholeFileOnOutOfRangeTypeIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "badtype.dat")

	gen, err := Create(path, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := gen.Append("people", false, map[string]string{"id": "1"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := gen.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Corrupt the first frame's typeIndex (4 bytes after the 4-byte
	// length prefix and 1-byte remove flag) to a value past the
	// single-entry type table the footer describes.
	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("reopen for corruption: %v", err)
	}
	typeIndexOffset := int64(headerWidth + 4 + 1)
	bad := make([]byte, 4)
	binary.LittleEndian.PutUint32(bad, 99)
	if _, err := file.WriteAt(bad, typeIndexOffset); err != nil {
		t.Fatalf("corrupt type index: %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("close corrupted file: %v", err)
	}

	readParser, err := Open(path, lookupFor(peopleColumns()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer readParser.Close()

	_, err = readParser.ReadNext()
	var parseErr *DataParseError
	if !asType(err, &parseErr) {
		t.Fatalf("expected *DataParseError, got %v (%T)", err, err)
	}

	processParser, err := Open(path, lookupFor(peopleColumns()))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer processParser.Close()

	calls := 0
	_, _, processErr := processParser.ProcessAll(false, func(record DataRecord) RecordResult {
		calls++
		return RecordResult{Success: true}
	})
	if !asType(processErr, &parseErr) {
		t.Fatalf("expected ProcessAll to surface *DataParseError, got %v", processErr)
	}
	if calls != 0 {
		t.Fatalf("expected ProcessAll to abort before invoking apply, got %d calls", calls)
	}
}

func asType(err error, target **DataParseError) bool {
	parseErr, ok := err.(*DataParseError)
	if !ok {
		return false
	}
	*target = parseErr
	return true
}

func TestProcessAllAbortsOnRequest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abort.dat")

	gen, err := Create(path, nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := gen.Append("people", false, map[string]string{"id": "x"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := gen.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	parser, err := Open(path, lookupFor(peopleColumns()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer parser.Close()

	abortErr := &DataInvalidError{Offset: 0, Reason: "forced"}
	calls := 0
	_, _, err = parser.ProcessAll(false, func(record DataRecord) RecordResult {
		calls++
		return RecordResult{Abort: abortErr}
	})
	if err != abortErr {
		t.Fatalf("expected abort error to propagate, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected iteration to stop after first abort, got %d calls", calls)
	}
}
