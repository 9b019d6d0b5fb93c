// Package csvworkbook is a reference exportworker.WorkbookWriter: one
// CSV file per sheet name, since a concrete spreadsheet encoder is an
// external collaborator out of this core's scope.
package csvworkbook

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// Writer implements exportworker.WorkbookWriter by opening one
// encoding/csv.Writer per sheet name under basePath the first time a
// row for that sheet is appended.
type Writer struct {
	basePath string
	sheets   map[string]*csv.Writer
	files    map[string]*os.File
}

// Open satisfies exportworker.WorkbookOpener. compatibilityMode is
// unused: CSV has no legacy/modern split.
func Open(path string, compatibilityMode bool) (*Writer, error) {
	return &Writer{
		basePath: strings.TrimSuffix(path, ".xlsx"),
		sheets:   make(map[string]*csv.Writer),
		files:    make(map[string]*os.File),
	}, nil
}

func (w *Writer) AppendRow(sheetName string, cells []any) error {
	writer, err := w.sheetWriter(sheetName)
	if err != nil {
		return err
	}
	record := make([]string, len(cells))
	for i, cell := range cells {
		record[i] = fmt.Sprintf("%v", cell)
	}
	return writer.Write(record)
}

func (w *Writer) sheetWriter(sheetName string) (*csv.Writer, error) {
	if writer, ok := w.sheets[sheetName]; ok {
		return writer, nil
	}
	file, err := os.Create(fmt.Sprintf("%s.%s.csv", w.basePath, sheetName))
	if err != nil {
		return nil, err
	}
	writer := csv.NewWriter(file)
	w.files[sheetName] = file
	w.sheets[sheetName] = writer
	return writer, nil
}

func (w *Writer) Close() error {
	var firstErr error
	for name, writer := range w.sheets {
		writer.Flush()
		if err := writer.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := w.files[name].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
