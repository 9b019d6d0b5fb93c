package engine

import (
	"encoding/hex"
	"encoding/binary"
	"path/filepath"
)

// hexTaskCode renders a taskCode the way the file-path conventions
// require: hex(taskCode), not its decimal string form.
func hexTaskCode(taskCode int64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(taskCode))
	return hex.EncodeToString(buf)
}

// ImportPath is where an import task's uploaded stream is written.
func ImportPath(basePath string, taskCode int64) string {
	return filepath.Join(basePath, hexTaskCode(taskCode)+".dat")
}

// exportExtension returns the compatibility-mode-specific spreadsheet
// extension: legacy .xls in compatibility mode, .xlsx otherwise.
func exportExtension(compatibilityMode bool) string {
	if compatibilityMode {
		return ".xls"
	}
	return ".xlsx"
}

// ExportPath is where an export task's workbook is written.
func ExportPath(basePath string, taskCode int64, compatibilityMode bool) string {
	return filepath.Join(basePath, hexTaskCode(taskCode)+exportExtension(compatibilityMode))
}
