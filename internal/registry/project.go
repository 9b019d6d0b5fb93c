package registry

// DecodeImportRow turns one externally-projected row (e.g. a
// spreadsheet row already split into cells) into a column name ->
// string value map, using only columns whose ColumnIndex falls inside
// the row's bounds. It is used while generating a binary record from
// an import source row.
func DecodeImportRow(columns []TransferColumn, row []string) map[string]string {
	out := make(map[string]string, len(columns))
	for _, column := range columns {
		if column.ColumnIndex < 0 || column.ColumnIndex >= len(row) {
			continue
		}
		out[column.ColumnName] = row[column.ColumnIndex]
	}
	return out
}

// EncodeExportRow packs a column name -> value map into a pre-sized
// cell slice of length MaxColumnIndex+1, placing each value at its
// declared ColumnIndex. Columns with a negative index (not externally
// projected) are skipped. Unfilled cells stay nil.
func EncodeExportRow(columns []TransferColumn, values map[string]any) []any {
	width := MaxColumnIndex(columns) + 1
	if width <= 0 {
		return nil
	}
	cells := make([]any, width)
	for _, column := range columns {
		if column.ColumnIndex < 0 {
			continue
		}
		value, ok := values[column.ColumnName]
		if !ok {
			continue
		}
		cells[column.ColumnIndex] = column.Marshal(value)
	}
	return cells
}

// SplitPrimaryKey separates a decoded column->string map (the JSON
// object embedded in one binary record) into primary-key and non-
// primary-key maps, unmarshalling each value through the column's
// Unmarshal function. Keys absent from the registered column list are
// ignored, matching the wire contract ("records with keys not present
// in the registered columns are ignored on read").
func SplitPrimaryKey(columns []TransferColumn, dataMap map[string]string) (primaryKey map[string]any, nonKey map[string]any) {
	primaryKey = make(map[string]any)
	nonKey = make(map[string]any)
	byName := make(map[string]TransferColumn, len(columns))
	for _, column := range columns {
		byName[column.ColumnName] = column
	}
	for name, raw := range dataMap {
		column, ok := byName[name]
		if !ok {
			continue
		}
		value := raw
		var unmarshalled any = value
		if column.Unmarshal != nil {
			unmarshalled = column.Unmarshal(value)
		}
		if column.IsPrimaryKey {
			primaryKey[name] = unmarshalled
		} else {
			nonKey[name] = unmarshalled
		}
	}
	return primaryKey, nonKey
}
