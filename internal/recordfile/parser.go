package recordfile

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Parser reads one .dat file written by Generator: it resolves the
// footer up front (total record count and type table), then iterates
// frames from the body in order.
type Parser struct {
	file       *os.File
	lookup     ColumnLookup
	bodyEnd    int64
	totalCount uint64
	typeTable  []string
	pos        int64
}

// Open reads the header pointer and footer, then seeks back to the
// start of the body so ReadNext can iterate from the first frame.
// lookup may be nil if the caller never needs the column values (e.g.
// a dry-run record count): with no registered columns every key is
// dropped, so DataMap and PrimaryKey come back empty.
func Open(path string, lookup ColumnLookup) (*Parser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open record file: %w", err)
	}

	header := make([]byte, headerWidth)
	if _, err := io.ReadFull(file, header); err != nil {
		file.Close()
		return nil, &DataParseError{Offset: 0, Reason: "short read of header pointer"}
	}
	bodyEnd := int64(binary.LittleEndian.Uint64(header))

	if _, err := file.Seek(bodyEnd, 0); err != nil {
		file.Close()
		return nil, &DataParseError{Offset: bodyEnd, Reason: "header pointer out of range"}
	}

	footerFixed := make([]byte, 12)
	if _, err := io.ReadFull(file, footerFixed); err != nil {
		file.Close()
		return nil, &DataParseError{Offset: bodyEnd, Reason: "short read of footer"}
	}
	totalCount := binary.LittleEndian.Uint64(footerFixed[0:8])
	typeTableSize := binary.LittleEndian.Uint32(footerFixed[8:12])

	typeTable := make([]string, typeTableSize)
	entry := make([]byte, typeIdentifierWidth)
	for i := uint32(0); i < typeTableSize; i++ {
		if _, err := io.ReadFull(file, entry); err != nil {
			file.Close()
			return nil, &DataParseError{Offset: bodyEnd, Reason: "short read of type table"}
		}
		typeTable[i] = trimNulPadding(entry)
	}

	if _, err := file.Seek(headerWidth, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("seek to body start: %w", err)
	}

	return &Parser{
		file:       file,
		lookup:     lookup,
		bodyEnd:    bodyEnd,
		totalCount: totalCount,
		typeTable:  typeTable,
		pos:        headerWidth,
	}, nil
}

func trimNulPadding(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// TotalCount returns the record count recorded in the footer.
func (p *Parser) TotalCount() uint64 { return p.totalCount }

// Close releases the underlying file handle.
func (p *Parser) Close() error { return p.file.Close() }

// ReadNext decodes one frame from the body. It returns io.EOF once the
// body has been fully consumed (pos has reached bodyEnd).
func (p *Parser) ReadNext() (DataRecord, error) {
	if p.pos >= p.bodyEnd {
		return DataRecord{}, io.EOF
	}

	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(p.file, lenBuf); err != nil {
		return DataRecord{}, &DataParseError{Offset: p.pos, Reason: "short read of frame length"}
	}
	payloadLen := binary.LittleEndian.Uint32(lenBuf)
	p.pos += 4

	if int64(payloadLen) < minPayloadLen {
		return DataRecord{}, &DataInvalidError{Offset: p.pos, Reason: "payload length below minimum"}
	}

	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(p.file, payload); err != nil {
		return DataRecord{}, &DataParseError{Offset: p.pos, Reason: "short read of frame payload"}
	}
	p.pos += int64(payloadLen)

	remove := payload[0] == 1
	typeIndex := binary.LittleEndian.Uint32(payload[1:5])
	if int(typeIndex) >= len(p.typeTable) {
		return DataRecord{}, &DataParseError{Offset: p.pos, Reason: "type index out of range"}
	}
	identifyCode := p.typeTable[typeIndex]

	var raw map[string]any
	decoder := json.NewDecoder(bytes.NewReader(payload[5:]))
	decoder.UseNumber()
	if err := decoder.Decode(&raw); err != nil {
		return DataRecord{}, &DataInvalidError{Offset: p.pos, Reason: "malformed json payload"}
	}

	var columns []Column
	if p.lookup != nil {
		columns = p.lookup.Lookup(identifyCode)
	}
	dataMap := filterKnownColumns(columns, raw)
	primaryKey, _ := splitPrimaryKey(columns, dataMap)

	return DataRecord{
		RemoveOperate: remove,
		IdentifyCode:  identifyCode,
		PrimaryKey:    primaryKey,
		DataMap:       dataMap,
	}, nil
}

// RecordResult is the outcome of applying one DataRecord, reported by
// the caller of Process/ProcessAll so the parser can tally counts and
// decide whether to keep iterating.
type RecordResult struct {
	Success bool
	// Abort, if non-nil, stops iteration immediately (used for
	// transactional rollback: one failed record invalidates the batch).
	Abort error
}

// ProcessAll iterates every frame in the file, invoking apply for each
// successfully decoded DataRecord. A frame-level decode failure
// (DataInvalidError) counts as a failed record unless abortOnInvalid is
// set, in which case it is returned immediately. It returns the number
// of records the callback reported as successful and failed, plus
// whatever error ended iteration early (nil on a clean run to EOF).
func (p *Parser) ProcessAll(abortOnInvalid bool, apply func(DataRecord) RecordResult) (successCount, failedCount uint64, err error) {
	for {
		record, readErr := p.ReadNext()
		if readErr == io.EOF {
			return successCount, failedCount, nil
		}
		if readErr != nil {
			var invalid *DataInvalidError
			if asDataInvalid(readErr, &invalid) && !abortOnInvalid {
				failedCount++
				continue
			}
			return successCount, failedCount, readErr
		}

		result := apply(record)
		if result.Abort != nil {
			return successCount, failedCount, result.Abort
		}
		if result.Success {
			successCount++
		} else {
			failedCount++
		}
	}
}

func asDataInvalid(err error, target **DataInvalidError) bool {
	invalid, ok := err.(*DataInvalidError)
	if !ok {
		return false
	}
	*target = invalid
	return true
}
