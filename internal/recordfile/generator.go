package recordfile

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// Generator writes one .dat file: it reserves the 8-byte header
// pointer, appends framed records, registers table identifiers lazily
// into a type table, and on Close patches the header with the footer
// offset. A Generator has a single writer and must not be used from
// more than one goroutine at a time.
type Generator struct {
	file       *os.File
	logger     *slog.Logger
	pos        int64
	typeIndex  map[string]uint32
	typeOrder  []string
	totalCount uint64
	closed     bool
}

// Create opens path for writing and reserves the 8-byte header.
func Create(path string, logger *slog.Logger) (*Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create record file: %w", err)
	}
	if _, err := file.Write(make([]byte, headerWidth)); err != nil {
		file.Close()
		return nil, fmt.Errorf("reserve record file header: %w", err)
	}
	return &Generator{
		file:      file,
		logger:    logger,
		pos:       headerWidth,
		typeIndex: make(map[string]uint32),
	}, nil
}

// Append writes one framed record for tableName. A failure while
// writing a single record is isolated: the record is skipped and
// logged, totalCount is not incremented, and no error is returned to
// the caller (matching the generator's "append failures are non-fatal"
// contract). A failure that corrupts the file itself (I/O error on the
// underlying handle) is instead returned, since later appends would be
// unrecoverable.
func (g *Generator) Append(tableName string, remove bool, dataMap map[string]string) error {
	typeIndex := g.typeIndexFor(tableName)

	payload, err := json.Marshal(dataMap)
	if err != nil {
		g.logger.Debug("skip record: encode data map failed", "table", tableName, "error", err)
		return nil
	}

	frame, err := encodeFrame(remove, typeIndex, payload)
	if err != nil {
		g.logger.Debug("skip record: encode frame failed", "table", tableName, "error", err)
		return nil
	}

	written, err := g.file.Write(frame)
	if err != nil {
		return fmt.Errorf("write record frame: %w", err)
	}
	g.pos += int64(written)
	g.totalCount++
	return nil
}

func (g *Generator) typeIndexFor(tableName string) uint32 {
	id := TableIdentifierFunc(tableName)
	if index, ok := g.typeIndex[id]; ok {
		return index
	}
	index := uint32(len(g.typeOrder))
	g.typeIndex[id] = index
	g.typeOrder = append(g.typeOrder, id)
	return index
}

// TableIdentifierFunc maps a table name to its type-table identifier.
// Its default returns the name unchanged, which is what tests that do
// not import the registry package see; the engine facade sets it to
// registry.TableIdentifier in Initialize.
var TableIdentifierFunc = func(tableName string) string { return tableName }

func encodeFrame(remove bool, typeIndex uint32, json []byte) ([]byte, error) {
	payloadLen := minPayloadLen + len(json)
	if payloadLen < minPayloadLen {
		return nil, fmt.Errorf("payload length overflow")
	}
	frame := make([]byte, 4+payloadLen)
	binary.LittleEndian.PutUint32(frame[0:4], uint32(payloadLen))
	if remove {
		frame[4] = 1
	} else {
		frame[4] = 0
	}
	binary.LittleEndian.PutUint32(frame[5:9], typeIndex)
	copy(frame[9:], json)
	return frame, nil
}

// Close writes the footer starting at the current position, then
// patches the 8-byte header pointer back at offset 0 to point at it.
func (g *Generator) Close() error {
	if g.closed {
		return nil
	}
	g.closed = true

	bodyEnd := g.pos
	if err := g.writeFooter(); err != nil {
		g.file.Close()
		return err
	}
	if _, err := g.file.Seek(0, 0); err != nil {
		g.file.Close()
		return fmt.Errorf("seek to header: %w", err)
	}
	header := make([]byte, headerWidth)
	binary.LittleEndian.PutUint64(header, uint64(bodyEnd))
	if _, err := g.file.Write(header); err != nil {
		g.file.Close()
		return fmt.Errorf("patch header: %w", err)
	}
	return g.file.Close()
}

func (g *Generator) writeFooter() error {
	footer := make([]byte, 0, 12+len(g.typeOrder)*typeIdentifierWidth)

	countBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(countBuf, g.totalCount)
	footer = append(footer, countBuf...)

	sizeBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeBuf, uint32(len(g.typeOrder)))
	footer = append(footer, sizeBuf...)

	for _, id := range g.typeOrder {
		entry := make([]byte, typeIdentifierWidth)
		copy(entry, id)
		footer = append(footer, entry...)
	}

	if _, err := g.file.Write(footer); err != nil {
		return fmt.Errorf("write footer: %w", err)
	}
	return nil
}

// TotalCount returns the number of records successfully appended so far.
func (g *Generator) TotalCount() uint64 { return g.totalCount }
