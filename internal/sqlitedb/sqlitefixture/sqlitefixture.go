// Package sqlitefixture builds small, real SQLite-file-format byte streams
// for tests: just enough of the on-disk format (single-leaf-page tables, no
// overflow) to exercise internal/sqlitedb and its callers against genuine
// varint/record bytes rather than hand-rolled stand-ins.
package sqlitefixture

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	pageSize   = 4096
	leafPage   = 0x0D
	headerSize = 100
)

// Row is one record to encode: a rowid and its ordered column values.
// Supported value types: nil, bool, int64 (or int), float64, string, []byte.
type Row struct {
	RowID  int64
	Values []any
}

// Builder accumulates tables and produces a SQLite file. Tables are
// assigned root pages in the order they're added, starting at page 2
// (page 1 is always sqlite_master).
type Builder struct {
	tableOrder []string
	tables     map[string][]Row
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{tables: make(map[string][]Row)}
}

// AddTable registers a table's rows under name.
func (b *Builder) AddTable(name string, rows []Row) {
	if _, exists := b.tables[name]; !exists {
		b.tableOrder = append(b.tableOrder, name)
	}
	b.tables[name] = rows
}

// Build assembles the final file: page 1 (sqlite_master) followed by one
// page per added table, in the order they were added.
func (b *Builder) Build() ([]byte, error) {
	var masterRows []Row
	var dataPages [][]byte

	for i, name := range b.tableOrder {
		rootPage := int64(i + 2)
		masterRows = append(masterRows, Row{
			RowID:  int64(i + 1),
			Values: []any{"table", name, name, rootPage, nil},
		})

		page, err := buildLeafPage(pageSize, 0, b.tables[name])
		if err != nil {
			return nil, fmt.Errorf("sqlitefixture: table %q: %w", name, err)
		}
		dataPages = append(dataPages, page)
	}

	// Page 1 is a full pageSize-byte page: the 100-byte database header
	// occupies its first 100 bytes, with the b-tree header for
	// sqlite_master starting immediately after.
	masterPage, err := buildLeafPage(pageSize, headerSize, masterRows)
	if err != nil {
		return nil, fmt.Errorf("sqlitefixture: sqlite_master: %w", err)
	}
	copy(masterPage[0:16], []byte("SQLite format 3\x00"))
	binary.BigEndian.PutUint16(masterPage[16:18], uint16(pageSize))
	// reserved-bytes byte (offset 20) left at zero.

	out := make([]byte, 0, pageSize*(1+len(dataPages)))
	out = append(out, masterPage...)
	for _, p := range dataPages {
		out = append(out, p...)
	}
	return out, nil
}

// buildLeafPage encodes rows into a pageSize-byte table-leaf b-tree page.
// prefixLen reserves room before the b-tree header (100 on page 1, 0
// otherwise) and is folded into the total page length, matching how page 1
// carries the database header ahead of its b-tree page.
func buildLeafPage(totalSize, prefixLen int, rows []Row) ([]byte, error) {
	cells := make([][]byte, 0, len(rows))
	for _, r := range rows {
		record, err := encodeRecord(r.Values)
		if err != nil {
			return nil, err
		}
		cell := append(encodeVarint(uint64(len(record))), encodeVarint(uint64(r.RowID))...)
		cell = append(cell, record...)
		cells = append(cells, cell)
	}

	hdrOff := prefixLen
	ptrAreaOff := hdrOff + 8
	cellsStart := ptrAreaOff + 2*len(cells)

	page := make([]byte, totalSize)
	page[hdrOff] = leafPage
	binary.BigEndian.PutUint16(page[hdrOff+3:hdrOff+5], uint16(len(cells)))

	pos := cellsStart
	for i, cell := range cells {
		if pos+len(cell) > totalSize {
			return nil, fmt.Errorf("sqlitefixture: page overflow (fixtures must fit a single page)")
		}
		binary.BigEndian.PutUint16(page[ptrAreaOff+2*i:ptrAreaOff+2*i+2], uint16(pos))
		copy(page[pos:pos+len(cell)], cell)
		pos += len(cell)
	}

	return page, nil
}

// encodeRecord builds a SQLite record body: a varint-length header of
// serial types followed by the values they describe.
func encodeRecord(values []any) ([]byte, error) {
	var serialTypes []byte
	var body []byte

	for _, v := range values {
		st, b, err := encodeValue(v)
		if err != nil {
			return nil, err
		}
		serialTypes = append(serialTypes, encodeVarint(uint64(st))...)
		body = append(body, b...)
	}

	headerLen := encodeVarint(uint64(len(serialTypes) + 1))
	// The header-length varint's own encoded size can grow by one byte
	// exactly at a handful of boundary sizes; reject those rather than
	// silently emitting a malformed record (no fixture used by this
	// package's callers is anywhere near that size).
	if len(encodeVarint(uint64(len(serialTypes)+len(headerLen)))) != len(headerLen) {
		return nil, fmt.Errorf("sqlitefixture: header length varint is unstable at this size")
	}

	out := append(headerLen, serialTypes...)
	out = append(out, body...)
	return out, nil
}

func encodeValue(v any) (int64, []byte, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil, nil
	case bool:
		if x {
			return 9, nil, nil
		}
		return 8, nil, nil
	case int:
		return encodeInt(int64(x))
	case int64:
		return encodeInt(x)
	case float64:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], math.Float64bits(x))
		return 7, buf[:], nil
	case string:
		b := []byte(x)
		return 13 + 2*int64(len(b)), b, nil
	case []byte:
		return 12 + 2*int64(len(x)), x, nil
	default:
		return 0, nil, fmt.Errorf("sqlitefixture: unsupported value type %T", v)
	}
}

func encodeInt(v int64) (int64, []byte, error) {
	switch {
	case v >= -0x80 && v <= 0x7F:
		return 1, []byte{byte(v)}, nil
	case v >= -0x8000 && v <= 0x7FFF:
		return 2, beBytes(v, 2), nil
	case v >= -0x800000 && v <= 0x7FFFFF:
		return 3, beBytes(v, 3), nil
	case v >= -0x80000000 && v <= 0x7FFFFFFF:
		return 4, beBytes(v, 4), nil
	case v >= -0x800000000000 && v <= 0x7FFFFFFFFFFF:
		return 5, beBytes(v, 6), nil
	default:
		return 6, beBytes(v, 8), nil
	}
}

// beBytes returns the low n bytes of v in big-endian order: valid
// two's-complement truncation for any v within the caller-checked range.
func beBytes(v int64, n int) []byte {
	out := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// encodeVarint mirrors sqlitedb's readVarint: up to 8 groups of 7 bits
// (continuation in the top bit), or a 9th byte contributing a full 8 bits
// when the value doesn't fit in 56 bits.
func encodeVarint(v uint64) []byte {
	if v>>56 == 0 {
		n := 1
		for tmp := v >> 7; tmp != 0; tmp >>= 7 {
			n++
		}
		out := make([]byte, n)
		for i := n - 1; i >= 0; i-- {
			out[i] = byte(v & 0x7f)
			if i != n-1 {
				out[i] |= 0x80
			}
			v >>= 7
		}
		return out
	}

	var out [9]byte
	hi := v >> 8
	for i := 0; i < 8; i++ {
		shift := uint(7 * (7 - i))
		out[i] = byte((hi>>shift)&0x7f) | 0x80
	}
	out[8] = byte(v)
	return out[:]
}
