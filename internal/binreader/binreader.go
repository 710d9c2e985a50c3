// Package binreader is a small sticky-error cursor over an in-memory byte
// slice, for the fixed-layout little-endian binary formats the VertiPaq
// storage files use (idfmeta, idf, dictionary). Every read advances the
// cursor and bounds-checks against the buffer; once a read fails, every
// later read on that cursor is a no-op returning the zero value, so callers
// can read a whole header field-by-field and check Err() once at the end
// instead of after every field.
package binreader

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Cursor reads sequential little-endian fields from a byte slice.
type Cursor struct {
	data []byte
	pos  int
	err  error
}

// New returns a Cursor positioned at the start of data.
func New(data []byte) *Cursor {
	return &Cursor{data: data}
}

// Err returns the first read error encountered, if any.
func (c *Cursor) Err() error {
	return c.err
}

// Pos returns the current byte offset.
func (c *Cursor) Pos() int {
	return c.pos
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.data) - c.pos
}

func (c *Cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.pos+n > len(c.data) {
		c.err = fmt.Errorf("binreader: need %d bytes at offset %d, have %d", n, c.pos, len(c.data)-c.pos)
		return nil
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b
}

// Bytes reads n raw bytes.
func (c *Cursor) Bytes(n int) []byte {
	b := c.take(n)
	if b == nil {
		return make([]byte, n)
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// Tag reads n bytes and compares them against want, recording an error on
// mismatch (the sticky error still short-circuits subsequent reads).
func (c *Cursor) Tag(want string) {
	got := c.take(len(want))
	if c.err != nil {
		return
	}
	if string(got) != want {
		c.err = fmt.Errorf("binreader: expected tag %q, got %q", want, got)
	}
}

func (c *Cursor) U8() uint8 {
	b := c.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (c *Cursor) U16() uint16 {
	b := c.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (c *Cursor) U32() uint32 {
	b := c.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (c *Cursor) U64() uint64 {
	b := c.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (c *Cursor) I32() int32 {
	return int32(c.U32())
}

func (c *Cursor) I64() int64 {
	return int64(c.U64())
}

func (c *Cursor) F64() float64 {
	return math.Float64frombits(c.U64())
}
