package xpress8

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func block(uncompSize uint32, payload []byte) []byte {
	var buf bytes.Buffer
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], uncompSize)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(payload)))
	buf.Write(hdr[:])
	buf.Write(payload)
	return buf.Bytes()
}

// P8: stored blocks (compSize == uncompSize) round-trip verbatim.
func TestDecompress_StoredBlockIsVerbatim(t *testing.T) {
	payload := []byte("hello, vertipaq")
	stream := block(uint32(len(payload)), payload)

	got, err := Decompress(stream)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestDecompress_LiteralsOnly(t *testing.T) {
	// Flag byte 0x00: all 8 following bytes are literals.
	encoded := append([]byte{0x00}, []byte("abcdefgh")...)
	stream := block(8, encoded)

	got, err := Decompress(stream)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if string(got) != "abcdefgh" {
		t.Fatalf("got %q, want %q", got, "abcdefgh")
	}
}

func TestDecompress_MatchCopiesPriorBytes(t *testing.T) {
	// Emit literals "ab", then a match copying 4 bytes from offset 1
	// (matchOffset must be odd: (b1&0xF8)<<5 | b0 | 1).
	// matchOffset=1 => b0 | (b1&0xF8)<<5 | 1 == 1 => b0=0, b1&0xF8=0.
	// matchLen=4 => (b1&0x07)+3==4 => b1&0x07==1. So b1=1, b0=0.
	// The 5 encoded bytes decode to 6, so compSize != uncompSize and the
	// block is decoded rather than stored.
	flag := byte(0x04) // bit0=lit, bit1=lit, bit2=match, rest unused
	encoded := []byte{flag, 'a', 'b', 0x00, 0x01}
	stream := block(6, encoded)

	got, err := Decompress(stream)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	// After "ab", match offset 1 copies from the last byte ('b') 4 times.
	want := "abbbbb"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestDecompress_TruncatedStreamDoesNotPanic(t *testing.T) {
	stream := block(10, []byte{0x01})
	if _, err := Decompress(stream); err != nil {
		// A truncated input may legitimately fail; it must not panic.
		t.Logf("truncated stream returned error: %v", err)
	}
}

func TestDecompress_EmptyStream(t *testing.T) {
	got, err := Decompress(nil)
	if err != nil {
		t.Fatalf("Decompress(nil): %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty output, got %d bytes", len(got))
	}
}
