// Package xpress9 decompresses the XPress9-wrapped DataModel blob into a
// contiguous ABF byte stream. XPress9 itself is a proprietary Microsoft
// codec; this package only understands the block framing around it and
// delegates the actual decompression to a runtime-supplied Codec.
package xpress9

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrDecompressInit is returned when the supplied codec refuses
// initialization.
var ErrDecompressInit = errors.New("xpress9: codec init failed")

// ErrMalformedHeader is returned when the 102-byte stream header is
// missing or truncated.
var ErrMalformedHeader = errors.New("xpress9: malformed stream header")

const (
	headerSize        = 102
	blockHeaderSize   = 8  // uncompSize:u32le, compSize:u32le
	multithreadedHdrs = 40 // five u64le fields following the header
)

// Codec is the runtime-linked XPress9 implementation: init the decoder,
// decompress one block into a caller-provided buffer, and free decoder
// state. A single Codec value may be reused across Init/Free cycles, one
// cycle per thread-group in the multithreaded variant.
type Codec interface {
	// Init prepares the codec for a (new) run of decompress calls. It
	// returns false if initialization failed.
	Init() bool
	// Decompress decodes src into dst, returning the number of bytes
	// written. A return value <= 0 indicates failure.
	Decompress(src, dst []byte) int
	// Free releases any codec state acquired by Init.
	Free()
}

// Decompress turns the raw DataModel bytes into the decompressed ABF
// byte stream, selecting the single-threaded or multithreaded framing
// based on the stream signature.
func Decompress(data []byte, codec Codec) ([]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("xpress9: %w: stream is %d bytes, need at least %d", ErrMalformedHeader, len(data), headerSize)
	}

	signature := decodeUTF16LEZ(data[:headerSize])
	if strings.Contains(signature, "multithreaded") {
		return decompressMultithreaded(data, codec)
	}
	return decompressSingleThreaded(data, codec)
}

func decompressSingleThreaded(data []byte, codec Codec) ([]byte, error) {
	if !codec.Init() {
		return nil, ErrDecompressInit
	}
	defer codec.Free()

	out, err := decodeBlocks(data, headerSize, len(data), codec)
	return out, err
}

func decompressMultithreaded(data []byte, codec Codec) ([]byte, error) {
	if headerSize+multithreadedHdrs > len(data) {
		return nil, fmt.Errorf("xpress9: %w: multithreaded prologue truncated", ErrMalformedHeader)
	}

	off := headerSize
	mainChunks := binary.LittleEndian.Uint64(data[off:])
	off += 8
	prefixChunks := binary.LittleEndian.Uint64(data[off:])
	off += 8
	prefixThreads := binary.LittleEndian.Uint64(data[off:])
	off += 8
	mainThreads := binary.LittleEndian.Uint64(data[off:])
	off += 8
	_ = binary.LittleEndian.Uint64(data[off:]) // chunkSize: consumed, unused
	off += 8

	groups := make([]uint64, 0, prefixThreads+mainThreads)
	for i := uint64(0); i < prefixThreads; i++ {
		groups = append(groups, prefixChunks)
	}
	for i := uint64(0); i < mainThreads; i++ {
		groups = append(groups, mainChunks)
	}

	var out []byte
	end := len(data)

	for _, blockCount := range groups {
		codec.Free()
		if !codec.Init() {
			return nil, ErrDecompressInit
		}

		decoded, newOff, err := decodeBlockGroup(data, off, end, blockCount, codec)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded...)
		off = newOff
	}

	codec.Free()
	return out, nil
}

// decodeBlocks decodes blocks starting at off until the buffer is
// exhausted or a zero/short block appears.
func decodeBlocks(data []byte, off, end int, codec Codec) ([]byte, error) {
	out, _, err := decodeBlockGroup(data, off, end, ^uint64(0), codec)
	return out, err
}

// decodeBlockGroup decodes up to maxBlocks {uncompSize, compSize, data}
// frames starting at off, returning the decoded bytes and the offset
// just past the last block consumed.
func decodeBlockGroup(data []byte, off, end int, maxBlocks uint64, codec Codec) ([]byte, int, error) {
	var out []byte

	for i := uint64(0); i < maxBlocks; i++ {
		if off+blockHeaderSize > end {
			break
		}

		uncompSize := binary.LittleEndian.Uint32(data[off:])
		compSize := binary.LittleEndian.Uint32(data[off+4:])

		if uncompSize == 0 || compSize == 0 {
			break
		}
		if off+blockHeaderSize+int(compSize) > end {
			break
		}

		blockStart := off + blockHeaderSize
		blockEnd := blockStart + int(compSize)
		src := data[blockStart:blockEnd]

		dst := make([]byte, uncompSize)
		n := codec.Decompress(src, dst)

		nextOff := blockEnd
		if nextOff <= off {
			// Runaway block: offset failed to advance.
			break
		}

		if n > 0 {
			out = append(out, dst[:n]...)
		}
		// A non-positive decompress result is tolerated: the block is
		// skipped but the stream continues.

		off = nextOff
	}

	return out, off, nil
}

// decodeUTF16LEZ decodes a null-terminated, ASCII-range UTF-16LE string
// (the XPress9 header signature is documented to be ASCII text).
func decodeUTF16LEZ(b []byte) string {
	var sb strings.Builder
	for i := 0; i+1 < len(b); i += 2 {
		u := binary.LittleEndian.Uint16(b[i:])
		if u == 0 {
			break
		}
		sb.WriteByte(byte(u))
	}
	return sb.String()
}
