// Package xpress8 decodes the chunked LZ77-style compression Power BI
// uses to wrap individual ABF member files.
package xpress8

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// blockHeaderSize is the size of the {uncompSize, compSize} frame preceding
// each block in the stream.
const blockHeaderSize = 8

// Decompress decodes a full Xpress8 stream: a sequence of
// {uncompSize:u32le, compSize:u32le, data[compSize]} blocks, concatenated
// until the input is exhausted. A block is copied verbatim when
// compSize == uncompSize (the store case).
func Decompress(data []byte) ([]byte, error) {
	var out bytes.Buffer
	off := 0

	for off+blockHeaderSize <= len(data) {
		uncompSize := binary.LittleEndian.Uint32(data[off:])
		compSize := binary.LittleEndian.Uint32(data[off+4:])
		off += blockHeaderSize

		if uncompSize == 0 {
			break
		}
		if off+int(compSize) > len(data) {
			return nil, fmt.Errorf("xpress8: block at offset %d overruns input (compSize=%d, remaining=%d)", off-blockHeaderSize, compSize, len(data)-off)
		}

		block := data[off : off+int(compSize)]
		off += int(compSize)

		if compSize == uncompSize {
			out.Write(block)
			continue
		}

		decoded, err := decompressBlock(block, int(uncompSize))
		if err != nil {
			return nil, err
		}
		out.Write(decoded)
	}

	return out.Bytes(), nil
}

// decompressBlock decodes one LZ77-framed block into exactly uncompSize
// bytes (or as many as the input supports before running out).
func decompressBlock(src []byte, uncompSize int) ([]byte, error) {
	dst := make([]byte, 0, uncompSize)
	si := 0

	for si < len(src) && len(dst) < uncompSize {
		flag := src[si]
		si++

		for bit := 0; bit < 8 && len(dst) < uncompSize; bit++ {
			if si >= len(src) {
				return dst, nil
			}

			if flag&(1<<uint(bit)) == 0 {
				dst = append(dst, src[si])
				si++
				continue
			}

			if si+1 >= len(src) {
				return dst, nil
			}
			b0, b1 := src[si], src[si+1]
			si += 2

			matchOffset := (int(b1&0xF8) << 5) | int(b0) | 1
			matchLen := int(b1&0x07) + 3

			if matchLen == 10 {
				if si >= len(src) {
					return dst, nil
				}
				extra := src[si]
				si++
				matchLen = int(extra) + 10

				if matchLen == 265 {
					if si+1 >= len(src) {
						return dst, nil
					}
					matchLen = int(binary.LittleEndian.Uint16(src[si:]))
					si += 2
				}
			}

			for i := 0; i < matchLen && len(dst) < uncompSize; i++ {
				srcIdx := len(dst) - matchOffset
				if srcIdx < 0 {
					return nil, fmt.Errorf("xpress8: match offset %d exceeds %d decoded bytes", matchOffset, len(dst))
				}
				dst = append(dst, dst[srcIdx])
			}
		}
	}

	return dst, nil
}
