// Package idf decodes a .idf file into the length-rowCount sequence of
// dictionary indices (or, for dictionary-less columns, direct values) it
// encodes: a primary RLE segment plus an optional bit-packed sub-segment.
//
// Wire format (all little-endian):
//
//	u64               primarySegmentSize
//	primarySegmentSize entries of { u32 dataValue, u32 repeatValue }
//	u64               subSegmentSize
//	subSegmentSize    u64 words
//
// Multi-segment columns (more than one primary/sub-segment pair) are out of
// scope; only the first segment is read.
package idf

import (
	"fmt"

	"pbixdecode/internal/binreader"
	"pbixdecode/internal/idfmeta"
)

type primaryEntry struct {
	dataValue   uint32
	repeatValue uint32
}

// Decode parses data against header's bitWidth/minDataId/countBitPacked and
// returns exactly header.RowCount values.
func Decode(data []byte, header *idfmeta.Header) ([]uint32, error) {
	c := binreader.New(data)

	primaryCount := c.U64()
	entries := make([]primaryEntry, primaryCount)
	for i := range entries {
		entries[i] = primaryEntry{dataValue: c.U32(), repeatValue: c.U32()}
	}

	subCount := c.U64()
	subWords := make([]uint64, subCount)
	for i := range subWords {
		subWords[i] = c.U64()
	}

	if err := c.Err(); err != nil {
		return nil, fmt.Errorf("idf: %w", err)
	}

	bitPacked := expandBitPacked(subWords, header)

	out := make([]uint32, 0, header.RowCount)
	bpOffset := 0
	for _, e := range entries {
		// 32-bit wraparound: dataValue + bpOffset == 0xFFFFFFFF marks a
		// bit-pack marker rather than an RLE run.
		if uint32(uint64(e.dataValue)+uint64(bpOffset)) == 0xFFFFFFFF {
			n := int(e.repeatValue)
			for i := 0; i < n; i++ {
				idx := bpOffset + i
				if idx < len(bitPacked) {
					out = append(out, bitPacked[idx])
				}
			}
			bpOffset += n
			continue
		}
		for i := uint32(0); i < e.repeatValue; i++ {
			out = append(out, e.dataValue)
		}
	}

	if uint64(len(out)) != header.RowCount {
		return nil, fmt.Errorf("idf: decoded %d values, want rowCount %d", len(out), header.RowCount)
	}

	return out, nil
}

// expandBitPacked unpacks the bit-packed sub-segment per header.BitWidth,
// offsetting every value by header.MinDataId.
func expandBitPacked(words []uint64, header *idfmeta.Header) []uint32 {
	if header.CountBitPacked == 0 || len(words) == 0 {
		return nil
	}

	if len(words) == 1 && words[0] == 0 {
		out := make([]uint32, header.CountBitPacked)
		for i := range out {
			out[i] = header.MinDataId
		}
		return out
	}

	bitWidth := uint(header.BitWidth)
	mask := uint64(1)<<bitWidth - 1
	perWord := 64 / int(bitWidth)

	out := make([]uint32, 0, len(words)*perWord)
	for _, w := range words {
		for i := 0; i < perWord; i++ {
			out = append(out, uint32(w&mask)+header.MinDataId)
			w >>= bitWidth
		}
	}
	return out
}
