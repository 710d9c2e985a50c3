// Package idfmeta parses the .idfmeta file: a fixed-layout little-endian
// header describing how its companion .idf file's values are packed.
//
// Layout (all little-endian):
//
//	tag      "<1:CP\x00" (6 bytes)
//	u64      version
//	tag      "<1:CS\x00" (6 bytes)
//	u64      records
//	u64      one
//	u32      aba5a
//	u32      iterator
//	u64      bookmarkBits
//	u64      storageAllocSize
//	u64      storageUsedSize
//	u8       segmentNeedsResizing
//	u32      compressionInfo
//	tag      "<1:SS\x00" (6 bytes)
//	u64      distinctStates
//	u32      minDataId
//	u32      maxDataId
//	u32      originalMinSegmentDataId
//	i64      rleSortOrder
//	u64      rowCount
//	u8       hasNulls
//	u64      rleRuns
//	u64      othersRleRuns
//	tag      (6 bytes, closing)
//	u8       hasBitPackedSubSeg
//	tag      "<1:CS\x00" (6 bytes)
//	u64      countBitPacked
package idfmeta

import "pbixdecode/internal/binreader"

// Header is the decoded .idfmeta contents a decoder needs to walk its
// companion .idf file.
type Header struct {
	Version                  uint64
	Records                  uint64
	BookmarkBits             uint64
	StorageAllocSize         uint64
	StorageUsedSize          uint64
	SegmentNeedsResizing     bool
	CompressionInfo          uint32
	DistinctStates           uint64
	MinDataId                uint32
	MaxDataId                uint32
	OriginalMinSegmentDataId uint32
	RleSortOrder             int64
	RowCount                 uint64
	HasNulls                 bool
	RleRuns                  uint64
	OthersRleRuns            uint64
	HasBitPackedSubSeg       bool
	CountBitPacked           uint64

	// BitWidth is derived, not stored: (36 - aba5a) + iterator.
	BitWidth int
}

// Parse decodes a .idfmeta file's fixed-layout header.
func Parse(data []byte) (*Header, error) {
	c := binreader.New(data)

	c.Tag("<1:CP\x00")
	version := c.U64()

	c.Tag("<1:CS\x00")
	records := c.U64()
	_ = c.U64() // "one"
	aba5a := c.I32()
	iterator := c.I32()
	bookmarkBits := c.U64()
	storageAllocSize := c.U64()
	storageUsedSize := c.U64()
	segmentNeedsResizing := c.U8()
	compressionInfo := c.U32()

	c.Tag("<1:SS\x00")
	distinctStates := c.U64()
	minDataId := c.U32()
	maxDataId := c.U32()
	originalMinSegmentDataId := c.U32()
	rleSortOrder := c.I64()
	rowCount := c.U64()
	hasNulls := c.U8()
	rleRuns := c.U64()
	othersRleRuns := c.U64()
	c.Bytes(6) // closing tag, value not validated against a known literal

	hasBitPackedSubSeg := c.U8()

	c.Tag("<1:CS\x00")
	countBitPacked := c.U64()

	if err := c.Err(); err != nil {
		return nil, err
	}

	return &Header{
		Version:                  version,
		Records:                  records,
		BookmarkBits:             bookmarkBits,
		StorageAllocSize:         storageAllocSize,
		StorageUsedSize:          storageUsedSize,
		SegmentNeedsResizing:     segmentNeedsResizing != 0,
		CompressionInfo:          compressionInfo,
		DistinctStates:           distinctStates,
		MinDataId:                minDataId,
		MaxDataId:                maxDataId,
		OriginalMinSegmentDataId: originalMinSegmentDataId,
		RleSortOrder:             rleSortOrder,
		RowCount:                 rowCount,
		HasNulls:                 hasNulls != 0,
		RleRuns:                  rleRuns,
		OthersRleRuns:            othersRleRuns,
		HasBitPackedSubSeg:       hasBitPackedSubSeg != 0,
		CountBitPacked:           countBitPacked,
		BitWidth:                 int(36-aba5a) + int(iterator),
	}, nil
}
