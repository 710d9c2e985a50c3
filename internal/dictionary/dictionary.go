// Package dictionary reads a VertiPaq dictionary file: the per-column
// mapping from a small integer index (as produced by internal/idf) to its
// actual value — a long, a real, or a string, the last possibly stored as
// Huffman-compressed pages.
package dictionary

import (
	"fmt"
	"unicode/utf16"

	"golang.org/x/text/encoding/charmap"

	"pbixdecode/internal/binreader"
)

const (
	dictTypeLong   = 0
	dictTypeReal   = 1
	dictTypeString = 2

	pageBeginMarker = 0xDDCCBBAA
	pageEndMarker   = 0xCDABCDAB
)

// Dictionary maps a dictionary index to its decoded value: int64 for long,
// float64 for real, string for string dictionaries.
type Dictionary struct {
	Values map[int64]any
}

// Get looks up index, reporting whether it was present.
func (d *Dictionary) Get(index int64) (any, bool) {
	v, ok := d.Values[index]
	return v, ok
}

// Parse decodes a dictionary file. minDataId is the first index assigned
// to the dictionary's entries (the owning column's .idfmeta minDataId).
func Parse(data []byte, minDataId int64) (*Dictionary, error) {
	c := binreader.New(data)

	dictType := c.I32()
	for i := 0; i < 6; i++ {
		c.I32() // hashInformation: undocumented, skipped
	}

	var dict *Dictionary
	switch dictType {
	case dictTypeLong:
		dict = parseNumeric(c, minDataId, true)
	case dictTypeReal:
		dict = parseNumeric(c, minDataId, false)
	case dictTypeString:
		var err error
		dict, err = parseString(c, minDataId)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("dictionary: unknown dictionary type %d", dictType)
	}

	if err := c.Err(); err != nil {
		return nil, err
	}
	return dict, nil
}

func parseNumeric(c *binreader.Cursor, minDataId int64, isLong bool) *Dictionary {
	count := c.U64()
	elementSize := c.U32()

	values := make(map[int64]any, count)
	for i := uint64(0); i < count; i++ {
		var v any
		switch {
		case elementSize == 4:
			v = int64(c.I32())
		case isLong && elementSize == 8:
			v = c.I64()
		default:
			v = c.F64()
		}
		values[minDataId+int64(i)] = v
	}
	return &Dictionary{Values: values}
}

type stringPage struct {
	compressed bool

	// uncompressed
	text string

	// compressed
	encodeArray    [128]byte
	compressedBuf  []byte
	storeTotalBits uint32
}

type handle struct {
	offset uint32
	pageId uint32
}

func parseString(c *binreader.Cursor, minDataId int64) (*Dictionary, error) {
	_ = c.I64() // storeStringCount
	_ = c.U8()  // fStoreCompressed
	_ = c.I64() // storeLongestString
	pageCount := c.I64()

	pages := make([]stringPage, pageCount)
	for i := int64(0); i < pageCount; i++ {
		c.U64() // pageMask
		c.U8()  // pageContainsNulls
		c.U64() // pageStartIndex
		c.U64() // pageStringCount
		compressed := c.U8() != 0

		begin := c.U32()
		if c.Err() == nil && begin != pageBeginMarker {
			return nil, fmt.Errorf("dictionary: page %d missing begin marker", i)
		}

		var page stringPage
		page.compressed = compressed
		if compressed {
			page.storeTotalBits = c.U32()
			c.U32() // charSetId
			allocSize := c.U64()
			c.U8()  // charSetUsed
			c.U32() // uiDecodeBits
			copy(page.encodeArray[:], c.Bytes(128))
			c.U64() // bufferSize
			page.compressedBuf = c.Bytes(int(allocSize))
		} else {
			c.U64() // remaining
			c.U64() // used
			allocSize := c.U64()
			utf16 := c.Bytes(int(allocSize))
			page.text = decodeUTF16LE(utf16)
		}

		end := c.U32()
		if c.Err() == nil && end != pageEndMarker {
			return nil, fmt.Errorf("dictionary: page %d missing end marker", i)
		}

		pages[i] = page
	}

	handleCount := c.U64()
	c.U32() // elementSize, always 8
	handles := make([]handle, handleCount)
	for i := range handles {
		handles[i] = handle{offset: c.U32(), pageId: c.U32()}
	}

	if err := c.Err(); err != nil {
		return nil, err
	}

	return assembleStrings(pages, handles, minDataId)
}

// assembleStrings walks pages in storage order, assigning each string a
// sequential dictionary index starting at minDataId. Compressed pages
// resolve their strings from the handles whose pageId references that
// page's position in storage order, preserving handle order within a page.
func assembleStrings(pages []stringPage, handles []handle, minDataId int64) (*Dictionary, error) {
	handlesByPage := make(map[uint32][]handle)
	for _, h := range handles {
		handlesByPage[h.pageId] = append(handlesByPage[h.pageId], h)
	}

	values := make(map[int64]any)
	index := minDataId

	for pageId, page := range pages {
		if !page.compressed {
			parts := splitNulTerminated(page.text)
			for _, s := range parts {
				values[index] = s
				index++
			}
			continue
		}

		tree := buildHuffmanTree(page.encodeArray)
		hs := handlesByPage[uint32(pageId)]
		for i, h := range hs {
			end := page.storeTotalBits
			if i+1 < len(hs) {
				end = hs[i+1].offset
			}
			s, err := decodeHuffmanRange(page.compressedBuf, tree, h.offset, end)
			if err != nil {
				return nil, err
			}
			values[index] = s
			index++
		}
	}

	return &Dictionary{Values: values}, nil
}

// charmapISO88591ToString interprets raw bytes as ISO-8859-1 code points,
// as the compressed dictionary format requires.
func charmapISO88591ToString(b []byte) string {
	s, err := charmap.ISO8859_1.NewDecoder().String(string(b))
	if err != nil {
		return string(b)
	}
	return s
}

func splitNulTerminated(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if start < len(s) {
		parts = append(parts, s[start:])
	}
	return parts
}

func decodeUTF16LE(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(units))
}
