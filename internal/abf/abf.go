// Package abf parses the ABF (Analysis-services Backup File) container that
// the XPress9 stage decompresses: a byte stream packing multiple named files
// behind two XML directories.
package abf

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"pbixdecode/internal/xpress8"
)

// ErrMalformedHeader is returned when the BackupLogHeader is missing or its
// offset/size fields are non-positive.
var ErrMalformedHeader = errors.New("abf: malformed backup log header")

// ErrFileNotFound is returned by GetDataSlice for a name absent from the
// file log.
var ErrFileNotFound = errors.New("abf: file not found")

const (
	headerStart  = 72
	headerWindow = 4096
)

// fileEntry is one VirtualDirectory record: a storage path's location in the
// decompressed buffer.
type fileEntry struct {
	offset int
	size   int
}

// Index is the result of parsing an ABF byte stream: a logical name → byte
// range mapping over the owning buffer, plus the two flags that govern how
// a named slice must be post-processed before use.
type Index struct {
	buffer          []byte
	fileLog         map[string]fileLogEntry
	errorCode       bool
	applyCompression bool
}

type fileLogEntry struct {
	offset       int
	size         int
	sizeFromLog  int
}

type backupLogHeaderXML struct {
	OffsetHeader    int64 `xml:"m_cbOffsetHeader"`
	DataSize        int64 `xml:"DataSize"`
	ErrorCode       bool  `xml:"ErrorCode"`
	ApplyCompression bool `xml:"ApplyCompression"`
}

type virtualDirectoryXML struct {
	Files []backupFileVD `xml:"BackupFile"`
}

type backupFileVD struct {
	Path           string `xml:"Path"`
	Size           int64  `xml:"Size"`
	OffsetHeader   int64  `xml:"m_cbOffsetHeader"`
}

type backupLogXML struct {
	Files []backupFileLog `xml:"BackupFile"`
}

type backupFileLog struct {
	Path        string `xml:"Path"`
	StoragePath string `xml:"StoragePath"`
	Size        int64  `xml:"Size"`
	hasSize     bool
}

// UnmarshalXML lets us distinguish "Size omitted" from "Size == 0" without a
// pointer field cluttering every other consumer of backupFileLog.
func (f *backupFileLog) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	type alias struct {
		Path        string   `xml:"Path"`
		StoragePath string   `xml:"StoragePath"`
		Size        *int64   `xml:"Size"`
	}
	var a alias
	if err := d.DecodeElement(&a, &start); err != nil {
		return err
	}
	f.Path = a.Path
	f.StoragePath = a.StoragePath
	if a.Size != nil {
		f.Size = *a.Size
		f.hasSize = true
	}
	return nil
}

// Parse decomposes a decompressed ABF byte stream into an Index.
func Parse(buffer []byte) (*Index, error) {
	header, err := parseBackupLogHeader(buffer)
	if err != nil {
		return nil, err
	}

	vdStart := int(header.OffsetHeader)
	vdEnd := vdStart + int(header.DataSize)
	if vdStart < 0 || vdEnd > len(buffer) || vdStart >= vdEnd {
		return nil, fmt.Errorf("abf: %w: virtual directory span [%d,%d) outside buffer of %d bytes", ErrMalformedHeader, vdStart, vdEnd, len(buffer))
	}

	vd, backupLogPath, err := parseVirtualDirectory(buffer[vdStart:vdEnd])
	if err != nil {
		return nil, fmt.Errorf("abf: parsing virtual directory: %w", err)
	}

	logEntry, ok := vd[backupLogPath]
	if !ok {
		return nil, fmt.Errorf("abf: %w: backup log path %q absent from virtual directory", ErrMalformedHeader, backupLogPath)
	}

	logStart := logEntry.offset
	logEnd := logStart + logEntry.size
	if logStart < 0 || logEnd > len(buffer) || logStart >= logEnd {
		return nil, fmt.Errorf("abf: %w: backup log span [%d,%d) outside buffer", ErrMalformedHeader, logStart, logEnd)
	}
	logBytes := buffer[logStart:logEnd]
	if header.ErrorCode && len(logBytes) >= 4 {
		logBytes = logBytes[:len(logBytes)-4]
	}

	backupLog, err := parseBackupLog(logBytes)
	if err != nil {
		return nil, fmt.Errorf("abf: parsing backup log: %w", err)
	}

	fileLog := make(map[string]fileLogEntry, len(backupLog.Files))
	for _, f := range backupLog.Files {
		vdFile, ok := vd[f.StoragePath]
		if !ok {
			continue
		}
		name := basename(f.Path)
		entry := fileLogEntry{offset: vdFile.offset, size: vdFile.size}
		if f.hasSize {
			entry.sizeFromLog = int(f.Size)
		}
		fileLog[name] = entry
	}

	return &Index{
		buffer:           buffer,
		fileLog:          fileLog,
		errorCode:        header.ErrorCode,
		applyCompression: header.ApplyCompression,
	}, nil
}

func parseBackupLogHeader(buffer []byte) (backupLogHeaderXML, error) {
	var zero backupLogHeaderXML
	if len(buffer) <= headerStart {
		return zero, fmt.Errorf("abf: %w: buffer too short for header", ErrMalformedHeader)
	}

	end := headerStart + headerWindow
	if end > len(buffer) {
		end = len(buffer)
	}
	window := buffer[headerStart:end]

	nulAt := indexUTF16Nul(window)
	if nulAt >= 0 {
		window = window[:nulAt]
	}

	decoder := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	utf8Bytes, err := decoder.Bytes(window)
	if err != nil {
		return zero, fmt.Errorf("abf: %w: decoding header UTF-16: %v", ErrMalformedHeader, err)
	}

	var header backupLogHeaderXML
	if err := xml.Unmarshal(utf8Bytes, &header); err != nil {
		return zero, fmt.Errorf("abf: %w: %v", ErrMalformedHeader, err)
	}
	if header.OffsetHeader <= 0 || header.DataSize <= 0 {
		return zero, fmt.Errorf("abf: %w: offset=%d size=%d must both be positive", ErrMalformedHeader, header.OffsetHeader, header.DataSize)
	}
	return header, nil
}

// indexUTF16Nul finds the byte offset of the first UTF-16LE NUL code unit
// (two zero bytes on a two-byte boundary), or -1 if none appears.
func indexUTF16Nul(b []byte) int {
	for i := 0; i+1 < len(b); i += 2 {
		if b[i] == 0 && b[i+1] == 0 {
			return i
		}
	}
	return -1
}

func parseVirtualDirectory(data []byte) (map[string]fileEntry, string, error) {
	var vd virtualDirectoryXML
	if err := xml.Unmarshal(data, &vd); err != nil {
		return nil, "", err
	}

	out := make(map[string]fileEntry, len(vd.Files))
	var lastPath string
	for _, f := range vd.Files {
		out[f.Path] = fileEntry{offset: int(f.OffsetHeader), size: int(f.Size)}
		lastPath = f.Path
	}
	return out, lastPath, nil
}

func parseBackupLog(data []byte) (backupLogXML, error) {
	var log backupLogXML

	decoded, err := decodeWithBOM(data)
	if err != nil {
		return log, err
	}

	if err := xml.Unmarshal(decoded, &log); err != nil {
		return log, err
	}
	return log, nil
}

// decodeWithBOM converts data to UTF-8: a 0xFF 0xFE prefix, or any byte
// followed by a zero byte, signals UTF-16LE; otherwise the data is assumed
// to already be UTF-8.
func decodeWithBOM(data []byte) ([]byte, error) {
	isUTF16 := false
	if len(data) >= 2 && data[0] == 0xFF && data[1] == 0xFE {
		isUTF16 = true
	}
	if !isUTF16 && len(data) >= 2 && data[1] == 0 {
		isUTF16 = true
	}

	if !isUTF16 {
		return data, nil
	}

	decoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
	out, err := decoder.Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("decoding UTF-16: %w", err)
	}
	return out, nil
}

func basename(path string) string {
	if idx := strings.LastIndexByte(path, '\\'); idx >= 0 {
		return path[idx+1:]
	}
	return path
}

// FileNames returns every logical name present in the file log, in no
// particular order.
func (idx *Index) FileNames() []string {
	names := make([]string, 0, len(idx.fileLog))
	for name := range idx.fileLog {
		names = append(names, name)
	}
	return names
}

// GetDataSlice returns the (post-processed) bytes for a logical file name:
// trimmed by 4 bytes if the container's errorCode flag is set, and run
// through Xpress8 if applyCompression is set.
func (idx *Index) GetDataSlice(name string) ([]byte, error) {
	entry, ok := idx.fileLog[name]
	if !ok {
		return nil, fmt.Errorf("abf: %w: %q", ErrFileNotFound, name)
	}

	start := entry.offset
	end := start + entry.size
	if start < 0 || end > len(idx.buffer) || start > end {
		return nil, fmt.Errorf("abf: entry %q span [%d,%d) outside buffer of %d bytes", name, start, end, len(idx.buffer))
	}
	slice := idx.buffer[start:end]

	if idx.errorCode && len(slice) >= 4 {
		slice = slice[:len(slice)-4]
	}

	if idx.applyCompression {
		decoded, err := xpress8.Decompress(slice)
		if err != nil {
			return nil, fmt.Errorf("abf: decompressing %q: %w", name, err)
		}
		return decoded, nil
	}

	// Return an independent copy: callers (the file cache) must not hold
	// long-lived references into the shared decompressed buffer.
	out := make([]byte, len(slice))
	copy(out, slice)
	return out, nil
}
