// Package vertipaq is the table extractor façade: given the column
// descriptors the column schema builder produced and access to a file
// source (an ABF index), it decodes VertiPaq columns on demand and
// assembles them into the columnar TableData shape.
package vertipaq

import (
	"errors"
	"fmt"
	"sort"

	"pbixdecode/internal/dictionary"
	"pbixdecode/internal/idf"
	"pbixdecode/internal/idfmeta"
	"pbixdecode/internal/model"
	"pbixdecode/internal/progress"
	"pbixdecode/internal/valueconv"
)

// ErrColumnDecodeSkipped is returned (wrapped) internally when a column's
// metadata or data file is missing or malformed; the containing table
// decode tolerates it and omits the column rather than failing.
var ErrColumnDecodeSkipped = errors.New("vertipaq: column decode skipped")

// ErrCancelled is the sentinel outcome of a streaming extraction whose
// epoch was invalidated mid-flight.
var ErrCancelled = errors.New("vertipaq: extraction cancelled")

// FileSource resolves a basename to its (already decompressed) bytes, as
// an *abf.Index does.
type FileSource interface {
	GetDataSlice(name string) ([]byte, error)
}

// Extractor decodes tables on demand from column descriptors grouped by
// table name, caching the file slices it reads.
type Extractor struct {
	tableNames []string
	tables     map[string][]model.ColumnDescriptor
	source     FileSource
	cache      *fileCache
}

// New builds an Extractor over tableNames (every real table the semantic
// schema builder kept, independent of whether any of its columns have
// resolvable storage — a table with only calculated or filtered columns
// still belongs in TableNames), columns (already filtered/ordered by the
// column schema builder) and a file source, with a file-slice cache sized
// per cacheSizeLimitBytes/coldTierThresholdBytes.
func New(tableNames []string, columns []model.ColumnDescriptor, source FileSource, cacheSizeLimitBytes, coldTierThresholdBytes int64) *Extractor {
	tables := make(map[string][]model.ColumnDescriptor)
	for _, c := range columns {
		tables[c.TableName] = append(tables[c.TableName], c)
	}

	sorted := make([]string, len(tableNames))
	copy(sorted, tableNames)
	sort.Strings(sorted)

	return &Extractor{
		tableNames: sorted,
		tables:     tables,
		source:     source,
		cache:      newFileCache(cacheSizeLimitBytes, coldTierThresholdBytes),
	}
}

// TableNames returns the sorted list of real table names.
func (e *Extractor) TableNames() []string {
	return e.tableNames
}

// CacheStats reports the current occupancy of the façade's file-slice
// cache, for the CLI's --dump-cache-stats diagnostic.
func (e *Extractor) CacheStats() CacheStats {
	return e.cache.stats()
}

func (e *Extractor) hasTable(name string) bool {
	for _, n := range e.tableNames {
		if n == name {
			return true
		}
	}
	return false
}

// GetTable decodes every column of name synchronously.
func (e *Extractor) GetTable(name string) (model.TableData, error) {
	if !e.hasTable(name) {
		return model.TableData{}, fmt.Errorf("vertipaq: %w: table %q", ErrColumnDecodeSkipped, name)
	}
	cols := e.tables[name] // may be empty: a table with no decodable columns

	var data model.TableData
	for _, col := range cols {
		values, err := e.decodeColumn(col)
		if err != nil {
			continue // per-column tolerance: omit, don't abort the table
		}
		data.Columns = append(data.Columns, col.Name)
		data.ColumnData = append(data.ColumnData, values)
		if len(values) > data.RowCount {
			data.RowCount = len(values)
		}
	}
	return data, nil
}

// ProgressFunc reports (colIndex, total, columnName) during streaming
// extraction.
type ProgressFunc func(colIndex, total int, columnName string)

// GetTableStreaming decodes name's columns one at a time, yielding control
// back to the caller between columns via onProgress, and checking epoch
// against snapshot before each column. If the epoch has moved on, the
// extraction stops and returns ErrCancelled without columns >= the one
// that would have decoded next.
func (e *Extractor) GetTableStreaming(name string, epoch *progress.Epoch, snapshot int64, onProgress ProgressFunc) (model.TableData, error) {
	if !e.hasTable(name) {
		return model.TableData{}, fmt.Errorf("vertipaq: %w: table %q", ErrColumnDecodeSkipped, name)
	}
	cols := e.tables[name]

	var data model.TableData
	total := len(cols)
	for i, col := range cols {
		if epoch != nil && !epoch.Valid(snapshot) {
			return data, ErrCancelled
		}
		if onProgress != nil {
			onProgress(i, total, col.Name)
		}

		values, err := e.decodeColumn(col)
		if err != nil {
			continue
		}
		data.Columns = append(data.Columns, col.Name)
		data.ColumnData = append(data.ColumnData, values)
		if len(values) > data.RowCount {
			data.RowCount = len(values)
		}
	}
	return data, nil
}

// decodeColumn runs one column through IDF-meta + IDF + dictionary +
// value conversion, wrapping any failure as ErrColumnDecodeSkipped.
func (e *Extractor) decodeColumn(col model.ColumnDescriptor) ([]any, error) {
	metaBytes, err := e.readFile(col.IDFMeta)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrColumnDecodeSkipped, col.IDFMeta, err)
	}
	header, err := idfmeta.Parse(metaBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrColumnDecodeSkipped, col.IDFMeta, err)
	}

	idfBytes, err := e.readFile(col.IDF)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrColumnDecodeSkipped, col.IDF, err)
	}
	indices, err := idf.Decode(idfBytes, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrColumnDecodeSkipped, col.IDF, err)
	}

	var dict *dictionary.Dictionary
	if col.HasDictionary() {
		dictBytes, err := e.readFile(col.Dictionary)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrColumnDecodeSkipped, col.Dictionary, err)
		}
		dict, err = dictionary.Parse(dictBytes, int64(header.MinDataId))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrColumnDecodeSkipped, col.Dictionary, err)
		}
	}

	values := make([]any, len(indices))
	for i, idx := range indices {
		var raw any
		if dict != nil {
			v, ok := dict.Get(int64(idx))
			if !ok {
				raw = nil
			} else {
				raw = v
			}
		} else if col.Magnitude == 1 {
			raw = int64(idx) + col.BaseID
		} else if col.Magnitude != 0 {
			raw = (float64(idx) + float64(col.BaseID)) / col.Magnitude
		} else {
			raw = int64(idx) + col.BaseID
		}
		values[i] = valueconv.Convert(raw, col.DataType)
	}
	return values, nil
}

func (e *Extractor) readFile(name string) ([]byte, error) {
	if data, ok := e.cache.get(name); ok {
		return data, nil
	}
	data, err := e.source.GetDataSlice(name)
	if err != nil {
		return nil, err
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	e.cache.put(name, owned)
	return owned, nil
}
