// Package columnschema resolves, for every surviving user column, the
// VertiPaq storage file names (IDF, IDF-meta, dictionary, HIDX) a decoder
// needs to read its values, by joining ColumnStorage / ColumnPartitionStorage
// / StorageFile / DictionaryStorage / AttributeHierarchy(Storage) rows back
// to the columns the semantic schema builder already kept.
package columnschema

import (
	"sort"

	"pbixdecode/internal/metadata"
	"pbixdecode/internal/model"
	"pbixdecode/internal/sqlitedb"
)

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	i, _ := v.(int64)
	return i
}

func asFloat64(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	default:
		return 0
	}
}

func asBool(v any) bool {
	return asInt64(v) != 0
}

func field(row sqlitedb.Row, i int) any {
	if i < 0 || i >= len(row.Values) {
		return nil
	}
	return row.Values[i]
}

type columnStorage struct {
	dictStorageID  int64
	distinctStates int64
}

type dictionaryStorage struct {
	baseID        int64
	magnitude     float64
	isNullable    bool
	storageFileID int64
}

// Build resolves every column in schema.ColumnInfo to its VertiPaq storage
// files, dropping columns that have no IDF file to decode.
func Build(db *sqlitedb.DB, schema *metadata.Schema) ([]model.ColumnDescriptor, error) {
	columnStorageIDs := make(map[int64]int64) // columnID -> ColumnStorage rowid
	if rows, err := db.GetTableRows("Column"); err == nil {
		for _, row := range rows {
			columnStorageIDs[row.RowID] = asInt64(field(row, 18))
		}
	}

	columnStorages := make(map[int64]columnStorage) // ColumnStorage rowid -> info
	if rows, err := db.GetTableRows("ColumnStorage"); err == nil {
		for _, row := range rows {
			columnStorages[row.RowID] = columnStorage{
				dictStorageID:  asInt64(field(row, 4)),
				distinctStates: asInt64(field(row, 11)),
			}
		}
	}

	partitionStorageFile := make(map[int64]int64) // ColumnStorage rowid -> StorageFile rowid
	if rows, err := db.GetTableRows("ColumnPartitionStorage"); err == nil {
		for _, row := range rows {
			columnStorageID := asInt64(field(row, 1))
			if _, exists := partitionStorageFile[columnStorageID]; exists {
				continue // first partition wins; multi-partition columns are out of scope
			}
			partitionStorageFile[columnStorageID] = asInt64(field(row, 6))
		}
	}

	storageFileNames := make(map[int64]string) // StorageFile rowid -> file name
	if rows, err := db.GetTableRows("StorageFile"); err == nil {
		for _, row := range rows {
			storageFileNames[row.RowID] = asString(field(row, 4))
		}
	}

	dictionaryStorages := make(map[int64]dictionaryStorage) // DictionaryStorage rowid -> info
	if rows, err := db.GetTableRows("DictionaryStorage"); err == nil {
		for _, row := range rows {
			dictionaryStorages[row.RowID] = dictionaryStorage{
				baseID:        asInt64(field(row, 5)),
				magnitude:     asFloat64(field(row, 6)),
				isNullable:    asBool(field(row, 8)),
				storageFileID: asInt64(field(row, 12)),
			}
		}
	}

	attrHierarchyStorageByColumn := make(map[int64]int64) // columnID -> AttributeHierarchyStorage rowid
	if rows, err := db.GetTableRows("AttributeHierarchy"); err == nil {
		for _, row := range rows {
			columnID := asInt64(field(row, 1))
			attrHierarchyStorageByColumn[columnID] = asInt64(field(row, 3))
		}
	}

	hierarchyStorageFile := make(map[int64]int64) // AttributeHierarchyStorage rowid -> StorageFile rowid
	if rows, err := db.GetTableRows("AttributeHierarchyStorage"); err == nil {
		for _, row := range rows {
			hierarchyStorageFile[row.RowID] = asInt64(field(row, 9))
		}
	}

	var out []model.ColumnDescriptor
	for columnID, ref := range schema.ColumnInfo {
		columnStorageID, ok := columnStorageIDs[columnID]
		if !ok {
			continue
		}
		cs, ok := columnStorages[columnStorageID]
		if !ok {
			continue
		}
		storageFileID, ok := partitionStorageFile[columnStorageID]
		if !ok {
			continue
		}
		idfName := storageFileNames[storageFileID]
		if idfName == "" {
			continue // no IDF file: column omitted
		}

		desc := model.ColumnDescriptor{
			TableName:   ref.TableName,
			Name:        ref.ColumnName,
			IDF:         idfName,
			IDFMeta:     idfName + "meta",
			DataType:    ref.AMODataType,
			Cardinality: cs.distinctStates,
		}

		if ds, ok := dictionaryStorages[cs.dictStorageID]; ok {
			desc.BaseID = ds.baseID
			desc.Magnitude = ds.magnitude
			desc.IsNullable = ds.isNullable
			desc.Dictionary = storageFileNames[ds.storageFileID]
		}

		if ahStorageID, ok := attrHierarchyStorageByColumn[columnID]; ok {
			if fileID, ok := hierarchyStorageFile[ahStorageID]; ok {
				desc.HIDX = storageFileNames[fileID]
			}
		}

		out = append(out, desc)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].TableName != out[j].TableName {
			return out[i].TableName < out[j].TableName
		}
		return out[i].Name < out[j].Name
	})

	return out, nil
}
