package metadata

import "pbixdecode/internal/sqlitedb"

// Dynamic field indexing into Power BI's metadata tables is a schema
// contract with Power BI, not a generic query. The accessors below are the
// single place in this package that translates "Column[22]" style
// positions into named fields; nothing else in package metadata indexes a
// sqlitedb.Row directly. (internal/columnschema keeps its own accessors for
// the storage tables.)

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	i, _ := v.(int64)
	return i
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

type tableRow struct {
	id          int64
	name        string
	description string
	isHidden    bool
}

func parseTableRow(row sqlitedb.Row) tableRow {
	return tableRow{
		id:          row.RowID,
		name:        asString(field(row, 2)),
		description: asString(field(row, 4)),
		isHidden:    asBool(field(row, 5)),
	}
}

type columnRow struct {
	id          int64
	tableID     int64
	name        string
	dataType    int64
	description string
	isHidden    bool
	colType     int64
	expression  string
}

func parseColumnRow(row sqlitedb.Row) columnRow {
	return columnRow{
		id:          row.RowID,
		tableID:     asInt64(field(row, 1)),
		name:        asString(field(row, 2)),
		dataType:    asInt64(field(row, 4)),
		description: asString(field(row, 7)),
		isHidden:    asBool(field(row, 8)),
		colType:     asInt64(field(row, 19)),
		expression:  asString(field(row, 22)),
	}
}

type measureRow struct {
	tableID      int64
	name         string
	description  string
	expression   string
	formatString string
	isHidden     bool
}

func parseMeasureRow(row sqlitedb.Row) measureRow {
	return measureRow{
		tableID:      asInt64(field(row, 1)),
		name:         asString(field(row, 2)),
		description:  asString(field(row, 3)),
		expression:   asString(field(row, 5)),
		formatString: asString(field(row, 6)),
		isHidden:     asBool(field(row, 7)),
	}
}

type relationshipRow struct {
	isActive               bool
	crossFilteringBehavior int64
	fromTableID            int64
	toTableID              int64
	fromColumnID           int64
	toColumnID             int64
	fromCardinality        int64
	toCardinality          int64
}

func parseRelationshipRow(row sqlitedb.Row) relationshipRow {
	return relationshipRow{
		isActive:               asBool(field(row, 3)),
		crossFilteringBehavior: asInt64(field(row, 5)),
		fromTableID:            asInt64(field(row, 8)),
		toTableID:              asInt64(field(row, 11)),
		fromColumnID:           asInt64(field(row, 9)),
		toColumnID:             asInt64(field(row, 12)),
		fromCardinality:        asInt64(field(row, 10)),
		toCardinality:          asInt64(field(row, 13)),
	}
}

type roleRow struct {
	id   int64
	name string
}

func parseRoleRow(row sqlitedb.Row) roleRow {
	return roleRow{id: row.RowID, name: asString(field(row, 2))}
}

type tablePermissionRow struct {
	roleID           int64
	tableID          int64
	filterExpression string
}

func parseTablePermissionRow(row sqlitedb.Row) tablePermissionRow {
	return tablePermissionRow{
		roleID:           asInt64(field(row, 1)),
		tableID:          asInt64(field(row, 2)),
		filterExpression: asString(field(row, 3)),
	}
}
