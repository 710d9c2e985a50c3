// Package metadata joins rows from the metadata.sqlitedb tables into the
// normalized SemanticModel, filtering out Power BI's internal
// date/hierarchy/role scaffolding tables.
package metadata

import (
	"fmt"
	"sort"
	"strings"

	"pbixdecode/internal/model"
	"pbixdecode/internal/sqlitedb"
)

var internalTablePrefixes = []string{
	"LocalDateTable_",
	"DateTableTemplate_",
	"H$",
	"R$",
	"U$",
}

func isInternalTable(name string) bool {
	for _, prefix := range internalTablePrefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// ColumnRef is what the column schema builder needs to resolve a
// ColumnStorage row back to its owning table and column name.
type ColumnRef struct {
	TableName   string
	ColumnName  string
	AMODataType int64
	Kind        model.ColumnKind
}

// Schema is the semantic schema builder's output: the surfaced
// SemanticModel plus the lookup tables the column schema builder needs
// to keep working in terms of row IDs.
type Schema struct {
	Model *model.SemanticModel

	// TableNames maps a Table row's ID to its name, restricted to tables
	// that survived the internal-table filter.
	TableNames map[int64]string

	// ColumnInfo maps a Column row's ID to its table/column names and AMO
	// type, restricted to data (1) and calculated (2) columns of surviving
	// tables.
	ColumnInfo map[int64]ColumnRef
}

func amoTypeLabel(code int64) string {
	switch code {
	case 2:
		return "string"
	case 6:
		return "int64"
	case 8:
		return "double"
	case 9:
		return "datetime"
	case 10:
		return "decimal"
	case 11:
		return "boolean"
	case 17:
		return "binary"
	default:
		return "unknown"
	}
}

func cardinalityOf(fromMany, toMany bool) model.Cardinality {
	switch {
	case fromMany && !toMany:
		return model.CardinalityManyToOne
	case !fromMany && toMany:
		return model.CardinalityOneToMany
	case fromMany && toMany:
		return model.CardinalityManyToMany
	default:
		return model.CardinalityOneToOne
	}
}

// Build reads Table, Column, Measure, Relationship, Role, and
// TablePermission rows from db and assembles the semantic model.
func Build(db *sqlitedb.DB) (*Schema, error) {
	tableRows, err := db.GetTableRows("Table")
	if err != nil {
		return nil, errIncompleteMetadata("Table", err)
	}
	if len(tableRows) == 0 {
		return nil, errIncompleteMetadata("Table", fmt.Errorf("no rows"))
	}

	columnRows, _ := db.GetTableRows("Column")
	measureRows, _ := db.GetTableRows("Measure")
	relationshipRows, _ := db.GetTableRows("Relationship")
	roleRows, _ := db.GetTableRows("Role")
	tablePermissionRows, _ := db.GetTableRows("TablePermission")

	tablesByID := make(map[int64]tableRow, len(tableRows))
	surviving := make(map[int64]string)
	for _, raw := range tableRows {
		t := parseTableRow(raw)
		tablesByID[t.id] = t
		if !isInternalTable(t.name) {
			surviving[t.id] = t.name
		}
	}

	tableOut := make(map[int64]*model.Table, len(surviving))
	for id, name := range surviving {
		t := tablesByID[id]
		tableOut[id] = &model.Table{
			Name:        name,
			Type:        model.TableTypeImport,
			IsHidden:    t.isHidden,
			Description: t.description,
		}
	}

	columnInfo := make(map[int64]ColumnRef)
	for _, raw := range columnRows {
		c := parseColumnRow(raw)
		tableName, ok := surviving[c.tableID]
		if !ok {
			continue
		}
		if c.colType != 1 && c.colType != 2 {
			continue // calculated(2) kept, rowNumber(3) and others dropped
		}

		kind := model.ColumnKindData
		if c.colType == 2 {
			kind = model.ColumnKindCalculated
		}

		columnInfo[c.id] = ColumnRef{
			TableName:   tableName,
			ColumnName:  c.name,
			AMODataType: c.dataType,
			Kind:        kind,
		}

		table := tableOut[c.tableID]
		table.Columns = append(table.Columns, model.Column{
			Name:        c.name,
			DataType:    amoTypeLabel(c.dataType),
			AMODataType: c.dataType,
			Kind:        kind,
			Description: c.description,
			IsHidden:    c.isHidden,
			Expression:  c.expression,
		})
	}

	for _, raw := range measureRows {
		m := parseMeasureRow(raw)
		table, ok := tableOut[m.tableID]
		if !ok {
			continue
		}
		table.Measures = append(table.Measures, model.Measure{
			Name:         m.name,
			Description:  m.description,
			Expression:   m.expression,
			FormatString: m.formatString,
			IsHidden:     m.isHidden,
		})
	}

	var relationships []model.Relationship
	for _, raw := range relationshipRows {
		r := parseRelationshipRow(raw)
		fromTable, fromOK := surviving[r.fromTableID]
		toTable, toOK := surviving[r.toTableID]
		if !fromOK || !toOK {
			continue // relationship touches a filtered table
		}
		fromColumn := columnInfo[r.fromColumnID].ColumnName
		toColumn := columnInfo[r.toColumnID].ColumnName

		direction := model.CrossFilterSingle
		if r.crossFilteringBehavior == 2 {
			direction = model.CrossFilterBoth
		}

		relationships = append(relationships, model.Relationship{
			FromTable:            fromTable,
			FromColumn:           fromColumn,
			ToTable:              toTable,
			ToColumn:             toColumn,
			Cardinality:          cardinalityOf(r.fromCardinality == 2, r.toCardinality == 2),
			CrossFilterDirection: direction,
			IsActive:             r.isActive,
		})
	}

	rolesByID := make(map[int64]*model.Role, len(roleRows))
	var roleOrder []int64
	for _, raw := range roleRows {
		rr := parseRoleRow(raw)
		role := &model.Role{Name: rr.name}
		rolesByID[rr.id] = role
		roleOrder = append(roleOrder, rr.id)
	}
	for _, raw := range tablePermissionRows {
		tp := parseTablePermissionRow(raw)
		role, ok := rolesByID[tp.roleID]
		if !ok {
			continue
		}
		tableName, ok := surviving[tp.tableID]
		if !ok {
			continue
		}
		role.TablePermissions = append(role.TablePermissions, model.TablePermission{
			Table:            tableName,
			FilterExpression: tp.filterExpression,
		})
	}

	tables := make([]model.Table, 0, len(tableOut))
	for _, t := range tableOut {
		tables = append(tables, *t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	roles := make([]model.Role, 0, len(roleOrder))
	for _, id := range roleOrder {
		roles = append(roles, *rolesByID[id])
	}

	sm := &model.SemanticModel{
		SourceFormat:  "pbix",
		Tables:        tables,
		Relationships: relationships,
		Roles:         roles,
	}

	return &Schema{
		Model:      sm,
		TableNames: surviving,
		ColumnInfo: columnInfo,
	}, nil
}

func errIncompleteMetadata(table string, cause error) error {
	return fmt.Errorf("%w: table %q: %v", ErrIncompleteMetadata, table, cause)
}
