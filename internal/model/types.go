// Package model holds the normalized, caller-facing shapes produced by the
// decode pipeline: the semantic model (tables, columns, measures,
// relationships, roles) and the per-column storage descriptors used to
// drive VertiPaq decoding. It has no dependencies on the rest of the
// pipeline so every stage can share one vocabulary without import cycles.
package model

// SemanticModel is the normalized description of a .pbix data model.
type SemanticModel struct {
	Name               string
	CompatibilityLevel int
	Culture            string
	SourceFormat       string
	Tables             []Table
	Relationships      []Relationship
	Roles              []Role
}

// TableType classifies how a table's data is sourced.
type TableType string

const (
	TableTypeImport      TableType = "import"
	TableTypeDirectQuery TableType = "directQuery"
	TableTypeDual        TableType = "dual"
	TableTypeCalculated  TableType = "calculated"
)

// Table is one surfaced table in the semantic model.
type Table struct {
	Name              string
	Type              TableType
	IsHidden          bool
	Description       string
	Columns           []Column
	Measures          []Measure
	Hierarchies       []Hierarchy
	Partitions        []Partition
	CalculationItems  []CalculationItem
}

// ColumnKind distinguishes ordinary data columns from calculated and
// rowNumber columns (Column.Type == 3, always filtered out of output).
type ColumnKind int

const (
	ColumnKindData ColumnKind = iota + 1
	ColumnKindCalculated
	ColumnKindRowNumber
)

// Column is one user-visible column definition (schema only — no data).
type Column struct {
	Name        string
	DataType    string // textual label: string, int64, double, datetime, decimal, boolean, binary
	AMODataType int64
	Kind        ColumnKind
	Description string
	IsHidden    bool
	Expression  string // only set for calculated columns
}

// Measure is a DAX measure definition.
type Measure struct {
	Name         string
	Description  string
	Expression   string
	FormatString string
	IsHidden     bool
}

// Hierarchy, Partition, and CalculationItem are present in the surfaced
// shape for API completeness; internal/metadata's joins don't populate
// them, so they are always emitted empty.
type Hierarchy struct {
	Name string
}

type Partition struct {
	Name string
}

type CalculationItem struct {
	Name string
}

// Cardinality describes the fan of a relationship between two tables.
type Cardinality string

const (
	CardinalityManyToOne  Cardinality = "manyToOne"
	CardinalityOneToMany  Cardinality = "oneToMany"
	CardinalityManyToMany Cardinality = "manyToMany"
	CardinalityOneToOne   Cardinality = "oneToOne"
)

// CrossFilterDirection controls which side of a relationship propagates
// filters.
type CrossFilterDirection string

const (
	CrossFilterSingle CrossFilterDirection = "single"
	CrossFilterBoth   CrossFilterDirection = "both"
)

// Relationship links a column of one table to a column of another.
type Relationship struct {
	FromTable            string
	FromColumn           string
	ToTable              string
	ToColumn             string
	Cardinality          Cardinality
	CrossFilterDirection CrossFilterDirection
	IsActive             bool
}

// Role is a row-level-security role.
type Role struct {
	Name             string
	TablePermissions []TablePermission
}

// TablePermission is one table's filter expression within a Role.
type TablePermission struct {
	Table           string
	FilterExpression string
}

// ColumnDescriptor is the storage-resolution result for one physical user
// column, produced by the column schema builder. It never mutates after
// construction.
type ColumnDescriptor struct {
	TableName string
	Name      string

	IDF     string // column index file, required
	IDFMeta string // idf + "meta", required

	Dictionary string // value dictionary file, or "" for pure-integer columns
	HIDX       string // hierarchy-index file, diagnostic only

	DataType int64 // AMO type code

	BaseID     int64
	Magnitude  float64
	IsNullable bool
	Cardinality int64 // Statistics_DistinctStates from ColumnStorage
}

// HasDictionary reports whether the column stores values via a dictionary
// rather than the baseID/magnitude affine map.
func (c ColumnDescriptor) HasDictionary() bool {
	return c.Dictionary != ""
}

// ExtractedColumn is the length-rowCount sequence of dictionary indices
// produced by the IDF decoder.
type ExtractedColumn []uint32

// TableData is the columnar output of extracting one table: parallel
// Columns/ColumnData slices plus the row count derived from the longest
// surviving column.
type TableData struct {
	Columns    []string
	ColumnData [][]any
	RowCount   int
}
