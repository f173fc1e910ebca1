package types

// Logical column types accepted in table descriptors. Each dialect maps
// these to its native type names.
const (
	TypeInteger  = "INTEGER"
	TypeText     = "TEXT"
	TypeReal     = "REAL"
	TypeBlob     = "BLOB"
	TypeBoolean  = "BOOLEAN"
	TypeDate     = "DATE"
	TypeDatetime = "DATETIME"
)

type Column struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key,omitempty"`
	Default    any    `json:"default,omitempty"`
	// References names a foreign key target in "table(column)" form.
	References string `json:"references,omitempty"`
}

type Index struct {
	Name    string   `json:"name"`
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
	Unique  bool     `json:"unique"`
}

// AlterOp is one alter_table operation. Action is one of add_column,
// drop_column, rename_column or rename_table.
type AlterOp struct {
	Action  string  `json:"action"`
	Column  *Column `json:"column,omitempty"`
	Name    string  `json:"name,omitempty"`
	NewName string  `json:"new_name,omitempty"`
}

// QueryResult is the normalized shape every statement returns, regardless
// of backend. Rows are only set for row-returning statements, AffectedRows
// and LastInsertID only for mutating ones.
type QueryResult struct {
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	RowCount     int              `json:"row_count"`
	AffectedRows int64            `json:"affected_rows,omitempty"`
	LastInsertID *int64           `json:"last_insert_id,omitempty"`
}
