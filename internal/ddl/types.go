package ddl

// Logical column types. Dialects map them to concrete SQL types.
const (
	TypeText      = "text"
	TypeBigInt    = "bigint"
	TypeTimestamp = "timestamp"
	TypeUUID      = "uuid"
)

// ColumnDef describes a single column. Name is unquoted; quoting happens at
// render time.
type ColumnDef struct {
	Name       string
	Type       string
	Nullable   bool
	PrimaryKey bool
}

// TableDef holds the table name (possibly "schema.table") and its ordered
// columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// ColumnNames returns the column names in order.
func (t TableDef) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}
