package sqlgen

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTableNotFound is returned when a schema has no table with the given name.
	ErrTableNotFound = errors.New("table not found")
	// ErrUnknownColumn is returned by the builder when a sort hint names a
	// column the table does not have.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrColumnNotFound is returned by the extractor when a token does not
	// resolve to any column of the table.
	ErrColumnNotFound = errors.New("column not found")
	// ErrEmptyToken is returned when a token carries neither text nor subject.
	ErrEmptyToken = errors.New("empty sort token")
)

// Column describes one SQL column of a table.
type Column interface {
	Table() string
	Name() string
	DataType() string
	IsNullable() bool
	IsPrimaryKey() bool
}

// Sort is the sort direction applied to a single column.
// Implementations must be immutable.
type Sort interface {
	// Column returns the column this sort is applied to.
	Column() Column
	// IsAscending returns true for ascending order, false for descending.
	IsAscending() bool
}

// NewSort returns a Sort over col. Column membership in the enclosing
// table is not checked here.
func NewSort(col Column, asc bool) Sort {
	return sortSpec{col: col, asc: asc}
}

type sortSpec struct {
	col Column
	asc bool
}

func (s sortSpec) Column() Column    { return s.col }
func (s sortSpec) IsAscending() bool { return s.asc }

// ColumnInfo is the raw column description returned by an Introspector.
type ColumnInfo struct {
	Name       string
	DataType   string
	Nullable   bool
	PrimaryKey bool
}

// NewColumn returns a Column belonging to table.
func NewColumn(table string, info ColumnInfo) Column {
	return &column{table: table, info: info}
}

type column struct {
	table string
	info  ColumnInfo
}

func (c *column) Table() string      { return c.table }
func (c *column) Name() string       { return c.info.Name }
func (c *column) DataType() string   { return c.info.DataType }
func (c *column) IsNullable() bool   { return c.info.Nullable }
func (c *column) IsPrimaryKey() bool { return c.info.PrimaryKey }

// Table is a compiled table descriptor.
type Table struct {
	name        string
	columns     []Column
	defaultSort []Sort
}

// NewTable builds a Table. Slices are copied.
func NewTable(name string, columns []Column, defaultSort []Sort) Table {
	t := Table{name: name}
	if len(columns) > 0 {
		t.columns = make([]Column, len(columns))
		copy(t.columns, columns)
	}
	if len(defaultSort) > 0 {
		t.defaultSort = make([]Sort, len(defaultSort))
		copy(t.defaultSort, defaultSort)
	}
	return t
}

func (t Table) Name() string { return t.name }

// Columns returns the table columns in declaration order.
func (t Table) Columns() []Column {
	if len(t.columns) == 0 {
		return nil
	}
	cp := make([]Column, len(t.columns))
	copy(cp, t.columns)
	return cp
}

// Column looks up a column by name, ignoring case.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.columns {
		if strings.EqualFold(c.Name(), name) {
			return c, true
		}
	}
	return nil, false
}

// PrimaryKeys returns the primary key columns in declaration order.
func (t Table) PrimaryKeys() []Column {
	var pks []Column
	for _, c := range t.columns {
		if c.IsPrimaryKey() {
			pks = append(pks, c)
		}
	}
	return pks
}

// DefaultSort returns the table's configured baseline sort. It is empty
// when no default sort was configured.
func (t Table) DefaultSort() []Sort {
	if len(t.defaultSort) == 0 {
		return nil
	}
	cp := make([]Sort, len(t.defaultSort))
	copy(cp, t.defaultSort)
	return cp
}

// Schema is an ordered set of compiled tables.
type Schema struct {
	tables []Table
}

// NewSchema builds a Schema from tables, keeping their order.
func NewSchema(tables []Table) Schema {
	s := Schema{}
	if len(tables) > 0 {
		s.tables = make([]Table, len(tables))
		copy(s.tables, tables)
	}
	return s
}

func (s Schema) Tables() []Table {
	if len(s.tables) == 0 {
		return nil
	}
	cp := make([]Table, len(s.tables))
	copy(cp, s.tables)
	return cp
}

// Table looks up a table by name, ignoring case.
func (s Schema) Table(name string) (Table, error) {
	for _, t := range s.tables {
		if strings.EqualFold(t.name, name) {
			return t, nil
		}
	}
	return Table{}, fmt.Errorf("%s: %w", name, ErrTableNotFound)
}
