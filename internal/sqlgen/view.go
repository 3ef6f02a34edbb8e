package sqlgen

// ColumnView is the transport form of a Column.
type ColumnView struct {
	Table      string `json:"table"`
	Name       string `json:"name"`
	DataType   string `json:"data_type"`
	Nullable   bool   `json:"nullable"`
	PrimaryKey bool   `json:"primary_key"`
}

// SortView is the transport form of a Sort.
type SortView struct {
	Column    string `json:"column"`
	Ascending bool   `json:"ascending"`
}

// TableView is the transport form of a Table.
type TableView struct {
	Name        string       `json:"name"`
	Columns     []ColumnView `json:"columns"`
	DefaultSort []SortView   `json:"default_sort"`
}

func ViewColumn(c Column) ColumnView {
	return ColumnView{
		Table:      c.Table(),
		Name:       c.Name(),
		DataType:   c.DataType(),
		Nullable:   c.IsNullable(),
		PrimaryKey: c.IsPrimaryKey(),
	}
}

func ViewSort(s Sort) SortView {
	return SortView{Column: s.Column().Name(), Ascending: s.IsAscending()}
}

func ViewTable(t Table) TableView {
	v := TableView{
		Name:        t.Name(),
		Columns:     []ColumnView{},
		DefaultSort: []SortView{},
	}
	for _, c := range t.Columns() {
		v.Columns = append(v.Columns, ViewColumn(c))
	}
	for _, s := range t.DefaultSort() {
		v.DefaultSort = append(v.DefaultSort, ViewSort(s))
	}
	return v
}
