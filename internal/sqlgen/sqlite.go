package sqlgen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteIntrospector reads table metadata from a SQLite database.
type SQLiteIntrospector struct {
	db *sql.DB
}

func NewSQLiteIntrospector(db *sql.DB) *SQLiteIntrospector {
	return &SQLiteIntrospector{db: db}
}

// Tables lists user tables, skipping SQLite internals and the migration ledger.
func (s *SQLiteIntrospector) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name != 'schema_version'
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Columns describes table via PRAGMA table_info.
func (s *SQLiteIntrospector) Columns(ctx context.Context, table string) ([]ColumnInfo, error) {
	query := fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table))
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, ColumnInfo{
			Name:       name,
			DataType:   strings.ToUpper(typ),
			Nullable:   notNull == 0,
			PrimaryKey: pk > 0,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s: %w", table, ErrTableNotFound)
	}
	markRowIDAlias(cols)
	return cols, nil
}

// markRowIDAlias clears Nullable on a sole INTEGER PRIMARY KEY column. Any
// other SQLite primary key accepts NULL unless declared NOT NULL.
func markRowIDAlias(cols []ColumnInfo) {
	idx := -1
	for i, c := range cols {
		if !c.PrimaryKey {
			continue
		}
		if idx >= 0 {
			return
		}
		idx = i
	}
	if idx >= 0 && cols[idx].DataType == "INTEGER" {
		cols[idx].Nullable = false
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
