//go:build integration

package sqlgen

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestPostgresIntrospector_Integration requires NLPMODEL_TEST_POSTGRES_DSN
// pointing at a disposable database.
func TestPostgresIntrospector_Integration(t *testing.T) {
	dsn := os.Getenv("NLPMODEL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NLPMODEL_TEST_POSTGRES_DSN not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := OpenPostgres(ctx, dsn)
	if err != nil {
		t.Skipf("PostgreSQL not reachable: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `
		DROP TABLE IF EXISTS nlpmodel_it_orders;
		CREATE TABLE nlpmodel_it_orders (
			id BIGSERIAL PRIMARY KEY,
			note TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		t.Fatalf("creating table: %v", err)
	}
	t.Cleanup(func() {
		pool.Exec(context.Background(), `DROP TABLE IF EXISTS nlpmodel_it_orders`)
	})

	hints, _ := ParseSortHints("nlpmodel_it_orders:created_at desc")
	b := NewBuilder(NewPostgresIntrospector(pool, ""), BuilderOptions{
		Include:      []string{"nlpmodel_it_orders"},
		DefaultSorts: hints,
	})

	schema, err := b.Build(ctx)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	tbl, err := schema.Table("nlpmodel_it_orders")
	if err != nil {
		t.Fatal(err)
	}

	id, ok := tbl.Column("id")
	if !ok || !id.IsPrimaryKey() {
		t.Errorf("id column missing or not a primary key")
	}
	note, _ := tbl.Column("note")
	if note == nil || !note.IsNullable() {
		t.Errorf("note should be nullable")
	}
	if ds := tbl.DefaultSort(); len(ds) != 1 || ds[0].Column().Name() != "created_at" || ds[0].IsAscending() {
		t.Errorf("default sort = %v, want created_at desc", ds)
	}
}
