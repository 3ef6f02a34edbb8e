package sqlgen

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Introspector reads raw table metadata from a database.
type Introspector interface {
	Tables(ctx context.Context) ([]string, error)
	Columns(ctx context.Context, table string) ([]ColumnInfo, error)
}

// BuilderOptions configures which tables are compiled and their default sorts.
type BuilderOptions struct {
	// Include restricts the build to these tables when non-empty.
	Include []string
	// Exclude drops these tables from the build.
	Exclude []string
	// DefaultSorts maps lower-cased table names to their default sort hints.
	DefaultSorts map[string][]SortHint
}

// Builder compiles introspected tables into a Schema.
type Builder struct {
	src    Introspector
	opts   BuilderOptions
	logger *slog.Logger
}

// NewBuilder creates a Builder over src.
func NewBuilder(src Introspector, opts BuilderOptions) *Builder {
	return &Builder{src: src, opts: opts, logger: slog.Default()}
}

// Build lists tables and describes them concurrently.
// Table order in the returned Schema follows the introspector's listing.
func (b *Builder) Build(ctx context.Context) (Schema, error) {
	names, err := b.src.Tables(ctx)
	if err != nil {
		return Schema{}, fmt.Errorf("listing tables: %w", err)
	}
	names = b.filter(names)

	tables := make([]Table, len(names))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, name := range names {
		g.Go(func() error {
			t, err := b.buildTable(gCtx, name)
			if err != nil {
				return err
			}
			tables[i] = t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Schema{}, err
	}

	b.logger.Debug("schema compiled", "tables", len(tables))
	return NewSchema(tables), nil
}

func (b *Builder) buildTable(ctx context.Context, name string) (Table, error) {
	infos, err := b.src.Columns(ctx, name)
	if err != nil {
		return Table{}, fmt.Errorf("describing table %s: %w", name, err)
	}

	cols := make([]Column, len(infos))
	for i, info := range infos {
		cols[i] = NewColumn(name, info)
	}
	t := NewTable(name, cols, nil)

	hints := b.opts.DefaultSorts[strings.ToLower(name)]
	if len(hints) == 0 {
		return t, nil
	}

	sorts := make([]Sort, 0, len(hints))
	for _, h := range hints {
		col, ok := t.Column(h.Column)
		if !ok {
			return Table{}, fmt.Errorf("default sort for %s.%s: %w", name, h.Column, ErrUnknownColumn)
		}
		// Hints without a direction sort ascending.
		asc := true
		if h.Ascending != nil {
			asc = *h.Ascending
		}
		sorts = append(sorts, NewSort(col, asc))
	}
	return NewTable(name, cols, sorts), nil
}

func (b *Builder) filter(names []string) []string {
	include := toSet(b.opts.Include)
	exclude := toSet(b.opts.Exclude)

	out := make([]string, 0, len(names))
	for _, n := range names {
		key := strings.ToLower(n)
		if len(include) > 0 && !include[key] {
			continue
		}
		if exclude[key] {
			continue
		}
		out = append(out, n)
	}
	return out
}

func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	set := make(map[string]bool, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it != "" {
			set[strings.ToLower(it)] = true
		}
	}
	return set
}
