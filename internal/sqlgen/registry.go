package sqlgen

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SchemaBuilder compiles a Schema. Implemented by *Builder.
type SchemaBuilder interface {
	Build(ctx context.Context) (Schema, error)
}

// Registry holds the most recently compiled Schema and rebuilds it on demand
// or on a fixed interval.
type Registry struct {
	builder  SchemaBuilder
	interval time.Duration
	logger   *slog.Logger

	mu        sync.RWMutex
	schema    Schema
	builtAt   time.Time
	hasSchema bool
}

// NewRegistry creates a Registry. If interval is <= 0, it defaults to 5 minutes.
func NewRegistry(builder SchemaBuilder, interval time.Duration) *Registry {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Registry{
		builder:  builder,
		interval: interval,
		logger:   slog.Default(),
	}
}

// Schema returns the current schema, building it first if none exists yet.
func (r *Registry) Schema(ctx context.Context) (Schema, error) {
	r.mu.RLock()
	if r.hasSchema {
		s := r.schema
		r.mu.RUnlock()
		return s, nil
	}
	r.mu.RUnlock()

	return r.Refresh(ctx)
}

// Refresh rebuilds the schema and swaps it in. On failure the previous
// schema stays in place.
func (r *Registry) Refresh(ctx context.Context) (Schema, error) {
	s, err := r.builder.Build(ctx)
	if err != nil {
		return Schema{}, fmt.Errorf("building schema: %w", err)
	}

	r.mu.Lock()
	r.schema = s
	r.builtAt = time.Now()
	r.hasSchema = true
	r.mu.Unlock()

	return s, nil
}

// BuiltAt returns when the current schema was compiled, or the zero time.
func (r *Registry) BuiltAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.builtAt
}

// Run refreshes the schema every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := r.Refresh(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("schema refresh failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.interval):
		}
	}
}
