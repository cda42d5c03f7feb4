// Package recorder persists successful predictions to the
// prediction_stats table for later model evaluation. Persistence is
// best effort; the pipeline reports failures but never fails a batch
// over them.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/merchkit/stockcast/internal/domain/model"
	"github.com/merchkit/stockcast/pkg/metrics"
)

// Scope discriminator values for persisted stats.
const (
	ScopeItem  = "item"
	ScopeScope = "scope"
)

// Execer is the slice of the pgx pool the recorder needs.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store writes prediction records to Postgres.
type Store struct {
	db  Execer
	now func() time.Time
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Store on an existing pool.
func New(db Execer, opts ...Option) *Store {
	s := &Store{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const insertQuery = `
	INSERT INTO prediction_stats
		(scope, item_id, scope_id, features, prediction, model_version, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Record stores one successful item result. The scope column records
// whether the prediction was scoped to a single item or to an
// item+scope pair.
func (s *Store) Record(ctx context.Context, result model.ItemResult, modelVersion string) error {
	features, err := json.Marshal(result.Features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	prediction, err := json.Marshal(result.Raw)
	if err != nil {
		return fmt.Errorf("encode prediction: %w", err)
	}

	scope := ScopeItem
	var scopeID *string
	if result.ScopeID != "" {
		scope = ScopeScope
		scopeID = &result.ScopeID
	}

	_, err = s.db.Exec(ctx, insertQuery,
		scope, result.ItemID, scopeID, features, prediction, modelVersion, s.now().UTC())
	if err != nil {
		metrics.RecordPersistenceFailure()
		return fmt.Errorf("insert prediction for %s: %w", result.ItemID, err)
	}
	return nil
}
