// Package normalize collapses heterogeneous batch input items into the
// uniform row shape the dispatcher consumes, building feature vectors
// for rows that do not bring their own.
package normalize

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/merchkit/stockcast/internal/domain/feature"
	"github.com/merchkit/stockcast/internal/domain/model"
	"github.com/merchkit/stockcast/pkg/logger"
)

// defaultConcurrency bounds in-flight feature builds so upstream
// aggregate sources are not overwhelmed by large batches.
const defaultConcurrency = 10

// ReasonMissingIdentifier marks rows that cannot be built at all.
const ReasonMissingIdentifier = "missing_identifier"

// Builder is the feature-building port consumed by the normalizer.
type Builder interface {
	Build(ctx context.Context, itemID, scopeID string) (feature.Vector, error)
}

// Normalizer converts input items into normalized rows. Feature builds
// run with bounded concurrency; a failed build marks only its own row.
type Normalizer struct {
	builder     Builder
	concurrency int
	log         logger.Logger
}

// Option applies a configuration option to the Normalizer.
type Option func(*Normalizer)

// WithConcurrency sets the number of feature builds allowed in flight.
func WithConcurrency(n int) Option {
	return func(nz *Normalizer) {
		if n > 0 {
			nz.concurrency = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(nz *Normalizer) {
		if log != nil {
			nz.log = log
		}
	}
}

// New creates a Normalizer with configuration options.
func New(builder Builder, opts ...Option) *Normalizer {
	nz := &Normalizer{
		builder:     builder,
		concurrency: defaultConcurrency,
		log:         logger.Get().Named("normalize"),
	}

	for _, opt := range opts {
		opt(nz)
	}

	return nz
}

// Normalize maps every input item to a normalized row at the same index.
// Prebuilt rows pass through untouched; all other rows fan out to the
// feature builder under the concurrency bound. Build failures never
// abort the batch: they set BuildErr on their own row only.
func (nz *Normalizer) Normalize(ctx context.Context, items []model.InputItem) []model.NormalizedRow {
	rows := make([]model.NormalizedRow, len(items))

	var g errgroup.Group
	g.SetLimit(nz.concurrency)

	for i, item := range items {
		rows[i] = model.NormalizedRow{
			Index:   i,
			ItemID:  item.ItemID,
			ScopeID: item.ScopeID,
		}

		if item.Kind == model.KindPrebuilt {
			rows[i].Features = item.Features
			continue
		}
		if item.ItemID == "" {
			rows[i].BuildErr = ReasonMissingIdentifier
			continue
		}

		row := &rows[i]
		g.Go(func() error {
			vec, err := nz.builder.Build(ctx, row.ItemID, row.ScopeID)
			if err != nil {
				nz.log.Warn(ctx, "feature build failed",
					logger.String("item_id", row.ItemID),
					logger.Int("index", row.Index),
					logger.Error(err))
				row.BuildErr = err.Error()
				return nil
			}
			row.Features = vec
			return nil
		})
	}

	// Errors are captured per row; Wait only drains the pool.
	_ = g.Wait()

	return rows
}
