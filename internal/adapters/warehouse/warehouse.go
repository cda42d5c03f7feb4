// Package warehouse reads the upstream analytics tables that feature
// vectors are derived from. It implements feature.Source on top of a
// pgx connection pool; every query aggregates in the database so only
// scalar rows cross the wire.
package warehouse

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/merchkit/stockcast/internal/domain/feature"
)

// Store is a Postgres-backed feature source.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store and verifies connectivity with a ping.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping warehouse: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an existing pool, letting callers share one pool
// across adapters.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying pool for adapters that share it.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

const itemWindowQuery = `
	SELECT
		COALESCE(SUM(views), 0)::bigint,
		COALESCE(SUM(purchases), 0)::bigint,
		COALESCE(SUM(add_to_carts), 0)::bigint,
		COALESCE(SUM(revenue), 0)::float8
	FROM item_daily_stats
	WHERE item_id = $1 AND date BETWEEN $2 AND $3`

// ItemWindowStats sums item activity over [from, to] inclusive.
func (s *Store) ItemWindowStats(ctx context.Context, itemID string, from, to time.Time) (feature.WindowStats, error) {
	var stats feature.WindowStats
	err := s.pool.QueryRow(ctx, itemWindowQuery, itemID, from, to).
		Scan(&stats.Views, &stats.Purchases, &stats.AddToCarts, &stats.Revenue)
	if err != nil {
		return feature.WindowStats{}, fmt.Errorf("item window stats for %s: %w", itemID, err)
	}
	return stats, nil
}

const scopeWindowQuery = `
	SELECT
		COALESCE(SUM(views), 0)::bigint,
		COALESCE(SUM(purchases), 0)::bigint,
		COALESCE(SUM(add_to_carts), 0)::bigint,
		COALESCE(SUM(revenue), 0)::float8
	FROM scope_daily_stats
	WHERE scope_id = $1 AND date BETWEEN $2 AND $3`

// ScopeWindowStats sums scope-level activity over [from, to] inclusive.
func (s *Store) ScopeWindowStats(ctx context.Context, scopeID string, from, to time.Time) (feature.WindowStats, error) {
	var stats feature.WindowStats
	err := s.pool.QueryRow(ctx, scopeWindowQuery, scopeID, from, to).
		Scan(&stats.Views, &stats.Purchases, &stats.AddToCarts, &stats.Revenue)
	if err != nil {
		return feature.WindowStats{}, fmt.Errorf("scope window stats for %s: %w", scopeID, err)
	}
	return stats, nil
}

const priceQuery = `
	SELECT
		COALESCE(AVG(price), 0)::float8,
		COALESCE(MIN(price), 0)::float8,
		COALESCE(MAX(price), 0)::float8
	FROM item_variants
	WHERE item_id = $1`

// PriceStats aggregates variant prices for the item.
func (s *Store) PriceStats(ctx context.Context, itemID string) (feature.PriceStats, error) {
	var stats feature.PriceStats
	err := s.pool.QueryRow(ctx, priceQuery, itemID).Scan(&stats.Avg, &stats.Min, &stats.Max)
	if err != nil {
		return feature.PriceStats{}, fmt.Errorf("price stats for %s: %w", itemID, err)
	}
	return stats, nil
}

const ratingQuery = `
	SELECT
		COUNT(*)::bigint,
		COALESCE(AVG(rating), 0)::float8
	FROM reviews
	WHERE item_id = $1`

// RatingStats aggregates review count and average for the item.
func (s *Store) RatingStats(ctx context.Context, itemID string) (feature.RatingStats, error) {
	var stats feature.RatingStats
	err := s.pool.QueryRow(ctx, ratingQuery, itemID).Scan(&stats.Count, &stats.Avg)
	if err != nil {
		return feature.RatingStats{}, fmt.Errorf("rating stats for %s: %w", itemID, err)
	}
	return stats, nil
}

// inventoryQuery takes the latest snapshot per variant before summing,
// and treats the newest quantity increase as the last restock.
const inventoryQuery = `
	WITH latest AS (
		SELECT DISTINCT ON (variant_id)
			variant_id, quantity, updated_at
		FROM inventory
		WHERE item_id = $1
		ORDER BY variant_id, updated_at DESC
	)
	SELECT
		COALESCE(SUM(quantity), 0)::bigint,
		COALESCE(MAX(updated_at) FILTER (WHERE quantity > 0), 'epoch'::timestamptz)
	FROM latest`

// InventoryStats returns current stock and last restock time. A zero
// restock time is reported when the item has no stocked snapshot.
func (s *Store) InventoryStats(ctx context.Context, itemID string) (feature.InventoryStats, error) {
	var stats feature.InventoryStats
	var restockAt time.Time
	err := s.pool.QueryRow(ctx, inventoryQuery, itemID).Scan(&stats.Quantity, &restockAt)
	if err != nil {
		return feature.InventoryStats{}, fmt.Errorf("inventory stats for %s: %w", itemID, err)
	}
	if restockAt.After(time.Unix(0, 0)) {
		stats.LastRestockAt = restockAt
	}
	return stats, nil
}
