package feature

import (
	"context"
	"time"
)

// WindowStats aggregates activity over a trailing date window.
type WindowStats struct {
	Views      int64
	Purchases  int64
	AddToCarts int64
	Revenue    float64
}

// PriceStats aggregates prices across an item's variants.
type PriceStats struct {
	Avg float64
	Min float64
	Max float64
}

// RatingStats aggregates an item's reviews.
type RatingStats struct {
	Count int64
	Avg   float64
}

// InventoryStats describes an item's current stock position.
// A zero LastRestockAt means the restock date is unknown.
type InventoryStats struct {
	Quantity      int64
	LastRestockAt time.Time
}

// Source provides the independent upstream aggregates a feature vector
// is derived from. Implementations own their transport and pooling; the
// builder fetches from them in parallel.
type Source interface {
	// ItemWindowStats returns item activity for [from, to] inclusive.
	ItemWindowStats(ctx context.Context, itemID string, from, to time.Time) (WindowStats, error)

	// ScopeWindowStats returns scope-level activity for [from, to] inclusive.
	ScopeWindowStats(ctx context.Context, scopeID string, from, to time.Time) (WindowStats, error)

	// PriceStats returns price aggregates across the item's variants.
	PriceStats(ctx context.Context, itemID string) (PriceStats, error)

	// RatingStats returns the item's review aggregates.
	RatingStats(ctx context.Context, itemID string) (RatingStats, error)

	// InventoryStats returns the item's stock quantity and last restock time.
	InventoryStats(ctx context.Context, itemID string) (InventoryStats, error)
}
