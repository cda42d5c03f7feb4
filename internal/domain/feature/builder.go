package feature

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/merchkit/stockcast/pkg/metrics"
)

// Trailing window sizes in days.
const (
	window7d  = 7
	window14d = 14
	window30d = 30

	// defaultDaysSinceRestock is used when the restock date is unknown
	// or lies in the future.
	defaultDaysSinceRestock = 365
)

// Builder computes feature vectors, consulting the cache first and
// fanning out to the upstream source in parallel on a miss.
type Builder struct {
	source Source
	cache  *Cache
	now    func() time.Time
}

// BuilderOption applies a configuration option to the Builder.
type BuilderOption func(*Builder)

// WithCache sets the feature cache. Without one every build recomputes.
func WithCache(cache *Cache) BuilderOption {
	return func(b *Builder) {
		if cache != nil {
			b.cache = cache
		}
	}
}

// WithNow injects a clock for the calendar features and window bounds.
func WithNow(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder creates a feature vector builder with configuration options.
func NewBuilder(source Source, opts ...BuilderOption) *Builder {
	b := &Builder{
		source: source,
		cache:  NewCache(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Build returns the feature vector for (itemID, scopeID), served from
// cache when a fresh entry exists. On a miss all upstream aggregates are
// fetched in parallel; any fetch failure yields a *BuildError.
func (b *Builder) Build(ctx context.Context, itemID, scopeID string) (Vector, error) {
	key := Key(itemID, scopeID)
	if cached, ok := b.cache.Get(key); ok {
		return cached, nil
	}

	start := time.Now()
	vec, err := b.compute(ctx, itemID, scopeID)
	if err != nil {
		metrics.RecordFeatureBuildError()
		return nil, &BuildError{ItemID: itemID, Err: err}
	}
	metrics.RecordFeatureBuildLatency(float64(time.Since(start).Milliseconds()))

	b.cache.Put(key, vec)
	return vec, nil
}

func (b *Builder) compute(ctx context.Context, itemID, scopeID string) (Vector, error) {
	today := truncateToDay(b.now())

	var (
		item7, item14, item30 WindowStats
		scope7                WindowStats
		price                 PriceStats
		rating                RatingStats
		inventory             InventoryStats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		item7, err = b.source.ItemWindowStats(gctx, itemID, windowStart(today, window7d), today)
		return err
	})
	g.Go(func() (err error) {
		item14, err = b.source.ItemWindowStats(gctx, itemID, windowStart(today, window14d), today)
		return err
	})
	g.Go(func() (err error) {
		item30, err = b.source.ItemWindowStats(gctx, itemID, windowStart(today, window30d), today)
		return err
	})
	if scopeID != "" {
		g.Go(func() (err error) {
			scope7, err = b.source.ScopeWindowStats(gctx, scopeID, windowStart(today, window7d), today)
			return err
		})
	}
	g.Go(func() (err error) {
		price, err = b.source.PriceStats(gctx, itemID)
		return err
	})
	g.Go(func() (err error) {
		rating, err = b.source.RatingStats(gctx, itemID)
		return err
	})
	g.Go(func() (err error) {
		inventory, err = b.source.InventoryStats(gctx, itemID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	daysSinceRestock := float64(defaultDaysSinceRestock)
	if !inventory.LastRestockAt.IsZero() && !inventory.LastRestockAt.After(today.AddDate(0, 0, 1)) {
		daysSinceRestock = today.Sub(truncateToDay(inventory.LastRestockAt)).Hours() / 24
		if daysSinceRestock < 0 {
			daysSinceRestock = 0
		}
	}

	// Monday=0 .. Sunday=6, weekend is Saturday/Sunday.
	dayOfWeek := float64((int(today.Weekday()) + 6) % 7)
	isWeekend := 0.0
	if dayOfWeek >= 5 {
		isWeekend = 1.0
	}

	vec := Vector{
		Sales7d:          float64(item7.Purchases),
		Sales14d:         float64(item14.Purchases),
		Sales30d:         float64(item30.Purchases),
		Sales7dPerDay:    float64(item7.Purchases) / window7d,
		Sales30dPerDay:   float64(item30.Purchases) / window30d,
		SalesRatio7To30:  safeDiv(float64(item7.Purchases), float64(item30.Purchases)),
		Views7d:          float64(item7.Views),
		Views30d:         float64(item30.Views),
		AddToCarts7d:     float64(item7.AddToCarts),
		ViewToPurchase7d: safeDiv(float64(item7.Purchases), float64(item7.Views)),
		AvgPrice:         price.Avg,
		MinPrice:         price.Min,
		MaxPrice:         price.Max,
		AvgRating:        rating.Avg,
		RatingCount:      float64(rating.Count),
		InventoryQty:     float64(inventory.Quantity),
		DaysSinceRestock: daysSinceRestock,
		ScopeViews7d:     float64(scope7.Views),
		ScopePurchases7d: float64(scope7.Purchases),
		DayOfWeek:        dayOfWeek,
		IsWeekend:        isWeekend,
	}

	for name, v := range vec {
		vec[name] = round(v)
	}
	return vec, nil
}

// windowStart returns the first day of a trailing window ending today.
func windowStart(today time.Time, days int) time.Time {
	return today.AddDate(0, 0, -(days - 1))
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
