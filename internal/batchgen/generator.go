// Package batchgen produces synthetic prediction batches for local
// development and load testing against scoresim.
package batchgen

import (
	"math/rand"

	"github.com/google/uuid"

	"github.com/merchkit/stockcast/internal/domain/feature"
	"github.com/merchkit/stockcast/internal/domain/model"
)

// Shape mix for generated items.
const (
	bareIdentifierWeight = 0.5
	scopedWeight         = 0.3
	// the remainder is prebuilt rows

	defaultSeed   = 42
	scopePoolSize = 5
)

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithSeed makes the generated batch reproducible.
func WithSeed(seed int64) Option {
	return func(g *Generator) {
		g.rng = rand.New(rand.NewSource(seed)) //nolint:gosec // synthetic data only
	}
}

// Generator builds batches with a fixed mix of the three input shapes.
type Generator struct {
	rng    *rand.Rand
	scopes []string
}

// New creates a Generator with configuration options.
func New(opts ...Option) *Generator {
	g := &Generator{
		rng: rand.New(rand.NewSource(defaultSeed)), //nolint:gosec // synthetic data only
	}

	for _, opt := range opts {
		opt(g)
	}

	g.scopes = make([]string, scopePoolSize)
	for i := range g.scopes {
		g.scopes[i] = "store-" + uuid.NewString()[:8]
	}

	return g
}

// Batch generates n input items mixing bare identifiers, scoped
// identifiers, and prebuilt rows.
func (g *Generator) Batch(n int) []model.InputItem {
	items := make([]model.InputItem, n)
	for i := range items {
		itemID := "item-" + uuid.NewString()[:8]
		switch roll := g.rng.Float64(); {
		case roll < bareIdentifierWeight:
			items[i] = model.Identifier(itemID)
		case roll < bareIdentifierWeight+scopedWeight:
			items[i] = model.IdentifierWithScope(itemID, g.scopes[g.rng.Intn(len(g.scopes))])
		default:
			items[i] = model.Prebuilt(itemID, "", g.vector())
		}
	}
	return items
}

// vector fabricates a plausible feature vector covering the full schema.
func (g *Generator) vector() map[string]float64 {
	sales7 := float64(g.rng.Intn(50))
	sales30 := sales7 + float64(g.rng.Intn(150))
	views7 := sales7 * float64(5+g.rng.Intn(20))
	price := 5 + g.rng.Float64()*95

	v := map[string]float64{
		feature.Sales7d:          sales7,
		feature.Sales14d:         (sales7 + sales30) / 2,
		feature.Sales30d:         sales30,
		feature.Sales7dPerDay:    sales7 / 7,
		feature.Sales30dPerDay:   sales30 / 30,
		feature.SalesRatio7To30:  0,
		feature.Views7d:          views7,
		feature.Views30d:         views7 * 4,
		feature.AddToCarts7d:     sales7 * 2,
		feature.ViewToPurchase7d: 0,
		feature.AvgPrice:         price,
		feature.MinPrice:         price * 0.8,
		feature.MaxPrice:         price * 1.2,
		feature.AvgRating:        1 + g.rng.Float64()*4,
		feature.RatingCount:      float64(g.rng.Intn(500)),
		feature.InventoryQty:     float64(g.rng.Intn(300)),
		feature.DaysSinceRestock: float64(g.rng.Intn(120)),
		feature.DayOfWeek:        float64(g.rng.Intn(7)),
		feature.IsWeekend:        0,
	}
	if sales30 > 0 {
		v[feature.SalesRatio7To30] = sales7 / sales30
	}
	if views7 > 0 {
		v[feature.ViewToPurchase7d] = sales7 / views7
	}
	if v[feature.DayOfWeek] >= 5 {
		v[feature.IsWeekend] = 1
	}
	v[feature.ScopeViews7d] = views7 * 10
	v[feature.ScopePurchases7d] = sales7 * 8
	return v
}
