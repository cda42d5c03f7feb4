// Package feature computes named numeric feature vectors for catalog
// items, backed by a set of upstream aggregate sources and a time-boxed
// cache.
package feature

import "math"

// Vector is a flat map of named numeric features. The schema is fixed;
// values are rounded and never NaN/Inf.
type Vector = map[string]float64

// Feature names, internal camelCase convention.
const (
	Sales7d          = "sales7d"
	Sales14d         = "sales14d"
	Sales30d         = "sales30d"
	Sales7dPerDay    = "sales7dPerDay"
	Sales30dPerDay   = "sales30dPerDay"
	SalesRatio7To30  = "salesRatio7To30"
	Views7d          = "views7d"
	Views30d         = "views30d"
	AddToCarts7d     = "addToCarts7d"
	ViewToPurchase7d = "viewToPurchase7d"
	AvgPrice         = "avgPrice"
	MinPrice         = "minPrice"
	MaxPrice         = "maxPrice"
	AvgRating        = "avgRating"
	RatingCount      = "ratingCount"
	InventoryQty     = "inventoryQty"
	DaysSinceRestock = "daysSinceRestock"
	ScopeViews7d     = "scopeViews7d"
	ScopePurchases7d = "scopePurchases7d"
	DayOfWeek        = "dayOfWeek"
	IsWeekend        = "isWeekend"
)

// Names returns the full feature schema in a stable order.
func Names() []string {
	return []string{
		Sales7d, Sales14d, Sales30d,
		Sales7dPerDay, Sales30dPerDay, SalesRatio7To30,
		Views7d, Views30d, AddToCarts7d, ViewToPurchase7d,
		AvgPrice, MinPrice, MaxPrice,
		AvgRating, RatingCount,
		InventoryQty, DaysSinceRestock,
		ScopeViews7d, ScopePurchases7d,
		DayOfWeek, IsWeekend,
	}
}

const roundPrecision = 4

// round fixes precision and coerces NaN/Inf to 0 so no invalid value
// ever enters the cache or the wire.
func round(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	shift := math.Pow10(roundPrecision)
	return math.Round(v*shift) / shift
}

// safeDiv divides guarding against a zero denominator.
func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
