// Package scoresim is a deterministic stand-in for the external scoring
// service. It speaks the same wire contract, so the pipeline can run
// end to end in development and tests without the real model deployment.
package scoresim

import (
	"math"
)

// Default model coefficients. Tuned so a fast-selling item with thin
// stock cover lands above the high-risk threshold.
const (
	defaultBias           = -1.0
	defaultVelocityWeight = 0.6
	defaultCoverWeight    = 0.08
	defaultStaleWeight    = 0.5

	// maxCoverDays caps the stock-cover signal for slow movers.
	maxCoverDays = 60
)

// Label thresholds on the produced score.
const (
	highThreshold   = 0.7
	mediumThreshold = 0.4
)

// Option applies a configuration option to the Model.
type Option func(*Model)

// WithWeights overrides the model coefficients.
func WithWeights(bias, velocity, cover, stale float64) Option {
	return func(m *Model) {
		m.bias = bias
		m.velocityWeight = velocity
		m.coverWeight = cover
		m.staleWeight = stale
	}
}

// WithVersion sets the model version reported in results.
func WithVersion(version string) Option {
	return func(m *Model) {
		if version != "" {
			m.version = version
		}
	}
}

// Model scores feature vectors with a fixed logistic formula. The same
// vector always produces the same score.
type Model struct {
	bias           float64
	velocityWeight float64
	coverWeight    float64
	staleWeight    float64
	version        string
}

// NewModel creates a Model with configuration options.
func NewModel(opts ...Option) *Model {
	m := &Model{
		bias:           defaultBias,
		velocityWeight: defaultVelocityWeight,
		coverWeight:    defaultCoverWeight,
		staleWeight:    defaultStaleWeight,
		version:        "scoresim-1",
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Version reports the model version label.
func (m *Model) Version() string { return m.version }

// Score computes a stockout risk in [0,1] from a wire feature map.
// Risk rises with sales velocity and staleness and falls with stock
// cover.
func (m *Model) Score(features map[string]float64) float64 {
	velocity := features["sales7d_per_day"]
	inventory := features["inventory_qty"]
	stale := features["days_since_restock"] / 365

	cover := float64(maxCoverDays)
	if velocity > 0 {
		cover = math.Min(inventory/velocity, maxCoverDays)
	}

	z := m.bias + m.velocityWeight*velocity - m.coverWeight*cover + m.staleWeight*stale
	score := 1 / (1 + math.Exp(-z))
	return math.Max(0, math.Min(1, score))
}

// Label classifies a score with the standard thresholds.
func Label(score float64) string {
	switch {
	case score > highThreshold:
		return "high"
	case score > mediumThreshold:
		return "medium"
	default:
		return "low"
	}
}
