// Package reconcile maps raw scoring responses back onto their rows by
// position, normalizes scores, and classifies every failure mode into a
// per-item result so one bad row or chunk never voids the batch.
package reconcile

import (
	"math"

	"github.com/merchkit/stockcast/internal/domain/model"
)

// Label thresholds on the clamped score.
const (
	highThreshold   = 0.7
	mediumThreshold = 0.4

	// LabelHigh, LabelMedium and LabelLow are the derived risk labels.
	LabelHigh   = "high"
	LabelMedium = "medium"
	LabelLow    = "low"
)

// Failure reason prefixes and constants carried on error results.
const (
	ReasonFeatureBuildPrefix  = "feature_build_error: "
	ReasonNoPrediction        = "no_prediction_returned"
	ReasonPredictorCallPrefix = "predictor_call_error: "
	ReasonCancelled           = "cancelled"
)

// scoreKeys are probed in order on the raw prediction; the first key
// holding a numeric value wins.
var scoreKeys = []string{"score", "probability", "value"}

// Reconciler converts chunk rows plus raw predictions into item results.
type Reconciler struct{}

// New creates a Reconciler.
func New() *Reconciler {
	return &Reconciler{}
}

// Reconcile pairs each row with the prediction at the same chunk
// position. Rows keep their global index, so results slot directly into
// the batch result slice.
func (r *Reconciler) Reconcile(rows []model.NormalizedRow, predictions []model.RawPrediction) []model.ItemResult {
	results := make([]model.ItemResult, len(rows))
	for j := range rows {
		row := &rows[j]

		if row.BuildErr != "" {
			results[j] = errorResult(row, ReasonFeatureBuildPrefix+row.BuildErr)
			continue
		}
		if j >= len(predictions) || predictions[j] == nil {
			results[j] = errorResult(row, ReasonNoPrediction)
			continue
		}

		raw := predictions[j]
		score := clampScore(extractScore(raw))
		results[j] = model.ItemResult{
			Index:    row.Index,
			OK:       true,
			Score:    score,
			Label:    deriveLabel(raw, score),
			ItemID:   row.ItemID,
			ScopeID:  row.ScopeID,
			Features: row.Features,
			Raw:      raw,
		}
	}
	return results
}

// FailChunk marks every row of a chunk as failed by the same transport
// error. The failure is chunk-scoped: no partial response exists to
// reconcile against.
func (r *Reconciler) FailChunk(rows []model.NormalizedRow, err error) []model.ItemResult {
	results := make([]model.ItemResult, len(rows))
	for j := range rows {
		results[j] = errorResult(&rows[j], ReasonPredictorCallPrefix+err.Error())
	}
	return results
}

// CancelChunk marks every row of an undispatched chunk as cancelled.
func (r *Reconciler) CancelChunk(rows []model.NormalizedRow) []model.ItemResult {
	results := make([]model.ItemResult, len(rows))
	for j := range rows {
		results[j] = errorResult(&rows[j], ReasonCancelled)
	}
	return results
}

func errorResult(row *model.NormalizedRow, reason string) model.ItemResult {
	return model.ItemResult{
		Index:    row.Index,
		ItemID:   row.ItemID,
		ScopeID:  row.ScopeID,
		Features: row.Features,
		Reason:   reason,
	}
}

// extractScore probes score, probability and value in order and returns
// the first numeric hit, or 0 when none is usable.
func extractScore(raw model.RawPrediction) float64 {
	for _, key := range scoreKeys {
		if v, ok := raw[key]; ok {
			if f, ok := asFloat(v); ok {
				return f
			}
		}
	}
	return 0
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// clampScore forces the score into [0,1]; non-finite values become 0.
func clampScore(score float64) float64 {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return math.Max(0, math.Min(1, score))
}

// deriveLabel prefers the service's own label and thresholds the
// clamped score otherwise.
func deriveLabel(raw model.RawPrediction, score float64) string {
	if label, ok := raw["label"].(string); ok && label != "" {
		return label
	}
	switch {
	case score > highThreshold:
		return LabelHigh
	case score > mediumThreshold:
		return LabelMedium
	default:
		return LabelLow
	}
}
