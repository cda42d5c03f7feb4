package scoresim

import (
	"encoding/json"
	"net/http"

	"github.com/merchkit/stockcast/pkg/logger"
)

// wireRequest and wireResult mirror the scoring wire contract, which
// uses snake_case keys.
type wireRequest struct {
	Rows []struct {
		ItemID   string             `json:"item_id"`
		ScopeID  *string            `json:"scope_id"`
		Features map[string]float64 `json:"features"`
	} `json:"rows"`
	ModelVersion string `json:"model_version,omitempty"`
}

type wireResult struct {
	Score        float64 `json:"score"`
	Label        string  `json:"label"`
	ModelVersion string  `json:"model_version"`
}

// HandlerOption applies a configuration option to the Handler.
type HandlerOption func(*Handler)

// WithAuthToken requires the internal token header on every request.
func WithAuthToken(token string) HandlerOption {
	return func(h *Handler) {
		h.authToken = token
	}
}

// Handler serves the scoring wire contract over HTTP.
type Handler struct {
	model     *Model
	authToken string
	log       logger.Logger
}

// NewHandler creates a Handler around a model.
func NewHandler(model *Model, opts ...HandlerOption) *Handler {
	h := &Handler{
		model: model,
		log:   logger.Get().Named("scoresim"),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// ServeHTTP scores every row of the request and answers with one result
// per row, in request order.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.authToken != "" && r.Header.Get("X-Internal-Token") != h.authToken {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	var request wireRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "malformed request", http.StatusBadRequest)
		return
	}

	results := make([]wireResult, len(request.Rows))
	for i, row := range request.Rows {
		score := h.model.Score(row.Features)
		results[i] = wireResult{
			Score:        score,
			Label:        Label(score),
			ModelVersion: h.model.Version(),
		}
	}

	h.log.Debug(r.Context(), "scored batch", logger.Int("rows", len(results)))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"results": results}); err != nil {
		h.log.Warn(r.Context(), "write response failed", logger.Error(err))
	}
}
