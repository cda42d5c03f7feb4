// Package dispatch splits normalized rows into bounded chunks and sends
// them to the external scoring service through a pluggable transport,
// translating between the internal and wire naming conventions at the
// boundary.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/merchkit/stockcast/internal/domain/casing"
	"github.com/merchkit/stockcast/internal/domain/model"
	"github.com/merchkit/stockcast/pkg/metrics"
)

// defaultChunkSize bounds the number of rows per scoring request.
const defaultChunkSize = 50

// Transport is the request/response channel to the scoring service.
// Implementations make exactly one attempt and surface failures as
// *TransportError; retry policy is the caller's concern.
type Transport interface {
	// Send posts a wire payload and returns the raw response body.
	Send(ctx context.Context, payload []byte) ([]byte, error)

	// Name identifies the transport for logs.
	Name() string
}

// Chunk is a contiguous slice of normalized rows plus its starting
// global index. Purely transient, one per dispatch call.
type Chunk struct {
	StartIndex int
	Rows       []model.NormalizedRow
}

// Dispatcher sends row chunks through the configured transport.
type Dispatcher struct {
	transport    Transport
	chunkSize    int
	modelVersion string
}

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithChunkSize sets the maximum rows per scoring request.
func WithChunkSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.chunkSize = size
		}
	}
}

// WithModelVersion attaches an opaque model version label to every
// outgoing payload.
func WithModelVersion(version string) Option {
	return func(d *Dispatcher) {
		d.modelVersion = version
	}
}

// New creates a Dispatcher with configuration options.
func New(transport Transport, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		transport: transport,
		chunkSize: defaultChunkSize,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// ChunkSize returns the configured chunk size.
func (d *Dispatcher) ChunkSize() int { return d.chunkSize }

// TransportName identifies the underlying transport for logs.
func (d *Dispatcher) TransportName() string { return d.transport.Name() }

// Chunks splits rows into fixed-size chunks preserving global order.
func (d *Dispatcher) Chunks(rows []model.NormalizedRow) []Chunk {
	chunks := make([]Chunk, 0, (len(rows)+d.chunkSize-1)/d.chunkSize)
	for start := 0; start < len(rows); start += d.chunkSize {
		end := start + d.chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, Chunk{StartIndex: start, Rows: rows[start:end]})
	}
	return chunks
}

// Dispatch sends one chunk to the scoring service and returns its raw
// predictions in request order. The wire payload carries every row of
// the chunk, so response positions always line up with chunk positions.
func (d *Dispatcher) Dispatch(ctx context.Context, chunk Chunk) ([]model.RawPrediction, error) {
	payload, err := d.encode(chunk)
	if err != nil {
		return nil, &TransportError{Kind: KindMalformed, Err: err}
	}

	start := time.Now()
	body, err := d.transport.Send(ctx, payload)
	if err != nil {
		return nil, err
	}
	metrics.RecordChunkDispatched()
	metrics.RecordDispatchLatency(float64(time.Since(start).Milliseconds()))

	return d.decode(body)
}

// encode builds the wire payload for a chunk, snake_cased.
func (d *Dispatcher) encode(chunk Chunk) ([]byte, error) {
	rows := make([]any, len(chunk.Rows))
	for i := range chunk.Rows {
		row := &chunk.Rows[i]

		var scopeID any
		if row.ScopeID != "" {
			scopeID = row.ScopeID
		}
		features := row.Features
		if features == nil {
			features = map[string]float64{}
		}
		rows[i] = map[string]any{
			"itemId":   row.ItemID,
			"scopeId":  scopeID,
			"features": features,
		}
	}

	request := map[string]any{"rows": rows}
	if d.modelVersion != "" {
		request["modelVersion"] = d.modelVersion
	}

	return json.Marshal(casing.ToWire(request))
}

// decode parses the scoring response and rewrites keys back to the
// internal convention. A missing results list is treated as empty; the
// reconciler classifies the absent predictions row by row.
func (d *Dispatcher) decode(body []byte) ([]model.RawPrediction, error) {
	var response map[string]any
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &TransportError{Kind: KindMalformed, Err: fmt.Errorf("decode scoring response: %w", err)}
	}

	internal, ok := casing.ToInternal(response).(map[string]any)
	if !ok {
		return nil, &TransportError{Kind: KindMalformed, Err: fmt.Errorf("scoring response is not an object")}
	}

	rawResults, _ := internal["results"].([]any)
	predictions := make([]model.RawPrediction, 0, len(rawResults))
	for _, r := range rawResults {
		if m, ok := r.(map[string]any); ok {
			predictions = append(predictions, model.RawPrediction(m))
		} else {
			predictions = append(predictions, nil)
		}
	}
	return predictions, nil
}
