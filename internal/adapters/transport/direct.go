// Package transport provides the interchangeable request/response
// channels to the external scoring service: a direct synchronous HTTP
// call and an AMQP request/reply call. Both make exactly one attempt
// and surface failures as *dispatch.TransportError.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/merchkit/stockcast/internal/domain/dispatch"
	"github.com/merchkit/stockcast/pkg/metrics"
)

// Default transport configuration constants.
const (
	defaultTimeout = 10 * time.Second

	// authHeader carries the internal service token on direct calls.
	authHeader = "X-Internal-Token"
)

// Direct is a synchronous HTTP transport with a fixed per-call timeout.
type Direct struct {
	endpoint  string
	authToken string
	timeout   time.Duration
	client    *http.Client
}

// DirectOption applies a configuration option to the Direct transport.
type DirectOption func(*Direct)

// WithAuthToken attaches an internal auth token to every request.
func WithAuthToken(token string) DirectOption {
	return func(d *Direct) {
		d.authToken = token
	}
}

// WithTimeout sets the per-call timeout.
func WithTimeout(timeout time.Duration) DirectOption {
	return func(d *Direct) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(client *http.Client) DirectOption {
	return func(d *Direct) {
		if client != nil {
			d.client = client
		}
	}
}

// NewDirect creates a direct HTTP transport for the given endpoint.
func NewDirect(endpoint string, opts ...DirectOption) *Direct {
	d := &Direct{
		endpoint: endpoint,
		timeout:  defaultTimeout,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.client == nil {
		d.client = &http.Client{Timeout: d.timeout}
	}

	return d
}

// Name identifies the transport for logs.
func (d *Direct) Name() string { return "direct" }

// Send posts the payload and returns the response body, making exactly
// one attempt.
func (d *Direct) Send(ctx context.Context, payload []byte) ([]byte, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, failure(dispatch.KindUnreachable, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if d.authToken != "" {
		req.Header.Set(authHeader, d.authToken)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() != nil {
			return nil, failure(dispatch.KindTimeout, err)
		}
		return nil, failure(dispatch.KindUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure(dispatch.KindMalformed, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, failure(dispatch.KindUnreachable,
			fmt.Errorf("scoring service returned status %d: %s", resp.StatusCode, truncate(body)))
	}

	return body, nil
}

// failure wraps an error as a TransportError and counts it.
func failure(kind string, err error) *dispatch.TransportError {
	metrics.RecordTransportError(kind)
	return &dispatch.TransportError{Kind: kind, Err: err}
}

const maxErrorBody = 256

func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(body)
}
