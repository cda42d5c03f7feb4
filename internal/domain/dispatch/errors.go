package dispatch

import "fmt"

// Transport failure kinds.
const (
	KindTimeout     = "timeout"
	KindUnreachable = "unreachable"
	KindMalformed   = "malformed"
)

// TransportError is a single-attempt transport failure. It is recovered
// at chunk granularity: every row of the failed chunk becomes an error
// result, and no retry happens at this layer.
type TransportError struct {
	Kind string // timeout, unreachable or malformed
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
