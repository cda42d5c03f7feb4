package feature

import "fmt"

// BuildError marks a failed feature build for a single item. It never
// aborts a batch; the orchestration layers convert it into a per-item
// error result.
type BuildError struct {
	ItemID string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("feature build for %s: %v", e.ItemID, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }
