package service

// ValidationError rejects a malformed batch before any work starts. It
// is the only error class the service itself produces.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid batch: " + e.Reason
}
