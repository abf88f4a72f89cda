package kit

import "fmt"

// ValidationError marks a malformed descriptor. It is rejected locally
// and never reaches a platform backend or the circuit breaker.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid descriptor: %s %s", e.Field, e.Reason)
}

// CapacityError marks a backend or tracking cap being hit. The operation
// is rejected with no partial state change.
type CapacityError struct {
	Backend string
	Limit   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%s: capacity exceeded (limit %d)", e.Backend, e.Limit)
}

// PlatformError wraps a failed backend call. Platform errors feed the
// circuit breaker and are surfaced on the event bus.
type PlatformError struct {
	Backend string
	Op      string
	Err     error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error { return e.Err }
