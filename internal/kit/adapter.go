package kit

import "context"

// Adapter abstracts the two OS notification backends.
//
// Adapter methods are NOT safe for concurrent use; the engine serializes
// every call through its dispatcher goroutine.
type Adapter interface {
	Name() string

	// Start arms the backend's timers; Stop disarms them and drops any
	// in-flight deliveries.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	// Capacity is the backend's hard cap on concurrently scheduled items.
	Capacity() int
	// PendingCount reports how many items the backend currently tracks.
	PendingCount() int

	// Schedule accepts a validated descriptor and returns the platform
	// assigned id, or an error with no state change.
	Schedule(d *Descriptor) (PlatformID, error)
	// SeedNextID advances the id allocator to at least min so fresh
	// schedules never reuse platform ids carried over from a restored
	// snapshot. Called once, before Start.
	SeedNextID(min PlatformID)

	// Cancel drops a single pending notification. Unknown ids are a no-op.
	Cancel(identifier string, id PlatformID)
	CancelAllScheduled()
	CancelAllDisplayed()

	HasPermission() bool
	// RequestPermission invokes cb exactly once with the user's answer.
	RequestPermission(cb func(granted bool))

	Status(id PlatformID) Status
}
