// Package kit holds the types shared between the notification engine and
// the platform backends.
package kit

import (
	"strings"
	"time"
)

// PlatformID is the id a backend assigns when it accepts a notification.
// It is distinct from the caller-supplied identifier.
type PlatformID int64

type Repeat string

const (
	RepeatNone   Repeat = ""
	RepeatDaily  Repeat = "daily"
	RepeatWeekly Repeat = "weekly"
	RepeatCustom Repeat = "custom"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusDisplayed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDisplayed:
		return "displayed"
	default:
		return "unknown"
	}
}

// MaxFireDelay caps how far in the future a notification may be placed.
const MaxFireDelay = 365 * 24 * time.Hour

// Descriptor describes one notification to be scheduled.
//
// Badge semantics: -1 leaves the badge alone, 0 asks the backend to
// auto-increment its counter, >0 sets the badge explicitly.
type Descriptor struct {
	Identifier string
	Title      string
	Body       string
	Subtitle   string

	FireDelay time.Duration

	Repeat      Repeat
	RepeatEvery time.Duration // only read for RepeatCustom

	Sound string
	Group string
	Badge int
}

// Reset clears the descriptor for reuse from a pool.
func (d *Descriptor) Reset() {
	*d = Descriptor{Badge: -1}
}

// IsValid reports whether the descriptor can be scheduled: non-empty
// title and body, and a fire delay within [0, MaxFireDelay].
func (d *Descriptor) IsValid() bool {
	return d.Validate() == nil
}

// Validate returns a *ValidationError describing the first problem, or
// nil when the descriptor is schedulable.
func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return &ValidationError{Field: "title", Reason: "must not be empty"}
	}
	if strings.TrimSpace(d.Body) == "" {
		return &ValidationError{Field: "body", Reason: "must not be empty"}
	}
	if d.FireDelay < 0 {
		return &ValidationError{Field: "fireDelay", Reason: "must not be negative"}
	}
	if d.FireDelay > MaxFireDelay {
		return &ValidationError{Field: "fireDelay", Reason: "exceeds one year"}
	}
	if d.Repeat == RepeatCustom && d.RepeatEvery <= 0 {
		return &ValidationError{Field: "repeatEvery", Reason: "required for custom repeat"}
	}
	return nil
}

// Importance mirrors the high-capacity backend's channel importance
// levels.
type Importance int

const (
	ImportanceLow Importance = iota
	ImportanceDefault
	ImportanceHigh
)

// Channel is the registration record the high-capacity backend requires
// once at startup.
type Channel struct {
	ID          string
	Name        string
	Description string
	Importance  Importance
	Vibration   bool
	ShowBadge   bool
}
