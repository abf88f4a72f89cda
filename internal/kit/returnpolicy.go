package kit

import "time"

// DefaultReturnIdentifier tags the "come back" notification so the
// engine can find and replace it across restarts.
const DefaultReturnIdentifier = "localnotify.return"

// ReturnPolicy configures the inactivity "come back" notification. It is
// mutated only through the engine's Configure call and read by the
// background/foreground transition handlers.
type ReturnPolicy struct {
	Enabled     bool   `json:"enabled"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	HoursBefore int    `json:"hoursBefore"`

	Repeat      Repeat        `json:"repeat,omitempty"`
	RepeatEvery time.Duration `json:"repeatEvery,omitempty"`

	Identifier string `json:"identifier"`
}

func (p *ReturnPolicy) Normalize() {
	if p.HoursBefore <= 0 {
		p.HoursBefore = 24
	}
	if p.Identifier == "" {
		p.Identifier = DefaultReturnIdentifier
	}
}
