package platform

import (
	"fmt"

	"github.com/rs/zerolog"

	"localnotify/internal/eventbus"
	"localnotify/internal/kit"
)

// Config selects and tunes the backend for this process.
type Config struct {
	// Backend is "alarm" or "channel".
	Backend string
	Alarm   AlarmConfig
	Channel ChannelConfig
}

// New builds the configured backend. The choice is made once at startup;
// nothing else in the engine branches on the backend kind.
func New(cfg Config, bus eventbus.Bus, log zerolog.Logger) (kit.Adapter, error) {
	switch cfg.Backend {
	case "alarm", "":
		return NewAlarm(cfg.Alarm, bus, log.With().Str("backend", "alarm").Logger()), nil
	case "channel":
		return NewChannelBackend(cfg.Channel, bus, log.With().Str("backend", "channel").Logger()), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
