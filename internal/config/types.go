// Package config loads the daemon's configuration file (YAML or JSON)
// and watches it for changes.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
package config

import (
	"fmt"
	"strings"
	"time"

	"localnotify/internal/dispatch"
	"localnotify/internal/kit"
	"localnotify/internal/logging"
	"localnotify/internal/notify"
	"localnotify/internal/platform"
)

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Platform PlatformConfig `json:"platform"`
	Engine   EngineConfig   `json:"engine"`

	// Channels are registered with the high-capacity backend once at
	// startup. Ignored by the alarm backend.
	Channels []ChannelConfig `json:"channels,omitempty"`
}

type LoggingConfig struct {
	Level   string `json:"level,omitempty"`
	Console bool   `json:"console,omitempty"`
	File    struct {
		Enabled bool   `json:"enabled,omitempty"`
		Path    string `json:"path,omitempty"`
	} `json:"file,omitempty"`
}

type PlatformConfig struct {
	// Backend selects "alarm" (low capacity, calendar repeats) or
	// "channel" (high capacity, absolute fire times).
	Backend string `json:"backend,omitempty"`
	Alarm   struct {
		Capacity int    `json:"capacity,omitempty"`
		Timezone string `json:"timezone,omitempty"`
	} `json:"alarm,omitempty"`
	Channel struct {
		Capacity int `json:"capacity,omitempty"`
	} `json:"channel,omitempty"`
}

type EngineConfig struct {
	MaxTracked   int    `json:"max_tracked,omitempty"`
	SnapshotPath string `json:"snapshot_path,omitempty"`
	LegacyPath   string `json:"legacy_path,omitempty"`

	FlushDebounce       string `json:"flush_debounce,omitempty"`
	ShutdownFlushBudget string `json:"shutdown_flush_budget,omitempty"`
	AwaitTimeout        string `json:"await_timeout,omitempty"`

	BreakerTrip     int    `json:"breaker_trip,omitempty"`
	BreakerCooldown string `json:"breaker_cooldown,omitempty"`

	Dispatch DispatchConfig `json:"dispatch,omitempty"`

	Return ReturnConfig `json:"return,omitempty"`
}

type DispatchConfig struct {
	QueueSize  int    `json:"queue_size,omitempty"`
	TickEvery  string `json:"tick_every,omitempty"`
	TickBudget string `json:"tick_budget,omitempty"`
	MaxPerTick int    `json:"max_per_tick,omitempty"`
}

type ReturnConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Title       string `json:"title,omitempty"`
	Body        string `json:"body,omitempty"`
	HoursBefore int    `json:"hours_before,omitempty"`
	Repeat      string `json:"repeat,omitempty"`
	RepeatEvery string `json:"repeat_every,omitempty"`
	Identifier  string `json:"identifier,omitempty"`
}

type ChannelConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Importance is "low", "default" or "high".
	Importance string `json:"importance,omitempty"`
	Vibration  bool   `json:"vibration,omitempty"`
	ShowBadge  bool   `json:"show_badge,omitempty"`
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func (c LoggingConfig) ToLogging() logging.Config {
	out := logging.Config{Level: c.Level, Console: c.Console}
	out.File.Enabled = c.File.Enabled
	out.File.Path = c.File.Path
	return out
}

func (c PlatformConfig) ToPlatform() platform.Config {
	out := platform.Config{Backend: c.Backend}
	out.Alarm.Capacity = c.Alarm.Capacity
	out.Alarm.Timezone = c.Alarm.Timezone
	out.Channel.Capacity = c.Channel.Capacity
	return out
}

func (c EngineConfig) ToEngine() (notify.Config, error) {
	out := notify.Config{
		MaxTracked:   c.MaxTracked,
		SnapshotPath: c.SnapshotPath,
		LegacyPath:   c.LegacyPath,
		BreakerTrip:  c.BreakerTrip,
	}

	var err error
	if out.FlushDebounce, err = ParseDurationField("engine.flush_debounce", c.FlushDebounce); err != nil {
		return out, err
	}
	if out.ShutdownFlushBudget, err = ParseDurationField("engine.shutdown_flush_budget", c.ShutdownFlushBudget); err != nil {
		return out, err
	}
	if out.AwaitTimeout, err = ParseDurationField("engine.await_timeout", c.AwaitTimeout); err != nil {
		return out, err
	}
	if out.BreakerCooldown, err = ParseDurationField("engine.breaker_cooldown", c.BreakerCooldown); err != nil {
		return out, err
	}

	out.Dispatch = dispatch.Config{
		QueueSize:  c.Dispatch.QueueSize,
		MaxPerTick: c.Dispatch.MaxPerTick,
	}
	if out.Dispatch.TickEvery, err = ParseDurationField("engine.dispatch.tick_every", c.Dispatch.TickEvery); err != nil {
		return out, err
	}
	if out.Dispatch.TickBudget, err = ParseDurationField("engine.dispatch.tick_budget", c.Dispatch.TickBudget); err != nil {
		return out, err
	}

	if out.Return, err = c.Return.ToPolicy(); err != nil {
		return out, err
	}
	return out, nil
}

func (c ReturnConfig) ToPolicy() (kit.ReturnPolicy, error) {
	p := kit.ReturnPolicy{
		Enabled:     c.Enabled,
		Title:       c.Title,
		Body:        c.Body,
		HoursBefore: c.HoursBefore,
		Repeat:      kit.Repeat(c.Repeat),
		Identifier:  c.Identifier,
	}
	every, err := ParseDurationField("engine.return.repeat_every", c.RepeatEvery)
	if err != nil {
		return p, err
	}
	p.RepeatEvery = every
	return p, nil
}

func (c ChannelConfig) ToChannel() kit.Channel {
	imp := kit.ImportanceDefault
	switch strings.ToLower(c.Importance) {
	case "low":
		imp = kit.ImportanceLow
	case "high":
		imp = kit.ImportanceHigh
	}
	return kit.Channel{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		Importance:  imp,
		Vibration:   c.Vibration,
		ShowBadge:   c.ShowBadge,
	}
}

// Validate rejects obviously broken configs before they are committed.
func (c *Config) Validate() error {
	switch c.Platform.Backend {
	case "", "alarm", "channel":
	default:
		return fmt.Errorf("platform.backend: unknown backend %q", c.Platform.Backend)
	}
	if c.Platform.Backend == "channel" && len(c.Channels) == 0 {
		return fmt.Errorf("channels: the channel backend needs at least one channel")
	}
	for i, ch := range c.Channels {
		if ch.ID == "" {
			return fmt.Errorf("channels[%d]: id is required", i)
		}
	}
	if _, err := c.Engine.ToEngine(); err != nil {
		return err
	}
	return nil
}
