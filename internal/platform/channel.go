package platform

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"localnotify/internal/eventbus"
	"localnotify/internal/kit"
	"localnotify/internal/metrics"
)

var errNoChannel = errors.New("no notification channel registered")

// ChannelConfig tunes the high-capacity absolute-fire-time backend.
type ChannelConfig struct {
	Capacity       int // default 500
	DenyPermission bool
}

func (c *ChannelConfig) normalize() {
	if c.Capacity <= 0 || c.Capacity > 500 {
		c.Capacity = 500
	}
}

// ChannelBackend is the high-capacity backend: one-shot absolute fire
// times and OS-native repeat intervals (daily = 24h, weekly = 7d). It
// refuses to schedule until a notification channel has been registered
// with importance/vibration/badge settings.
type ChannelBackend struct {
	cfg ChannelConfig
	log zerolog.Logger
	bus eventbus.Bus
	mc  *metrics.Collector

	mu        sync.Mutex
	running   bool
	channels  map[string]kit.Channel
	nextID    int64
	pending   map[kit.PlatformID]*channelItem
	displayed map[kit.PlatformID]*channelItem
	granted   bool
}

type channelItem struct {
	id         kit.PlatformID
	identifier string
	title      string
	body       string
	fireAt     time.Time
	every      time.Duration // 0 for one-shot

	timer *time.Timer
}

func NewChannelBackend(cfg ChannelConfig, bus eventbus.Bus, log zerolog.Logger) *ChannelBackend {
	cfg.normalize()
	return &ChannelBackend{
		cfg:       cfg,
		log:       log,
		bus:       bus,
		mc:        metrics.Default(),
		channels:  map[string]kit.Channel{},
		pending:   map[kit.PlatformID]*channelItem{},
		displayed: map[kit.PlatformID]*channelItem{},
	}
}

func (b *ChannelBackend) Name() string { return "channel" }
func (b *ChannelBackend) Capacity() int { return b.cfg.Capacity }

// RegisterChannel records a channel definition. Re-registering an id
// overwrites the previous settings, mirroring OS behavior.
func (b *ChannelBackend) RegisterChannel(ch kit.Channel) error {
	if ch.ID == "" {
		return errors.New("channel id required")
	}
	b.mu.Lock()
	b.channels[ch.ID] = ch
	b.mu.Unlock()
	b.log.Debug().Str("channel", ch.ID).Int("importance", int(ch.Importance)).Msg("channel registered")
	return nil
}

func (b *ChannelBackend) Start(ctx context.Context) error {
	_ = ctx
	b.mu.Lock()
	b.running = true
	b.mu.Unlock()
	return nil
}

func (b *ChannelBackend) Stop(ctx context.Context) error {
	_ = ctx
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	for _, it := range b.pending {
		if it.timer != nil {
			it.timer.Stop()
		}
	}
	b.pending = map[kit.PlatformID]*channelItem{}
	return nil
}

func (b *ChannelBackend) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

func (b *ChannelBackend) SeedNextID(min kit.PlatformID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if int64(min) > b.nextID {
		b.nextID = int64(min)
	}
}

func (b *ChannelBackend) Schedule(d *kit.Descriptor) (kit.PlatformID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return 0, &kit.PlatformError{Backend: b.Name(), Op: "schedule", Err: errNotStarted}
	}
	if len(b.channels) == 0 {
		return 0, &kit.PlatformError{Backend: b.Name(), Op: "schedule", Err: errNoChannel}
	}
	if len(b.pending) >= b.cfg.Capacity {
		return 0, &kit.CapacityError{Backend: b.Name(), Limit: b.cfg.Capacity}
	}

	var every time.Duration
	switch d.Repeat {
	case kit.RepeatDaily:
		every = 24 * time.Hour
	case kit.RepeatWeekly:
		every = 7 * 24 * time.Hour
	case kit.RepeatCustom:
		every = d.RepeatEvery
	}

	b.nextID++
	it := &channelItem{
		id:         kit.PlatformID(b.nextID),
		identifier: d.Identifier,
		title:      d.Title,
		body:       d.Body,
		fireAt:     time.Now().Add(d.FireDelay),
		every:      every,
	}
	it.timer = time.AfterFunc(time.Until(it.fireAt), func() { b.deliver(it.id) })
	b.pending[it.id] = it
	return it.id, nil
}

func (b *ChannelBackend) deliver(id kit.PlatformID) {
	b.mu.Lock()
	it, ok := b.pending[id]
	if !ok || !b.running {
		b.mu.Unlock()
		return
	}
	if it.every > 0 {
		it.fireAt = it.fireAt.Add(it.every)
		it.timer = time.AfterFunc(time.Until(it.fireAt), func() { b.deliver(id) })
	} else {
		delete(b.pending, id)
	}
	b.displayed[id] = it
	b.mu.Unlock()

	b.mc.Delivered.Inc()
	b.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindReceived,
		Identifier: it.identifier,
		Title:      it.title,
		Body:       it.body,
	})
}

func (b *ChannelBackend) Cancel(identifier string, id kit.PlatformID) {
	_ = identifier
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.pending[id]
	if !ok {
		return
	}
	if it.timer != nil {
		it.timer.Stop()
	}
	delete(b.pending, id)
}

func (b *ChannelBackend) CancelAllScheduled() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, it := range b.pending {
		if it.timer != nil {
			it.timer.Stop()
		}
	}
	b.pending = map[kit.PlatformID]*channelItem{}
}

func (b *ChannelBackend) CancelAllDisplayed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.displayed = map[kit.PlatformID]*channelItem{}
}

func (b *ChannelBackend) HasPermission() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.granted
}

func (b *ChannelBackend) RequestPermission(cb func(granted bool)) {
	b.mu.Lock()
	granted := !b.cfg.DenyPermission
	b.granted = granted
	b.mu.Unlock()
	if cb != nil {
		cb(granted)
	}
}

func (b *ChannelBackend) Status(id kit.PlatformID) kit.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.pending[id]; ok {
		return kit.StatusPending
	}
	if _, ok := b.displayed[id]; ok {
		return kit.StatusDisplayed
	}
	return kit.StatusUnknown
}
