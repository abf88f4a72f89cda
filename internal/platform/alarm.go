// Package platform contains the two notification backends the engine can
// drive. Both deliver in-process: a due notification is published on the
// event bus and moved to the backend's displayed set.
package platform

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"localnotify/internal/eventbus"
	"localnotify/internal/kit"
	"localnotify/internal/metrics"
)

var errNotStarted = errors.New("backend not started")

// AlarmConfig tunes the low-capacity interval/calendar backend.
type AlarmConfig struct {
	Capacity int // default 64
	Timezone string
	// DenyPermission makes RequestPermission answer false. Used in tests
	// and soak runs; the default simulated prompt always grants.
	DenyPermission bool
}

func (c *AlarmConfig) normalize() {
	if c.Capacity <= 0 || c.Capacity > 64 {
		c.Capacity = 64
	}
}

// Alarm is the low-capacity backend: one-shot time-interval triggers plus
// calendar-based repeats (daily = fixed hour/min/sec, weekly = fixed
// weekday + time). It keeps an explicit badge counter that either
// auto-increments per delivery or takes the descriptor's override.
type Alarm struct {
	cfg AlarmConfig
	log zerolog.Logger
	bus eventbus.Bus
	mc  *metrics.Collector
	loc *time.Location

	mu        sync.Mutex
	running   bool
	c         *cron.Cron
	nextID    int64
	pending   map[kit.PlatformID]*alarmItem
	displayed map[kit.PlatformID]*alarmItem
	badge     int
	granted   bool
}

type alarmItem struct {
	id         kit.PlatformID
	identifier string
	title      string
	body       string
	badge      int
	repeat     kit.Repeat
	every      time.Duration

	timer *time.Timer
	entry cron.EntryID
}

func NewAlarm(cfg AlarmConfig, bus eventbus.Bus, log zerolog.Logger) *Alarm {
	cfg.normalize()
	loc := time.Local
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			log.Warn().Str("tz", cfg.Timezone).Msg("unknown timezone, using local")
		}
	}
	return &Alarm{
		cfg:       cfg,
		log:       log,
		bus:       bus,
		mc:        metrics.Default(),
		loc:       loc,
		pending:   map[kit.PlatformID]*alarmItem{},
		displayed: map[kit.PlatformID]*alarmItem{},
	}
}

func (a *Alarm) Name() string { return "alarm" }
func (a *Alarm) Capacity() int { return a.cfg.Capacity }

func (a *Alarm) Start(ctx context.Context) error {
	_ = ctx
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return nil
	}
	// Seconds-resolution specs so calendar repeats keep the exact
	// second of the first fire.
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	a.c = cron.New(cron.WithParser(parser), cron.WithLocation(a.loc))
	a.c.Start()
	a.running = true
	return nil
}

func (a *Alarm) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	for _, it := range a.pending {
		if it.timer != nil {
			it.timer.Stop()
		}
	}
	a.pending = map[kit.PlatformID]*alarmItem{}
	c := a.c
	a.c = nil
	a.mu.Unlock()

	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
	return nil
}

func (a *Alarm) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Alarm) SeedNextID(min kit.PlatformID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if int64(min) > a.nextID {
		a.nextID = int64(min)
	}
}

func (a *Alarm) Schedule(d *kit.Descriptor) (kit.PlatformID, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return 0, &kit.PlatformError{Backend: a.Name(), Op: "schedule", Err: errNotStarted}
	}
	if len(a.pending) >= a.cfg.Capacity {
		return 0, &kit.CapacityError{Backend: a.Name(), Limit: a.cfg.Capacity}
	}

	a.nextID++
	it := &alarmItem{
		id:         kit.PlatformID(a.nextID),
		identifier: d.Identifier,
		title:      d.Title,
		body:       d.Body,
		badge:      d.Badge,
		repeat:     d.Repeat,
		every:      d.RepeatEvery,
	}

	fireAt := time.Now().In(a.loc).Add(d.FireDelay)
	switch d.Repeat {
	case kit.RepeatDaily, kit.RepeatWeekly:
		spec := calendarSpec(fireAt, d.Repeat)
		entry, err := a.c.AddFunc(spec, func() { a.deliver(it.id) })
		if err != nil {
			return 0, &kit.PlatformError{Backend: a.Name(), Op: "schedule", Err: err}
		}
		it.entry = entry
	case kit.RepeatCustom:
		it.timer = time.AfterFunc(d.FireDelay, func() { a.deliver(it.id) })
	default:
		it.timer = time.AfterFunc(d.FireDelay, func() { a.deliver(it.id) })
	}

	a.pending[it.id] = it
	return it.id, nil
}

// calendarSpec renders the fire time as a 6-field cron spec: daily keeps
// the hour/minute/second, weekly additionally pins the weekday.
func calendarSpec(at time.Time, r kit.Repeat) string {
	if r == kit.RepeatWeekly {
		return fmt.Sprintf("%d %d %d * * %d", at.Second(), at.Minute(), at.Hour(), int(at.Weekday()))
	}
	return fmt.Sprintf("%d %d %d * * *", at.Second(), at.Minute(), at.Hour())
}

func (a *Alarm) deliver(id kit.PlatformID) {
	a.mu.Lock()
	it, ok := a.pending[id]
	if !ok || !a.running {
		a.mu.Unlock()
		return
	}
	switch it.repeat {
	case kit.RepeatNone:
		delete(a.pending, id)
		a.displayed[id] = it
	case kit.RepeatCustom:
		// Re-arm and record the latest delivery.
		it.timer = time.AfterFunc(it.every, func() { a.deliver(id) })
		a.displayed[id] = it
	default:
		// Calendar repeats stay pending; cron re-fires them.
		a.displayed[id] = it
	}
	if it.badge > 0 {
		a.badge = it.badge
	} else if it.badge == 0 {
		a.badge++
	}
	a.mu.Unlock()

	a.mc.Delivered.Inc()
	a.bus.Publish(eventbus.Event{
		Kind:       eventbus.KindReceived,
		Identifier: it.identifier,
		Title:      it.title,
		Body:       it.body,
	})
}

func (a *Alarm) Cancel(identifier string, id kit.PlatformID) {
	_ = identifier
	a.mu.Lock()
	defer a.mu.Unlock()
	it, ok := a.pending[id]
	if !ok {
		return
	}
	a.removeLocked(it)
}

func (a *Alarm) removeLocked(it *alarmItem) {
	if it.timer != nil {
		it.timer.Stop()
	}
	if it.entry != 0 && a.c != nil {
		a.c.Remove(it.entry)
	}
	delete(a.pending, it.id)
}

func (a *Alarm) CancelAllScheduled() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, it := range a.pending {
		if it.timer != nil {
			it.timer.Stop()
		}
		if it.entry != 0 && a.c != nil {
			a.c.Remove(it.entry)
		}
	}
	a.pending = map[kit.PlatformID]*alarmItem{}
}

func (a *Alarm) CancelAllDisplayed() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.displayed = map[kit.PlatformID]*alarmItem{}
	a.badge = 0
}

func (a *Alarm) HasPermission() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.granted
}

func (a *Alarm) RequestPermission(cb func(granted bool)) {
	a.mu.Lock()
	granted := !a.cfg.DenyPermission
	a.granted = granted
	a.mu.Unlock()
	if cb != nil {
		cb(granted)
	}
}

func (a *Alarm) Status(id kit.PlatformID) kit.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pending[id]; ok {
		return kit.StatusPending
	}
	if _, ok := a.displayed[id]; ok {
		return kit.StatusDisplayed
	}
	return kit.StatusUnknown
}

// Badge reports the backend's badge counter.
func (a *Alarm) Badge() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.badge
}
