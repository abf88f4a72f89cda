package platform

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"localnotify/internal/eventbus"
	"localnotify/internal/kit"
)

func startedAlarm(t *testing.T, cfg AlarmConfig, bus eventbus.Bus) *Alarm {
	t.Helper()
	a := NewAlarm(cfg, bus, zerolog.Nop())
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a
}

func startedChannel(t *testing.T, cfg ChannelConfig, bus eventbus.Bus) *ChannelBackend {
	t.Helper()
	b := NewChannelBackend(cfg, bus, zerolog.Nop())
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = b.Stop(context.Background()) })
	return b
}

func TestAlarmCapacity(t *testing.T) {
	a := startedAlarm(t, AlarmConfig{Capacity: 2}, eventbus.New())
	d := &kit.Descriptor{Title: "t", Body: "b", FireDelay: time.Hour, Badge: -1}

	if _, err := a.Schedule(d); err != nil {
		t.Fatalf("schedule 1: %v", err)
	}
	if _, err := a.Schedule(d); err != nil {
		t.Fatalf("schedule 2: %v", err)
	}
	_, err := a.Schedule(d)
	if _, ok := err.(*kit.CapacityError); !ok {
		t.Fatalf("err = %v, want CapacityError", err)
	}
	if got := a.PendingCount(); got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}
}

func TestAlarmDeliveryAndBadge(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	a := startedAlarm(t, AlarmConfig{}, bus)
	id, err := a.Schedule(&kit.Descriptor{Identifier: "n1", Title: "hello", Body: "world", FireDelay: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	select {
	case e := <-events:
		if e.Kind != eventbus.KindReceived || e.Identifier != "n1" || e.Title != "hello" {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("delivery event never arrived")
	}

	if got := a.Status(id); got != kit.StatusDisplayed {
		t.Fatalf("status = %v, want displayed", got)
	}
	if got := a.Badge(); got != 1 {
		t.Fatalf("badge = %d, want auto-incremented 1", got)
	}
	if got := a.PendingCount(); got != 0 {
		t.Fatalf("pending = %d after one-shot delivery, want 0", got)
	}
}

func TestAlarmExplicitBadgeOverride(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(1)
	defer unsub()

	a := startedAlarm(t, AlarmConfig{}, bus)
	if _, err := a.Schedule(&kit.Descriptor{Title: "t", Body: "b", FireDelay: time.Millisecond, Badge: 7}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatalf("no delivery")
	}
	if got := a.Badge(); got != 7 {
		t.Fatalf("badge = %d, want 7", got)
	}
}

func TestAlarmCancelStopsDelivery(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(1)
	defer unsub()

	a := startedAlarm(t, AlarmConfig{}, bus)
	id, err := a.Schedule(&kit.Descriptor{Title: "t", Body: "b", FireDelay: 30 * time.Millisecond, Badge: -1})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	a.Cancel("", id)
	if got := a.Status(id); got != kit.StatusUnknown {
		t.Fatalf("status = %v after cancel, want unknown", got)
	}
	select {
	case e := <-events:
		t.Fatalf("cancelled notification fired: %+v", e)
	case <-time.After(80 * time.Millisecond):
	}
}

func TestAlarmNotStarted(t *testing.T) {
	a := NewAlarm(AlarmConfig{}, eventbus.New(), zerolog.Nop())
	_, err := a.Schedule(&kit.Descriptor{Title: "t", Body: "b"})
	if _, ok := err.(*kit.PlatformError); !ok {
		t.Fatalf("err = %v, want PlatformError", err)
	}
}

func TestChannelRequiresRegistration(t *testing.T) {
	b := startedChannel(t, ChannelConfig{}, eventbus.New())
	_, err := b.Schedule(&kit.Descriptor{Title: "t", Body: "b"})
	if _, ok := err.(*kit.PlatformError); !ok {
		t.Fatalf("err = %v, want PlatformError for missing channel", err)
	}

	if err := b.RegisterChannel(kit.Channel{ID: "default", Name: "Default", Importance: kit.ImportanceDefault}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := b.Schedule(&kit.Descriptor{Title: "t", Body: "b", FireDelay: time.Hour}); err != nil {
		t.Fatalf("schedule after registration: %v", err)
	}
}

func TestChannelCapacity(t *testing.T) {
	b := startedChannel(t, ChannelConfig{Capacity: 1}, eventbus.New())
	_ = b.RegisterChannel(kit.Channel{ID: "default", Name: "Default"})
	if _, err := b.Schedule(&kit.Descriptor{Title: "t", Body: "b", FireDelay: time.Hour}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	_, err := b.Schedule(&kit.Descriptor{Title: "t", Body: "b", FireDelay: time.Hour})
	if _, ok := err.(*kit.CapacityError); !ok {
		t.Fatalf("err = %v, want CapacityError", err)
	}
}

func TestChannelDelivery(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(1)
	defer unsub()

	b := startedChannel(t, ChannelConfig{}, bus)
	_ = b.RegisterChannel(kit.Channel{ID: "default", Name: "Default"})
	id, err := b.Schedule(&kit.Descriptor{Identifier: "c1", Title: "t", Body: "b", FireDelay: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	select {
	case e := <-events:
		if e.Identifier != "c1" {
			t.Fatalf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatalf("no delivery")
	}
	if got := b.Status(id); got != kit.StatusDisplayed {
		t.Fatalf("status = %v, want displayed", got)
	}
}

func TestPermissionFlow(t *testing.T) {
	b := startedChannel(t, ChannelConfig{DenyPermission: true}, eventbus.New())
	if b.HasPermission() {
		t.Fatalf("permission granted before request")
	}
	var answered, got bool
	b.RequestPermission(func(granted bool) { answered = true; got = granted })
	if !answered || got {
		t.Fatalf("expected denied answer, got answered=%v granted=%v", answered, got)
	}
}

func TestFactorySelectsBackend(t *testing.T) {
	bus := eventbus.New()
	a, err := New(Config{Backend: "alarm"}, bus, zerolog.Nop())
	if err != nil || a.Name() != "alarm" {
		t.Fatalf("alarm factory: %v %v", a, err)
	}
	c, err := New(Config{Backend: "channel"}, bus, zerolog.Nop())
	if err != nil || c.Name() != "channel" {
		t.Fatalf("channel factory: %v %v", c, err)
	}
	if _, err := New(Config{Backend: "nope"}, bus, zerolog.Nop()); err == nil {
		t.Fatalf("unknown backend accepted")
	}
}
