package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
logging:
  level: debug
  console: true
platform:
  backend: channel
  channel:
    capacity: 200
engine:
  max_tracked: 50
  flush_debounce: 250ms
channels:
  - id: reminders
    name: Reminders
    importance: high
`)
	m := NewManager(path, zerolog.Nop())
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Platform.Backend != "channel" || cfg.Platform.Channel.Capacity != 200 {
		t.Fatalf("platform not parsed: %+v", cfg.Platform)
	}
	ec, err := cfg.Engine.ToEngine()
	if err != nil {
		t.Fatalf("ToEngine: %v", err)
	}
	if ec.MaxTracked != 50 {
		t.Fatalf("MaxTracked = %d, want 50", ec.MaxTracked)
	}
	if got := cfg.Engine.FlushDebounce; got != "250ms" {
		t.Fatalf("FlushDebounce = %q", got)
	}
	if len(cfg.Channels) != 1 || cfg.Channels[0].ToChannel().ID != "reminders" {
		t.Fatalf("channels not parsed: %+v", cfg.Channels)
	}
	if m.Current() != cfg {
		t.Fatal("Current should return the committed config")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeFile(t, "config.json", `{"engine": {"max_trackd": 10}}`)
	if _, err := NewManager(path, zerolog.Nop()).Parse(); err == nil {
		t.Fatal("expected unknown-field error")
	}
}

func TestParseRejectsBadDuration(t *testing.T) {
	path := writeFile(t, "config.yaml", `
engine:
  flush_debounce: sometimes
`)
	_, err := NewManager(path, zerolog.Nop()).Parse()
	if err == nil || !strings.Contains(err.Error(), "flush_debounce") {
		t.Fatalf("expected duration error naming the field, got %v", err)
	}
}

func TestValidateBackend(t *testing.T) {
	path := writeFile(t, "config.json", `{"platform": {"backend": "pigeon"}}`)
	if _, err := NewManager(path, zerolog.Nop()).Parse(); err == nil {
		t.Fatal("expected backend validation error")
	}
}

func TestChannelBackendRequiresChannels(t *testing.T) {
	path := writeFile(t, "config.json", `{"platform": {"backend": "channel"}}`)
	if _, err := NewManager(path, zerolog.Nop()).Parse(); err == nil {
		t.Fatal("expected at-least-one-channel error")
	}
}
