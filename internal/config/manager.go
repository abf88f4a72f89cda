package config

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Manager loads the config file and, via Watch, applies live edits.
type Manager struct {
	path string
	log  zerolog.Logger

	mu  sync.RWMutex
	cfg *Config

	// lastHash tracks the last committed content so editor-triggered
	// double write events don't republish an unchanged config.
	lastHash uint64
}

func NewManager(path string, log zerolog.Logger) *Manager {
	return &Manager{path: path, log: log}
}

// SetLogger swaps the logger once the real one is built; the manager is
// created before logging config is known.
func (m *Manager) SetLogger(log zerolog.Logger) {
	m.mu.Lock()
	m.log = log
	m.mu.Unlock()
}

func (m *Manager) Parse() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	jb, err := coerceToJSONBytes(m.path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load parses and commits the file.
func (m *Manager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	m.commit(cfg)
	return cfg, nil
}

func (m *Manager) Current() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Manager) commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

// Watch re-parses the file on write/rename events and calls onChange
// with each committed config. Invalid edits are logged and skipped; the
// previous config stays active. Blocks until ctx is done.
func (m *Manager) Watch(ctx context.Context, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: editors often replace the file by rename,
	// which drops a watch placed on the file itself.
	if err := w.Add(filepath.Dir(m.path)); err != nil {
		return err
	}

	var debounce *time.Timer
	reload := func() {
		cfg, err := m.Parse()
		if err != nil {
			m.log.Warn().Err(err).Msg("config edit rejected, keeping previous")
			return
		}
		m.mu.RLock()
		same := hashConfig(cfg) == m.lastHash
		m.mu.RUnlock()
		if same {
			return
		}
		m.commit(cfg)
		m.log.Info().Str("path", m.path).Msg("config reloaded")
		if onChange != nil {
			onChange(cfg)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(m.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			// Editors emit bursts of events per save; coalesce them.
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, reload)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
