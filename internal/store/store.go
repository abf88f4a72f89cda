// Package store persists the engine's scheduling state: an ordered list
// of identifier/platform-id pairs, the return-policy configuration, and
// the last-foreground timestamp, in one checksum-verified file written
// via temp-file + rename.
//
// Corruption is self-healed: an oversized, unparseable, or
// checksum-invalid file is deleted and the store starts empty. Only I/O
// failures during an active save surface as errors.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"localnotify/internal/kit"
	"localnotify/internal/metrics"
)

const (
	// SnapshotVersion is bumped when the on-disk layout changes.
	SnapshotVersion = 1
	// maxSnapshotSize rejects corrupted or runaway files before parsing.
	maxSnapshotSize = 1 << 20
	// DefaultDebounce coalesces mutation bursts into a single flush.
	DefaultDebounce = 500 * time.Millisecond
)

var ErrClosed = errors.New("store: closed")

// Breaker gates flushes while the circuit is open and records flush
// failures. Implemented by the engine's circuit breaker.
type Breaker interface {
	Allow(now time.Time) bool
	RecordError(now time.Time)
}

// Entry is one tracked notification, in insertion order.
type Entry struct {
	Identifier string         `json:"id"`
	PlatformID kit.PlatformID `json:"pid"`
}

// Snapshot is the full persisted state. Checksum is computed over the
// serialized bytes with the checksum field zeroed.
type Snapshot struct {
	Version        int              `json:"version"`
	Entries        []Entry          `json:"entries"`
	Return         kit.ReturnPolicy `json:"return"`
	LastForeground int64            `json:"lastForeground"`
	Checksum       uint64           `json:"checksum"`
}

// Store owns the snapshot file. A Source callback, installed by the
// engine, builds a fresh snapshot from the live index on every flush.
type Store struct {
	path string
	log  zerolog.Logger
	mc   *metrics.Collector

	// writeMu serializes write(): a debounced flush can overlap an
	// explicit one when MarkDirty lands mid-write.
	writeMu sync.Mutex

	mu       sync.Mutex
	source   func() Snapshot
	brk      Breaker
	debounce time.Duration
	timer    *time.Timer
	dirty    bool
	closed   bool
}

// Open loads the snapshot at path. When the snapshot file is absent and
// legacyPath names an old flat key-value database, the legacy state is
// migrated and the store marked dirty so the new format is written on
// the next flush.
func Open(path, legacyPath string, debounce time.Duration, log zerolog.Logger) (*Store, Snapshot, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	s := &Store{path: path, log: log, mc: metrics.Default(), debounce: debounce}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, Snapshot{}, err
	}

	snap, found := s.load()
	if !found && legacyPath != "" {
		if legacy, ok := loadLegacy(legacyPath, log); ok {
			snap = legacy
			s.mu.Lock()
			s.dirty = true
			s.mu.Unlock()
			log.Info().Int("entries", len(snap.Entries)).Msg("migrated legacy key-value store")
		}
	}
	return s, snap, nil
}

// SetSource installs the snapshot builder. Must be called before the
// first MarkDirty.
func (s *Store) SetSource(fn func() Snapshot) {
	s.mu.Lock()
	s.source = fn
	s.mu.Unlock()
}

// SetBreaker installs the circuit breaker that gates debounced flushes.
// The final shutdown flush ignores it.
func (s *Store) SetBreaker(b Breaker) {
	s.mu.Lock()
	s.brk = b
	s.mu.Unlock()
}

// load reads and verifies the snapshot file. Corruption never escapes as
// an error: the damaged file is removed and an empty snapshot returned.
func (s *Store) load() (Snapshot, bool) {
	fi, err := os.Stat(s.path)
	if err != nil {
		return Snapshot{}, false
	}
	if fi.Size() > maxSnapshotSize {
		s.log.Warn().Int64("size", fi.Size()).Msg("snapshot oversized, discarding")
		_ = os.Remove(s.path)
		return Snapshot{}, false
	}

	b, err := os.ReadFile(s.path)
	if err != nil {
		s.log.Warn().Err(err).Msg("snapshot unreadable, discarding")
		_ = os.Remove(s.path)
		return Snapshot{}, false
	}

	var snap Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		s.log.Warn().Err(err).Msg("snapshot unparseable, discarding")
		_ = os.Remove(s.path)
		return Snapshot{}, false
	}

	want := snap.Checksum
	snap.Checksum = 0
	payload, err := json.Marshal(snap)
	if err != nil || hashBytes(payload) != want {
		s.log.Warn().Msg("snapshot checksum mismatch, discarding")
		_ = os.Remove(s.path)
		return Snapshot{}, false
	}
	return snap, true
}

// MarkDirty notes a mutation and arms the debounce timer. Bursts of
// mutations inside the window coalesce into one flush.
func (s *Store) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.dirty = true
	if s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(s.debounce, func() {
		if err := s.Flush(); err != nil {
			s.log.Error().Err(err).Msg("debounced snapshot flush failed")
		}
	})
}

// Flush synchronously writes the current snapshot if the store is dirty.
// While the circuit breaker is open the flush is deferred: the state
// stays dirty and the next debounce window retries.
func (s *Store) Flush() error { return s.flush(false) }

func (s *Store) flush(force bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if !s.dirty || s.source == nil {
		s.mu.Unlock()
		return nil
	}
	if !force && s.brk != nil && !s.brk.Allow(time.Now()) {
		s.timer = time.AfterFunc(s.debounce, func() { _ = s.Flush() })
		s.mu.Unlock()
		return nil
	}
	s.dirty = false
	src := s.source
	brk := s.brk
	s.mu.Unlock()

	snap := src()
	if err := s.write(snap); err != nil {
		s.mc.FlushFailures.Inc()
		if brk != nil {
			brk.RecordError(time.Now())
		}
		// Stay dirty and re-arm the debounce so the failure retries on
		// its own rather than waiting for the next mutation.
		s.mu.Lock()
		s.dirty = true
		if !s.closed && s.timer == nil {
			s.timer = time.AfterFunc(s.debounce, func() { _ = s.Flush() })
		}
		s.mu.Unlock()
		return err
	}
	s.mc.Flushes.Inc()
	return nil
}

func (s *Store) write(snap Snapshot) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snap.Version = SnapshotVersion
	snap.Checksum = 0
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	snap.Checksum = hashBytes(payload)
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	// fsync before rename closes the power-loss window: the rename must
	// not land before the temp file's contents do.
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	_ = os.Remove(s.path)
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}
	// Best-effort directory sync; failures are logged, not propagated.
	if dir, err := os.Open(filepath.Dir(s.path)); err == nil {
		if err := dir.Sync(); err != nil {
			s.log.Debug().Err(err).Msg("directory sync failed")
		}
		_ = dir.Close()
	}
	return nil
}

// Close performs a final synchronous best-effort flush within budget and
// rejects further use.
func (s *Store) Close(budget time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if budget <= 0 {
		budget = 2 * time.Second
	}
	done := make(chan error, 1)
	go func() { done <- s.flush(true) }()

	var err error
	select {
	case err = <-done:
	case <-time.After(budget):
		err = errors.New("store: shutdown flush exceeded budget")
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
