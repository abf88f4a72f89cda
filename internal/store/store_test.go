package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"localnotify/internal/kit"
)

func openTemp(t *testing.T) (*Store, Snapshot, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notifications.snapshot.json")
	s, snap, err := Open(path, "", 10*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	return s, snap, path
}

func testSnapshot() Snapshot {
	return Snapshot{
		Entries: []Entry{
			{Identifier: "a", PlatformID: 1},
			{Identifier: "b", PlatformID: 2},
			{Identifier: "c", PlatformID: 3},
		},
		Return: kit.ReturnPolicy{
			Enabled:     true,
			Title:       "come back",
			Body:        "we miss you",
			HoursBefore: 24,
			Identifier:  kit.DefaultReturnIdentifier,
		},
		LastForeground: time.Now().Unix(),
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, initial, path := openTemp(t)
	require.Empty(t, initial.Entries)

	want := testSnapshot()
	s.SetSource(func() Snapshot { return want })
	s.MarkDirty()
	require.NoError(t, s.Flush())

	s2, got, err := Open(path, "", 0, zerolog.Nop())
	require.NoError(t, err)
	defer s2.Close(time.Second)

	require.Equal(t, want.Entries, got.Entries)
	require.Equal(t, want.Return, got.Return)
	require.Equal(t, want.LastForeground, got.LastForeground)
	require.Equal(t, SnapshotVersion, got.Version)
}

func TestCorruptedSnapshotSelfHeals(t *testing.T) {
	s, _, path := openTemp(t)
	s.SetSource(testSnapshot)
	s.MarkDirty()
	require.NoError(t, s.Flush())

	// Flip one byte in the middle of the payload.
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	b[len(b)/2] ^= 0xff
	require.NoError(t, os.WriteFile(path, b, 0o600))

	_, got, err := Open(path, "", 0, zerolog.Nop())
	require.NoError(t, err, "corruption must not surface as an error")
	require.Empty(t, got.Entries)

	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr), "corrupted file should be deleted")
}

func TestOversizedSnapshotRejectedWithoutParsing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.json")
	require.NoError(t, os.WriteFile(path, make([]byte, maxSnapshotSize+1), 0o600))

	_, got, err := Open(path, "", 0, zerolog.Nop())
	require.NoError(t, err)
	require.Empty(t, got.Entries)
	_, statErr := os.Stat(path)
	require.True(t, os.IsNotExist(statErr))
}

func TestDebounceCoalescesFlushes(t *testing.T) {
	s, _, path := openTemp(t)
	var builds atomic.Int32
	s.SetSource(func() Snapshot { builds.Add(1); return testSnapshot() })

	for i := 0; i < 10; i++ {
		s.MarkDirty()
	}
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 1, builds.Load(), "burst of mutations should flush once")
}

func TestCloseFlushesDirtyState(t *testing.T) {
	s, _, path := openTemp(t)
	s.SetSource(testSnapshot)
	s.MarkDirty()
	require.NoError(t, s.Close(time.Second))

	_, err := os.Stat(path)
	require.NoError(t, err, "shutdown flush did not write the snapshot")

	require.ErrorIs(t, s.Flush(), ErrClosed)
}

type stubBreaker struct {
	allow atomic.Bool
}

func (b *stubBreaker) Allow(time.Time) bool { return b.allow.Load() }
func (b *stubBreaker) RecordError(time.Time) {}

func TestFlushDeferredWhileBreakerOpen(t *testing.T) {
	s, _, path := openTemp(t)
	brk := &stubBreaker{}
	s.SetBreaker(brk)
	s.SetSource(testSnapshot)

	s.MarkDirty()
	require.NoError(t, s.Flush())
	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "flush should be deferred while the circuit is open")

	brk.allow.Store(true)
	require.NoError(t, s.Flush())
	_, err = os.Stat(path)
	require.NoError(t, err, "flush should proceed once the circuit closes")
}

func TestCloseIgnoresBreaker(t *testing.T) {
	s, _, path := openTemp(t)
	s.SetBreaker(&stubBreaker{})
	s.SetSource(testSnapshot)
	s.MarkDirty()

	require.NoError(t, s.Close(time.Second))
	_, err := os.Stat(path)
	require.NoError(t, err, "shutdown flush must bypass the open circuit")
}

func TestFlushRearmsAfterWriteFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "notifications.snapshot.json")
	s, _, err := Open(path, "", 10*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)
	s.SetSource(testSnapshot)

	// Yank the directory out from under the store so the temp-file
	// write fails, then put it back and wait for the retry.
	require.NoError(t, os.RemoveAll(dir))
	s.MarkDirty()
	require.Error(t, s.Flush())

	require.NoError(t, os.MkdirAll(dir, 0o755))
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, statErr := os.Stat(path); statErr == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("failed flush was never retried")
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NoError(t, s.Close(time.Second))
}

func TestLegacyMigration(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "prefs.db")

	db, err := sql.Open("sqlite", legacy)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE kv (key TEXT PRIMARY KEY, value TEXT)`)
	require.NoError(t, err)
	for _, kv := range [][2]string{
		{"notif/old-1", "11"},
		{"notif/old-2", "12"},
		{"last_foreground", "1700000000"},
		{"return/enabled", "1"},
		{"return/title", "hey"},
		{"return/body", "come back"},
		{"return/hours", "48"},
	} {
		_, err = db.Exec(`INSERT INTO kv(key, value) VALUES(?, ?)`, kv[0], kv[1])
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	path := filepath.Join(dir, "snap.json")
	s, snap, err := Open(path, legacy, 5*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)

	require.Equal(t, []Entry{
		{Identifier: "old-1", PlatformID: 11},
		{Identifier: "old-2", PlatformID: 12},
	}, snap.Entries)
	require.True(t, snap.Return.Enabled)
	require.Equal(t, 48, snap.Return.HoursBefore)
	require.EqualValues(t, 1700000000, snap.LastForeground)

	// Migration marks the store dirty: the new format appears without
	// any further mutation.
	s.SetSource(func() Snapshot { return snap })
	require.NoError(t, s.Flush())
	_, statErr := os.Stat(path)
	require.NoError(t, statErr)
	require.NoError(t, s.Close(time.Second))
}

func TestMissingLegacyIsIgnored(t *testing.T) {
	dir := t.TempDir()
	_, snap, err := Open(filepath.Join(dir, "snap.json"), filepath.Join(dir, "absent.db"), 0, zerolog.Nop())
	require.NoError(t, err)
	require.Empty(t, snap.Entries)
}
