package store

import (
	"database/sql"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"localnotify/internal/kit"
)

// Earlier builds persisted state as a flat sqlite key-value table:
//
//	kv(key TEXT PRIMARY KEY, value TEXT)
//
// with keys "notif/<identifier>" (value = platform id), "last_foreground"
// (unix seconds) and "return/<field>". loadLegacy reads that table once
// and converts it into a Snapshot; the legacy file is never written
// again.
func loadLegacy(path string, log zerolog.Logger) (Snapshot, bool) {
	if _, err := os.Stat(path); err != nil {
		return Snapshot{}, false
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		log.Warn().Err(err).Msg("legacy store unreadable")
		return Snapshot{}, false
	}
	defer db.Close()
	// SQLite prefers a small number of concurrent writers; we only read.
	db.SetMaxOpenConns(1)
	_, _ = db.Exec("PRAGMA busy_timeout = 500")

	// rowid preserves the original insertion order of the flat keys.
	rows, err := db.Query(`SELECT key, value FROM kv ORDER BY rowid`)
	if err != nil {
		log.Warn().Err(err).Msg("legacy kv table missing")
		return Snapshot{}, false
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(k, "notif/"):
			id := strings.TrimPrefix(k, "notif/")
			pid, err := strconv.ParseInt(v, 10, 64)
			if id == "" || err != nil {
				continue
			}
			snap.Entries = append(snap.Entries, Entry{Identifier: id, PlatformID: kit.PlatformID(pid)})
		case k == "last_foreground":
			if ts, err := strconv.ParseInt(v, 10, 64); err == nil {
				snap.LastForeground = ts
			}
		case k == "return/enabled":
			snap.Return.Enabled = v == "1" || strings.EqualFold(v, "true")
		case k == "return/title":
			snap.Return.Title = v
		case k == "return/body":
			snap.Return.Body = v
		case k == "return/hours":
			if h, err := strconv.Atoi(v); err == nil {
				snap.Return.HoursBefore = h
			}
		case k == "return/repeat":
			snap.Return.Repeat = kit.Repeat(v)
		case k == "return/identifier":
			snap.Return.Identifier = v
		}
	}
	if err := rows.Err(); err != nil {
		log.Warn().Err(err).Msg("legacy scan aborted")
		return Snapshot{}, false
	}

	empty := len(snap.Entries) == 0 && snap.LastForeground == 0 &&
		!snap.Return.Enabled && snap.Return.Title == ""
	if empty {
		return Snapshot{}, false
	}
	return snap, true
}
