package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lotas/sensiblelive/internal/types"
	_ "modernc.org/sqlite"
)

// Visit is one applied navigation.
type Visit struct {
	ID        int64
	URL       string
	Title     string
	Status    int
	VisitedAt time.Time
}

// EventRecord is one push event as received.
type EventRecord struct {
	ID         int64
	Kind       string
	EntityID   string
	Detail     string // error text of progress-end, if any
	ReceivedAt time.Time
}

// migration is a numbered schema change. Migrations are applied in order
// and tracked in the schema_migrations table so each runs exactly once.
type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "visits journal",
		SQL: `
CREATE TABLE IF NOT EXISTS visits (
    id          INTEGER PRIMARY KEY,
    url         TEXT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    status      INTEGER NOT NULL,
    visited_at  DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_visits_visited_at ON visits(visited_at);`,
	},
	{
		Version:     2,
		Description: "push events journal",
		SQL: `
CREATE TABLE IF NOT EXISTS events (
    id          INTEGER PRIMARY KEY,
    kind        TEXT NOT NULL,
    entity_id   TEXT NOT NULL DEFAULT '',
    detail      TEXT NOT NULL DEFAULT '',
    received_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_received_at ON events(received_at);
CREATE INDEX IF NOT EXISTS idx_events_entity ON events(entity_id);`,
	},
}

// OpenDB opens (or creates) the journal database at path and brings the
// schema up to date.
func OpenDB(path string) (*sql.DB, error) {
	// Create parent directory if needed.
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode so `history` can read while the TUI writes.
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// runMigrations ensures the schema_migrations table exists and applies
// every migration that has not been recorded yet.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version     INTEGER PRIMARY KEY,
		description TEXT NOT NULL,
		applied_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	for _, m := range migrations {
		var exists int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = ?", m.Version).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if exists > 0 {
			continue
		}

		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(
			"INSERT INTO schema_migrations (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
	}
	return nil
}

// RecordVisit appends a navigation to the journal. A zero VisitedAt means now.
func RecordVisit(db *sql.DB, v Visit) error {
	if v.VisitedAt.IsZero() {
		v.VisitedAt = time.Now()
	}
	_, err := db.Exec(`INSERT INTO visits (url, title, status, visited_at) VALUES (?, ?, ?, ?)`,
		v.URL, v.Title, v.Status, v.VisitedAt.UTC())
	if err != nil {
		return fmt.Errorf("record visit %s: %w", v.URL, err)
	}
	return nil
}

// RecentVisits returns up to limit visits, newest first.
func RecentVisits(db *sql.DB, limit int) ([]Visit, error) {
	rows, err := db.Query(`SELECT id, url, title, status, visited_at
		FROM visits ORDER BY visited_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Visit
	for rows.Next() {
		var v Visit
		if err := rows.Scan(&v.ID, &v.URL, &v.Title, &v.Status, &v.VisitedAt); err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, rows.Err()
}

// LastVisit returns the most recent successful visit, or nil if there is none.
func LastVisit(db *sql.DB) (*Visit, error) {
	var v Visit
	err := db.QueryRow(`SELECT id, url, title, status, visited_at
		FROM visits WHERE status = 200 ORDER BY visited_at DESC, id DESC LIMIT 1`).
		Scan(&v.ID, &v.URL, &v.Title, &v.Status, &v.VisitedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last visit: %w", err)
	}
	return &v, nil
}

// RecordEvent appends a push event to the journal.
func RecordEvent(db *sql.DB, ev types.ChangeEvent, at time.Time) error {
	if at.IsZero() {
		at = time.Now()
	}
	_, err := db.Exec(`INSERT INTO events (kind, entity_id, detail, received_at) VALUES (?, ?, ?, ?)`,
		ev.Kind.String(), ev.EntityID, ev.Error, at.UTC())
	if err != nil {
		return fmt.Errorf("record event %s: %w", ev.Kind, err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first. A non-empty
// entityID restricts the result to that song.
func RecentEvents(db *sql.DB, entityID string, limit int) ([]EventRecord, error) {
	query := `SELECT id, kind, entity_id, detail, received_at FROM events WHERE 1=1`
	var args []interface{}
	if entityID != "" {
		query += " AND entity_id = ?"
		args = append(args, entityID)
	}
	query += " ORDER BY received_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []EventRecord
	for rows.Next() {
		var e EventRecord
		if err := rows.Scan(&e.ID, &e.Kind, &e.EntityID, &e.Detail, &e.ReceivedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
