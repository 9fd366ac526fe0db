package db

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

type Database struct {
	db *sql.DB
}

// One lifetime of a room, from first join until the last member leaves.
// Drawing content is never stored here.
type Session struct {
	ID          int64      `json:"id"`
	RoomID      string     `json:"room_id"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	Commits     int        `json:"commits"`
	Undos       int        `json:"undos"`
	Redos       int        `json:"redos"`
	Clears      int        `json:"clears"`
	PeakMembers int        `json:"peak_members"`
}

// Counter names a per-session tally column
type Counter string

const (
	CounterCommits Counter = "commits"
	CounterUndos   Counter = "undos"
	CounterRedos   Counter = "redos"
	CounterClears  Counter = "clears"
)

func (c Counter) valid() bool {
	switch c {
	case CounterCommits, CounterUndos, CounterRedos, CounterClears:
		return true
	}
	return false
}

func New(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Writes come from a single recorder goroutine
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("Database initialized at %s", dbPath)
	return &Database{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS room_sessions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL,
		opened_at DATETIME NOT NULL,
		closed_at DATETIME,
		commits INTEGER NOT NULL DEFAULT 0,
		undos INTEGER NOT NULL DEFAULT 0,
		redos INTEGER NOT NULL DEFAULT 0,
		clears INTEGER NOT NULL DEFAULT 0,
		peak_members INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_room_sessions_room_id ON room_sessions(room_id, opened_at DESC);
	CREATE INDEX IF NOT EXISTS idx_room_sessions_closed_at ON room_sessions(closed_at);
	`

	_, err := db.Exec(schema)
	return err
}

func (d *Database) Close() error {
	return d.db.Close()
}

// Session operations

func (d *Database) OpenSession(roomID string, at time.Time) (int64, error) {
	result, err := d.db.Exec(
		"INSERT INTO room_sessions (room_id, opened_at) VALUES (?, ?)",
		roomID, dbTime(at),
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *Database) CloseSession(id int64, at time.Time) error {
	_, err := d.db.Exec(
		"UPDATE room_sessions SET closed_at = ? WHERE id = ? AND closed_at IS NULL",
		dbTime(at), id,
	)
	return err
}

// CloseDangling closes sessions left open by a previous process. Rooms
// never survive a restart, so any open row is stale.
func (d *Database) CloseDangling(at time.Time) (int64, error) {
	result, err := d.db.Exec(
		"UPDATE room_sessions SET closed_at = ? WHERE closed_at IS NULL",
		dbTime(at),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (d *Database) Increment(id int64, c Counter) error {
	if !c.valid() {
		return fmt.Errorf("unknown counter %q", c)
	}
	// c is one of a fixed set of column names
	_, err := d.db.Exec(
		fmt.Sprintf("UPDATE room_sessions SET %[1]s = %[1]s + 1 WHERE id = ?", c),
		id,
	)
	return err
}

func (d *Database) RecordMembers(id int64, members int) error {
	_, err := d.db.Exec(
		"UPDATE room_sessions SET peak_members = MAX(peak_members, ?) WHERE id = ?",
		members, id,
	)
	return err
}

func (d *Database) GetSession(id int64) (*Session, error) {
	row := d.db.QueryRow(`
		SELECT id, room_id, opened_at, closed_at, commits, undos, redos, clears, peak_members
		FROM room_sessions WHERE id = ?
	`, id)

	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ListSessions returns sessions for a room, newest first
func (d *Database) ListSessions(roomID string, limit, offset int) ([]Session, error) {
	rows, err := d.db.Query(`
		SELECT id, room_id, opened_at, closed_at, commits, undos, redos, clears, peak_members
		FROM room_sessions
		WHERE room_id = ?
		ORDER BY opened_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, roomID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (d *Database) GetSessionCount(roomID string) (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM room_sessions WHERE room_id = ?", roomID).Scan(&count)
	return count, err
}

// DeleteClosedBefore removes closed sessions older than cutoff
func (d *Database) DeleteClosedBefore(cutoff time.Time) (int64, error) {
	result, err := d.db.Exec(
		"DELETE FROM room_sessions WHERE closed_at IS NOT NULL AND closed_at < ?",
		dbTime(cutoff),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Times are stored in UTC at second precision so that text comparison in
// SQL matches chronological order.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var s Session
	var closed sql.NullTime
	err := row.Scan(&s.ID, &s.RoomID, &s.OpenedAt, &closed, &s.Commits, &s.Undos, &s.Redos, &s.Clears, &s.PeakMembers)
	if err != nil {
		return nil, err
	}
	if closed.Valid {
		t := closed.Time
		s.ClosedAt = &t
	}
	return &s, nil
}

// Stats

func (d *Database) GetStats() (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	var sessionCount int
	if err := d.db.QueryRow("SELECT COUNT(*) FROM room_sessions").Scan(&sessionCount); err != nil {
		return nil, err
	}
	stats["session_count"] = sessionCount

	var roomCount int
	if err := d.db.QueryRow("SELECT COUNT(DISTINCT room_id) FROM room_sessions").Scan(&roomCount); err != nil {
		return nil, err
	}
	stats["room_count"] = roomCount

	var commitCount int
	if err := d.db.QueryRow("SELECT COALESCE(SUM(commits), 0) FROM room_sessions").Scan(&commitCount); err != nil {
		return nil, err
	}
	stats["commit_count"] = commitCount

	return stats, nil
}
