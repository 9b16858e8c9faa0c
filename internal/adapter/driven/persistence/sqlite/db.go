// Package sqlite stores users, contacts and messages in an embedded SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id          TEXT PRIMARY KEY,
		username    TEXT NOT NULL UNIQUE,
		avatar      TEXT NOT NULL,
		invite_code TEXT NOT NULL UNIQUE,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS contacts (
		owner    TEXT NOT NULL REFERENCES users(id),
		contact  TEXT NOT NULL REFERENCES users(id),
		added_at INTEGER NOT NULL,
		PRIMARY KEY (owner, contact)
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		id         TEXT NOT NULL UNIQUE,
		room_id    TEXT NOT NULL,
		from_id    TEXT NOT NULL,
		to_id      TEXT NOT NULL,
		text       TEXT NOT NULL,
		read       INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		read_at    INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_room ON messages(room_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(room_id, to_id, read)`,
	`CREATE INDEX IF NOT EXISTS idx_contacts_owner ON contacts(owner, added_at)`,
}

// DB wraps the SQLite handle shared by the user and message repositories.
type DB struct {
	db   *sql.DB
	path string

	// tsMu serialises timestamp assignment for new messages.
	tsMu   sync.Mutex
	lastAt time.Time
}

func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create database dir")
		}
	}

	// pragmas in the DSN apply to every pooled connection
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect database")
	}

	for _, q := range schema {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, errors.Wrap(err, "create schema")
		}
	}

	d := &DB{db: db, path: path}
	var last sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(created_at) FROM messages`).Scan(&last); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "read last message time")
	}
	if last.Valid {
		d.lastAt = time.Unix(0, last.Int64).UTC()
	}
	return d, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Path() string {
	return d.path
}

// Ping reports whether the database answers.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) nextTimestamp() time.Time {
	d.tsMu.Lock()
	defer d.tsMu.Unlock()
	now := time.Now().UTC()
	if !now.After(d.lastAt) {
		now = d.lastAt.Add(time.Microsecond)
	}
	d.lastAt = now
	return now
}

func errorCode(err error) int {
	var se *msqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

func isUniqueViolation(err error) bool {
	code := errorCode(err)
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isForeignKeyViolation(err error) bool {
	return errorCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
