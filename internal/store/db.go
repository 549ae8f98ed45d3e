// Package store implements the user, message and group contracts on SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the chat database.
type DB struct {
	db   *sql.DB
	path string
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL UNIQUE,
		email      TEXT NOT NULL DEFAULT '',
		password   TEXT NOT NULL,
		status     TEXT NOT NULL DEFAULT 'offline',
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS chat_groups (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		name       TEXT NOT NULL,
		created_by INTEGER NOT NULL REFERENCES users (id),
		created_at INTEGER NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id INTEGER NOT NULL REFERENCES chat_groups (id) ON DELETE CASCADE,
		user_id  INTEGER NOT NULL REFERENCES users (id),
		PRIMARY KEY (group_id, user_id)
	);`,
	`CREATE TABLE IF NOT EXISTS messages (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		from_user  INTEGER NOT NULL REFERENCES users (id),
		to_user    INTEGER REFERENCES users (id),
		group_id   INTEGER REFERENCES chat_groups (id),
		body       TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		CHECK ((to_user IS NULL) <> (group_id IS NULL))
	);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_direct ON messages (from_user, to_user, id);`,
	`CREATE INDEX IF NOT EXISTS idx_messages_group ON messages (group_id, id);`,
	`CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members (user_id);`,
}

// Open opens or creates the database file at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	// per-connection pragmas go in the DSN so every pooled connection gets them
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create schema: %w", err)
		}
	}

	log.Info().Str("module", "store").Str("path", path).Msg("database ready")
	return &DB{db: db, path: path}, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) Path() string { return d.path }

// ResetStatuses marks every user offline. Called at startup since the
// registry starts empty.
func (d *DB) ResetStatuses(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `UPDATE users SET status = ? WHERE status <> ?`, domain.StatusOffline, domain.StatusOffline)
	if err != nil {
		return storageErr("reset statuses", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrPersistence, op, err)
}

func nowMillis() int64 { return time.Now().UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
