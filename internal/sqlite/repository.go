// Package sqlite persists linked accounts and mirrored post records in a
// local SQLite database.
package sqlite

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	connMaxLifetime = 5 * time.Minute
	timeLayout      = time.RFC3339Nano
)

// Repository implements domain.AccountRepository and
// domain.PostRecordRepository using SQLite. Account secrets are sealed with
// a Sealer before they are written.
type Repository struct {
	db     *sql.DB
	sealer *Sealer
}

// Open opens the database at path, applies pending migrations, and returns a
// new Repository. The caller should call Close when the repository is no
// longer needed.
func Open(path string, sealer *Sealer) (*Repository, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	dsn := dataSourceName(path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := configure(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure database: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Repository{db: db, sealer: sealer}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// dataSourceName carries the per-connection pragmas in the DSN so that every
// connection the pool opens gets them, not just the first.
func dataSourceName(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeoutMS))
	q.Add("_pragma", "foreign_keys(1)")
	q.Add("_pragma", "synchronous(NORMAL)")
	return (&url.URL{Scheme: "file", Path: path, RawQuery: q.Encode()}).String()
}

func configure(db *sql.DB) error {
	// journal_mode is persisted in the database file.
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		return err
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	return nil
}

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS accounts (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL,
  email TEXT NOT NULL DEFAULT '',
  handle TEXT NOT NULL DEFAULT '',
  did TEXT NOT NULL DEFAULT '',
  secret BLOB,
  cross_posting_enabled INTEGER NOT NULL DEFAULT 0,
  created_at TEXT NOT NULL,
  updated_at TEXT NOT NULL
);`,
	`
CREATE TABLE IF NOT EXISTS post_records (
  post_id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL,
  record_uri TEXT NOT NULL,
  record_cid TEXT NOT NULL DEFAULT '',
  created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_post_records_account ON post_records(account_id);`,
}

// migrate applies every migration newer than the stored user_version.
func migrate(db *sql.DB) error {
	var current int
	if err := db.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeLayout, s)
}
