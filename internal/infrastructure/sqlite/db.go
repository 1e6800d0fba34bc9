package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS user (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'viewer',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS auth_code (
	code TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	expires_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (username) REFERENCES user(username) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS backup (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL UNIQUE,
	file_path TEXT,
	file_size INTEGER,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	storage_disk TEXT NOT NULL,
	created_by TEXT,
	error_message TEXT,
	info TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL,
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS download_grant (
	token TEXT PRIMARY KEY,
	backup_id TEXT NOT NULL,
	issued_to TEXT NOT NULL,
	expires_at DATETIME NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (backup_id) REFERENCES backup(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_backup_status ON backup(status);
CREATE INDEX IF NOT EXISTS idx_backup_type ON backup(type);
CREATE INDEX IF NOT EXISTS idx_backup_created_at ON backup(created_at);
CREATE INDEX IF NOT EXISTS idx_auth_code_expires_at ON auth_code(expires_at);
CREATE INDEX IF NOT EXISTS idx_download_grant_expires_at ON download_grant(expires_at);
`

type DB struct {
	*sqlx.DB
}

func New(dbPath string) (*DB, error) {
	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Enable WAL mode for better concurrency (allows concurrent reads/writes)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout to handle concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Create tables
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &DB{db}, nil
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// NullString helper for optional string fields
func NullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{Valid: false}
	}
	return sql.NullString{String: *s, Valid: true}
}

// NullInt64 helper for optional int64 fields
func NullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{Valid: false}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}

// NullTimeFrom helper for optional time fields
func NullTimeFrom(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{Valid: false}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
