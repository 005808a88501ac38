// Package schema owns the SQLite schema for the chat store.
package schema

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// CurrentVersion is the current schema version.
const CurrentVersion = 1

// InitDB initializes a new database with the current schema.
// Safe to call on an already-initialized database.
func InitDB(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := createVersionTable(tx); err != nil {
		return fmt.Errorf("create version table: %w", err)
	}

	if err := createTables(tx); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	if err := createIndexes(tx); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}

	version, err := schemaVersion(tx)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version == 0 {
		if err := setSchemaVersion(tx, CurrentVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query schema version: %w", err)
	}
	return version, nil
}

func schemaVersion(tx *sql.Tx) (int, error) {
	var version int
	err := tx.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return version, nil
}

// createVersionTable creates the schema_version table.
func createVersionTable(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version    INTEGER NOT NULL,
			applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// setSchemaVersion sets the schema version in the database.
func setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// createTables creates all database tables.
func createTables(tx *sql.Tx) error {
	tables := []string{
		// Users table
		`CREATE TABLE IF NOT EXISTS users (
			user_id      TEXT PRIMARY KEY,
			email        TEXT UNIQUE,
			display_name TEXT,
			created_at   TEXT NOT NULL
		)`,

		// Sessions table (bearer credentials)
		`CREATE TABLE IF NOT EXISTS sessions (
			token      TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
		)`,

		// Chats table
		`CREATE TABLE IF NOT EXISTS chats (
			chat_id    TEXT PRIMARY KEY,
			title      TEXT NOT NULL,
			created_by TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,

		// Chat members table
		`CREATE TABLE IF NOT EXISTS chat_members (
			chat_id   TEXT NOT NULL,
			user_id   TEXT NOT NULL,
			role      TEXT NOT NULL DEFAULT 'member',
			joined_at TEXT NOT NULL,
			PRIMARY KEY (chat_id, user_id),
			FOREIGN KEY (chat_id) REFERENCES chats(chat_id) ON DELETE CASCADE
		)`,

		// Messages table. role is 'user' or 'assistant'; model tags which
		// provider produced an assistant message.
		`CREATE TABLE IF NOT EXISTS messages (
			message_id   TEXT PRIMARY KEY,
			chat_id      TEXT NOT NULL,
			user_id      TEXT NOT NULL,
			content      TEXT NOT NULL,
			role         TEXT NOT NULL,
			model        TEXT,
			message_type TEXT NOT NULL DEFAULT 'text',
			created_at   TEXT NOT NULL,
			FOREIGN KEY (chat_id) REFERENCES chats(chat_id) ON DELETE CASCADE
		)`,
	}

	for _, table := range tables {
		if _, err := tx.Exec(table); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	return nil
}

// OpenDB opens a SQLite database connection. Pragmas go in the DSN so every
// pooled connection gets them, not just the first.
func OpenDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// An in-memory database is private to the connection that opened
		// it. Cap the pool at one so every query sees the same database.
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// createIndexes creates all database indexes.
func createIndexes(tx *sql.Tx) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_created ON messages(chat_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_members_user ON chat_members(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at)`,
	}

	for _, index := range indexes {
		if _, err := tx.Exec(index); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	return nil
}
