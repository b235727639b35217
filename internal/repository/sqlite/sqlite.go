// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY SQLITE?
// The whole data model is per-user rows with simple indexes; a single-file
// embedded database covers it without a server to run. The essay version
// chain in particular is a natural fit: all versions live in one table keyed
// by id with a UNIQUE(user_id, version) index for ordered retrieval, so
// "follow the predecessor chain" never needs in-memory list traversal.
//
// WHY modernc.org/sqlite INSTEAD OF mattn/go-sqlite3?
// modernc is a pure-Go translation of SQLite; no CGo, no C toolchain,
// trivial cross-compilation, and ":memory:" databases for fast tests.
//
// JSON COLUMNS:
// Essay sections, deltas, user metadata, and call messages are stored as
// JSON text. None of them are queried by inner fields; they are opaque
// payloads read and written whole; so columns-per-field would buy nothing
// and cost a migration every time the generator's shape evolves.
package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository
// interfaces: users, essay versions, tidbits, associations, call summaries.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath (":memory:" for tests), configures
// pragmas, and runs migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets reads proceed while a write is in flight; important for a
	// web server where essay reads race webhook-triggered writes.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Referential integrity between users, essays, tidbits, and the join
	// table. SQLite ships with this off.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool, flushing the WAL.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it idempotent.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id              TEXT PRIMARY KEY,
			external_id     TEXT NOT NULL UNIQUE,
			email           TEXT NOT NULL DEFAULT '',
			first_name      TEXT NOT NULL DEFAULT '',
			last_name       TEXT NOT NULL DEFAULT '',
			image_url       TEXT NOT NULL DEFAULT '',
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_sign_in_at DATETIME,
			is_active       INTEGER NOT NULL DEFAULT 1,
			metadata        TEXT NOT NULL DEFAULT '{}'
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// The essay chain. UNIQUE(user_id, version) is both the retrieval index
	// and the guard against two writers racing to claim the same version
	// number; the loser gets a constraint violation, surfaced as Conflict.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS essay_versions (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL REFERENCES users(id),
			version             INTEGER NOT NULL,
			sections            TEXT NOT NULL,
			previous_version_id TEXT REFERENCES essay_versions(id),
			delta               TEXT,
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, version)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating essay_versions table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS tidbits (
			id              TEXT PRIMARY KEY,
			user_id         TEXT NOT NULL REFERENCES users(id),
			type            TEXT NOT NULL,
			content         TEXT NOT NULL,
			relevance_score REAL NOT NULL DEFAULT 0,
			created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			last_used_at    DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_tidbits_user_relevance
			ON tidbits(user_id, relevance_score DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating tidbits table: %w", err)
	}

	// Join table. Position is unique within an essay's set; the whole set
	// is always replaced atomically, never patched row by row.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS essay_tidbits (
			essay_id  TEXT NOT NULL REFERENCES essay_versions(id),
			tidbit_id TEXT NOT NULL REFERENCES tidbits(id),
			position  INTEGER NOT NULL,
			PRIMARY KEY (essay_id, tidbit_id),
			UNIQUE(essay_id, position)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating essay_tidbits table: %w", err)
	}

	// call_id is UNIQUE; the idempotency key for webhook redeliveries.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS call_summaries (
			id               TEXT PRIMARY KEY,
			call_id          TEXT NOT NULL UNIQUE,
			user_id          TEXT NOT NULL DEFAULT '',
			external_user_id TEXT NOT NULL DEFAULT '',
			summary          TEXT NOT NULL DEFAULT '',
			transcript       TEXT NOT NULL DEFAULT '',
			messages         TEXT NOT NULL DEFAULT '[]',
			ended_reason     TEXT NOT NULL DEFAULT '',
			recording_url    TEXT NOT NULL DEFAULT '',
			assistant_id     TEXT NOT NULL DEFAULT '',
			created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_call_summaries_user
			ON call_summaries(user_id, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("creating call_summaries table: %w", err)
	}

	return nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint
// failure. The modernc driver exposes these only through the message text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// userExistsTx checks for a user row inside an open transaction, so inserts
// referencing the user can fail with a clean NotFound before touching
// anything.
func userExistsTx(tx *sql.Tx, userID string) (bool, error) {
	var exists int
	err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking user %s: %w", userID, err)
	}
	return exists == 1, nil
}
