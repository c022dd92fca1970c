// Package sqlite implements the repository interfaces on SQLite, using the
// pure-Go modernc.org/sqlite driver (no CGo, no C toolchain needed).
//
// ONE WRITER:
// SQLite allows a single writer per database file. The pool is capped at one
// open connection, so every transaction here runs to completion before the
// next one starts. Per-match and per-conversation linearizability follow
// from that plus the constraints in migrate():
//   - matches:       status transitions are conditional UPDATEs (status = 'pending')
//   - conversations: participant_key is UNIQUE
//   - messages:      (conversation_id, seq) is UNIQUE
//   - reports:       status changes are conditional UPDATEs on the old status
//
// TIMESTAMPS:
// All times are stored as INTEGER Unix nanoseconds in UTC, so ordering and
// cutoff comparisons ("sent_at <= ?") are numeric inside SQL.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlitedriver "modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB wraps a sql.DB connection pool and implements every repository
// interface in internal/repository.
type DB struct {
	conn *sql.DB
	now  func() time.Time
}

// New opens the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/cofounder.db"  → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests; lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: the single-writer rule above, and an in-memory
	// database only lives as long as its one connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	db := &DB{conn: conn, now: time.Now}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database still answers. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// migrate creates every table and index. CREATE ... IF NOT EXISTS makes it
// safe to run on each start.
func (db *DB) migrate() error {
	steps := []struct {
		name string
		sql  string
	}{
		{"matches table", `
			CREATE TABLE IF NOT EXISTS matches (
				id                  TEXT PRIMARY KEY,
				user_a              TEXT NOT NULL,
				user_b              TEXT NOT NULL,
				compatibility_score INTEGER NOT NULL CHECK (compatibility_score BETWEEN 0 AND 100),
				status              TEXT NOT NULL DEFAULT 'pending'
				                    CHECK (status IN ('pending', 'accepted', 'rejected')),
				created_at          INTEGER NOT NULL,
				decided_at          INTEGER,
				CHECK (user_a <> user_b)
			)`},
		{"matches user_a index", `CREATE INDEX IF NOT EXISTS idx_matches_user_a_status ON matches(user_a, status)`},
		{"matches user_b index", `CREATE INDEX IF NOT EXISTS idx_matches_user_b_status ON matches(user_b, status)`},
		{"matches status index", `CREATE INDEX IF NOT EXISTS idx_matches_status_created ON matches(status, created_at)`},

		// Feedback is a child log keyed by (match_id, seq) instead of a
		// growing blob inside the match row.
		{"match_feedback table", `
			CREATE TABLE IF NOT EXISTS match_feedback (
				match_id   TEXT NOT NULL REFERENCES matches(id),
				seq        INTEGER NOT NULL,
				user_id    TEXT NOT NULL,
				rating     INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
				comments   TEXT NOT NULL DEFAULT '',
				created_at INTEGER NOT NULL,
				PRIMARY KEY (match_id, seq)
			)`},

		// participant_key is the canonical participant-set key. UNIQUE here is
		// what guarantees one conversation per set.
		{"conversations table", `
			CREATE TABLE IF NOT EXISTS conversations (
				id              TEXT PRIMARY KEY,
				participant_key TEXT NOT NULL UNIQUE,
				created_at      INTEGER NOT NULL,
				last_message_at INTEGER NOT NULL
			)`},
		{"conversations last message index", `CREATE INDEX IF NOT EXISTS idx_conversations_last_message ON conversations(last_message_at DESC)`},
		{"conversation_participants table", `
			CREATE TABLE IF NOT EXISTS conversation_participants (
				conversation_id TEXT NOT NULL REFERENCES conversations(id),
				user_id         TEXT NOT NULL,
				position        INTEGER NOT NULL,
				PRIMARY KEY (conversation_id, user_id)
			)`},
		{"participants user index", `CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id)`},
		{"messages table", `
			CREATE TABLE IF NOT EXISTS messages (
				id              TEXT PRIMARY KEY,
				conversation_id TEXT NOT NULL REFERENCES conversations(id),
				seq             INTEGER NOT NULL,
				sender_id       TEXT NOT NULL,
				content         TEXT NOT NULL,
				sent_at         INTEGER NOT NULL,
				read_status     INTEGER NOT NULL DEFAULT 0,
				UNIQUE (conversation_id, seq)
			)`},
		{"messages unread index", `CREATE INDEX IF NOT EXISTS idx_messages_conversation_read ON messages(conversation_id, read_status)`},
		{"message_attachments table", `
			CREATE TABLE IF NOT EXISTS message_attachments (
				message_id TEXT NOT NULL REFERENCES messages(id),
				position   INTEGER NOT NULL,
				file_url   TEXT NOT NULL,
				file_name  TEXT NOT NULL,
				file_type  TEXT NOT NULL,
				PRIMARY KEY (message_id, position)
			)`},

		// id is pinned to 1: the table can never hold a second snapshot.
		{"statistics table", `
			CREATE TABLE IF NOT EXISTS statistics (
				id                 INTEGER PRIMARY KEY CHECK (id = 1),
				total_users        INTEGER NOT NULL DEFAULT 0 CHECK (total_users >= 0),
				total_matches      INTEGER NOT NULL DEFAULT 0 CHECK (total_matches >= 0),
				successful_matches INTEGER NOT NULL DEFAULT 0 CHECK (successful_matches >= 0),
				active_24h         INTEGER NOT NULL DEFAULT 0 CHECK (active_24h >= 0),
				active_7d          INTEGER NOT NULL DEFAULT 0 CHECK (active_7d >= 0),
				active_30d         INTEGER NOT NULL DEFAULT 0 CHECK (active_30d >= 0),
				observed_accepted  INTEGER NOT NULL DEFAULT 0,
				last_updated       INTEGER NOT NULL
			)`},

		{"reports table", `
			CREATE TABLE IF NOT EXISTS reports (
				id          TEXT PRIMARY KEY,
				reporter_id TEXT NOT NULL,
				reported_id TEXT NOT NULL,
				reason      TEXT NOT NULL
				            CHECK (reason IN ('harassment', 'inappropriate_content', 'spam', 'fake_profile', 'other')),
				description TEXT NOT NULL CHECK (length(description) <= 1000),
				status      TEXT NOT NULL DEFAULT 'pending'
				            CHECK (status IN ('pending', 'reviewed', 'resolved')),
				created_at  INTEGER NOT NULL,
				updated_at  INTEGER NOT NULL,
				CHECK (reporter_id <> reported_id)
			)`},
		{"reports status index", `CREATE INDEX IF NOT EXISTS idx_reports_status_created ON reports(status, created_at)`},
		{"reports reporter index", `CREATE INDEX IF NOT EXISTS idx_reports_reporter_created ON reports(reporter_id, created_at)`},

		{"members table", `
			CREATE TABLE IF NOT EXISTS members (
				id             TEXT PRIMARY KEY,
				created_at     INTEGER NOT NULL,
				last_active_at INTEGER NOT NULL
			)`},
		{"members activity index", `CREATE INDEX IF NOT EXISTS idx_members_last_active ON members(last_active_at)`},
	}

	for _, step := range steps {
		if _, err := db.conn.Exec(step.sql); err != nil {
			return fmt.Errorf("creating %s: %w", step.name, err)
		}
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx, so loaders can run
// inside or outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn in a transaction, committing if fn returns nil and rolling
// back otherwise.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing transaction: %w", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlitedriver.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlitelib.SQLITE_CONSTRAINT_UNIQUE, sqlitelib.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	// Primary result code only (extended codes disabled).
	return sqliteErr.Code()&0xff == sqlitelib.SQLITE_CONSTRAINT &&
		strings.Contains(sqliteErr.Error(), "UNIQUE")
}

func toNanos(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// clampList applies the default and maximum page size.
func clampList(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
