// Package store persists moderation state in SQLite: bans, moderator
// roles, the bot operating mode, anti-link configuration, and AFK
// records. Every row is partitioned by session id so one database can
// back multiple connected accounts.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS bans (
	session_id TEXT NOT NULL,
	jid        TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	banned_by  TEXT NOT NULL DEFAULT '',
	banned_at  INTEGER NOT NULL,
	expires_at INTEGER,
	PRIMARY KEY (session_id, jid)
);
CREATE INDEX IF NOT EXISTS idx_bans_expires ON bans(expires_at);

CREATE TABLE IF NOT EXISTS roles (
	session_id TEXT NOT NULL,
	jid        TEXT NOT NULL,
	role       TEXT NOT NULL,
	granted_by TEXT NOT NULL DEFAULT '',
	granted_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, jid, role)
);

CREATE TABLE IF NOT EXISTS bot_mode (
	session_id TEXT PRIMARY KEY,
	mode       TEXT NOT NULL,
	group_only INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS antilink (
	session_id TEXT NOT NULL,
	chat_jid   TEXT NOT NULL,
	enabled    INTEGER NOT NULL DEFAULT 0,
	action     TEXT NOT NULL DEFAULT 'delete',
	patterns   TEXT NOT NULL DEFAULT '[]',
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, chat_jid)
);

CREATE TABLE IF NOT EXISTS antilink_stats (
	session_id TEXT NOT NULL,
	chat_jid   TEXT NOT NULL,
	detected   INTEGER NOT NULL DEFAULT 0,
	deleted    INTEGER NOT NULL DEFAULT 0,
	kicked     INTEGER NOT NULL DEFAULT 0,
	warned     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (session_id, chat_jid)
);

CREATE TABLE IF NOT EXISTS antilink_warnings (
	session_id TEXT NOT NULL,
	chat_jid   TEXT NOT NULL,
	jid        TEXT NOT NULL,
	count      INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (session_id, chat_jid, jid)
);

CREATE TABLE IF NOT EXISTS muted_chats (
	session_id TEXT NOT NULL,
	chat_jid   TEXT NOT NULL,
	muted_by   TEXT NOT NULL DEFAULT '',
	muted_at   INTEGER NOT NULL,
	PRIMARY KEY (session_id, chat_jid)
);

CREATE TABLE IF NOT EXISTS afk (
	session_id TEXT NOT NULL,
	jid        TEXT NOT NULL,
	reason     TEXT NOT NULL DEFAULT '',
	since      INTEGER NOT NULL,
	notify     INTEGER NOT NULL DEFAULT 1,
	reply      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (session_id, jid)
);

CREATE TABLE IF NOT EXISTS afk_mentions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id   TEXT NOT NULL,
	afk_jid      TEXT NOT NULL,
	chat_jid     TEXT NOT NULL,
	sender_jid   TEXT NOT NULL,
	sender_name  TEXT NOT NULL DEFAULT '',
	text         TEXT NOT NULL DEFAULT '',
	mentioned_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_afk_mentions ON afk_mentions(session_id, afk_jid);
`

// Store wraps the SQLite database. All operations go through a Scope,
// which fixes the session partition.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (and migrates) the database at path. The parent directory
// is created if missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." && path != ":memory:" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite serializes writers anyway; a single pooled connection also
	// keeps :memory: databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Scope returns a view of the store fixed to one session partition.
func (s *Store) Scope(sessionID string) *Scope {
	if sessionID == "" {
		sessionID = "default"
	}
	return &Scope{store: s, session: sessionID}
}

// Scope is the session-scoped store handle the pipeline works with.
type Scope struct {
	store   *Store
	session string
}

// SessionID returns the partition key of this scope.
func (sc *Scope) SessionID() string {
	return sc.session
}

func (sc *Scope) db() *sql.DB {
	return sc.store.db
}

func (sc *Scope) clock() time.Time {
	return sc.store.now()
}
