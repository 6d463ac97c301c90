// Package store provides the SQLite-backed bookkeeping for biorag: per-
// conversation chat history and the ingest manifest. History is persisted
// across server restarts and injected into the LLM context window on
// subsequent chat turns; the manifest records what has been ingested so
// unchanged documents can be skipped and changed ones replaced.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Role identifies the author of a conversation message.
type Role string

const (
	// RoleUser is a message sent by the human operator.
	RoleUser Role = "user"
	// RoleAssistant is a message produced by the LLM.
	RoleAssistant Role = "assistant"
)

// Message is a single turn in a conversation.
type Message struct {
	// Role is the author of the message.
	Role Role
	// Content is the text of the message.
	Content string
	// CreatedAt is when the message was persisted.
	CreatedAt time.Time
}

// ConversationStore persists and retrieves conversation history keyed by a
// caller-supplied conversation id. Implementations must be safe for
// concurrent use.
type ConversationStore interface {
	// Append persists a single message for the given conversation.
	Append(ctx context.Context, conversationID string, role Role, content string) error
	// Recent returns the most recent n messages for the conversation, ordered
	// oldest-first so they can be prepended to the LLM message slice directly.
	// If fewer than n messages exist, all are returned.
	Recent(ctx context.Context, conversationID string, n int) ([]Message, error)
	// Close releases any resources held by the store.
	Close() error
}

// SourceRecord is one ingest manifest entry.
type SourceRecord struct {
	// Title is the document title the records were stored under.
	Title string
	// SourceURL is the origin of the document, empty for local files
	// without one.
	SourceURL string
	// ContentHash is the hex sha256 of the document text at ingest time.
	ContentHash string
	// ChunkCount is how many chunk records the document produced.
	ChunkCount int
	// IngestedAt is when the document was last ingested.
	IngestedAt time.Time
}

// IngestManifest tracks ingested documents by title so the pipeline can
// detect unchanged and changed content. Implementations must be safe for
// concurrent use.
type IngestManifest interface {
	// Lookup returns the recorded content hash for title. ok is false when
	// the title has never been ingested.
	Lookup(ctx context.Context, title string) (contentHash string, ok bool, err error)
	// Record stores (or replaces) the manifest entry for title.
	Record(ctx context.Context, title, sourceURL, contentHash string, chunkCount int) error
	// Sources returns every manifest entry, newest first.
	Sources(ctx context.Context) ([]SourceRecord, error)
}

// SQLiteStore implements ConversationStore and IngestManifest backed by a
// local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the biorag database.
// It resolves to ~/.biorag/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".biorag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS conversations (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id TEXT    NOT NULL,
    role            TEXT    NOT NULL CHECK(role IN ('user','assistant')),
    content         TEXT    NOT NULL,
    created_at      INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_conversations_conversation_created
    ON conversations (conversation_id, created_at);

CREATE TABLE IF NOT EXISTS ingest_manifest (
    title        TEXT    PRIMARY KEY,
    source_url   TEXT    NOT NULL DEFAULT '',
    content_hash TEXT    NOT NULL,
    chunk_count  INTEGER NOT NULL,
    ingested_at  INTEGER NOT NULL  -- Unix timestamp (seconds)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists a single message for the given conversation.
func (s *SQLiteStore) Append(ctx context.Context, conversationID string, role Role, content string) error {
	const q = `INSERT INTO conversations (conversation_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, conversationID, string(role), content, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns the most recent n messages for the conversation, ordered
// oldest-first. Uses a subquery to select the tail then re-order for injection.
func (s *SQLiteStore) Recent(ctx context.Context, conversationID string, n int) ([]Message, error) {
	const q = `
SELECT role, content, created_at FROM (
    SELECT id, role, content, created_at
    FROM   conversations
    WHERE  conversation_id = ?
    ORDER  BY created_at DESC, id DESC
    LIMIT  ?
) ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var ts int64
		var role string
		if err := rows.Scan(&role, &m.Content, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		m.Role = Role(role)
		m.CreatedAt = time.Unix(ts, 0)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return msgs, nil
}

// Lookup returns the recorded content hash for title, with ok false when the
// title has never been ingested.
func (s *SQLiteStore) Lookup(ctx context.Context, title string) (string, bool, error) {
	const q = `SELECT content_hash FROM ingest_manifest WHERE title = ?`
	var hash string
	err := s.db.QueryRowContext(ctx, q, title).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: manifest lookup: %w", err)
	}
	return hash, true, nil
}

// Record stores or replaces the manifest entry for title.
func (s *SQLiteStore) Record(ctx context.Context, title, sourceURL, contentHash string, chunkCount int) error {
	const q = `
INSERT INTO ingest_manifest (title, source_url, content_hash, chunk_count, ingested_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(title) DO UPDATE SET
    source_url   = excluded.source_url,
    content_hash = excluded.content_hash,
    chunk_count  = excluded.chunk_count,
    ingested_at  = excluded.ingested_at`
	if _, err := s.db.ExecContext(ctx, q, title, sourceURL, contentHash, chunkCount, time.Now().Unix()); err != nil {
		return fmt.Errorf("store: manifest record: %w", err)
	}
	return nil
}

// Sources returns every manifest entry, newest first.
func (s *SQLiteStore) Sources(ctx context.Context) ([]SourceRecord, error) {
	const q = `
SELECT title, source_url, content_hash, chunk_count, ingested_at
FROM   ingest_manifest
ORDER  BY ingested_at DESC, title ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: manifest sources: %w", err)
	}
	defer rows.Close()

	var records []SourceRecord
	for rows.Next() {
		var rec SourceRecord
		var ts int64
		if err := rows.Scan(&rec.Title, &rec.SourceURL, &rec.ContentHash, &rec.ChunkCount, &ts); err != nil {
			return nil, fmt.Errorf("store: manifest sources scan: %w", err)
		}
		rec.IngestedAt = time.Unix(ts, 0)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: manifest sources rows: %w", err)
	}
	return records, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
