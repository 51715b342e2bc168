package chatlog

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
)

const ddlChatLogSQLite = `
CREATE TABLE IF NOT EXISTS chat_log (
    id          TEXT    PRIMARY KEY,
    text        TEXT    NOT NULL DEFAULT '',
    uname       TEXT    NOT NULL DEFAULT '',
    is_ai       INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER,
    inserted_at TEXT    NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_chat_log_created_at ON chat_log (created_at, id);
`

// SQLiteStore keeps the chat log in a single-file database for deployments
// without PostgreSQL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path. ":memory:" works
// for tests.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("sqlite chat log: open: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, ddlChatLogSQLite); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite chat log: migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Append inserts entry under a new push ID.
func (s *SQLiteStore) Append(ctx context.Context, entry chatlog.Entry) (chatlog.Entry, error) {
	entry.ID = NewPushID()

	var createdAt sql.NullInt64
	if entry.CreatedAt != nil {
		createdAt = sql.NullInt64{Int64: *entry.CreatedAt, Valid: true}
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_log (id, text, uname, is_ai, created_at) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Text, entry.AuthorName, entry.IsGenerated, createdAt,
	); err != nil {
		return chatlog.Entry{}, fmt.Errorf("sqlite chat log: append: %w", err)
	}
	return entry, nil
}

// Recent mirrors PostgresStore.Recent. SQLite sorts NULL lowest, so the
// default NULL placement already matches.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]chatlog.Entry, error) {
	const q = `
		SELECT id, text, uname, is_ai, created_at
		FROM (
		    SELECT id, text, uname, is_ai, created_at
		    FROM   chat_log
		    ORDER  BY created_at DESC, id DESC
		    LIMIT  ?
		)
		ORDER  BY created_at ASC, id ASC`

	// A negative LIMIT means no limit.
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite chat log: recent: %w", err)
	}
	defer rows.Close()

	entries := []chatlog.Entry{}
	for rows.Next() {
		var (
			e         chatlog.Entry
			createdAt sql.NullInt64
		)
		if err := rows.Scan(&e.ID, &e.Text, &e.AuthorName, &e.IsGenerated, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite chat log: scan row: %w", err)
		}
		if createdAt.Valid {
			ms := createdAt.Int64
			e.CreatedAt = &ms
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite chat log: scan rows: %w", err)
	}
	return entries, nil
}
