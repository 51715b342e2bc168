package chatlog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhouzirui/z-mentor/backend/internal/model/chatlog"
)

const ddlChatLog = `
CREATE TABLE IF NOT EXISTS chat_log (
    id          TEXT         PRIMARY KEY,
    text        TEXT         NOT NULL DEFAULT '',
    uname       TEXT         NOT NULL DEFAULT '',
    is_ai       BOOLEAN      NOT NULL DEFAULT FALSE,
    created_at  BIGINT,
    inserted_at TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_log_created_at
    ON chat_log (created_at, id);
`

// PostgresStore keeps the chat log in a single PostgreSQL table.
// All methods are safe for concurrent use.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and ensures the chat_log table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres chat log: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres chat log: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the chat_log table and its ordering index.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlChatLog); err != nil {
		return fmt.Errorf("postgres chat log: migrate: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Append inserts entry under a new push ID.
func (s *PostgresStore) Append(ctx context.Context, entry chatlog.Entry) (chatlog.Entry, error) {
	const q = `
		INSERT INTO chat_log (id, text, uname, is_ai, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	entry.ID = NewPushID()
	if _, err := s.pool.Exec(ctx, q,
		entry.ID,
		entry.Text,
		entry.AuthorName,
		entry.IsGenerated,
		entry.CreatedAt,
	); err != nil {
		return chatlog.Entry{}, fmt.Errorf("postgres chat log: append: %w", err)
	}
	return entry, nil
}

// Recent selects the newest window in SQL and returns it oldest first.
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]chatlog.Entry, error) {
	const q = `
		SELECT id, text, uname, is_ai, created_at
		FROM (
		    SELECT id, text, uname, is_ai, created_at
		    FROM   chat_log
		    ORDER  BY created_at DESC NULLS LAST, id DESC
		    LIMIT  $1
		) recent
		ORDER  BY created_at ASC NULLS FIRST, id ASC`

	// A NULL limit means LIMIT ALL.
	var limitArg *int64
	if limit > 0 {
		l := int64(limit)
		limitArg = &l
	}

	rows, err := s.pool.Query(ctx, q, limitArg)
	if err != nil {
		return nil, fmt.Errorf("postgres chat log: recent: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (chatlog.Entry, error) {
		var e chatlog.Entry
		if err := row.Scan(&e.ID, &e.Text, &e.AuthorName, &e.IsGenerated, &e.CreatedAt); err != nil {
			return chatlog.Entry{}, err
		}
		return e, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres chat log: scan rows: %w", err)
	}
	if entries == nil {
		entries = []chatlog.Entry{}
	}
	return entries, nil
}
