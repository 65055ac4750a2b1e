// Package store is the Postgres persistence collaborator. The pipeline's
// in-memory components read and write through it per key; nothing in the
// decision path blocks on it beyond the per-key round trip.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the tables foreman needs if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS strike_records (
		id          UUID PRIMARY KEY,
		worker      TEXT NOT NULL,
		pillar      TEXT NOT NULL,
		kind        TEXT NOT NULL DEFAULT '',
		notes       TEXT NOT NULL DEFAULT '',
		struck_at   TIMESTAMPTZ NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
	);
	CREATE INDEX IF NOT EXISTS idx_strike_records_worker ON strike_records(worker);
	CREATE INDEX IF NOT EXISTS idx_strike_records_struck_at ON strike_records(struck_at);

	CREATE TABLE IF NOT EXISTS conversation_threads (
		contact       TEXT PRIMARY KEY,
		stage         TEXT NOT NULL DEFAULT 'pre-sale',
		last_activity TIMESTAMPTZ,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	);

	CREATE TABLE IF NOT EXISTS conversation_messages (
		id         BIGSERIAL PRIMARY KEY,
		contact    TEXT NOT NULL,
		seq        INT NOT NULL,
		direction  TEXT NOT NULL,
		body       TEXT NOT NULL,
		channel    TEXT NOT NULL DEFAULT '',
		raw_source TEXT NOT NULL DEFAULT '',
		sent_at    TIMESTAMPTZ NOT NULL,
		UNIQUE (contact, seq)
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_messages_contact ON conversation_messages(contact);

	CREATE TABLE IF NOT EXISTS approval_audit (
		id          UUID PRIMARY KEY,
		contact     TEXT NOT NULL,
		draft       TEXT NOT NULL,
		final_text  TEXT NOT NULL DEFAULT '',
		analysis    TEXT NOT NULL DEFAULT '',
		decision    TEXT NOT NULL,
		resolved_by TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL,
		resolved_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_approval_audit_contact ON approval_audit(contact);
	`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
