package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/crewsight/foreman/internal/contacts"
)

// LoadThread implements contacts.ThreadStore. A contact with no stored
// thread returns (nil, nil) so the store can start one fresh.
func (s *Store) LoadThread(ctx context.Context, contact string) (*contacts.Thread, error) {
	th := &contacts.Thread{Contact: contact}

	var lastActivity *time.Time
	row := s.pool.QueryRow(ctx, `
		SELECT stage, last_activity
		FROM conversation_threads
		WHERE contact = $1`,
		contact,
	)
	err := row.Scan(&th.Stage, &lastActivity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query thread: %w", err)
	}
	if lastActivity != nil {
		th.LastActivity = *lastActivity
	}

	rows, err := s.pool.Query(ctx, `
		SELECT direction, body, channel, raw_source, sent_at
		FROM conversation_messages
		WHERE contact = $1
		ORDER BY seq ASC`,
		contact,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m contacts.Message
		if err := rows.Scan(&m.Direction, &m.Body, &m.Channel, &m.RawSource, &m.At); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		th.Messages = append(th.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return th, nil
}

// SaveThread implements contacts.ThreadStore with a per-contact atomic
// rewrite inside one transaction.
func (s *Store) SaveThread(ctx context.Context, thread *contacts.Thread) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO conversation_threads (contact, stage, last_activity, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (contact)
		DO UPDATE SET stage = $2, last_activity = $3, updated_at = now()`,
		thread.Contact, thread.Stage, nullableTime(thread.LastActivity),
	)
	if err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM conversation_messages WHERE contact = $1`, thread.Contact); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for i, m := range thread.Messages {
		_, err := tx.Exec(ctx, `
			INSERT INTO conversation_messages (contact, seq, direction, body, channel, raw_source, sent_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			thread.Contact, i, m.Direction, m.Body, m.Channel, m.RawSource, m.At,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// nullableTime maps the zero time to NULL so never-active threads do not
// store year-one timestamps.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
