package store

import (
	"context"
	"fmt"
	"time"

	"github.com/crewsight/foreman/internal/strikes"
)

// LoadStrikes implements strikes.History. Records come back in chronological
// order per pillar.
func (s *Store) LoadStrikes(ctx context.Context, worker string) (map[strikes.Pillar][]strikes.Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, worker, pillar, kind, notes, struck_at
		FROM strike_records
		WHERE worker = $1
		ORDER BY struck_at ASC`,
		worker,
	)
	if err != nil {
		return nil, fmt.Errorf("query strikes: %w", err)
	}
	defer rows.Close()

	hist := make(map[strikes.Pillar][]strikes.Record)
	for rows.Next() {
		var r strikes.Record
		if err := rows.Scan(&r.ID, &r.Worker, &r.Pillar, &r.Kind, &r.Notes, &r.At); err != nil {
			return nil, fmt.Errorf("scan strike row: %w", err)
		}
		hist[r.Pillar] = append(hist[r.Pillar], r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate strike rows: %w", err)
	}
	return hist, nil
}

// SaveStrikes implements strikes.History: an atomic per-worker rewrite so a
// prune and an append racing on different instances cannot interleave rows.
func (s *Store) SaveStrikes(ctx context.Context, worker string, records map[strikes.Pillar][]strikes.Record) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM strike_records WHERE worker = $1`, worker); err != nil {
		return fmt.Errorf("clear strikes: %w", err)
	}

	for _, recs := range records {
		for _, r := range recs {
			_, err := tx.Exec(ctx, `
				INSERT INTO strike_records (id, worker, pillar, kind, notes, struck_at)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				r.ID, r.Worker, r.Pillar, r.Kind, r.Notes, r.At,
			)
			if err != nil {
				return fmt.Errorf("insert strike: %w", err)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteExpiredStrikes removes rows older than the cutoff across all
// workers. Used by the scheduled compaction job; the tracker's lazy pruning
// keeps counts correct regardless of when this runs.
func (s *Store) DeleteExpiredStrikes(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM strike_records WHERE struck_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired strikes: %w", err)
	}
	return tag.RowsAffected(), nil
}
