// Package strikes maintains rolling disciplinary strike histories per worker
// and pillar. Records age out of the active window lazily: every read or
// write for a worker prunes that worker's history before counting.
package strikes

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Pillar is a disciplinary category tracked independently per worker.
type Pillar string

const (
	PillarPunctuality Pillar = "punctuality"
	PillarQuality     Pillar = "quality"
)

// DefaultRetention is the trailing window within which strikes stay active.
const DefaultRetention = 30 * 24 * time.Hour

// Record is a single strike. Immutable once written; removed only by expiry.
type Record struct {
	ID     uuid.UUID `json:"id"`
	Worker string    `json:"worker"`
	Pillar Pillar    `json:"pillar"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
	Notes  string    `json:"notes"`
}

// History is the persistence collaborator. A nil or failing History never
// fails the caller: unreadable state degrades to an empty history and write
// errors are reported alongside the already-computed count.
type History interface {
	LoadStrikes(ctx context.Context, worker string) (map[Pillar][]Record, error)
	SaveStrikes(ctx context.Context, worker string, records map[Pillar][]Record) error
}

// Tracker owns all strike records. Callers must not retain the slices it
// stores; counts are always computed post-prune.
type Tracker struct {
	mu        sync.Mutex
	retention time.Duration
	history   History
	logger    *slog.Logger
	now       func() time.Time

	// workers caches per-worker histories after first load so pruning does
	// not require a round trip on every count.
	workers map[string]map[Pillar][]Record
	loaded  map[string]bool
}

func NewTracker(history History, retention time.Duration, logger *slog.Logger) *Tracker {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{
		retention: retention,
		history:   history,
		logger:    logger,
		now:       time.Now,
		workers:   make(map[string]map[Pillar][]Record),
		loaded:    make(map[string]bool),
	}
}

// RecordStrike appends a strike for the worker under the given pillar and
// returns the post-prune, post-append active count. A persistence failure is
// returned alongside the count; the in-memory state is already updated and
// the caller decides whether an un-persisted strike is acceptable.
func (t *Tracker) RecordStrike(ctx context.Context, worker string, pillar Pillar, at time.Time, kind, notes string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	hist := t.load(ctx, worker)
	t.prune(worker, hist)

	rec := Record{
		ID:     uuid.New(),
		Worker: worker,
		Pillar: pillar,
		Kind:   kind,
		At:     at,
		Notes:  notes,
	}
	hist[pillar] = append(hist[pillar], rec)
	count := len(hist[pillar])

	if err := t.save(ctx, worker, hist); err != nil {
		return count, err
	}
	return count, nil
}

// CountActive returns the number of strikes strictly within the trailing
// retention window as of the call time. Pruning happens before the count is
// reported, so expired records are never included even if the persisted
// store still holds them.
func (t *Tracker) CountActive(ctx context.Context, worker string, pillar Pillar) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	hist := t.load(ctx, worker)
	if pruned := t.prune(worker, hist); pruned > 0 {
		// Rewrite lazily so the persisted store converges; a failure here
		// only delays compaction.
		if err := t.save(ctx, worker, hist); err != nil {
			t.logger.Warn("failed to persist pruned history", "worker", worker, "error", err)
		}
	}
	return len(hist[pillar])
}

// Active returns the post-prune counts for every pillar of a worker.
func (t *Tracker) Active(ctx context.Context, worker string) map[Pillar]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	hist := t.load(ctx, worker)
	t.prune(worker, hist)

	counts := make(map[Pillar]int, len(hist))
	for _, p := range []Pillar{PillarPunctuality, PillarQuality} {
		counts[p] = len(hist[p])
	}
	return counts
}

// load returns the cached history for a worker, fetching from the History
// collaborator on first access. A load failure recovers to empty state.
func (t *Tracker) load(ctx context.Context, worker string) map[Pillar][]Record {
	if hist, ok := t.workers[worker]; ok {
		return hist
	}

	var hist map[Pillar][]Record
	if t.history != nil && !t.loaded[worker] {
		loaded, err := t.history.LoadStrikes(ctx, worker)
		if err != nil {
			t.logger.Warn("strike history unreadable, recovering to empty", "worker", worker, "error", err)
		} else {
			hist = loaded
		}
	}
	if hist == nil {
		hist = make(map[Pillar][]Record)
	}
	t.workers[worker] = hist
	t.loaded[worker] = true
	return hist
}

// prune drops records older than the retention window. Returns how many were
// removed. A record at exactly now-retention stays active.
func (t *Tracker) prune(worker string, hist map[Pillar][]Record) int {
	cutoff := t.now().Add(-t.retention)
	removed := 0
	for pillar, recs := range hist {
		kept := recs[:0]
		for _, r := range recs {
			if r.At.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, r)
		}
		hist[pillar] = kept
	}
	if removed > 0 {
		t.logger.Debug("pruned expired strikes", "worker", worker, "removed", removed)
	}
	return removed
}

func (t *Tracker) save(ctx context.Context, worker string, hist map[Pillar][]Record) error {
	if t.history == nil {
		return nil
	}
	return t.history.SaveStrikes(ctx, worker, hist)
}

// MemoryHistory is an in-process History used in tests and when no database
// is configured.
type MemoryHistory struct {
	mu   sync.Mutex
	data map[string]map[Pillar][]Record
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{data: make(map[string]map[Pillar][]Record)}
}

func (m *MemoryHistory) LoadStrikes(_ context.Context, worker string) (map[Pillar][]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.data[worker]
	if !ok {
		return nil, nil
	}
	out := make(map[Pillar][]Record, len(stored))
	for p, recs := range stored {
		out[p] = append([]Record(nil), recs...)
	}
	return out, nil
}

func (m *MemoryHistory) SaveStrikes(_ context.Context, worker string, records map[Pillar][]Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make(map[Pillar][]Record, len(records))
	for p, recs := range records {
		stored[p] = append([]Record(nil), recs...)
	}
	m.data[worker] = stored
	return nil
}
