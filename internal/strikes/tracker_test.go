package strikes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixedNow() time.Time {
	return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
}

func newTestTracker(h History) *Tracker {
	tr := NewTracker(h, DefaultRetention, discardLogger())
	tr.now = fixedNow
	return tr
}

func TestRecordStrike_CountsIncrement(t *testing.T) {
	tr := newTestTracker(NewMemoryHistory())
	ctx := context.Background()

	n, err := tr.RecordStrike(ctx, "maria", PillarPunctuality, fixedNow(), "late_checkin", "parking is tight")
	if err != nil {
		t.Fatalf("RecordStrike failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}

	n, err = tr.RecordStrike(ctx, "maria", PillarPunctuality, fixedNow(), "late_checkin", "")
	if err != nil {
		t.Fatalf("RecordStrike failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected count 2, got %d", n)
	}

	// Pillars are independent.
	if got := tr.CountActive(ctx, "maria", PillarQuality); got != 0 {
		t.Errorf("expected 0 quality strikes, got %d", got)
	}
}

func TestCountActive_RetentionBoundary(t *testing.T) {
	tr := newTestTracker(NewMemoryHistory())
	ctx := context.Background()
	now := fixedNow()

	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{"31 days old is expired", now.Add(-31 * 24 * time.Hour), 0},
		{"29 days old is active", now.Add(-29 * 24 * time.Hour), 1},
		{"exactly 30 days old is active", now.Add(-30 * 24 * time.Hour), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			worker := "w-" + tt.name
			if _, err := tr.RecordStrike(ctx, worker, PillarQuality, tt.at, "complaint", ""); err != nil {
				t.Fatalf("RecordStrike failed: %v", err)
			}
			if got := tr.CountActive(ctx, worker, PillarQuality); got != tt.want {
				t.Errorf("CountActive = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRecordStrike_PrunesBeforeCounting(t *testing.T) {
	tr := newTestTracker(NewMemoryHistory())
	ctx := context.Background()
	now := fixedNow()

	// One expired, one active, then a fresh append.
	if _, err := tr.RecordStrike(ctx, "jon", PillarPunctuality, now.Add(-40*24*time.Hour), "late_checkin", ""); err != nil {
		t.Fatalf("RecordStrike failed: %v", err)
	}
	if _, err := tr.RecordStrike(ctx, "jon", PillarPunctuality, now.Add(-5*24*time.Hour), "late_checkin", ""); err != nil {
		t.Fatalf("RecordStrike failed: %v", err)
	}

	// The append prunes first, so the 40-day-old record is gone before the
	// new one is counted.
	n, err := tr.RecordStrike(ctx, "jon", PillarPunctuality, now, "late_checkin", "")
	if err != nil {
		t.Fatalf("RecordStrike failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected post-prune count 2, got %d", n)
	}
}

func TestLoad_CorruptHistoryRecoversEmpty(t *testing.T) {
	tr := newTestTracker(failingHistory{loadErr: errors.New("corrupt state")})
	ctx := context.Background()

	if got := tr.CountActive(ctx, "maria", PillarPunctuality); got != 0 {
		t.Errorf("expected empty history on load failure, got %d", got)
	}

	// The tracker keeps working after recovery.
	n, err := tr.RecordStrike(ctx, "maria", PillarPunctuality, fixedNow(), "late_checkin", "")
	if err != nil {
		t.Fatalf("RecordStrike failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}
}

func TestRecordStrike_WriteFailureStillReturnsCount(t *testing.T) {
	tr := newTestTracker(failingHistory{saveErr: errors.New("disk full")})
	ctx := context.Background()

	n, err := tr.RecordStrike(ctx, "maria", PillarQuality, fixedNow(), "complaint", "")
	if err == nil {
		t.Fatal("expected save error to surface")
	}
	if n != 1 {
		t.Errorf("expected in-memory count 1 alongside the error, got %d", n)
	}

	// The in-memory decision is never rolled back.
	if got := tr.CountActive(ctx, "maria", PillarQuality); got != 1 {
		t.Errorf("expected count 1 after failed persist, got %d", got)
	}
}

func TestTracker_LoadsPersistedHistory(t *testing.T) {
	hist := NewMemoryHistory()
	ctx := context.Background()

	first := newTestTracker(hist)
	if _, err := first.RecordStrike(ctx, "ana", PillarQuality, fixedNow().Add(-24*time.Hour), "complaint", ""); err != nil {
		t.Fatalf("RecordStrike failed: %v", err)
	}

	// A fresh tracker over the same history sees the persisted record.
	second := newTestTracker(hist)
	if got := second.CountActive(ctx, "ana", PillarQuality); got != 1 {
		t.Errorf("expected persisted strike to load, got %d", got)
	}
}

func TestActive_AllPillars(t *testing.T) {
	tr := newTestTracker(NewMemoryHistory())
	ctx := context.Background()

	if _, err := tr.RecordStrike(ctx, "maria", PillarPunctuality, fixedNow(), "late_checkin", ""); err != nil {
		t.Fatalf("RecordStrike failed: %v", err)
	}
	if _, err := tr.RecordStrike(ctx, "maria", PillarQuality, fixedNow(), "complaint", ""); err != nil {
		t.Fatalf("RecordStrike failed: %v", err)
	}

	counts := tr.Active(ctx, "maria")
	if counts[PillarPunctuality] != 1 || counts[PillarQuality] != 1 {
		t.Errorf("unexpected counts %+v", counts)
	}
}

type failingHistory struct {
	loadErr error
	saveErr error
}

func (f failingHistory) LoadStrikes(context.Context, string) (map[Pillar][]Record, error) {
	return nil, f.loadErr
}

func (f failingHistory) SaveStrikes(context.Context, string, map[Pillar][]Record) error {
	return f.saveErr
}
