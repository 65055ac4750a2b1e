package digest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/crewsight/foreman/internal/approval"
	"github.com/crewsight/foreman/internal/processor"
)

type fakePipeline struct {
	pending []approval.Pending
	stats   processor.Stats
}

func (f *fakePipeline) PendingApprovals() []approval.Pending { return f.pending }
func (f *fakePipeline) Snapshot() processor.Stats            { return f.stats }

type fakeCompactor struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (f *fakeCompactor) DeleteExpiredStrikes(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.err
}

type fakePoster struct {
	posts []string
	err   error
}

func (f *fakePoster) PostDigest(_ context.Context, text string) error {
	f.posts = append(f.posts, text)
	return f.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRenderDigest(t *testing.T) {
	now := time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)
	stats := processor.Stats{ChatEvents: 12, ClientMessages: 4, StrikesFlagged: 2, DraftsQueued: 3}
	pending := []approval.Pending{
		{Contact: "16125551234", Analysis: "schedule_request", CreatedAt: now.Add(-45 * time.Minute)},
	}

	text := RenderDigest(now, stats, pending)

	for _, want := range []string{
		"2026-03-02",
		"12 worker",
		"Strikes flagged: 2",
		"16125551234",
		"schedule_request",
		"45m",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("digest missing %q:\n%s", want, text)
		}
	}
}

func TestRenderDigest_EmptyQueue(t *testing.T) {
	text := RenderDigest(time.Now(), processor.Stats{}, nil)
	if !strings.Contains(text, "No drafts awaiting review") {
		t.Errorf("expected empty-queue line, got:\n%s", text)
	}
}

func TestRunDigest(t *testing.T) {
	poster := &fakePoster{}
	s := NewScheduler(&fakePipeline{stats: processor.Stats{ChatEvents: 1}}, nil, poster, 30*24*time.Hour, testLogger())

	s.runDigest(context.Background())

	if len(poster.posts) != 1 {
		t.Fatalf("expected 1 digest post, got %d", len(poster.posts))
	}
	if !strings.Contains(poster.posts[0], "1 worker") {
		t.Errorf("digest content:\n%s", poster.posts[0])
	}
}

func TestRunCompaction(t *testing.T) {
	compactor := &fakeCompactor{deleted: 7}
	retention := 30 * 24 * time.Hour
	s := NewScheduler(&fakePipeline{}, compactor, nil, retention, testLogger())

	before := time.Now().Add(-retention)
	s.runCompaction(context.Background())
	after := time.Now().Add(-retention)

	if compactor.cutoff.Before(before) || compactor.cutoff.After(after) {
		t.Errorf("cutoff %v outside [%v, %v]", compactor.cutoff, before, after)
	}
}

func TestRunCompaction_ErrorLogged(t *testing.T) {
	compactor := &fakeCompactor{err: errors.New("db down")}
	s := NewScheduler(&fakePipeline{}, compactor, nil, time.Hour, testLogger())

	// Must not panic; failures surface in logs only.
	s.runCompaction(context.Background())
}

func TestStart_InvalidSpec(t *testing.T) {
	s := NewScheduler(&fakePipeline{}, nil, &fakePoster{}, time.Hour, testLogger())
	if err := s.Start("not a cron spec", "@daily"); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}

func TestStart_NilCollaboratorsSkipJobs(t *testing.T) {
	s := NewScheduler(&fakePipeline{}, nil, nil, time.Hour, testLogger())
	if err := s.Start("bad spec ignored", "also bad"); err != nil {
		t.Fatalf("expected no error when both jobs are skipped: %v", err)
	}
	s.Stop()
}
