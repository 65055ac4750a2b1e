// Package digest runs the scheduled jobs: a daily summary post to the
// review channel and periodic compaction of expired strike rows.
package digest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/crewsight/foreman/internal/approval"
	"github.com/crewsight/foreman/internal/processor"
)

// Pipeline is the live state the digest reports on.
type Pipeline interface {
	PendingApprovals() []approval.Pending
	Snapshot() processor.Stats
}

// Compactor deletes strike rows older than the cutoff. Rows past retention
// are already invisible to counting; compaction just reclaims the storage.
type Compactor interface {
	DeleteExpiredStrikes(ctx context.Context, cutoff time.Time) (int64, error)
}

// Poster delivers the rendered digest.
type Poster interface {
	PostDigest(ctx context.Context, text string) error
}

// Scheduler owns the cron instance. Poster and Compactor are optional; a nil
// collaborator skips that job.
type Scheduler struct {
	cron      *cron.Cron
	pipeline  Pipeline
	compactor Compactor
	poster    Poster
	retention time.Duration
	logger    *slog.Logger
}

func NewScheduler(pipeline Pipeline, compactor Compactor, poster Poster, retention time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		pipeline:  pipeline,
		compactor: compactor,
		poster:    poster,
		retention: retention,
		logger:    logger,
	}
}

// Start registers the jobs and begins the schedule. Specs use standard cron
// syntax in the server's local time.
func (s *Scheduler) Start(digestSpec, compactionSpec string) error {
	if s.poster != nil {
		if _, err := s.cron.AddFunc(digestSpec, func() { s.runDigest(context.Background()) }); err != nil {
			return fmt.Errorf("schedule digest: %w", err)
		}
	}
	if s.compactor != nil {
		if _, err := s.cron.AddFunc(compactionSpec, func() { s.runCompaction(context.Background()) }); err != nil {
			return fmt.Errorf("schedule compaction: %w", err)
		}
	}
	s.cron.Start()
	s.logger.Info("scheduler started", "digest", digestSpec, "compaction", compactionSpec)
	return nil
}

// Stop halts the schedule and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) runDigest(ctx context.Context) {
	text := RenderDigest(time.Now(), s.pipeline.Snapshot(), s.pipeline.PendingApprovals())
	if err := s.poster.PostDigest(ctx, text); err != nil {
		s.logger.Error("failed to post digest", "error", err)
		return
	}
	s.logger.Info("daily digest posted")
}

func (s *Scheduler) runCompaction(ctx context.Context) {
	cutoff := time.Now().Add(-s.retention)
	deleted, err := s.compactor.DeleteExpiredStrikes(ctx, cutoff)
	if err != nil {
		s.logger.Error("strike compaction failed", "error", err)
		return
	}
	s.logger.Info("strike compaction done", "deleted", deleted, "cutoff", cutoff)
}

// RenderDigest builds the daily summary text.
func RenderDigest(now time.Time, stats processor.Stats, pending []approval.Pending) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "*Foreman daily digest* (%s)\n", now.Format("2006-01-02"))
	fmt.Fprintf(&sb, "Events: %d worker, %d client, %d duplicates dropped, %d invalid\n",
		stats.ChatEvents, stats.ClientMessages, stats.Duplicates, stats.Invalid)
	fmt.Fprintf(&sb, "Strikes flagged: %d | Drafts queued: %d\n", stats.StrikesFlagged, stats.DraftsQueued)

	if len(pending) == 0 {
		sb.WriteString("No drafts awaiting review.")
		return sb.String()
	}

	fmt.Fprintf(&sb, "Awaiting review (%d):\n", len(pending))
	for _, p := range pending {
		age := now.Sub(p.CreatedAt).Round(time.Minute)
		fmt.Fprintf(&sb, "• %s (%s, waiting %s)\n", p.Contact, p.Analysis, age)
	}
	return strings.TrimRight(sb.String(), "\n")
}
