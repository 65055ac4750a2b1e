// Package classifier turns raw (message, sender, timestamp) triples into
// escalation directives. Matching is deterministic lexicon lookup; the only
// time-dependent computation is the lateness flag on arrivals.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/crewsight/foreman/internal/lexicon"
	"github.com/crewsight/foreman/internal/strikes"
)

// Task identifies what kind of event a directive describes.
type Task string

const (
	TaskCheckin  Task = "checkin"
	TaskCheckout Task = "checkout"
	TaskQuality  Task = "quality_flag"
	TaskOther    Task = "other"
)

// Action is what the escalation pipeline should do with the event.
type Action string

const (
	ActionFlagLate    Action = "flag_late"
	ActionFlagQuality Action = "flag_quality"
	ActionReviewOrLog Action = "review_or_log"
)

// Payload carries the extracted detail of a classified event.
type Payload struct {
	Worker         string         `json:"worker"`
	Trigger        string         `json:"trigger,omitempty"`
	Notes          string         `json:"notes,omitempty"`
	Body           string         `json:"body,omitempty"`
	Late           bool           `json:"late,omitempty"`
	MissingCheckin bool           `json:"missing_checkin,omitempty"`
	StrikePillar   strikes.Pillar `json:"strike_pillar,omitempty"`
	StrikeCount    int            `json:"strike_count,omitempty"`
	PersistFailed  bool           `json:"persist_failed,omitempty"`
}

// Directive is the classifier's output contract, handed to the escalation
// decision engine. Ephemeral: passed between components, never persisted.
type Directive struct {
	Task           Task    `json:"task"`
	ActionRequired Action  `json:"action_required"`
	Confidence     float64 `json:"confidence"`
	Payload        Payload `json:"payload"`
}

// StrikeRecorder is the violation-tracker dependency. The classifier records
// strikes synchronously for late arrivals and complaints before returning
// the directive.
type StrikeRecorder interface {
	RecordStrike(ctx context.Context, worker string, pillar strikes.Pillar, at time.Time, kind, notes string) (int, error)
}

// Classifier classifies worker chat events.
type Classifier struct {
	lex           *lexicon.Lexicon
	strikes       StrikeRecorder
	lateThreshold int // seconds past midnight, inclusive boundary
	loc           *time.Location
	logger        *slog.Logger
}

// DefaultLateThreshold is the check-in cutoff. Exactly 08:05:00 is on time.
const DefaultLateThreshold = "08:05"

func New(lex *lexicon.Lexicon, rec StrikeRecorder, lateThreshold string, loc *time.Location, logger *slog.Logger) (*Classifier, error) {
	secs, err := parseClock(lateThreshold)
	if err != nil {
		return nil, fmt.Errorf("late threshold: %w", err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Classifier{
		lex:           lex,
		strikes:       rec,
		lateThreshold: secs,
		loc:           loc,
		logger:        logger,
	}, nil
}

// Classify maps a worker chat message to a directive. It never fails: an
// unmatched or unparsable message yields the `other` catch-all directive.
// For late arrivals and complaints a strike is recorded before returning and
// the resulting active count rides in the payload.
func (c *Classifier) Classify(ctx context.Context, content, senderID string, at time.Time) Directive {
	match := c.lex.Classify(content)

	switch match.Category {
	case lexicon.CategoryArrival:
		late := c.isLate(at)
		d := Directive{
			Task:           TaskCheckin,
			ActionRequired: ActionReviewOrLog,
			Confidence:     1.0,
			Payload: Payload{
				Worker:  senderID,
				Trigger: match.Trigger,
				Notes:   extractNotes(content, match),
				Late:    late,
			},
		}
		if late {
			d.ActionRequired = ActionFlagLate
			c.record(ctx, &d, strikes.PillarPunctuality, "late_checkin", at)
		}
		return d

	case lexicon.CategoryDeparture:
		return Directive{
			Task:           TaskCheckout,
			ActionRequired: ActionReviewOrLog,
			Confidence:     1.0,
			Payload: Payload{
				Worker:  senderID,
				Trigger: match.Trigger,
				Notes:   extractNotes(content, match),
			},
		}

	case lexicon.CategoryComplaint:
		// The whole body is the context for a complaint; no notes split.
		d := Directive{
			Task:           TaskQuality,
			ActionRequired: ActionFlagQuality,
			Confidence:     1.0,
			Payload: Payload{
				Worker:  senderID,
				Trigger: match.Trigger,
				Body:    content,
			},
		}
		c.record(ctx, &d, strikes.PillarQuality, "complaint", at)
		return d

	default:
		// Deliberate catch-all, not a failure state.
		return Directive{
			Task:           TaskOther,
			ActionRequired: ActionReviewOrLog,
			Confidence:     0.0,
			Payload:        Payload{Worker: senderID, Body: content},
		}
	}
}

// record appends a strike and annotates the directive with the fresh count.
// A write failure is logged and flagged in the payload; the directive still
// carries the computed count so the event is surfaced rather than dropped.
func (c *Classifier) record(ctx context.Context, d *Directive, pillar strikes.Pillar, kind string, at time.Time) {
	if c.strikes == nil {
		return
	}
	notes := d.Payload.Notes
	if notes == "" {
		notes = d.Payload.Body
	}
	count, err := c.strikes.RecordStrike(ctx, d.Payload.Worker, pillar, at, kind, notes)
	if err != nil {
		c.logger.Warn("strike recorded in memory but not persisted",
			"worker", d.Payload.Worker,
			"pillar", pillar,
			"error", err,
		)
		d.Payload.PersistFailed = true
	}
	d.Payload.StrikePillar = pillar
	d.Payload.StrikeCount = count
}

// isLate reports whether the time of day, in the configured zone, is
// strictly after the threshold. Exactly on the threshold is on time.
func (c *Classifier) isLate(at time.Time) bool {
	local := at.In(c.loc)
	secs := local.Hour()*3600 + local.Minute()*60 + local.Second()
	return secs > c.lateThreshold
}

// extractNotes returns the free text after the matched trigger with leading
// punctuation and whitespace stripped.
func extractNotes(content string, match lexicon.Match) string {
	end := match.Offset + match.Length
	if match.Offset < 0 || end > len(content) {
		return ""
	}
	return strings.TrimLeft(content[end:], " \t\r\n,.:;!?-")
}

// parseClock parses "HH:MM" or "HH:MM:SS" into seconds past midnight.
func parseClock(s string) (int, error) {
	var h, m, sec int
	if _, err := fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec); err != nil {
		sec = 0
		if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
			return 0, fmt.Errorf("invalid clock value %q", s)
		}
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("invalid clock value %q", s)
	}
	return h*3600 + m*60 + sec, nil
}
