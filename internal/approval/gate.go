// Package approval serializes every outbound automated action behind a
// human accept/reject/edit step. At most one pending draft exists per
// contact; a newer draft supersedes the old one instead of queueing.
package approval

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status of a pending approval. Pending is the only live state; the others
// are terminal and move the record to the audit log.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusEdited   Status = "edited"
)

// Pending is a drafted automated action awaiting human review.
type Pending struct {
	ID        uuid.UUID `json:"id"`
	Contact   string    `json:"contact"`
	Draft     string    `json:"draft"`
	Analysis  string    `json:"analysis"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SubmitResult reports whether a submission created a new pending entry or
// replaced an existing one.
type SubmitResult string

const (
	SubmitAccepted   SubmitResult = "accepted"
	SubmitSuperseded SubmitResult = "superseded"
)

// DecisionKind is the human verdict on a draft.
type DecisionKind string

const (
	DecisionApprove DecisionKind = "approve"
	DecisionReject  DecisionKind = "reject"
	DecisionEdit    DecisionKind = "edit"
)

// Decision is a resolve request from the human-interaction collaborator.
type Decision struct {
	Kind       DecisionKind
	EditedText string // replaces the draft when Kind is DecisionEdit
	ResolvedBy string
}

// FinalAction is the approved (possibly edited) action released for
// delivery. Nothing reaches an external channel except through one of these.
type FinalAction struct {
	Contact    string       `json:"contact"`
	Text       string       `json:"text"`
	Decision   DecisionKind `json:"decision"`
	ResolvedBy string       `json:"resolved_by"`
	ResolvedAt time.Time    `json:"resolved_at"`
	Approval   Pending      `json:"approval"`
}

// Deliver reports whether the resolved action should actually go out.
// Rejected drafts resolve but deliver nothing.
func (f FinalAction) Deliver() bool {
	return f.Decision == DecisionApprove || f.Decision == DecisionEdit
}

// AuditLog receives terminal approvals. Failures are logged, never surfaced:
// audit is advisory, the resolution itself already happened.
type AuditLog interface {
	AppendApproval(ctx context.Context, action FinalAction) error
}

// Gate holds the pending queue. Safe for concurrent use.
type Gate struct {
	mu      sync.Mutex
	pending map[string]*Pending // keyed by canonical contact
	audit   AuditLog
	logger  *slog.Logger
	now     func() time.Time
}

func NewGate(audit AuditLog, logger *slog.Logger) *Gate {
	return &Gate{
		pending: make(map[string]*Pending),
		audit:   audit,
		logger:  logger,
		now:     time.Now,
	}
}

// Submit queues a draft for the contact. If a pending draft already exists
// its text and analysis are replaced (latest context wins) while the
// original CreatedAt is preserved, and the call reports superseded.
func (g *Gate) Submit(contact, draft, analysis string) SubmitResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if existing, ok := g.pending[contact]; ok {
		existing.Draft = draft
		existing.Analysis = analysis
		existing.UpdatedAt = now
		g.logger.Info("pending draft superseded", "contact", contact)
		return SubmitSuperseded
	}

	g.pending[contact] = &Pending{
		ID:        uuid.New(),
		Contact:   contact,
		Draft:     draft,
		Analysis:  analysis,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return SubmitAccepted
}

// Resolve applies a human decision to the contact's pending draft. When no
// draft is pending the call is a no-op returning ok=false: races between
// human action and new inbound messages are expected, never an error.
func (g *Gate) Resolve(ctx context.Context, contact string, decision Decision) (FinalAction, bool) {
	g.mu.Lock()
	p, ok := g.pending[contact]
	if ok {
		delete(g.pending, contact)
	}
	g.mu.Unlock()

	if !ok {
		return FinalAction{}, false
	}

	now := g.now()
	text := p.Draft
	switch decision.Kind {
	case DecisionApprove:
		p.Status = StatusApproved
	case DecisionEdit:
		p.Status = StatusEdited
		text = decision.EditedText
	default:
		p.Status = StatusRejected
	}
	p.UpdatedAt = now

	action := FinalAction{
		Contact:    contact,
		Text:       text,
		Decision:   decision.Kind,
		ResolvedBy: decision.ResolvedBy,
		ResolvedAt: now,
		Approval:   *p,
	}

	if g.audit != nil {
		if err := g.audit.AppendApproval(ctx, action); err != nil {
			g.logger.Warn("failed to append approval audit entry", "contact", contact, "error", err)
		}
	}

	g.logger.Info("approval resolved",
		"contact", contact,
		"decision", string(decision.Kind),
		"resolved_by", decision.ResolvedBy,
	)
	return action, true
}

// Pending returns a snapshot of the live queue ordered by creation time.
func (g *Gate) Pending() []Pending {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Pending, 0, len(g.pending))
	for _, p := range g.pending {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// PendingFor returns the contact's pending draft, if any.
func (g *Gate) PendingFor(contact string) (Pending, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pending[contact]
	if !ok {
		return Pending{}, false
	}
	return *p, true
}
