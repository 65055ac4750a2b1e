// Package processor orchestrates the monitoring pipeline: raw inbound
// events are classified, strike histories updated, escalation outcomes
// derived, and any outbound reply queued behind the approval gate. Events
// for the same worker or contact are processed one at a time; unrelated
// keys run in parallel.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/crewsight/foreman/internal/approval"
	"github.com/crewsight/foreman/internal/bus"
	"github.com/crewsight/foreman/internal/classifier"
	"github.com/crewsight/foreman/internal/contacts"
	"github.com/crewsight/foreman/internal/escalate"
	"github.com/crewsight/foreman/internal/event"
	"github.com/crewsight/foreman/internal/lexicon"
	slackfmt "github.com/crewsight/foreman/internal/slack"
	"github.com/crewsight/foreman/internal/strikes"
)

// Publisher is the outbound side of the event bus.
type Publisher interface {
	Publish(subject string, data any) error
}

// Notifier posts escalations and approval drafts to the review channel.
type Notifier interface {
	PostDirective(ctx context.Context, d classifier.Directive, out escalate.Outcome) (string, error)
	PostApprovalRequest(ctx context.Context, p approval.Pending) (string, error)
}

// Drafter produces reply text for client messages that need a response.
type Drafter interface {
	Draft(ctx context.Context, thread contacts.Thread, latest string) (string, error)
}

// Processor wires the pipeline together. Notifier and Drafter are optional:
// without them foreman logs decisions but posts nothing.
type Processor struct {
	classifier *classifier.Classifier
	tracker    *strikes.Tracker
	contacts   *contacts.Store
	gate       *approval.Gate
	lex        *lexicon.Lexicon
	pub        Publisher
	notifier   Notifier
	drafter    Drafter
	logger     *slog.Logger

	keys keyLock
	seen *dedupCache

	mu          sync.Mutex
	approvalTS  map[string]string // slack message TS → canonical contact
	lastArrival map[string]string // worker → date of last check-in

	statsMu sync.Mutex
	stats   Stats
}

// Stats are cheap counters surfaced by the operator API.
type Stats struct {
	ChatEvents     int `json:"chat_events"`
	ClientMessages int `json:"client_messages"`
	Duplicates     int `json:"duplicates_dropped"`
	Invalid        int `json:"invalid_events"`
	StrikesFlagged int `json:"strikes_flagged"`
	DraftsQueued   int `json:"drafts_queued"`
}

func New(
	cls *classifier.Classifier,
	tracker *strikes.Tracker,
	contactStore *contacts.Store,
	gate *approval.Gate,
	lex *lexicon.Lexicon,
	pub Publisher,
	notifier Notifier,
	drafter Drafter,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		classifier:  cls,
		tracker:     tracker,
		contacts:    contactStore,
		gate:        gate,
		lex:         lex,
		pub:         pub,
		notifier:    notifier,
		drafter:     drafter,
		logger:      logger,
		seen:        newDedupCache(0),
		approvalTS:  make(map[string]string),
		lastArrival: make(map[string]string),
	}
}

// HandleChatMessage is the bus handler for worker channel events.
func (p *Processor) HandleChatMessage(subject string, data []byte) {
	ctx := context.Background()

	evt, err := event.ParseChatMessage(data)
	if err != nil {
		// Malformed events degrade to a logged no-op directive, never a
		// crash and never a silent drop.
		p.logger.Warn("invalid chat event, flagging for manual review", "error", err)
		p.bumpInvalid()
		p.publish(bus.SubjectDirective, map[string]any{
			"task":            string(classifier.TaskOther),
			"action_required": string(classifier.ActionReviewOrLog),
			"confidence":      0.0,
			"payload":         map[string]any{"error": err.Error(), "raw": string(data)},
		})
		return
	}

	if p.seen.seen(eventKey(evt.SenderID, evt.Content, evt.Timestamp)) {
		p.logger.Info("duplicate chat event dropped", "sender", evt.SenderID)
		p.bumpDuplicate()
		return
	}

	mu := p.keys.lock(evt.SenderID)
	defer mu.Unlock()

	d := p.classifier.Classify(ctx, evt.Content, evt.SenderID, evt.At)

	// Pair checkouts with the day's check-in; an unpaired checkout is worth
	// a reviewer's glance.
	day := evt.At.Format("2006-01-02")
	p.mu.Lock()
	switch d.Task {
	case classifier.TaskCheckin:
		p.lastArrival[evt.SenderID] = day
	case classifier.TaskCheckout:
		if p.lastArrival[evt.SenderID] != day {
			d.Payload.MissingCheckin = true
		}
	}
	p.mu.Unlock()

	out := escalate.Evaluate(d)

	p.statsMu.Lock()
	p.stats.ChatEvents++
	if d.Payload.StrikeCount > 0 && d.Payload.StrikePillar != "" {
		p.stats.StrikesFlagged++
	}
	p.statsMu.Unlock()

	p.logger.Info("chat event processed",
		"worker", d.Payload.Worker,
		"task", string(d.Task),
		"action", string(out.Action),
		"state", string(out.State),
	)

	if d.Payload.StrikePillar != "" {
		p.publish(bus.SubjectStrikeRecorded, map[string]any{
			"worker":         d.Payload.Worker,
			"pillar":         string(d.Payload.StrikePillar),
			"active_count":   d.Payload.StrikeCount,
			"persist_failed": d.Payload.PersistFailed,
		})
	}

	p.publish(bus.SubjectDirective, map[string]any{
		"task":            string(d.Task),
		"action_required": string(d.ActionRequired),
		"confidence":      d.Confidence,
		"payload":         d.Payload,
		"escalation":      out,
	})

	if out.Notify() && p.notifier != nil {
		if _, err := p.notifier.PostDirective(ctx, d, out); err != nil {
			p.logger.Error("failed to post escalation", "worker", d.Payload.Worker, "error", err)
		}
	}
}

// HandleClientMessage is the bus handler for inbound client messages.
func (p *Processor) HandleClientMessage(subject string, data []byte) {
	ctx := context.Background()

	msg, err := event.ParseClientMessage(data)
	if err != nil {
		p.logger.Warn("invalid client message, flagging for manual review", "error", err)
		p.bumpInvalid()
		p.publish(bus.SubjectDirective, map[string]any{
			"task":            string(classifier.TaskOther),
			"action_required": string(classifier.ActionReviewOrLog),
			"confidence":      0.0,
			"payload":         map[string]any{"error": err.Error(), "raw": string(data)},
		})
		return
	}

	if p.seen.seen(eventKey(msg.Contact, msg.Body, msg.Timestamp)) {
		p.logger.Info("duplicate client message dropped", "contact", contacts.Canonicalize(msg.Contact))
		p.bumpDuplicate()
		return
	}

	key := contacts.Canonicalize(msg.Contact)
	mu := p.keys.lock(key)
	defer mu.Unlock()

	thread := p.contacts.Append(ctx, msg.Contact, contacts.Message{
		Direction: contacts.DirectionInbound,
		Body:      msg.Body,
		Channel:   msg.Source,
		At:        msg.At,
		RawSource: msg.Contact,
	})

	p.statsMu.Lock()
	p.stats.ClientMessages++
	p.statsMu.Unlock()

	needsReply := msg.RequiresResponse
	analysis := "upstream_analysis"
	if !needsReply {
		if m := p.lex.Classify(msg.Body); m.Category == lexicon.CategoryScheduleRequest {
			needsReply = true
			analysis = string(m.Category)
		}
	}
	if !needsReply {
		p.logger.Info("client message stored, no response needed", "contact", key, "stage", string(thread.Stage))
		return
	}

	draft := p.draft(ctx, thread, msg.Body)
	res := p.gate.Submit(key, draft, analysis)

	p.statsMu.Lock()
	p.stats.DraftsQueued++
	p.statsMu.Unlock()

	p.logger.Info("reply draft queued for approval",
		"contact", key,
		"analysis", analysis,
		"result", string(res),
	)

	// A superseded draft keeps the Slack message of the original; reviewers
	// see the latest text via the API either way.
	if res == approval.SubmitAccepted && p.notifier != nil {
		pending, ok := p.gate.PendingFor(key)
		if !ok {
			return
		}
		ts, err := p.notifier.PostApprovalRequest(ctx, pending)
		if err != nil {
			p.logger.Error("failed to post approval request", "contact", key, "error", err)
			return
		}
		p.mu.Lock()
		p.approvalTS[ts] = key
		p.mu.Unlock()
	}
}

// HandleBooked marks a contact's thread operational.
func (p *Processor) HandleBooked(subject string, data []byte) {
	ctx := context.Background()

	sig, err := event.ParseBookedSignal(data)
	if err != nil {
		p.logger.Warn("invalid booked signal", "error", err)
		return
	}

	key := contacts.Canonicalize(sig.Contact)
	mu := p.keys.lock(key)
	defer mu.Unlock()

	if p.contacts.MarkOperational(ctx, sig.Contact) {
		p.logger.Info("contact marked operational", "contact", key)
	}
}

// HandleReaction resolves a pending approval from a review-channel reaction.
func (p *Processor) HandleReaction(subject string, data []byte) {
	ctx := context.Background()

	evt, err := slackfmt.ParseReactionEvent(data)
	if err != nil {
		p.logger.Warn("invalid reaction event", "error", err)
		return
	}

	kind, ok := slackfmt.ParseReaction(evt.Reaction)
	if !ok {
		return // not a review reaction
	}

	p.mu.Lock()
	contact, ok := p.approvalTS[evt.MessageTS]
	if ok {
		delete(p.approvalTS, evt.MessageTS)
	}
	p.mu.Unlock()
	if !ok {
		return // not a message we're tracking
	}

	p.ResolveApproval(ctx, contact, approval.Decision{Kind: kind, ResolvedBy: evt.UserID})
}

// ResolveApproval applies a human decision for a contact. Also the backing
// for the API's resolve endpoint, which is how edited text comes in.
func (p *Processor) ResolveApproval(ctx context.Context, rawContact string, decision approval.Decision) (approval.FinalAction, bool) {
	key := contacts.Canonicalize(rawContact)
	mu := p.keys.lock(key)
	defer mu.Unlock()

	action, ok := p.gate.Resolve(ctx, key, decision)
	if !ok {
		return approval.FinalAction{}, false
	}

	if action.Deliver() {
		p.contacts.Append(ctx, key, contacts.Message{
			Direction: contacts.DirectionOutbound,
			Body:      action.Text,
			Channel:   "sms",
			At:        action.ResolvedAt,
		})
	}

	p.publish(bus.SubjectApprovalResolved, action)
	return action, true
}

// PendingApprovals exposes the gate's queue for the operator API.
func (p *Processor) PendingApprovals() []approval.Pending {
	return p.gate.Pending()
}

// ActiveStrikes exposes post-prune counts for the operator API.
func (p *Processor) ActiveStrikes(ctx context.Context, worker string) map[strikes.Pillar]int {
	mu := p.keys.lock(worker)
	defer mu.Unlock()
	return p.tracker.Active(ctx, worker)
}

// Snapshot returns a copy of the processing counters.
func (p *Processor) Snapshot() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

func (p *Processor) draft(ctx context.Context, thread contacts.Thread, latest string) string {
	if p.drafter == nil {
		return fmt.Sprintf("Thanks for your message! Our team will get back to you shortly about: %q", latest)
	}
	text, err := p.drafter.Draft(ctx, thread, latest)
	if err != nil {
		p.logger.Warn("draft generation failed, using fallback", "contact", thread.Contact, "error", err)
		return fmt.Sprintf("Thanks for your message! Our team will get back to you shortly about: %q", latest)
	}
	return text
}

// publish is fire-and-forget: a bus failure is logged, never allowed to
// stall the pipeline.
func (p *Processor) publish(subject string, data any) {
	if p.pub == nil {
		return
	}
	if err := p.pub.Publish(subject, data); err != nil {
		p.logger.Error("failed to publish", "subject", subject, "error", err)
	}
}

func (p *Processor) bumpInvalid() {
	p.statsMu.Lock()
	p.stats.Invalid++
	p.statsMu.Unlock()
}

func (p *Processor) bumpDuplicate() {
	p.statsMu.Lock()
	p.stats.Duplicates++
	p.statsMu.Unlock()
}
