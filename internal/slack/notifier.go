// Package slack posts escalation directives and approval drafts to the
// review channel and maps reaction feedback back to approval decisions. The
// pipeline depends only on interfaces; this is the one package that touches
// the Slack SDK.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/slack-go/slack"

	"github.com/crewsight/foreman/internal/approval"
	"github.com/crewsight/foreman/internal/classifier"
	"github.com/crewsight/foreman/internal/escalate"
)

type Notifier struct {
	client  *slack.Client
	channel string
	logger  *slog.Logger
}

func NewNotifier(token, channel string, logger *slog.Logger) *Notifier {
	return &Notifier{
		client:  slack.New(token),
		channel: channel,
		logger:  logger,
	}
}

// PostDirective posts an escalation outcome to the review channel. Returns
// the message timestamp for thread replies.
func (n *Notifier) PostDirective(ctx context.Context, d classifier.Directive, out escalate.Outcome) (string, error) {
	text := FormatDirective(d, out)
	_, ts, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(text, false),
	)
	if err != nil {
		return "", fmt.Errorf("post directive: %w", err)
	}
	n.logger.Info("posted escalation to slack", "ts", ts, "worker", d.Payload.Worker, "action", string(out.Action))
	return ts, nil
}

// PostApprovalRequest posts a drafted reply for human review. The returned
// timestamp keys the reaction that resolves it.
func (n *Notifier) PostApprovalRequest(ctx context.Context, p approval.Pending) (string, error) {
	text := FormatApprovalRequest(p)
	_, ts, err := n.client.PostMessageContext(ctx, n.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(
			slack.NewSectionBlock(
				slack.NewTextBlockObject(slack.MarkdownType, text, false, false),
				nil, nil,
			),
			slack.NewContextBlock("",
				slack.NewTextBlockObject(slack.MarkdownType,
					"React: :+1: send | :-1: discard — or edit via the API", false, false),
			),
		),
	)
	if err != nil {
		return "", fmt.Errorf("post approval request: %w", err)
	}
	n.logger.Info("posted approval request to slack", "ts", ts, "contact", p.Contact)
	return ts, nil
}

// PostDigest posts the daily summary text.
func (n *Notifier) PostDigest(ctx context.Context, text string) error {
	_, _, err := n.client.PostMessageContext(ctx, n.channel, slack.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("post digest: %w", err)
	}
	return nil
}

// FormatDirective renders an escalation outcome for the channel.
func FormatDirective(d classifier.Directive, out escalate.Outcome) string {
	var sb strings.Builder

	switch out.Action {
	case escalate.ActionIntervene:
		sb.WriteString("🚨 *Intervention recommended*\n")
	case escalate.ActionNotifyLead:
		sb.WriteString("⚠️ *Escalation*\n")
	default:
		sb.WriteString("*Review*\n")
	}

	fmt.Fprintf(&sb, "%s\n", out.Summary)
	if d.Payload.Notes != "" {
		fmt.Fprintf(&sb, "> %s\n", d.Payload.Notes)
	}
	if d.Payload.Body != "" && d.Payload.Notes == "" {
		fmt.Fprintf(&sb, "> %s\n", d.Payload.Body)
	}
	if d.Payload.PersistFailed {
		sb.WriteString("_strike not persisted — storage write failed_\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatApprovalRequest renders a pending draft for review.
func FormatApprovalRequest(p approval.Pending) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*Draft reply for %s* (%s)\n", p.Contact, p.Analysis)
	fmt.Fprintf(&sb, "> %s", p.Draft)
	return sb.String()
}
