// Package drafter produces reply drafts for client messages that need a
// response. Drafts are never sent directly; they enter the approval gate.
package drafter

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/crewsight/foreman/internal/contacts"
)

const systemPrompt = `You draft short, friendly SMS replies for a field-service company.
You are given the recent conversation with a client and their latest message.
Reply with ONLY the message text to send. Keep it under 300 characters.
Never promise a specific time slot; offer to confirm scheduling instead.`

const maxContextMessages = 10

// Anthropic drafts replies with the Anthropic API.
type Anthropic struct {
	client anthropic.Client
	model  string
}

func NewAnthropic(apiKey, model string) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Draft produces a reply to the latest inbound message given the thread
// context.
func (a *Anthropic) Draft(ctx context.Context, thread contacts.Thread, latest string) (string, error) {
	prompt := buildPrompt(thread, latest)

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 512,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic draft: %w", err)
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", fmt.Errorf("no text content in draft response")
}

func buildPrompt(thread contacts.Thread, latest string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Pipeline stage: %s\n", thread.Stage)

	msgs := thread.Messages
	if len(msgs) > maxContextMessages {
		msgs = msgs[len(msgs)-maxContextMessages:]
	}
	if len(msgs) > 0 {
		sb.WriteString("Recent conversation:\n")
		for _, m := range msgs {
			who := "Client"
			if m.Direction == contacts.DirectionOutbound {
				who = "Us"
			}
			fmt.Fprintf(&sb, "%s: %s\n", who, m.Body)
		}
	}

	fmt.Fprintf(&sb, "\nLatest client message:\n%s\n", latest)
	return sb.String()
}

// Template is a fallback Drafter used when no API key is configured. It
// produces a generic acknowledgement so the approval flow still works.
type Template struct{}

func (Template) Draft(_ context.Context, _ contacts.Thread, _ string) (string, error) {
	return "Thanks for reaching out! We got your message and someone from our team will confirm the details with you shortly.", nil
}
