package drafter

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/crewsight/foreman/internal/contacts"
)

func TestBuildPrompt(t *testing.T) {
	thread := contacts.Thread{
		Contact: "16125551234",
		Stage:   contacts.StageOperational,
		Messages: []contacts.Message{
			{Direction: contacts.DirectionInbound, Body: "how much for a deep clean?", At: time.Now()},
			{Direction: contacts.DirectionOutbound, Body: "Deep cleans start at $180.", At: time.Now()},
		},
	}

	prompt := buildPrompt(thread, "can we reschedule to Friday")

	for _, want := range []string{
		"operational",
		"Client: how much for a deep clean?",
		"Us: Deep cleans start at $180.",
		"can we reschedule to Friday",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPrompt_TruncatesLongThreads(t *testing.T) {
	thread := contacts.Thread{Contact: "16125551234", Stage: contacts.StagePreSale}
	for i := 0; i < 25; i++ {
		thread.Messages = append(thread.Messages, contacts.Message{
			Direction: contacts.DirectionInbound,
			Body:      "msg-" + string(rune('a'+i)),
		})
	}

	prompt := buildPrompt(thread, "latest")
	if strings.Contains(prompt, "msg-a") {
		t.Error("expected oldest messages truncated from the prompt")
	}
	if !strings.Contains(prompt, "msg-"+string(rune('a'+24))) {
		t.Error("expected newest message retained")
	}
}

func TestTemplateDrafter(t *testing.T) {
	text, err := Template{}.Draft(context.Background(), contacts.Thread{}, "anything")
	if err != nil {
		t.Fatalf("Template.Draft failed: %v", err)
	}
	if text == "" {
		t.Error("expected non-empty fallback draft")
	}
}
