package slack

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/crewsight/foreman/internal/approval"
	"github.com/crewsight/foreman/internal/classifier"
	"github.com/crewsight/foreman/internal/escalate"
	"github.com/crewsight/foreman/internal/strikes"
)

func TestParseReaction(t *testing.T) {
	tests := []struct {
		name     string
		reaction string
		want     approval.DecisionKind
		ok       bool
	}{
		{"thumbsup", "+1", approval.DecisionApprove, true},
		{"thumbsup alt", "thumbsup", approval.DecisionApprove, true},
		{"check mark", "white_check_mark", approval.DecisionApprove, true},
		{"thumbsdown", "-1", approval.DecisionReject, true},
		{"thumbsdown alt", "thumbsdown", approval.DecisionReject, true},
		{"x", "x", approval.DecisionReject, true},
		{"unrelated reaction", "heart", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseReaction(tt.reaction)
			if ok != tt.ok {
				t.Fatalf("ParseReaction(%q) ok = %v, want %v", tt.reaction, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("ParseReaction(%q) = %q, want %q", tt.reaction, got, tt.want)
			}
		})
	}
}

func TestParseReactionEvent(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"metadata": map[string]string{
			"text":       ":+1:",
			"user_id":    "U123",
			"channel_id": "C456",
			"message_ts": "1700000000.000100",
		},
	})

	evt, err := ParseReactionEvent(payload)
	if err != nil {
		t.Fatalf("ParseReactionEvent failed: %v", err)
	}
	if evt.Reaction != "+1" {
		t.Errorf("expected colons stripped, got %q", evt.Reaction)
	}
	if evt.MessageTS != "1700000000.000100" {
		t.Errorf("unexpected ts %q", evt.MessageTS)
	}
}

func TestParseReactionEvent_Malformed(t *testing.T) {
	if _, err := ParseReactionEvent([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestFormatDirective(t *testing.T) {
	d := classifier.Directive{
		Task:           classifier.TaskCheckin,
		ActionRequired: classifier.ActionFlagLate,
		Payload: classifier.Payload{
			Worker:       "maria",
			Notes:        "parking is tight",
			StrikePillar: strikes.PillarPunctuality,
			StrikeCount:  2,
		},
	}
	out := escalate.Evaluate(d)

	text := FormatDirective(d, out)
	if !containsAll(text, "Escalation", "maria", "parking is tight") {
		t.Errorf("unexpected directive text:\n%s", text)
	}
}

func TestFormatDirective_PersistFailureFlagged(t *testing.T) {
	d := classifier.Directive{
		Task: classifier.TaskQuality,
		Payload: classifier.Payload{
			Worker:        "jon",
			Body:          "complaint about gate",
			StrikePillar:  strikes.PillarQuality,
			StrikeCount:   1,
			PersistFailed: true,
		},
	}
	text := FormatDirective(d, escalate.Evaluate(d))
	if !containsAll(text, "not persisted") {
		t.Errorf("expected persistence warning in text:\n%s", text)
	}
}

func TestFormatApprovalRequest(t *testing.T) {
	p := approval.Pending{
		Contact:  "16125551234",
		Draft:    "We can do Friday at 2pm.",
		Analysis: "schedule_request",
	}
	text := FormatApprovalRequest(p)
	if !containsAll(text, "16125551234", "Friday at 2pm", "schedule_request") {
		t.Errorf("unexpected approval text:\n%s", text)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
