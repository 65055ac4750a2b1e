package slack

import (
	"encoding/json"
	"fmt"

	"github.com/crewsight/foreman/internal/approval"
)

// ReactionEvent is the structure received from the slack forwarder via NATS.
type ReactionEvent struct {
	Reaction  string `json:"reaction"`
	UserID    string `json:"user_id"`
	Channel   string `json:"channel"`
	MessageTS string `json:"message_ts"`
}

// ParseReaction maps a reaction emoji name to an approval decision. Returns
// ok=false for reactions that are not review verdicts.
func ParseReaction(reaction string) (approval.DecisionKind, bool) {
	switch reaction {
	case "+1", "thumbsup", "white_check_mark":
		return approval.DecisionApprove, true
	case "-1", "thumbsdown", "x":
		return approval.DecisionReject, true
	default:
		return "", false
	}
}

// ParseReactionEvent parses a forwarder payload into a ReactionEvent. The
// forwarder wraps event fields in a metadata map.
func ParseReactionEvent(data []byte) (*ReactionEvent, error) {
	var wrapper struct {
		Metadata map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("parse reaction wrapper: %w", err)
	}

	evt := &ReactionEvent{
		Reaction:  wrapper.Metadata["text"],
		UserID:    wrapper.Metadata["user_id"],
		Channel:   wrapper.Metadata["channel_id"],
		MessageTS: wrapper.Metadata["message_ts"],
	}

	// Reaction names sometimes arrive wrapped in colons.
	if len(evt.Reaction) > 2 && evt.Reaction[0] == ':' && evt.Reaction[len(evt.Reaction)-1] == ':' {
		evt.Reaction = evt.Reaction[1 : len(evt.Reaction)-1]
	}

	return evt, nil
}
