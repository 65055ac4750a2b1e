// Package event defines the typed inbound event model shared by the
// transport collaborators. Payloads arrive as JSON over the bus and are
// validated at this boundary; everything past it works with parsed types.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ChatMessage is a raw worker-channel event from the chat transport.
type ChatMessage struct {
	Content   string `json:"content" validate:"required"`
	SenderID  string `json:"sender_id" validate:"required"`
	Channel   string `json:"channel"`
	Timestamp string `json:"timestamp" validate:"required"`

	// At is the parsed Timestamp, populated by ParseChatMessage.
	At time.Time `json:"-"`
}

// ClientMessage is an inbound client message from the mail/CRM collaborator.
type ClientMessage struct {
	Contact   string `json:"client_contact" validate:"required"`
	Body      string `json:"body" validate:"required"`
	Timestamp string `json:"timestamp" validate:"required"`
	Source    string `json:"source"`

	// RequiresResponse is asserted by upstream analysis when the message
	// needs a drafted reply regardless of lexicon hits.
	RequiresResponse bool `json:"requires_response"`

	At time.Time `json:"-"`
}

// BookedSignal marks a contact's conversation as operational.
type BookedSignal struct {
	Contact string `json:"client_contact" validate:"required"`
}

// ParseChatMessage unmarshals, validates, and timestamps a chat event.
func ParseChatMessage(data []byte) (*ChatMessage, error) {
	var m ChatMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse chat message: %w", err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("validate chat message: %w", err)
	}
	at, err := parseTimestamp(m.Timestamp)
	if err != nil {
		return nil, err
	}
	m.At = at
	return &m, nil
}

// ParseClientMessage unmarshals, validates, and timestamps a client message.
func ParseClientMessage(data []byte) (*ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse client message: %w", err)
	}
	if err := validate.Struct(&m); err != nil {
		return nil, fmt.Errorf("validate client message: %w", err)
	}
	at, err := parseTimestamp(m.Timestamp)
	if err != nil {
		return nil, err
	}
	m.At = at
	return &m, nil
}

// ParseBookedSignal unmarshals and validates a booking-confirmed signal.
func ParseBookedSignal(data []byte) (*BookedSignal, error) {
	var s BookedSignal
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse booked signal: %w", err)
	}
	if err := validate.Struct(&s); err != nil {
		return nil, fmt.Errorf("validate booked signal: %w", err)
	}
	return &s, nil
}

func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
