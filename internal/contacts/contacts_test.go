package contacts

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"formatted us number", "(612) 555-1234", "16125551234"},
		{"dashed us number", "612-555-1234", "16125551234"},
		{"e164", "+16125551234", "16125551234"},
		{"dotted", "612.555.1234", "16125551234"},
		{"already 11 digits", "16125551234", "16125551234"},
		{"email lowercased", "Maria.Lopez@Example.com", "maria.lopez@example.com"},
		{"whitespace trimmed", "  +1 612 555 1234  ", "16125551234"},
		{"non-nanp kept as digits", "+442071234567", "442071234567"},
		{"no digits falls back", "Front Desk", "front desk"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonicalize(tt.raw); got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestAppend_RepresentationsShareOneThread(t *testing.T) {
	s := NewStore(NewMemoryThreadStore(), discardLogger())
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)

	s.Append(ctx, "(612) 555-1234", Message{Direction: DirectionInbound, Body: "hi", At: at})
	s.Append(ctx, "612-555-1234", Message{Direction: DirectionInbound, Body: "anyone there?", At: at.Add(time.Minute)})
	th := s.Append(ctx, "+16125551234", Message{Direction: DirectionOutbound, Body: "yes!", At: at.Add(2 * time.Minute)})

	if th.Contact != "16125551234" {
		t.Errorf("unexpected canonical contact %q", th.Contact)
	}
	if len(th.Messages) != 3 {
		t.Fatalf("expected one thread with 3 messages, got %d", len(th.Messages))
	}
	if th.Messages[0].Body != "hi" || th.Messages[2].Body != "yes!" {
		t.Error("messages out of arrival order")
	}
	if !th.LastActivity.Equal(at.Add(2 * time.Minute)) {
		t.Errorf("unexpected last activity %s", th.LastActivity)
	}
}

func TestThread_MissingContact(t *testing.T) {
	s := NewStore(NewMemoryThreadStore(), discardLogger())

	if _, ok := s.Thread(context.Background(), "+16125550000"); ok {
		t.Error("expected no thread for unknown contact")
	}
}

func TestMarkOperational_TransitionsOnce(t *testing.T) {
	s := NewStore(NewMemoryThreadStore(), discardLogger())
	ctx := context.Background()

	s.Append(ctx, "+16125551234", Message{Direction: DirectionInbound, Body: "hi", At: time.Now()})

	if !s.MarkOperational(ctx, "(612) 555-1234") {
		t.Error("expected first transition to report a change")
	}
	if s.MarkOperational(ctx, "+16125551234") {
		t.Error("expected second transition to be a no-op")
	}

	th, ok := s.Thread(ctx, "612-555-1234")
	if !ok {
		t.Fatal("expected thread")
	}
	if th.Stage != StageOperational {
		t.Errorf("expected operational stage, got %q", th.Stage)
	}
}

// A booked signal can land before the contact's first message; the thread
// must be visible afterwards so the stage is not lost to lookups.
func TestThread_ExistsAfterMarkOperationalAlone(t *testing.T) {
	s := NewStore(NewMemoryThreadStore(), discardLogger())
	ctx := context.Background()

	if !s.MarkOperational(ctx, "+16125551234") {
		t.Fatal("expected transition to report a change")
	}

	th, ok := s.Thread(ctx, "(612) 555-1234")
	if !ok {
		t.Fatal("expected thread to exist after booked signal with no messages")
	}
	if th.Stage != StageOperational {
		t.Errorf("expected operational stage, got %q", th.Stage)
	}
	if len(th.Messages) != 0 {
		t.Errorf("expected no messages, got %d", len(th.Messages))
	}
}

func TestStore_NewThreadStartsPreSale(t *testing.T) {
	s := NewStore(NewMemoryThreadStore(), discardLogger())

	th := s.Append(context.Background(), "+16125551234", Message{Direction: DirectionInbound, Body: "quote?", At: time.Now()})
	if th.Stage != StagePreSale {
		t.Errorf("expected pre-sale stage, got %q", th.Stage)
	}
}

func TestStore_UnreadablePersistenceRecovers(t *testing.T) {
	s := NewStore(failingThreadStore{}, discardLogger())
	ctx := context.Background()

	th := s.Append(ctx, "+16125551234", Message{Direction: DirectionInbound, Body: "hi", At: time.Now()})
	if len(th.Messages) != 1 {
		t.Errorf("expected append to succeed against failing store, got %d messages", len(th.Messages))
	}
}

func TestStore_ReloadsPersistedThread(t *testing.T) {
	persist := NewMemoryThreadStore()
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	first := NewStore(persist, discardLogger())
	first.Append(ctx, "+16125551234", Message{Direction: DirectionInbound, Body: "hi", At: at})
	first.MarkOperational(ctx, "+16125551234")

	second := NewStore(persist, discardLogger())
	th, ok := second.Thread(ctx, "(612) 555-1234")
	if !ok {
		t.Fatal("expected persisted thread to load")
	}
	if len(th.Messages) != 1 || th.Stage != StageOperational {
		t.Errorf("unexpected reloaded thread %+v", th)
	}
}

type failingThreadStore struct{}

func (failingThreadStore) LoadThread(context.Context, string) (*Thread, error) {
	return nil, errors.New("corrupt state")
}

func (failingThreadStore) SaveThread(context.Context, *Thread) error {
	return errors.New("disk full")
}
