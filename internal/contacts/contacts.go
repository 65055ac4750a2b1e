// Package contacts maintains per-contact conversation threads used to give
// classification and reply drafting temporal context. All representations of
// the same physical contact collapse to one canonical key.
package contacts

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Stage is where a contact sits in the sales pipeline.
type Stage string

const (
	StagePreSale     Stage = "pre-sale"
	StageOperational Stage = "operational"
)

// Direction of a message relative to the business.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Message is one entry in a conversation thread. Immutable once appended.
type Message struct {
	Direction Direction `json:"direction"`
	Body      string    `json:"body"`
	Channel   string    `json:"channel"`
	At        time.Time `json:"at"`
	RawSource string    `json:"raw_source"`
}

// Thread is the ordered conversation history for one canonical contact.
type Thread struct {
	Contact      string    `json:"contact"`
	Messages     []Message `json:"messages"`
	LastActivity time.Time `json:"last_activity"`
	Stage        Stage     `json:"stage"`
}

// ThreadStore is the persistence collaborator for threads. Failures degrade:
// an unreadable thread recovers to an empty one and write errors are logged,
// never returned to the pipeline.
type ThreadStore interface {
	LoadThread(ctx context.Context, contact string) (*Thread, error)
	SaveThread(ctx context.Context, thread *Thread) error
}

// Canonicalize collapses raw contact identities to one stable key. Email
// addresses are lowercased. Phone numbers are stripped to digits; ten-digit
// numbers get the North American country prefix so "(612) 555-1234" and
// "+16125551234" resolve to the same thread.
func Canonicalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.Contains(trimmed, "@") {
		return strings.ToLower(trimmed)
	}

	var digits strings.Builder
	for _, r := range trimmed {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case len(d) == 10:
		return "1" + d
	case len(d) == 0:
		return strings.ToLower(trimmed)
	default:
		return d
	}
}

// Store holds conversation threads keyed by canonical contact identity.
type Store struct {
	mu      sync.Mutex
	threads map[string]*Thread
	loaded  map[string]bool
	persist ThreadStore
	logger  *slog.Logger
}

func NewStore(persist ThreadStore, logger *slog.Logger) *Store {
	return &Store{
		threads: make(map[string]*Thread),
		loaded:  make(map[string]bool),
		persist: persist,
		logger:  logger,
	}
}

// Append adds a message to the contact's thread in arrival order and returns
// a snapshot of the thread. No de-duplication happens at this layer; the
// caller guards against redelivery.
func (s *Store) Append(ctx context.Context, rawContact string, msg Message) Thread {
	key := Canonicalize(rawContact)

	s.mu.Lock()
	defer s.mu.Unlock()

	th := s.load(ctx, key)
	th.Messages = append(th.Messages, msg)
	if msg.At.After(th.LastActivity) {
		th.LastActivity = msg.At
	}
	s.save(ctx, th)
	return snapshot(th)
}

// Thread returns a snapshot of the contact's thread and whether one exists.
func (s *Store) Thread(ctx context.Context, rawContact string) (Thread, bool) {
	key := Canonicalize(rawContact)

	s.mu.Lock()
	defer s.mu.Unlock()

	th := s.load(ctx, key)
	// A booked signal can arrive before the first message; a non-default
	// stage means the thread exists even with no activity yet.
	if len(th.Messages) == 0 && th.LastActivity.IsZero() && th.Stage == StagePreSale {
		return Thread{}, false
	}
	return snapshot(th), true
}

// MarkOperational transitions a thread from pre-sale to operational. The
// transition happens at most once; an operational thread never reverts.
// Returns whether the call changed the stage.
func (s *Store) MarkOperational(ctx context.Context, rawContact string) bool {
	key := Canonicalize(rawContact)

	s.mu.Lock()
	defer s.mu.Unlock()

	th := s.load(ctx, key)
	if th.Stage == StageOperational {
		return false
	}
	th.Stage = StageOperational
	s.save(ctx, th)
	return true
}

func (s *Store) load(ctx context.Context, key string) *Thread {
	if th, ok := s.threads[key]; ok {
		return th
	}

	var th *Thread
	if s.persist != nil && !s.loaded[key] {
		loaded, err := s.persist.LoadThread(ctx, key)
		if err != nil {
			s.logger.Warn("thread unreadable, recovering to empty", "contact", key, "error", err)
		} else {
			th = loaded
		}
	}
	if th == nil {
		th = &Thread{Contact: key, Stage: StagePreSale}
	}
	s.threads[key] = th
	s.loaded[key] = true
	return th
}

func (s *Store) save(ctx context.Context, th *Thread) {
	if s.persist == nil {
		return
	}
	if err := s.persist.SaveThread(ctx, th); err != nil {
		s.logger.Warn("failed to persist thread", "contact", th.Contact, "error", err)
	}
}

func snapshot(th *Thread) Thread {
	out := *th
	out.Messages = append([]Message(nil), th.Messages...)
	return out
}

// MemoryThreadStore is an in-process ThreadStore for tests and database-less
// runs.
type MemoryThreadStore struct {
	mu   sync.Mutex
	data map[string]Thread
}

func NewMemoryThreadStore() *MemoryThreadStore {
	return &MemoryThreadStore{data: make(map[string]Thread)}
}

func (m *MemoryThreadStore) LoadThread(_ context.Context, contact string) (*Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	th, ok := m.data[contact]
	if !ok {
		return nil, nil
	}
	out := snapshot(&th)
	return &out, nil
}

func (m *MemoryThreadStore) SaveThread(_ context.Context, thread *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[thread.Contact] = snapshot(thread)
	return nil
}
