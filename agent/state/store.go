package state

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/PolicyPilot/agent/contract"
)

// Store is the persistence contract used by the orchestrator.
type Store interface {
	// Get returns the thread's state, or a fresh empty state on first use.
	Get(ctx context.Context, threadID string) (*ConversationState, error)
	// Append adds msgs and records route in a single atomic write. An empty
	// route leaves the stored one untouched.
	Append(ctx context.Context, threadID string, route contractx.RouteLabel, msgs ...*schema.Message) error
	Delete(ctx context.Context, threadID string) error
}

type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*ConversationState
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threads: make(map[string]*ConversationState),
		now:     time.Now,
	}
}

func (s *MemoryStore) Get(_ context.Context, threadID string) (*ConversationState, error) {
	id, err := validateThread(threadID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if st, ok := s.threads[id]; ok {
		return st.Clone(), nil
	}
	return NewConversationState(id, s.now()), nil
}

func (s *MemoryStore) Append(_ context.Context, threadID string, route contractx.RouteLabel, msgs ...*schema.Message) error {
	id, err := validateThread(threadID)
	if err != nil {
		return err
	}
	records, err := toRecords(msgs)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	st, ok := s.threads[id]
	if !ok {
		st = NewConversationState(id, now)
		s.threads[id] = st
	}
	for _, rec := range records {
		st.Messages = append(st.Messages, rec.message())
	}
	if route != "" {
		st.NextRoute = route
	}
	st.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, threadID string) error {
	id, err := validateThread(threadID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, id)
	return nil
}
