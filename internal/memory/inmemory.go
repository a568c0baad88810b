package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps conversations in process for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Conversation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Conversation)}
}

func (s *InMemoryStore) CreateConversation(_ context.Context, assistantID, sessionID string) (Conversation, error) {
	now := time.Now().UTC()
	c := Conversation{
		ID:          uuid.NewString(),
		AssistantID: assistantID,
		SessionID:   sessionID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.mu.Lock()
	s.records[c.ID] = c
	s.mu.Unlock()
	return c, nil
}

func (s *InMemoryStore) GetConversation(_ context.Context, id string) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.records[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return c, nil
}

func (s *InMemoryStore) SetUserMessage(_ context.Context, id, text string) error {
	return s.update(id, func(c *Conversation) { c.UserMessage = text })
}

func (s *InMemoryStore) SetAssistantMessage(_ context.Context, id, text string) error {
	return s.update(id, func(c *Conversation) { c.AssistantMessage = text })
}

func (s *InMemoryStore) update(id string, fn func(*Conversation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	fn(&c)
	c.UpdatedAt = time.Now().UTC()
	s.records[id] = c
	return nil
}

func (s *InMemoryStore) Ping(context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
