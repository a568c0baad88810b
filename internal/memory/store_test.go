package memory

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryStoreLifecycle(t *testing.T) {
	exerciseStore(t, NewInMemoryStore())
}

func TestSQLiteStoreLifecycle(t *testing.T) {
	s, err := NewSQLiteStore(context.Background(), "file:conversations1?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestNewStoreSelectsBackend(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(ctx, "")
	if err != nil {
		t.Fatalf("NewStore(\"\") error = %v", err)
	}
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("NewStore(\"\") = %T, want *InMemoryStore", s)
	}

	s, err = NewStore(ctx, "sqlite:file:conversations2?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("NewStore(sqlite) error = %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Fatalf("NewStore(sqlite) = %T, want *SQLiteStore", s)
	}
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	c, err := s.CreateConversation(ctx, "asst-1", "client-1")
	if err != nil {
		t.Fatalf("CreateConversation() error = %v", err)
	}
	if c.ID == "" || c.UserMessage != "" || c.AssistantMessage != "" {
		t.Fatalf("new conversation = %+v, want id and empty texts", c)
	}

	if err := s.SetUserMessage(ctx, c.ID, "hello"); err != nil {
		t.Fatalf("SetUserMessage() error = %v", err)
	}
	if err := s.SetAssistantMessage(ctx, c.ID, "hi there"); err != nil {
		t.Fatalf("SetAssistantMessage() error = %v", err)
	}

	got, err := s.GetConversation(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetConversation() error = %v", err)
	}
	if got.UserMessage != "hello" || got.AssistantMessage != "hi there" {
		t.Fatalf("conversation texts = (%q, %q)", got.UserMessage, got.AssistantMessage)
	}
	if got.AssistantID != "asst-1" || got.SessionID != "client-1" {
		t.Fatalf("conversation keys = (%q, %q)", got.AssistantID, got.SessionID)
	}

	if _, err := s.GetConversation(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetConversation(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.SetUserMessage(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("SetUserMessage(missing) error = %v, want ErrNotFound", err)
	}
	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
}
