package memory

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("conversation not found")

// Conversation is the transcript record for one client session. It is
// created with empty texts when the upstream session is configured and
// filled in as transcripts arrive.
type Conversation struct {
	ID               string    `json:"id"`
	AssistantID      string    `json:"assistant_id"`
	SessionID        string    `json:"session_id"`
	UserMessage      string    `json:"user_message"`
	AssistantMessage string    `json:"assistant_message"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Store persists conversation records. The relay only creates, reads and
// updates; records are never deleted here.
type Store interface {
	CreateConversation(ctx context.Context, assistantID, sessionID string) (Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	SetUserMessage(ctx context.Context, id, text string) error
	SetAssistantMessage(ctx context.Context, id, text string) error
	Ping(ctx context.Context) error
	Close() error
}
