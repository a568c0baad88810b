package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists conversations in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable sqlite WAL: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			assistant_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			user_message TEXT NOT NULL DEFAULT '',
			assistant_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_assistant_created ON conversations (assistant_id, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *SQLiteStore) CreateConversation(ctx context.Context, assistantID, sessionID string) (Conversation, error) {
	now := time.Now().UTC()
	c := Conversation{
		ID:          uuid.NewString(),
		AssistantID: assistantID,
		SessionID:   sessionID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, assistant_id, session_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.AssistantID, c.SessionID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	err := s.db.QueryRowContext(ctx,
		`SELECT id, assistant_id, session_id, user_message, assistant_message, created_at, updated_at
		 FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &c.AssistantID, &c.SessionID, &c.UserMessage, &c.AssistantMessage, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) SetUserMessage(ctx context.Context, id, text string) error {
	return s.setColumn(ctx, `UPDATE conversations SET user_message = ?, updated_at = ? WHERE id = ?`, id, text)
}

func (s *SQLiteStore) SetAssistantMessage(ctx context.Context, id, text string) error {
	return s.setColumn(ctx, `UPDATE conversations SET assistant_message = ?, updated_at = ? WHERE id = ?`, id, text)
}

func (s *SQLiteStore) setColumn(ctx context.Context, stmt, id, text string) error {
	res, err := s.db.ExecContext(ctx, stmt, text, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
