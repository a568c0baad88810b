package memory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversations in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Pool exposes the connection pool so other Postgres-backed components can
// share it.
func (s *PostgresStore) Pool() *pgxpool.Pool { return s.pool }

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			assistant_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			user_message TEXT NOT NULL DEFAULT '',
			assistant_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversations_assistant_created ON conversations (assistant_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) CreateConversation(ctx context.Context, assistantID, sessionID string) (Conversation, error) {
	now := time.Now().UTC()
	c := Conversation{
		ID:          uuid.NewString(),
		AssistantID: assistantID,
		SessionID:   sessionID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (id, assistant_id, session_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.AssistantID, c.SessionID, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return Conversation{}, fmt.Errorf("create conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	var c Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, assistant_id, session_id, user_message, assistant_message, created_at, updated_at
		 FROM conversations WHERE id = $1`, id,
	).Scan(&c.ID, &c.AssistantID, &c.SessionID, &c.UserMessage, &c.AssistantMessage, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) SetUserMessage(ctx context.Context, id, text string) error {
	return s.setColumn(ctx, `UPDATE conversations SET user_message = $2, updated_at = now() WHERE id = $1`, id, text)
}

func (s *PostgresStore) SetAssistantMessage(ctx context.Context, id, text string) error {
	return s.setColumn(ctx, `UPDATE conversations SET assistant_message = $2, updated_at = now() WHERE id = $1`, id, text)
}

func (s *PostgresStore) setColumn(ctx context.Context, stmt, id, text string) error {
	tag, err := s.pool.Exec(ctx, stmt, id, text)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
