package assistant

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresResolver reads assistants from the application's assistants
// table.
type PostgresResolver struct {
	pool *pgxpool.Pool
}

func NewPostgresResolver(ctx context.Context, pool *pgxpool.Pool) (*PostgresResolver, error) {
	r := &PostgresResolver{pool: pool}
	if err := r.initSchema(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *PostgresResolver) initSchema(ctx context.Context) error {
	const stmt = `CREATE TABLE IF NOT EXISTS assistants (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		voice TEXT NOT NULL DEFAULT '',
		system_prompt TEXT NOT NULL DEFAULT '',
		functions TEXT[] NOT NULL DEFAULT '{}',
		api_key TEXT NOT NULL DEFAULT '',
		is_public BOOLEAN NOT NULL DEFAULT FALSE,
		google_sheet_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := r.pool.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("init assistants schema: %w", err)
	}
	return nil
}

const selectAssistant = `SELECT id, name, voice, system_prompt, functions, api_key, is_public, google_sheet_id, created_at FROM assistants`

func (r *PostgresResolver) Get(ctx context.Context, id string) (Config, error) {
	row := r.pool.QueryRow(ctx, selectAssistant+` WHERE id = $1`, id)
	cfg, err := scanAssistant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Config{}, ErrNotFound
	}
	if err != nil {
		return Config{}, fmt.Errorf("get assistant %q: %w", id, err)
	}
	return cfg, nil
}

func (r *PostgresResolver) List(ctx context.Context) ([]Config, error) {
	rows, err := r.pool.Query(ctx, selectAssistant+` ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list assistants: %w", err)
	}
	defer rows.Close()

	var out []Config
	for rows.Next() {
		cfg, err := scanAssistant(rows)
		if err != nil {
			return nil, fmt.Errorf("list assistants: %w", err)
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

func scanAssistant(row pgx.Row) (Config, error) {
	var cfg Config
	err := row.Scan(
		&cfg.ID,
		&cfg.Name,
		&cfg.Voice,
		&cfg.SystemPrompt,
		&cfg.Functions,
		&cfg.APIKey,
		&cfg.Public,
		&cfg.SheetID,
		&cfg.CreatedAt,
	)
	return cfg, err
}
