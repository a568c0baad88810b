package memory

import (
	"context"
	"strings"
)

// NewStore picks a backend from the database URL: empty for in-memory,
// postgres:// or postgresql:// for Postgres, sqlite: or file: for SQLite.
func NewStore(ctx context.Context, databaseURL string) (Store, error) {
	u := strings.TrimSpace(databaseURL)
	switch {
	case u == "":
		return NewInMemoryStore(), nil
	case strings.HasPrefix(u, "sqlite:"):
		return NewSQLiteStore(ctx, strings.TrimPrefix(u, "sqlite:"))
	case strings.HasPrefix(u, "file:"):
		return NewSQLiteStore(ctx, u)
	default:
		return NewPostgresStore(ctx, u)
	}
}
