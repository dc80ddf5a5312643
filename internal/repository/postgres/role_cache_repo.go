// internal/repository/postgres/role_cache_repo.go
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RoleCacheRepository is a durable role cache for clients that share a
// database, e.g. an operator console next to the web front end
type RoleCacheRepository struct {
	db *pgxpool.Pool
}

func NewRoleCacheRepository(db *pgxpool.Pool) *RoleCacheRepository {
	return &RoleCacheRepository{db: db}
}

// EnsureSchema creates the backing table if it does not exist
func (r *RoleCacheRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS auth_role_cache (
			cache_key  TEXT PRIMARY KEY,
			value      JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create role cache table: %w", err)
	}
	return nil
}

func (r *RoleCacheRepository) Get(ctx context.Context, key string) (string, bool, error) {
	query := `SELECT value::text FROM auth_role_cache WHERE cache_key = $1`

	var value string
	err := r.db.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read role cache: %w", err)
	}

	return value, true, nil
}

// Set upserts the entry; the last write wins
func (r *RoleCacheRepository) Set(ctx context.Context, key, value string) error {
	query := `
		INSERT INTO auth_role_cache (cache_key, value, updated_at)
		VALUES ($1, $2::jsonb, NOW())
		ON CONFLICT (cache_key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to write role cache: %w", err)
	}
	return nil
}
