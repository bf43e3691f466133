// Package core owns the database connection pool and schema bootstrap.
package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS suggestions (
    id           bigserial PRIMARY KEY,
    title        text NOT NULL,
    content      text NOT NULL,
    author       text NOT NULL,
    tag          text,
    image_url    text,
    publish_time timestamptz NOT NULL,
    user_id      text NOT NULL,
    user_ip      text
);

CREATE INDEX IF NOT EXISTS suggestions_user_id_idx ON suggestions (user_id);

CREATE TABLE IF NOT EXISTS user_sessions (
    session_id text PRIMARY KEY,
    user_id    text NOT NULL,
    user_name  text NOT NULL,
    user_token text NOT NULL,
    created_at timestamptz NOT NULL,
    expires_at timestamptz NOT NULL
);
`

// Connect establishes the pgx connection pool and verifies connectivity.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Migrate applies the idempotent schema DDL.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
