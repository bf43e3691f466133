package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/duynhne/suggestion-service/internal/core/domain"
)

// PgxSessionRepository implements domain.SessionRepository using pgxpool.
type PgxSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PgxSessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PgxSessionRepository {
	return &PgxSessionRepository{pool: pool}
}

// Upsert inserts the bound session, replacing any previous row with the
// same session id.
func (r *PgxSessionRepository) Upsert(ctx context.Context, s domain.BoundSession) error {
	query := `
		INSERT INTO user_sessions (session_id, user_id, user_name, user_token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    user_name = EXCLUDED.user_name,
		    user_token = EXCLUDED.user_token,
		    expires_at = EXCLUDED.expires_at
	`
	_, err := r.pool.Exec(ctx, query,
		s.SessionID, s.UserID, s.UserName, s.UserToken, s.CreatedAt, s.ExpiresAt,
	)
	return err
}

// DeleteExpired removes mirror rows whose expiry is at or before now.
func (r *PgxSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM user_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
