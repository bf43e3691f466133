package domain

import (
	"context"
	"time"
)

// BoundSession is the durable mirror of an in-memory login session that has
// been bound or confirmed. The in-memory store stays the source of truth
// while the process lives; this copy is written best-effort for visibility
// across restarts.
type BoundSession struct {
	SessionID string
	UserID    string
	UserName  string
	UserToken string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// SessionRepository defines the data-access contract for the durable
// bound-session mirror. Implementations live in internal/core/repository
// (Core layer).
type SessionRepository interface {
	// Upsert inserts the bound session, replacing any previous row with
	// the same session id (repeated confirms overwrite the mirror too).
	Upsert(ctx context.Context, s BoundSession) error

	// DeleteExpired removes mirror rows whose expiry is at or before now
	// and returns how many were deleted.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
