package repository

import (
	"context"
	"time"

	"identity-service/internal/session/domain"
)

// Repository defines persistence for sessions.
//
// Missing rows are reported as autherr.ErrSessionNotFound. UpdateRefreshHash is a
// compare-and-swap: it writes only when the stored hash still equals expectedOldHash and
// reports autherr.ErrConflict otherwise.
type Repository interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByID(ctx context.Context, id string) (*domain.Session, error)
	// Delete removes the session and returns the removed record.
	Delete(ctx context.Context, id string) (*domain.Session, error)
	// DeleteAllForUser removes every session of userID and returns the removed records.
	DeleteAllForUser(ctx context.Context, userID string) ([]*domain.Session, error)
	UpdateRefreshHash(ctx context.Context, id, expectedOldHash string, r domain.Rotation) error
	// DeleteExpired removes sessions whose refresh expiry is at or before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
