package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"identity-service/internal/autherr"
	"identity-service/internal/db"
	"identity-service/internal/session/domain"
)

const sessionColumns = `id, user_id, refresh_token_hash, refresh_token_id, access_token_id,
	access_expires_at, expires_at, created_at, user_agent, ip_address`

// SQLRepository persists sessions in Postgres or SQLite through database/sql.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns a session repository that uses the given db for persistence.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: conn, dialect: dialect}
}

// Create persists s. The session must have ID set; an id collision is autherr.ErrConflict.
func (r *SQLRepository) Create(ctx context.Context, s *domain.Session) error {
	if s.ID == "" || s.UserID == "" {
		return errors.New("session: id and user id are required")
	}
	q := r.dialect.Rebind(`INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q,
		s.ID, s.UserID, s.RefreshTokenHash, s.RefreshTokenID, s.AccessTokenID,
		r.dialect.Arg(s.AccessExpiresAt), r.dialect.Arg(s.ExpiresAt), r.dialect.Arg(s.CreatedAt),
		s.UserAgent, s.IPAddress)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("session %s: %w", s.ID, autherr.ErrConflict)
		}
		return fmt.Errorf("session: insert: %w", err)
	}
	return nil
}

// GetByID returns the session for id, or autherr.ErrSessionNotFound.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	q := r.dialect.Rebind(`SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`)
	s, err := scanSession(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, autherr.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("session: get: %w", err)
	}
	return s, nil
}

// Delete removes the session and returns it, or autherr.ErrSessionNotFound when absent.
func (r *SQLRepository) Delete(ctx context.Context, id string) (*domain.Session, error) {
	q := r.dialect.Rebind(`DELETE FROM sessions WHERE id = ? RETURNING ` + sessionColumns)
	s, err := scanSession(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("session %s: %w", id, autherr.ErrSessionNotFound)
		}
		return nil, fmt.Errorf("session: delete: %w", err)
	}
	return s, nil
}

// DeleteAllForUser removes every session owned by userID and returns the removed records.
func (r *SQLRepository) DeleteAllForUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	q := r.dialect.Rebind(`DELETE FROM sessions WHERE user_id = ? RETURNING ` + sessionColumns)
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("session: delete all: %w", err)
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("session: delete all: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: delete all: %w", err)
	}
	return out, nil
}

// UpdateRefreshHash writes rot only if the stored refresh hash still equals expectedOldHash.
// A lost race is autherr.ErrConflict; a vanished session is autherr.ErrSessionNotFound.
func (r *SQLRepository) UpdateRefreshHash(ctx context.Context, id, expectedOldHash string, rot domain.Rotation) error {
	q := r.dialect.Rebind(`UPDATE sessions
		SET refresh_token_hash = ?, refresh_token_id = ?, access_token_id = ?, access_expires_at = ?, expires_at = ?
		WHERE id = ? AND refresh_token_hash = ?`)
	res, err := r.db.ExecContext(ctx, q,
		rot.RefreshTokenHash, rot.RefreshTokenID, rot.AccessTokenID,
		r.dialect.Arg(rot.AccessExpiresAt), r.dialect.Arg(rot.ExpiresAt),
		id, expectedOldHash)
	if err != nil {
		return fmt.Errorf("session: update refresh hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("session: update refresh hash: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT 1 FROM sessions WHERE id = ?`), id).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("session %s: %w", id, autherr.ErrSessionNotFound)
	case err != nil:
		return fmt.Errorf("session: update refresh hash: %w", err)
	default:
		return fmt.Errorf("session %s: refresh hash changed: %w", id, autherr.ErrConflict)
	}
}

// DeleteExpired removes sessions whose refresh token expired at or before now.
func (r *SQLRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	q := r.dialect.Rebind(`DELETE FROM sessions WHERE expires_at <= ?`)
	res, err := r.db.ExecContext(ctx, q, r.dialect.Arg(now))
	if err != nil {
		return 0, fmt.Errorf("session: delete expired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("session: delete expired: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	err := row.Scan(&s.ID, &s.UserID, &s.RefreshTokenHash, &s.RefreshTokenID, &s.AccessTokenID,
		db.ScanTime(&s.AccessExpiresAt), db.ScanTime(&s.ExpiresAt), db.ScanTime(&s.CreatedAt),
		&s.UserAgent, &s.IPAddress)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
