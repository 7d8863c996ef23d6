package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"identity-service/internal/autherr"
	"identity-service/internal/db"
	"identity-service/internal/user/domain"
)

const userColumns = `id, email, password_hash, role, is_active, created_at`

// SQLRepository persists users in Postgres or SQLite through database/sql.
type SQLRepository struct {
	db      *sql.DB
	dialect db.Dialect
}

// NewSQLRepository returns a user repository that uses the given db for persistence.
func NewSQLRepository(conn *sql.DB, dialect db.Dialect) *SQLRepository {
	return &SQLRepository{db: conn, dialect: dialect}
}

// GetByID returns the user for id, or autherr.ErrNotFound.
func (r *SQLRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// GetByEmail returns the user with the given (already normalized) email, or autherr.ErrNotFound.
func (r *SQLRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
}

func (r *SQLRepository) getOne(ctx context.Context, query, arg string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role, &u.IsActive, db.ScanTime(&u.CreatedAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", arg, autherr.ErrNotFound)
		}
		return nil, fmt.Errorf("user: get: %w", err)
	}
	return &u, nil
}

// Create persists u after validation. A taken email is autherr.ErrAlreadyExists.
func (r *SQLRepository) Create(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return fmt.Errorf("user: %w", err)
	}
	q := r.dialect.Rebind(`INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, u.ID, u.Email, u.PasswordHash, u.Role, u.IsActive, r.dialect.Arg(u.CreatedAt))
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("user %s: %w", u.Email, autherr.ErrAlreadyExists)
		}
		return fmt.Errorf("user: insert: %w", err)
	}
	return nil
}

// SetActive enables or disables login for the user.
func (r *SQLRepository) SetActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(`UPDATE users SET is_active = ? WHERE id = ?`), active, id)
	if err != nil {
		return fmt.Errorf("user: set active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("user: set active: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, autherr.ErrNotFound)
	}
	return nil
}
