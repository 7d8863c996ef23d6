package repository

import (
	"context"

	"identity-service/internal/user/domain"
)

// Repository defines persistence for users. Missing rows are autherr.ErrNotFound and a
// duplicate email on Create is autherr.ErrAlreadyExists.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	SetActive(ctx context.Context, id string, active bool) error
}
