package domain

import (
	"errors"
	"strings"
	"time"
)

// DefaultRole is assigned to every registered user.
const DefaultRole = "USER"

// User is the core user entity. The password hash is opaque to everything but the hasher.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("id is required")
	}
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.Role == "" {
		u.Role = DefaultRole
	}
	return nil
}

// Roles returns the role claims carried by this user's access tokens.
func (u *User) Roles() []string {
	if u.Role == "" {
		return []string{DefaultRole}
	}
	return []string{u.Role}
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
