package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"identity-service/internal/autherr"
)

// maxPasswordBytes is bcrypt's input limit; longer passwords are refused rather than truncated.
const maxPasswordBytes = 72

// Hasher hashes and verifies passwords with bcrypt at a fixed cost.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher whose cost is clamped to bcrypt's range; cost <= 0 selects
// bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Hasher{Cost: cost}
}

// Hash returns the bcrypt encoding of password. A password over 72 bytes is
// autherr.ErrInvalidCredentials.
func (h *Hasher) Hash(password []byte) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("%w: password longer than %d bytes", autherr.ErrInvalidCredentials, maxPasswordBytes)
	}
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

// Compare returns nil when password matches hash and autherr.ErrInvalidCredentials when it
// does not. A stored hash bcrypt cannot parse is reported as-is.
func (h *Hasher) Compare(hash string, password []byte) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), password)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return autherr.ErrInvalidCredentials
	default:
		return fmt.Errorf("bcrypt: %w", err)
	}
}
