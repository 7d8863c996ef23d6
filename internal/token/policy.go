package token

import (
	"context"
	"fmt"
	"time"

	"identity-service/internal/autherr"
)

// RevocationChecker reports whether a token id has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// CheckNotExpired fails with autherr.ErrExpired once now reaches the token's exp.
func CheckNotExpired(c *Claims, now time.Time) error {
	if !now.Before(c.ExpiresAt) {
		return fmt.Errorf("%w: exp %s", autherr.ErrExpired, c.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

// CheckType fails with autherr.ErrWrongTokenType when c is not of the expected type.
func CheckType(c *Claims, expected Type) error {
	if c.Type != expected {
		return fmt.Errorf("%w: got %s, want %s", autherr.ErrWrongTokenType, c.Type, expected)
	}
	return nil
}

// CheckNotRevoked fails with autherr.ErrRevoked when the registry holds c's token id.
// A registry failure is returned as-is so callers fail closed.
func CheckNotRevoked(ctx context.Context, c *Claims, registry RevocationChecker) error {
	revoked, err := registry.IsRevoked(ctx, c.TokenID)
	if err != nil {
		return fmt.Errorf("revocation lookup: %w", err)
	}
	if revoked {
		return autherr.ErrRevoked
	}
	return nil
}

// Policy combines the three checks into one "currently usable" predicate.
type Policy struct {
	registry RevocationChecker
	now      func() time.Time
}

// NewPolicy returns a Policy consulting registry. now defaults to time.Now when nil.
func NewPolicy(registry RevocationChecker, now func() time.Time) *Policy {
	if now == nil {
		now = time.Now
	}
	return &Policy{registry: registry, now: now}
}

// Usable runs expiry, type and revocation checks in that order and returns the first failure.
func (p *Policy) Usable(ctx context.Context, c *Claims, expected Type) error {
	if err := CheckNotExpired(c, p.now()); err != nil {
		return err
	}
	if err := CheckType(c, expected); err != nil {
		return err
	}
	return CheckNotRevoked(ctx, c, p.registry)
}
