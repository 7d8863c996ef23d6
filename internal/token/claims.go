// Package token encodes and decodes the signed claim sets handed to clients (Codec) and
// evaluates whether decoded claims are currently usable (Policy).
package token

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"identity-service/internal/autherr"
)

// Type discriminates access tokens from refresh tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRefresh Type = "refresh"
)

// Claims is the decoded payload of a token. Roles and CorrelationID belong to the access
// variant only; Parse rejects a refresh token that carries them.
type Claims struct {
	Subject   string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Type      Type
	SessionID string

	Roles         []string
	CorrelationID string
}

// NewAccessClaims returns unsigned access claims for userID bound to sessionID.
func NewAccessClaims(userID, sessionID string, roles []string, correlationID string, expiresAt time.Time) Claims {
	return Claims{
		Subject:       userID,
		Type:          TypeAccess,
		SessionID:     sessionID,
		Roles:         slices.Clone(roles),
		CorrelationID: correlationID,
		ExpiresAt:     expiresAt,
	}
}

// NewRefreshClaims returns unsigned refresh claims for userID bound to sessionID.
func NewRefreshClaims(userID, sessionID string, expiresAt time.Time) Claims {
	return Claims{
		Subject:   userID,
		Type:      TypeRefresh,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
	}
}

// RemainingLifetime returns how long the token stays valid after now; zero once expired.
func (c *Claims) RemainingLifetime(now time.Time) time.Duration {
	if d := c.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// wireClaims is the JSON payload: sub, iat, exp, jti plus the type-specific fields.
type wireClaims struct {
	jwt.RegisteredClaims
	Roles         []string `json:"roles,omitempty"`
	SessionID     string   `json:"session_id"`
	Type          Type     `json:"type"`
	CorrelationID string   `json:"cid,omitempty"`
}

func (c *Claims) toWire() *wireClaims {
	return &wireClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        c.TokenID,
			Subject:   c.Subject,
			IssuedAt:  jwt.NewNumericDate(c.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(c.ExpiresAt),
		},
		Roles:         c.Roles,
		SessionID:     c.SessionID,
		Type:          c.Type,
		CorrelationID: c.CorrelationID,
	}
}

func (w *wireClaims) toClaims() (*Claims, error) {
	if w.Subject == "" {
		return nil, malformed("missing sub")
	}
	if w.ExpiresAt == nil {
		return nil, malformed("missing exp")
	}
	if w.IssuedAt == nil {
		return nil, malformed("missing iat")
	}
	if w.ID == "" {
		return nil, malformed("missing jti")
	}
	if w.SessionID == "" {
		return nil, malformed("missing session_id")
	}
	switch w.Type {
	case TypeAccess:
	case TypeRefresh:
		if len(w.Roles) > 0 || w.CorrelationID != "" {
			return nil, malformed("refresh token carries access-only claims")
		}
	default:
		return nil, malformed(fmt.Sprintf("unknown type %q", w.Type))
	}
	return &Claims{
		Subject:       w.Subject,
		TokenID:       w.ID,
		IssuedAt:      w.IssuedAt.Time.UTC(),
		ExpiresAt:     w.ExpiresAt.Time.UTC(),
		Type:          w.Type,
		SessionID:     w.SessionID,
		Roles:         w.Roles,
		CorrelationID: w.CorrelationID,
	}, nil
}

// validateForIssue rejects claim sets that Parse would refuse, so the codec never signs them.
func (c *Claims) validateForIssue() error {
	if c.Subject == "" || c.SessionID == "" {
		return fmt.Errorf("token: subject and session id are required")
	}
	if c.ExpiresAt.IsZero() {
		return fmt.Errorf("token: expiry is required")
	}
	switch c.Type {
	case TypeAccess:
		return nil
	case TypeRefresh:
		if len(c.Roles) > 0 || c.CorrelationID != "" {
			return fmt.Errorf("token: refresh claims must not carry roles or correlation id")
		}
		return nil
	default:
		return fmt.Errorf("token: unknown type %q", c.Type)
	}
}

func malformed(detail string) error {
	return fmt.Errorf("%w: %s", autherr.ErrMalformedCredential, detail)
}
