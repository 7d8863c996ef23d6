package domain

import "time"

// Session anchors one login. It holds the hash of the only refresh token currently accepted
// for it, plus the ids of the outstanding token pair so logout can revoke them.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string // SHA-256 hex of the current refresh token
	RefreshTokenID   string // jti of the current refresh token
	AccessTokenID    string // jti of the access token issued alongside it
	AccessExpiresAt  time.Time
	ExpiresAt        time.Time // expiry of the current refresh token
	CreatedAt        time.Time
	UserAgent        string
	IPAddress        string
}

// Rotation is the state written when a refresh replaces the session's token pair.
type Rotation struct {
	RefreshTokenHash string
	RefreshTokenID   string
	AccessTokenID    string
	AccessExpiresAt  time.Time
	ExpiresAt        time.Time
}

// Apply returns a copy of s with r written over it.
func (s Session) Apply(r Rotation) Session {
	s.RefreshTokenHash = r.RefreshTokenHash
	s.RefreshTokenID = r.RefreshTokenID
	s.AccessTokenID = r.AccessTokenID
	s.AccessExpiresAt = r.AccessExpiresAt
	s.ExpiresAt = r.ExpiresAt
	return s
}
