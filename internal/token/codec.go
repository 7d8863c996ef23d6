package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnsupportedKey is returned by NewCodec for keys other than RSA and ECDSA P-256.
var ErrUnsupportedKey = errors.New("token: unsupported signing key")

// Codec signs claim sets with the private half of an asymmetric key pair and verifies them
// with the public half. It holds no mutable state and is safe for concurrent use.
type Codec struct {
	signer    crypto.Signer
	publicKey crypto.PublicKey
	method    jwt.SigningMethod
	now       func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for iat.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec returns a Codec signing with RS256 or ES256 depending on the key type.
// signer may be nil for a verify-only codec.
func NewCodec(signer crypto.Signer, publicKey crypto.PublicKey, opts ...Option) (*Codec, error) {
	var method jwt.SigningMethod
	switch k := publicKey.(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		if k.Curve.Params().BitSize != 256 {
			return nil, ErrUnsupportedKey
		}
		method = jwt.SigningMethodES256
	default:
		return nil, ErrUnsupportedKey
	}
	c := &Codec{
		signer:    signer,
		publicKey: publicKey,
		method:    method,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs claims after stamping a fresh random token id and the issue time. It returns
// the token and the claims exactly as encoded (times truncated to whole seconds).
func (c *Codec) Issue(claims Claims) (string, Claims, error) {
	if c.signer == nil {
		return "", Claims{}, errors.New("token: codec has no signing key")
	}
	if err := claims.validateForIssue(); err != nil {
		return "", Claims{}, err
	}
	jti, err := generateJTI()
	if err != nil {
		return "", Claims{}, fmt.Errorf("token: generate jti: %w", err)
	}
	claims.TokenID = jti
	claims.IssuedAt = time.Unix(c.now().Unix(), 0).UTC()
	claims.ExpiresAt = time.Unix(claims.ExpiresAt.Unix(), 0).UTC()

	t := jwt.NewWithClaims(c.method, claims.toWire())
	signed, err := t.SignedString(c.signer)
	if err != nil {
		return "", Claims{}, fmt.Errorf("token: sign: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies the signature of tokenString and decodes its claims. Expiry and type are
// not evaluated here; see Policy. Every failure wraps autherr.ErrMalformedCredential.
func (c *Codec) Parse(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, malformed("empty token")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &wireClaims{}, func(*jwt.Token) (interface{}, error) {
		return c.publicKey, nil
	}, jwt.WithValidMethods([]string{c.method.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, malformed(err.Error())
	}
	wire, ok := parsed.Claims.(*wireClaims)
	if !ok || !parsed.Valid {
		return nil, malformed("invalid token")
	}
	return wire.toClaims()
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
