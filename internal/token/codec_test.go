package token

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"identity-service/internal/autherr"
	"identity-service/internal/security"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func assertSameClaims(t *testing.T, got, want *Claims) {
	t.Helper()
	if got.Subject != want.Subject || got.TokenID != want.TokenID || got.Type != want.Type ||
		got.SessionID != want.SessionID || got.CorrelationID != want.CorrelationID {
		t.Errorf("claims = %+v, want %+v", got, want)
	}
	if !got.IssuedAt.Equal(want.IssuedAt) || !got.ExpiresAt.Equal(want.ExpiresAt) {
		t.Errorf("times = (%v, %v), want (%v, %v)", got.IssuedAt, got.ExpiresAt, want.IssuedAt, want.ExpiresAt)
	}
	if !slices.Equal(got.Roles, want.Roles) {
		t.Errorf("Roles = %v, want %v", got.Roles, want.Roles)
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	codec, err := NewTestCodec(fixedClock(now))
	if err != nil {
		t.Fatalf("NewTestCodec: %v", err)
	}

	testCases := []struct {
		name   string
		claims Claims
	}{
		{"access", NewAccessClaims("u1", "s1", []string{"USER"}, "cid-1", now.Add(15*time.Minute))},
		{"access multiple roles", NewAccessClaims("u1", "s1", []string{"USER", "ADMIN"}, "cid-2", now.Add(time.Minute))},
		{"refresh", NewRefreshClaims("u1", "s1", now.Add(7*24*time.Hour))},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			signed, issued, err := codec.Issue(tc.claims)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			if issued.TokenID == "" {
				t.Fatal("Issue did not assign a token id")
			}
			if !issued.IssuedAt.Equal(now) {
				t.Errorf("IssuedAt = %v, want %v", issued.IssuedAt, now)
			}
			got, err := codec.Parse(signed)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			assertSameClaims(t, got, &issued)
		})
	}
}

func TestCodec_UniqueTokenIDs(t *testing.T) {
	codec, err := NewTestCodec(nil)
	if err != nil {
		t.Fatalf("NewTestCodec: %v", err)
	}
	claims := NewRefreshClaims("u1", "s1", time.Now().Add(time.Hour))
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		_, issued, err := codec.Issue(claims)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		if seen[issued.TokenID] {
			t.Fatalf("duplicate token id %q", issued.TokenID)
		}
		seen[issued.TokenID] = true
	}
}

func TestCodec_ES256(t *testing.T) {
	signer, pub, err := security.TestECKeyPair()
	if err != nil {
		t.Fatalf("TestECKeyPair: %v", err)
	}
	codec, err := NewCodec(signer, pub)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	signed, issued, err := codec.Issue(NewRefreshClaims("u1", "s1", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	got, err := codec.Parse(signed)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.TokenID != issued.TokenID {
		t.Errorf("TokenID = %q, want %q", got.TokenID, issued.TokenID)
	}
}

func TestCodec_ParseDoesNotCheckExpiry(t *testing.T) {
	codec, err := NewTestCodec(nil)
	if err != nil {
		t.Fatalf("NewTestCodec: %v", err)
	}
	signed, _, err := codec.Issue(NewRefreshClaims("u1", "s1", time.Now().Add(-time.Hour)))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := codec.Parse(signed); err != nil {
		t.Errorf("Parse of expired token: want nil (expiry is a policy concern), got %v", err)
	}
}

func TestCodec_ParseRejectsForeignSignature(t *testing.T) {
	codec, err := NewTestCodec(nil)
	if err != nil {
		t.Fatalf("NewTestCodec: %v", err)
	}
	foreignSigner, foreignPub, err := security.TestForeignKeyPair()
	if err != nil {
		t.Fatalf("TestForeignKeyPair: %v", err)
	}
	foreign, err := NewCodec(foreignSigner, foreignPub)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	signed, _, err := foreign.Issue(NewRefreshClaims("u1", "s1", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := codec.Parse(signed); !errors.Is(err, autherr.ErrMalformedCredential) {
		t.Errorf("Parse foreign token: want ErrMalformedCredential, got %v", err)
	}
}

func TestCodec_ParseRejectsGarbage(t *testing.T) {
	codec, err := NewTestCodec(nil)
	if err != nil {
		t.Fatalf("NewTestCodec: %v", err)
	}
	signed, _, err := codec.Issue(NewRefreshClaims("u1", "s1", time.Now().Add(time.Hour)))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	parts := strings.Split(signed, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	for _, in := range []string{"", "invalid-token", "a.b.c", tampered, signed[:len(signed)-4]} {
		if _, err := codec.Parse(in); !errors.Is(err, autherr.ErrMalformedCredential) {
			t.Errorf("Parse(%q): want ErrMalformedCredential, got %v", in, err)
		}
	}
}

func TestCodec_ParseRejectsHMACAndNone(t *testing.T) {
	codec, err := NewTestCodec(nil)
	if err != nil {
		t.Fatalf("NewTestCodec: %v", err)
	}
	claims := NewRefreshClaims("u1", "s1", time.Now().Add(time.Hour))
	claims.TokenID = "jti"
	claims.IssuedAt = time.Now()

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims.toWire()).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign HS256: %v", err)
	}
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims.toWire()).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	for name, in := range map[string]string{"HS256": hs, "none": none} {
		if _, err := codec.Parse(in); !errors.Is(err, autherr.ErrMalformedCredential) {
			t.Errorf("Parse %s token: want ErrMalformedCredential, got %v", name, err)
		}
	}
}

func TestCodec_ParseRejectsImpossibleShapes(t *testing.T) {
	signer, _, err := security.TestKeyPair()
	if err != nil {
		t.Fatalf("TestKeyPair: %v", err)
	}
	codec, err := NewTestCodec(nil)
	if err != nil {
		t.Fatalf("NewTestCodec: %v", err)
	}
	now := time.Now()
	valid := func() *wireClaims {
		c := NewRefreshClaims("u1", "s1", now.Add(time.Hour))
		c.TokenID = "jti-1"
		c.IssuedAt = now
		return c.toWire()
	}

	testCases := []struct {
		name   string
		mutate func(w *wireClaims)
	}{
		{"missing sub", func(w *wireClaims) { w.Subject = "" }},
		{"missing exp", func(w *wireClaims) { w.ExpiresAt = nil }},
		{"missing iat", func(w *wireClaims) { w.IssuedAt = nil }},
		{"missing jti", func(w *wireClaims) { w.ID = "" }},
		{"missing session", func(w *wireClaims) { w.SessionID = "" }},
		{"unknown type", func(w *wireClaims) { w.Type = "id" }},
		{"refresh with roles", func(w *wireClaims) { w.Roles = []string{"ADMIN"} }},
		{"refresh with cid", func(w *wireClaims) { w.CorrelationID = "c" }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := valid()
			tc.mutate(w)
			signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, w).SignedString(signer)
			if err != nil {
				t.Fatalf("sign: %v", err)
			}
			if _, err := codec.Parse(signed); !errors.Is(err, autherr.ErrMalformedCredential) {
				t.Errorf("Parse: want ErrMalformedCredential, got %v", err)
			}
		})
	}
}

func TestCodec_IssueRejectsInvalidClaims(t *testing.T) {
	codec, err := NewTestCodec(nil)
	if err != nil {
		t.Fatalf("NewTestCodec: %v", err)
	}
	exp := time.Now().Add(time.Hour)
	badRefresh := NewRefreshClaims("u1", "s1", exp)
	badRefresh.Roles = []string{"USER"}

	testCases := []struct {
		name   string
		claims Claims
	}{
		{"no subject", NewRefreshClaims("", "s1", exp)},
		{"no session", NewAccessClaims("u1", "", nil, "c", exp)},
		{"no expiry", NewRefreshClaims("u1", "s1", time.Time{})},
		{"no type", Claims{Subject: "u1", SessionID: "s1", ExpiresAt: exp}},
		{"refresh with roles", badRefresh},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := codec.Issue(tc.claims); err == nil {
				t.Error("Issue: want error, got nil")
			}
		})
	}
}

func TestNewCodec_UnsupportedKey(t *testing.T) {
	if _, err := NewCodec(nil, "not-a-key"); !errors.Is(err, ErrUnsupportedKey) {
		t.Errorf("NewCodec with string key: want ErrUnsupportedKey, got %v", err)
	}
}

func TestCodec_VerifyOnly(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	codec, err := NewCodec(nil, &key.PublicKey)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	if _, _, err := codec.Issue(NewRefreshClaims("u1", "s1", time.Now().Add(time.Hour))); err == nil {
		t.Error("Issue on verify-only codec: want error, got nil")
	}
}
