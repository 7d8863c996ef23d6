// Package autherr defines the failure taxonomy shared by the token, session, revocation and
// auth service packages. Components return these sentinels (possibly wrapped); callers match
// them with errors.Is.
package autherr

import "errors"

var (
	// ErrAlreadyExists is returned when registering an email that is already taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidCredentials covers bad passwords and bad, replayed or mismatched refresh tokens.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMalformedCredential is returned when a token cannot be parsed or its signature is invalid.
	ErrMalformedCredential = errors.New("malformed credential")
	// ErrExpired is returned when a token's exp is not after the evaluation time.
	ErrExpired = errors.New("credential expired")
	// ErrWrongTokenType is returned when an access token is used as a refresh token or vice versa.
	ErrWrongTokenType = errors.New("wrong token type")
	// ErrRevoked is returned when a token id is present in the revocation registry.
	ErrRevoked = errors.New("credential revoked")
	// ErrSessionNotFound is returned when the session a token is bound to no longer exists.
	ErrSessionNotFound = errors.New("session not found")
	// ErrConflict is returned when an optimistic-concurrency update loses (compare-and-swap miss)
	// or a create collides with an existing id.
	ErrConflict = errors.New("conflict")
	// ErrNotFound is returned by stores when a non-session record is absent.
	ErrNotFound = errors.New("not found")
)

// kinds is ordered from most to least specific so Kind reports the precise cause of a
// normalized error rather than its public face.
var kinds = []struct {
	err  error
	name string
}{
	{ErrMalformedCredential, "malformed_credential"},
	{ErrExpired, "expired"},
	{ErrWrongTokenType, "wrong_token_type"},
	{ErrRevoked, "revoked"},
	{ErrSessionNotFound, "session_not_found"},
	{ErrConflict, "conflict"},
	{ErrAlreadyExists, "already_exists"},
	{ErrNotFound, "not_found"},
	{ErrInvalidCredentials, "invalid_credentials"},
}

// Kind returns a stable label for err suitable for logs and metric attributes. It returns
// "ok" for nil and "internal" for errors outside the taxonomy.
func Kind(err error) string {
	if err == nil {
		return "ok"
	}
	var n *normalized
	if errors.As(err, &n) {
		return Kind(n.cause)
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}

// Normalize hides cause behind public. The returned error prints only public's message, but
// errors.Is matches both public and cause so diagnostics keep the precise kind.
func Normalize(public, cause error) error {
	if cause == nil {
		return public
	}
	return &normalized{public: public, cause: cause}
}

// Public returns the externally visible error for err: the public face of a normalized error,
// otherwise err itself.
func Public(err error) error {
	var n *normalized
	if errors.As(err, &n) {
		return n.public
	}
	return err
}

type normalized struct {
	public error
	cause  error
}

func (e *normalized) Error() string { return e.public.Error() }

func (e *normalized) Unwrap() []error { return []error{e.public, e.cause} }
