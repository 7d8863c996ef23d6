package token

import (
	"time"

	"identity-service/internal/security"
)

// NewTestCodec returns a Codec over the embedded RSA test key pair. For unit tests only.
func NewTestCodec(now func() time.Time) (*Codec, error) {
	signer, pub, err := security.TestKeyPair()
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return NewCodec(signer, pub, WithClock(now))
}
