package oauth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// PKCEMethodS256 is the only challenge method issued.
const PKCEMethodS256 = "S256"

// ErrEmptyPKCEKey is returned when a derivation is attempted without a key.
var ErrEmptyPKCEKey = errors.New("oauth: PKCE key must not be empty")

// PKCEChallenge is the verifier/challenge pair for one authorization request.
type PKCEChallenge struct {
	CodeVerifier        string
	CodeChallenge       string
	CodeChallengeMethod string
}

// DerivePKCE derives a PKCE pair from the authorization state.
//
// The verifier is HMAC-SHA256(key, state) encoded as base64url, giving 43
// characters. Both the login redirect and the callback see the same state,
// so the verifier never has to be stored between them.
func DerivePKCE(key []byte, state string) (*PKCEChallenge, error) {
	if len(key) == 0 {
		return nil, ErrEmptyPKCEKey
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(state))
	verifier := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))

	return &PKCEChallenge{
		CodeVerifier:        verifier,
		CodeChallenge:       S256Challenge(verifier),
		CodeChallengeMethod: PKCEMethodS256,
	}, nil
}

// S256Challenge returns base64url(SHA256(verifier)).
func S256Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
