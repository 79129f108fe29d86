package address

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrDecode is returned for any correlation token that cannot be turned back
// into an Address: malformed, truncated, tampered with, signed with another
// key, or past its lifetime.
var ErrDecode = errors.New("address: invalid correlation token")

// DefaultTokenTTL bounds how long a sign-in link stays usable.
const DefaultTokenTTL = time.Hour

// minKeyLength is the smallest HMAC key accepted by NewCodec.
const minKeyLength = 32

const tokenIssuer = "authbot"

// correlationClaims is the payload of a correlation token.
type correlationClaims struct {
	TransportID    string `json:"tid"`
	ConversationID string `json:"cid"`
	UserID         string `json:"uid"`
	jwt.RegisteredClaims
}

// Codec encodes conversation addresses into compact, URL-safe, HMAC-signed
// correlation tokens carried through the OAuth redirect as state.
type Codec struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithClock overrides the time source, mainly for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a codec signing with key. Tokens expire after ttl;
// a non-positive ttl uses DefaultTokenTTL.
func NewCodec(key []byte, ttl time.Duration, opts ...CodecOption) (*Codec, error) {
	if len(key) < minKeyLength {
		return nil, fmt.Errorf("address: signing key must be at least %d bytes, got %d", minKeyLength, len(key))
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	c := &Codec{
		key: append([]byte(nil), key...),
		ttl: ttl,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode turns addr into a signed correlation token.
func (c *Codec) Encode(addr Address) (string, error) {
	if err := addr.Validate(); err != nil {
		return "", err
	}

	now := c.now()
	claims := correlationClaims{
		TransportID:    addr.TransportID,
		ConversationID: addr.ConversationID,
		UserID:         addr.UserID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("address: sign correlation token: %w", err)
	}
	return token, nil
}

// Decode verifies token and returns the address it carries.
// Every failure wraps ErrDecode.
func (c *Codec) Decode(token string) (Address, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Address{}, fmt.Errorf("%w: empty token", ErrDecode)
	}

	var claims correlationClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %s", ErrDecode, describeJWTError(err))
	}

	addr := New(claims.TransportID, claims.ConversationID, claims.UserID)
	if err := addr.Validate(); err != nil {
		return Address{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return addr, nil
}

// SignInURL builds the link a user follows to start the browser leg.
func (c *Codec) SignInURL(publicURL, loginPath string, addr Address) (string, error) {
	token, err := c.Encode(addr)
	if err != nil {
		return "", err
	}

	u, err := url.Parse(strings.TrimSuffix(publicURL, "/") + loginPath)
	if err != nil {
		return "", fmt.Errorf("address: invalid public url: %w", err)
	}
	q := u.Query()
	q.Set("state", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// describeJWTError keeps the reason short; callers only ever show a generic message.
func describeJWTError(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "wrong issuer"
	default:
		return err.Error()
	}
}
