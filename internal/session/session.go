package session

import (
	"context"
	"errors"
	"time"

	"authbot/internal/address"
	"authbot/internal/pending"
	"authbot/pkg/oauth"
)

// ErrNotFound is returned by Store.Get when no session exists for an address.
var ErrNotFound = errors.New("session: not found")

// Status is the authentication state of a conversation.
type Status string

const (
	StatusAnonymous     Status = "Anonymous"
	StatusAuthenticated Status = "Authenticated"
	StatusRefreshing    Status = "Refreshing"
	StatusLoggedOut     Status = "LoggedOut"
)

// Session is the durable per-conversation record of identity and tokens.
type Session struct {
	Address              address.Address
	PrincipalID          string
	DisplayName          string
	Email                string
	AccessToken          oauth.RedactedToken
	RefreshToken         oauth.RedactedToken
	AccessTokenExpiresAt time.Time
	Status               Status
	UpdatedAt            time.Time
}

// FromAttempt materializes an Authenticated session from a consumed attempt.
func FromAttempt(a *pending.Attempt, now time.Time) *Session {
	s := &Session{
		Address:     a.Address,
		PrincipalID: a.Profile.PrincipalID,
		DisplayName: a.Profile.DisplayName,
		Email:       a.Profile.Email,
		Status:      StatusAuthenticated,
		UpdatedAt:   now,
	}
	if a.Token != nil {
		s.AccessToken = oauth.NewRedactedToken(a.Token.AccessToken)
		s.RefreshToken = oauth.NewRedactedToken(a.Token.RefreshToken)
		s.AccessTokenExpiresAt = a.Token.ExpiresAt
	}
	return s
}

// Clone returns a copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// IsAuthenticated reports whether the session holds usable credentials.
// A Refreshing session still counts: its tokens are retained until the
// provider rejects them.
func (s *Session) IsAuthenticated() bool {
	if s == nil {
		return false
	}
	return (s.Status == StatusAuthenticated || s.Status == StatusRefreshing) && !s.AccessToken.IsEmpty()
}

// NeedsRefresh reports whether the access token is expired at now or within skew.
// A session without a known expiry never needs a refresh.
func (s *Session) NeedsRefresh(now time.Time, skew time.Duration) bool {
	if s.AccessTokenExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.AccessTokenExpiresAt.Add(-skew))
}

// RotateTokens applies a refreshed token set and marks the session Authenticated.
// Providers that do not rotate refresh tokens leave the old one in place.
func (s *Session) RotateTokens(t *oauth.Token, now time.Time) {
	s.AccessToken = oauth.NewRedactedToken(t.AccessToken)
	if t.RefreshToken != "" {
		s.RefreshToken = oauth.NewRedactedToken(t.RefreshToken)
	}
	s.AccessTokenExpiresAt = t.ExpiresAt
	s.Status = StatusAuthenticated
	s.UpdatedAt = now
}

// Invalidate clears the tokens and marks the session LoggedOut.
func (s *Session) Invalidate(now time.Time) {
	s.AccessToken = oauth.RedactedToken{}
	s.RefreshToken = oauth.RedactedToken{}
	s.AccessTokenExpiresAt = time.Time{}
	s.Status = StatusLoggedOut
	s.UpdatedAt = now
}

// Store persists sessions keyed by conversation address.
// Implementations must be safe for concurrent use and must copy sessions
// on the way in and out.
type Store interface {
	Get(ctx context.Context, addr address.Address) (*Session, error)
	Save(ctx context.Context, s *Session) error
	Delete(ctx context.Context, addr address.Address) error
	List(ctx context.Context) ([]*Session, error)
	Close() error
}
