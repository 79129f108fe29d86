package oauth

import (
	"time"

	"golang.org/x/oauth2"
)

// DefaultExpiryMargin is the default margin when checking token expiry.
// This accounts for clock skew and network latency.
const DefaultExpiryMargin = 30 * time.Second

// Token represents the tokens an identity provider issued for a user.
type Token struct {
	// AccessToken is the bearer token used for authorization.
	AccessToken string `json:"access_token"`

	// TokenType is typically "Bearer".
	TokenType string `json:"token_type,omitempty"`

	// RefreshToken is used to obtain new access tokens (optional).
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresIn is the token lifetime in seconds (from token response).
	ExpiresIn int `json:"expires_in,omitempty"`

	// ExpiresAt is the calculated expiration timestamp.
	ExpiresAt time.Time `json:"expires_at,omitempty"`

	// Scope is the granted scope(s), space-separated.
	Scope string `json:"scope,omitempty"`

	// IDToken is the OIDC ID token (if available).
	IDToken string `json:"id_token,omitempty"`
}

// SetExpiresAtFromExpiresIn calculates and sets ExpiresAt from ExpiresIn.
func (t *Token) SetExpiresAtFromExpiresIn(now time.Time) {
	if t.ExpiresIn > 0 && t.ExpiresAt.IsZero() {
		t.ExpiresAt = now.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
}

// Clone returns a copy of the token. A nil token clones to nil.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// FromOAuth2Token converts an oauth2.Token into a Token, carrying over the
// id_token and scope extras when the provider returned them.
func FromOAuth2Token(token *oauth2.Token) *Token {
	if token == nil {
		return nil
	}

	t := &Token{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if token.ExpiresIn > 0 {
		t.ExpiresIn = int(token.ExpiresIn)
	}
	if idToken, ok := token.Extra("id_token").(string); ok {
		t.IDToken = idToken
	}
	if scope, ok := token.Extra("scope").(string); ok {
		t.Scope = scope
	}
	return t
}
