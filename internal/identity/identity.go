// Package identity normalizes provider profile claims into a canonical Profile.
package identity

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIdentityRejected is returned when the provider claims carry no usable identity.
var ErrIdentityRejected = errors.New("identity: provider profile has no usable identity claim")

// Profile is the provider-independent view of the signed-in user.
type Profile struct {
	PrincipalID string `json:"principalId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}

// Claim names in precedence order. Azure AD v1 uses oid/upn, v2 and most
// OIDC providers use sub/preferred_username/email.
var (
	principalClaims = []string{"oid", "sub"}
	nameClaims      = []string{"name", "displayName", "given_name"}
	emailClaims     = []string{"preferred_username", "upn", "email", "unique_name"}
)

// FromClaims builds a Profile from ID token and userinfo claims.
// A profile needs a principal id plus either a display name or an email.
// When no display name is present the email stands in for it.
func FromClaims(claims map[string]any) (Profile, error) {
	p := Profile{
		PrincipalID: firstString(claims, principalClaims),
		DisplayName: firstString(claims, nameClaims),
		Email:       firstString(claims, emailClaims),
	}

	if p.PrincipalID == "" {
		return Profile{}, fmt.Errorf("%w: missing subject", ErrIdentityRejected)
	}
	if p.DisplayName == "" {
		p.DisplayName = p.Email
	}
	if p.DisplayName == "" {
		return Profile{}, fmt.Errorf("%w: missing display name", ErrIdentityRejected)
	}
	return p, nil
}

// Merge overlays extra claims on base without replacing values base already has.
// Used to fold userinfo responses into ID token claims.
func Merge(base, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range base {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		out[k] = v
	}
	return out
}

func firstString(claims map[string]any, names []string) string {
	for _, name := range names {
		if v, ok := claims[name].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}
