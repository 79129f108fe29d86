package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"authbot/internal/identity"
	"authbot/pkg/logging"
	"authbot/pkg/oauth"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrNoIdentity is returned when neither an ID token nor userinfo yielded
// any claims.
var ErrNoIdentity = errors.New("server: provider returned no identity claims")

// OIDCConfig configures the provider client.
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string

	// TokenURL overrides the discovered token endpoint.
	TokenURL string

	// SkipIssuerCheck accepts discovery documents and ID tokens whose
	// issuer differs from IssuerURL, as multi-tenant endpoints return.
	SkipIssuerCheck bool

	// PKCEKey enables S256 PKCE with verifiers derived from the state.
	PKCEKey []byte

	HTTPClient *http.Client
}

// OIDCAuthenticator implements Authenticator against an OpenID Connect
// provider.
type OIDCAuthenticator struct {
	oauth2     oauth2.Config
	verifier   *oidc.IDTokenVerifier
	provider   *oidc.Provider
	httpClient *http.Client
	pkceKey    []byte
}

// NewOIDCAuthenticator runs discovery against cfg.IssuerURL.
func NewOIDCAuthenticator(ctx context.Context, cfg OIDCConfig) (*OIDCAuthenticator, error) {
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}
	if cfg.SkipIssuerCheck {
		ctx = oidc.InsecureIssuerURLContext(ctx, cfg.IssuerURL)
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery for %s: %w", cfg.IssuerURL, err)
	}

	endpoint := provider.Endpoint()
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        cfg.ClientID,
		SkipIssuerCheck: cfg.SkipIssuerCheck,
	})

	logging.Info("OIDC", "Discovered provider %s", cfg.IssuerURL)

	a := newOIDCAuthenticator(oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     endpoint,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
	}, verifier, cfg.HTTPClient)
	a.provider = provider
	a.pkceKey = cfg.PKCEKey
	return a, nil
}

func newOIDCAuthenticator(cfg oauth2.Config, verifier *oidc.IDTokenVerifier, httpClient *http.Client) *OIDCAuthenticator {
	return &OIDCAuthenticator{oauth2: cfg, verifier: verifier, httpClient: httpClient}
}

// AuthCodeURL implements Authenticator. The correlation token is the state.
func (a *OIDCAuthenticator) AuthCodeURL(state string) string {
	if len(a.pkceKey) == 0 {
		return a.oauth2.AuthCodeURL(state)
	}
	pkce, err := oauth.DerivePKCE(a.pkceKey, state)
	if err != nil {
		logging.Error("OIDC", err, "Failed to derive PKCE challenge")
		return a.oauth2.AuthCodeURL(state)
	}
	return a.oauth2.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", pkce.CodeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", pkce.CodeChallengeMethod),
	)
}

// Exchange implements Authenticator. Claims from a verified ID token are
// merged with userinfo claims when the provider offers that endpoint.
func (a *OIDCAuthenticator) Exchange(ctx context.Context, code, state string) (map[string]any, *oauth.Token, error) {
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}

	var opts []oauth2.AuthCodeOption
	if len(a.pkceKey) > 0 {
		pkce, err := oauth.DerivePKCE(a.pkceKey, state)
		if err != nil {
			return nil, nil, fmt.Errorf("derive pkce verifier: %w", err)
		}
		opts = append(opts, oauth2.VerifierOption(pkce.CodeVerifier))
	}

	tok, err := a.oauth2.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("code exchange: %w", err)
	}

	claims := map[string]any{}

	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, err := a.verifier.Verify(ctx, rawIDToken)
		if err != nil {
			return nil, nil, fmt.Errorf("verify id token: %w", err)
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, nil, fmt.Errorf("decode id token claims: %w", err)
		}
	}

	if a.provider != nil && a.provider.UserInfoEndpoint() != "" {
		info, err := a.provider.UserInfo(ctx, oauth2.StaticTokenSource(tok))
		if err != nil {
			logging.Warn("OIDC", "Userinfo request failed, using ID token claims only: %v", err)
		} else {
			extra := map[string]any{}
			if err := info.Claims(&extra); err == nil {
				claims = identity.Merge(claims, extra)
			}
		}
	}

	if len(claims) == 0 {
		return nil, nil, ErrNoIdentity
	}

	return claims, oauth.FromOAuth2Token(tok), nil
}

// TokenURL returns the token endpoint in use, for refresh grants.
func (a *OIDCAuthenticator) TokenURL() string {
	return a.oauth2.Endpoint.TokenURL
}
