package refresh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"authbot/pkg/oauth"

	"golang.org/x/oauth2"
)

// Provider exchanges a refresh token for a new token set.
// Errors must wrap ErrTransient, ErrInvalidGrant or ErrClientRejected.
type Provider interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth.Token, error)
}

// OAuth2Provider refreshes tokens against an OAuth 2.0 token endpoint.
type OAuth2Provider struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewOAuth2Provider creates a provider posting refresh grants to tokenURL.
// Client credentials are sent in the request body, which every provider accepts.
func NewOAuth2Provider(clientID, clientSecret, tokenURL string, scopes []string, httpClient *http.Client) *OAuth2Provider {
	return &OAuth2Provider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scopes:       scopes,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

// Refresh performs a refresh_token grant.
func (p *OAuth2Provider) Refresh(ctx context.Context, refreshToken string) (*oauth.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", ErrInvalidGrant)
	}
	if p.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	}

	token, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, classifyError(err)
	}
	return oauth.FromOAuth2Token(token), nil
}

// classifyError maps token endpoint failures onto the package errors. Only
// invalid_grant ends the session.
func classifyError(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) {
		status := 0
		if rErr.Response != nil {
			status = rErr.Response.StatusCode
		}
		switch {
		case status >= 500, status == http.StatusTooManyRequests, status == http.StatusRequestTimeout:
			return fmt.Errorf("%w: token endpoint returned %d", ErrTransient, status)
		case rErr.ErrorCode == "temporarily_unavailable", rErr.ErrorCode == "server_error":
			return fmt.Errorf("%w: %s", ErrTransient, rErr.ErrorCode)
		case rErr.ErrorCode == "invalid_grant":
			return fmt.Errorf("%w: %s", ErrInvalidGrant, describe(rErr))
		case rErr.ErrorCode != "":
			return fmt.Errorf("%w: %s", ErrClientRejected, describe(rErr))
		default:
			return fmt.Errorf("%w: token endpoint returned %d", ErrClientRejected, status)
		}
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", ErrTransient, err)
	case errors.Is(err, context.Canceled):
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

func describe(rErr *oauth2.RetrieveError) string {
	if rErr.ErrorDescription != "" {
		return rErr.ErrorCode + " (" + rErr.ErrorDescription + ")"
	}
	return rErr.ErrorCode
}
