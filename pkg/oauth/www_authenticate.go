package oauth

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

// Bearer error codes from RFC 6750 section 3.1.
const (
	BearerErrorInvalidToken      = "invalid_token"
	BearerErrorInsufficientScope = "insufficient_scope"
)

// AuthChallenge is a parsed WWW-Authenticate challenge.
type AuthChallenge struct {
	Scheme           string
	Realm            string
	Scope            string
	Error            string
	ErrorDescription string
}

// InsufficientScope reports whether the resource wants a token with more
// scopes rather than a fresh one.
func (c *AuthChallenge) InsufficientScope() bool {
	return c != nil && c.Error == BearerErrorInsufficientScope
}

var authParamRegex = regexp.MustCompile(`(\w+)="([^"]*)"`)

// ParseWWWAuthenticate parses a WWW-Authenticate header value.
//
// Example headers:
//
//	Bearer realm="https://outlook.office.com"
//	Bearer error="insufficient_scope", scope="Mail.Read"
func ParseWWWAuthenticate(header string) (*AuthChallenge, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil, fmt.Errorf("empty WWW-Authenticate header")
	}

	parts := strings.SplitN(header, " ", 2)
	challenge := &AuthChallenge{Scheme: parts[0]}

	if len(parts) > 1 {
		params := parseAuthParams(parts[1])
		challenge.Realm = params["realm"]
		challenge.Scope = params["scope"]
		challenge.Error = params["error"]
		challenge.ErrorDescription = params["error_description"]
	}

	return challenge, nil
}

// parseAuthParams parses key="value" pairs. Keys are lowercased.
func parseAuthParams(paramStr string) map[string]string {
	params := make(map[string]string)
	for _, match := range authParamRegex.FindAllStringSubmatch(paramStr, -1) {
		params[strings.ToLower(match[1])] = match[2]
	}
	return params
}

// ParseWWWAuthenticateFromResponse extracts the challenge from a 401 response.
// Returns nil for other statuses or a missing or malformed header.
func ParseWWWAuthenticateFromResponse(resp *http.Response) *AuthChallenge {
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		return nil
	}

	challenge, err := ParseWWWAuthenticate(resp.Header.Get("WWW-Authenticate"))
	if err != nil {
		return nil
	}
	return challenge
}
