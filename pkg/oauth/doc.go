// Package oauth holds the provider token representation shared by the
// sign-in packages, a RedactedToken wrapper for secrets that must not be
// printed, state-derived PKCE pairs and WWW-Authenticate parsing for
// resource clients.
//
// Conversions from golang.org/x/oauth2 tokens keep the id_token and scope
// extras:
//
//	tok := oauth.FromOAuth2Token(exchanged)
//	tok.SetExpiresAtFromExpiresIn(time.Now())
package oauth
