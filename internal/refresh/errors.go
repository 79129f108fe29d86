package refresh

import "errors"

var (
	// ErrTransient marks provider failures worth retrying: network errors,
	// timeouts, 5xx and 429 responses.
	ErrTransient = errors.New("refresh: provider temporarily unavailable")

	// ErrInvalidGrant means the refresh token was revoked or has expired.
	// The session is logged out and a full sign-in is required.
	ErrInvalidGrant = errors.New("refresh: refresh token rejected")

	// ErrClientRejected means the token endpoint refused the request itself,
	// e.g. invalid_client or unauthorized_client. It points at the bot's own
	// configuration, so the session keeps its tokens.
	ErrClientRejected = errors.New("refresh: token endpoint rejected the client")

	// ErrNotAuthenticated is returned for sessions without usable credentials.
	ErrNotAuthenticated = errors.New("refresh: session is not authenticated")
)
