package oauth

import "errors"

// ErrTokenRejected is returned by resource clients when the server answered
// 401 for the presented access token. Callers refresh once and retry.
var ErrTokenRejected = errors.New("oauth: access token rejected by resource server")
