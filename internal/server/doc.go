// Package server is the HTTP front end of authbot.
//
// It terminates the browser leg of a sign-in and accepts inbound chat turns
// from HTTP connectors:
//
//   - GET  /login?state=...           validates the correlation token and redirects to the provider
//   - GET  /oauth/callback?code&state exchanges the code, verifies the ID token and issues a magic code
//   - POST /api/messages              accepts an {address, text} envelope for the dialog
//   - GET  /health                    liveness probe
//   - GET  /metrics                   Prometheus metrics
//
// Paths for the first three are configurable. Pages rendered for the browser
// carry restrictive security headers and escape every interpolated value.
package server
