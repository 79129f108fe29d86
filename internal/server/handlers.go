package server

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"authbot/internal/address"
	"authbot/internal/callback"
	"authbot/internal/identity"
	"authbot/internal/messaging"
	"authbot/pkg/logging"
)

// handleLogin sends the browser to the provider. The correlation token is
// checked first so expired links fail here instead of after the user signed in.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		renderErrorPage(w, http.StatusBadRequest, "This sign-in link is incomplete. Ask the bot for a new one.")
		return
	}

	addr, err := s.states.Decode(state)
	if err != nil {
		logging.Warn("Server", "Login with invalid correlation token: %v", err)
		renderErrorPage(w, http.StatusBadRequest, "This sign-in link has expired. Ask the bot for a new one.")
		return
	}

	logging.Debug("Server", "Redirecting conversation %s to the identity provider",
		logging.TruncateID(addr.ConversationID))
	http.Redirect(w, r, s.auth.AuthCodeURL(state), http.StatusFound)
}

// handleCallback completes the authorization code flow.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	code := query.Get("code")
	state := query.Get("state")

	if errParam := query.Get("error"); errParam != "" {
		logging.Warn("Server", "OAuth callback received error: %s - %s", errParam, query.Get("error_description"))
		renderErrorPage(w, http.StatusBadRequest, "Sign-in was cancelled or refused by the identity provider.")
		return
	}

	if code == "" || state == "" {
		logging.Warn("Server", "OAuth callback missing code or state parameter")
		renderErrorPage(w, http.StatusBadRequest, "Invalid callback: missing required parameters.")
		return
	}

	// Reject forged or stale state before spending the code.
	if _, err := s.states.Decode(state); err != nil {
		logging.Warn("Server", "OAuth callback with invalid correlation token: %v", err)
		renderErrorPage(w, http.StatusBadRequest, "This sign-in link has expired. Ask the bot for a new one.")
		return
	}

	claims, token, err := s.auth.Exchange(r.Context(), code, state)
	if err != nil {
		logging.Error("Server", err, "Failed to exchange authorization code")
		renderErrorPage(w, http.StatusBadGateway, "Failed to complete sign-in. Please try again.")
		return
	}

	conf, err := s.callbacks.Handle(r.Context(), callback.Result{
		Claims: claims,
		Token:  token,
		State:  state,
	})
	switch {
	case errors.Is(err, address.ErrDecode):
		renderErrorPage(w, http.StatusBadRequest, "This sign-in link has expired. Ask the bot for a new one.")
		return
	case errors.Is(err, identity.ErrIdentityRejected):
		renderErrorPage(w, http.StatusForbidden, "Your account could not be identified. Try a different account.")
		return
	case err != nil:
		logging.Error("Server", err, "Callback handling failed")
		renderErrorPage(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}

	renderSuccessPage(w, conf, s.now())
}

// handleMessages accepts one inbound turn and runs it to completion before
// answering, so connectors see dialog failures as 5xx.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MessagesToken != "" && !bearerMatches(r, s.cfg.MessagesToken) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="authbot"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEnvelopeBytes))
	if err != nil {
		http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
		return
	}

	env, err := messaging.DecodeEnvelope(body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.turns.HandleTurn(r.Context(), env.Address, env.Text); err != nil {
		logging.Error("Server", err, "Turn for conversation %s failed",
			logging.TruncateID(env.Address.ConversationID))
		http.Error(w, "turn failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func bearerMatches(r *http.Request, want string) bool {
	got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
