package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"authbot/internal/address"
	"authbot/internal/callback"
	"authbot/internal/messaging"
	"authbot/internal/metrics"
	"authbot/pkg/logging"
	"authbot/pkg/oauth"
)

const (
	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultWriteTimeout is the default timeout for writing responses.
	DefaultWriteTimeout = 60 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second

	// maxEnvelopeBytes bounds the body of an inbound turn.
	maxEnvelopeBytes = 64 << 10
)

// Config holds the listen address and route paths.
type Config struct {
	ListenAddr   string
	LoginPath    string
	CallbackPath string
	MessagesPath string

	// MessagesToken, when set, must be presented as a bearer token on
	// inbound turns.
	MessagesToken string
}

// Authenticator runs the provider side of the authorization code flow.
type Authenticator interface {
	AuthCodeURL(state string) string
	// Exchange redeems code and returns the verified identity claims and
	// the issued tokens. state is the value AuthCodeURL was called with.
	Exchange(ctx context.Context, code, state string) (map[string]any, *oauth.Token, error)
}

// StateValidator checks a correlation token before the user leaves for the
// provider.
type StateValidator interface {
	Decode(token string) (address.Address, error)
}

// CallbackHandler correlates a completed sign-in with its conversation.
type CallbackHandler interface {
	Handle(ctx context.Context, res callback.Result) (*callback.Confirmation, error)
}

// Server serves the browser leg and inbound turns.
type Server struct {
	cfg        Config
	auth       Authenticator
	states     StateValidator
	callbacks  CallbackHandler
	turns      messaging.TurnHandler
	httpServer *http.Server
	now        func() time.Time
}

// New creates a server. turns may be nil, in which case the messages route
// is not registered.
func New(cfg Config, auth Authenticator, states StateValidator, callbacks CallbackHandler, turns messaging.TurnHandler) *Server {
	s := &Server{
		cfg:       cfg,
		auth:      auth,
		states:    states,
		callbacks: callbacks,
		turns:     turns,
		now:       time.Now,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	return s
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check endpoint for probes
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET "+s.cfg.LoginPath, s.handleLogin)
	mux.HandleFunc("GET "+s.cfg.CallbackPath, s.handleCallback)

	if s.turns != nil {
		mux.HandleFunc("POST "+s.cfg.MessagesPath, s.handleMessages)
	}

	return mux
}

// ListenAndServe blocks serving HTTP until Shutdown is called.
func (s *Server) ListenAndServe() error {
	logging.Info("Server", "Listening on %s (login=%s callback=%s)", s.cfg.ListenAddr, s.cfg.LoginPath, s.cfg.CallbackPath)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ValidatePublicURL ensures sign-in links and redirects use HTTPS.
// Plain HTTP is allowed only for loopback addresses.
func ValidatePublicURL(publicURL string) error {
	if publicURL == "" {
		return fmt.Errorf("public URL cannot be empty")
	}

	u, err := url.Parse(publicURL)
	if err != nil {
		return fmt.Errorf("invalid public URL: %w", err)
	}

	switch u.Scheme {
	case "https":
		return nil
	case "http":
		host := u.Hostname()
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			return fmt.Errorf("public URL must use HTTPS outside localhost (got: %s)", publicURL)
		}
		return nil
	default:
		return fmt.Errorf("invalid URL scheme: %s. Must be http (localhost only) or https", u.Scheme)
	}
}
