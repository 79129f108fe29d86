package refresh

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authbot/internal/metrics"
	"authbot/internal/session"
	"authbot/pkg/logging"
	"authbot/pkg/oauth"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"
)

// Config bounds refresh behavior.
type Config struct {
	// Skew refreshes tokens this long before they actually expire.
	Skew time.Duration
	// Timeout bounds each provider call.
	Timeout time.Duration
	// MaxAttempts is the total number of provider calls per refresh.
	MaxAttempts int
	// InitialBackoff and MaxBackoff shape the exponential backoff between calls.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultConfig returns the refresh defaults.
func DefaultConfig() Config {
	return Config{
		Skew:           oauth.DefaultExpiryMargin,
		Timeout:        10 * time.Second,
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// Refresher keeps session access tokens valid. Concurrent refreshes for one
// conversation are collapsed into a single provider exchange, and no store
// lock is held while the exchange is in flight.
type Refresher struct {
	provider Provider
	store    session.Store
	cfg      Config
	now      func() time.Time
	group    singleflight.Group
}

// Option configures a Refresher.
type Option func(*Refresher)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Refresher) {
		r.now = now
	}
}

// New creates a Refresher. Zero values in cfg fall back to DefaultConfig.
func New(provider Provider, store session.Store, cfg Config, opts ...Option) *Refresher {
	d := DefaultConfig()
	if cfg.Skew < 0 {
		cfg.Skew = 0
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = d.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = d.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}

	r := &Refresher{
		provider: provider,
		store:    store,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// EnsureValid returns s unchanged while its access token is outside the skew
// window. Otherwise it refreshes and returns the updated session.
func (r *Refresher) EnsureValid(ctx context.Context, s *session.Session) (*session.Session, error) {
	if !s.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	if !s.NeedsRefresh(r.now(), r.cfg.Skew) {
		return s, nil
	}
	return r.refresh(ctx, s)
}

// ForceRefresh refreshes regardless of the recorded expiry. Used after a
// resource server rejected the access token.
func (r *Refresher) ForceRefresh(ctx context.Context, s *session.Session) (*session.Session, error) {
	if !s.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}
	return r.refresh(ctx, s)
}

func (r *Refresher) refresh(ctx context.Context, s *session.Session) (*session.Session, error) {
	stale := s.AccessToken.Value()

	// The shared call must not die with whichever caller happened to start it.
	sharedCtx := context.WithoutCancel(ctx)
	v, err, _ := r.group.Do(s.Address.Key(), func() (any, error) {
		return r.doRefresh(sharedCtx, s, stale)
	})
	if err != nil {
		return nil, err
	}
	return v.(*session.Session).Clone(), nil
}

func (r *Refresher) doRefresh(ctx context.Context, s *session.Session, stale string) (*session.Session, error) {
	addr := s.Address
	conv := logging.TruncateID(addr.ConversationID)

	current, err := r.store.Get(ctx, addr)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return nil, ErrNotAuthenticated
	case err != nil:
		return nil, fmt.Errorf("load session: %w", err)
	}

	switch {
	case current.Status == session.StatusLoggedOut:
		return nil, ErrInvalidGrant
	case current.IsAuthenticated() && current.AccessToken.Value() != stale:
		// Someone else refreshed while this caller was holding the old token.
		return current, nil
	case !current.IsAuthenticated():
		return nil, ErrNotAuthenticated
	}

	current.Status = session.StatusRefreshing
	current.UpdatedAt = r.now()
	if err := r.store.Save(ctx, current); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	started := time.Now()
	token, err := r.exchange(ctx, current.RefreshToken.Value(), conv)
	metrics.RefreshDuration.Observe(time.Since(started).Seconds())

	now := r.now()
	switch {
	case err == nil:
		token.SetExpiresAtFromExpiresIn(now)
		current.RotateTokens(token, now)
		if err := r.store.Save(ctx, current); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		metrics.RefreshResults.WithLabelValues("success").Inc()
		logging.Info("Refresh", "Refreshed access token for conversation %s", conv)
		return current, nil

	case errors.Is(err, ErrInvalidGrant):
		current.Invalidate(now)
		if saveErr := r.store.Save(ctx, current); saveErr != nil {
			logging.Error("Refresh", saveErr, "Failed to persist logged out session for conversation %s", conv)
		}
		metrics.RefreshResults.WithLabelValues("invalid_grant").Inc()
		logging.Audit(logging.AuditEvent{
			Action:       "session_invalidated",
			Outcome:      "logged_out",
			Transport:    addr.TransportID,
			Conversation: conv,
			Principal:    current.PrincipalID,
			Detail:       "refresh token rejected",
		})
		return nil, err

	case errors.Is(err, ErrClientRejected):
		current.Status = session.StatusAuthenticated
		current.UpdatedAt = now
		if saveErr := r.store.Save(ctx, current); saveErr != nil {
			logging.Error("Refresh", saveErr, "Failed to persist session for conversation %s", conv)
		}
		metrics.RefreshResults.WithLabelValues("client_rejected").Inc()
		logging.Error("Refresh", err, "Token endpoint rejected the refresh for conversation %s; check the OAuth client configuration", conv)
		return nil, err

	default:
		// Tokens are kept: the refresh token may still be good once the provider recovers.
		metrics.RefreshResults.WithLabelValues("transient").Inc()
		logging.Warn("Refresh", "Giving up refreshing conversation %s after %d attempts: %v", conv, r.cfg.MaxAttempts, err)
		if !errors.Is(err, ErrTransient) {
			err = fmt.Errorf("%w: %v", ErrTransient, err)
		}
		return nil, err
	}
}

// exchange calls the provider with per-attempt timeouts and exponential backoff.
// ErrInvalidGrant and ErrClientRejected stop retrying immediately.
func (r *Refresher) exchange(ctx context.Context, refreshToken, conv string) (*oauth.Token, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.InitialBackoff
	eb.MaxInterval = r.cfg.MaxBackoff

	attempt := 0
	op := func() (*oauth.Token, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()

		token, err := r.provider.Refresh(attemptCtx, refreshToken)
		if err == nil {
			return token, nil
		}
		if errors.Is(err, ErrInvalidGrant) || errors.Is(err, ErrClientRejected) {
			return nil, backoff.Permanent(err)
		}
		logging.Debug("Refresh", "Attempt %d/%d for conversation %s failed: %v", attempt, r.cfg.MaxAttempts, conv, err)
		return nil, err
	}

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
	)
}
