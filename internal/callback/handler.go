// Package callback correlates a completed browser sign-in with the
// conversation that asked for it.
package callback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"authbot/internal/address"
	"authbot/internal/identity"
	"authbot/internal/metrics"
	"authbot/internal/pending"
	"authbot/pkg/logging"
	"authbot/pkg/oauth"
)

// Result is what the HTTP front end hands over after a successful
// authorization code exchange.
type Result struct {
	// Claims are the verified ID token claims merged with userinfo.
	Claims map[string]any
	Token  *oauth.Token
	// State is the correlation token from the redirect.
	State string
}

// Confirmation is shown to the user in the browser.
type Confirmation struct {
	DisplayName string
	MagicCode   string
	ExpiresAt   time.Time
	// Delivered reports whether the conversation received the prompt.
	Delivered bool
}

// Decoder turns a correlation token back into an address.
type Decoder interface {
	Decode(token string) (address.Address, error)
}

// Issuer records pending attempts.
type Issuer interface {
	Issue(addr address.Address, profile identity.Profile, token *oauth.Token) (*pending.Attempt, error)
}

// Messenger pushes text into a conversation.
type Messenger interface {
	Deliver(ctx context.Context, addr address.Address, text string) error
}

// Notifier is told when a code prompt reached a conversation so the dialog
// can start treating the next turn as a code.
type Notifier interface {
	CodeDelivered(ctx context.Context, addr address.Address)
}

// PromptRenderer renders the message pushed into the conversation.
type PromptRenderer interface {
	CodePrompt(displayName, code string, validFor time.Duration) string
}

// Handler runs the callback steps: decode, normalize, issue, deliver, notify.
type Handler struct {
	decoder    Decoder
	issuer     Issuer
	messenger  Messenger
	notifier   Notifier
	prompts    PromptRenderer
	codeInChat bool
	now        func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithCodeInChat includes the magic code in the chat prompt.
func WithCodeInChat(enabled bool) Option {
	return func(h *Handler) {
		h.codeInChat = enabled
	}
}

// WithNotifier sets the dialog notifier.
func WithNotifier(n Notifier) Option {
	return func(h *Handler) {
		h.notifier = n
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) {
		h.now = now
	}
}

// NewHandler creates a callback handler.
func NewHandler(decoder Decoder, issuer Issuer, messenger Messenger, prompts PromptRenderer, opts ...Option) *Handler {
	h := &Handler{
		decoder:   decoder,
		issuer:    issuer,
		messenger: messenger,
		prompts:   prompts,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle correlates res with its conversation. A bad correlation token yields
// an error wrapping address.ErrDecode; an unusable profile one wrapping
// identity.ErrIdentityRejected. In both cases no attempt is created.
//
// Failing to reach the conversation is not an error: the confirmation still
// carries the code so the browser page can show it.
func (h *Handler) Handle(ctx context.Context, res Result) (*Confirmation, error) {
	addr, err := h.decoder.Decode(res.State)
	if err != nil {
		metrics.CallbackResults.WithLabelValues("bad_state").Inc()
		logging.Warn("Callback", "Rejected callback with invalid correlation token: %v", err)
		return nil, err
	}

	conv := logging.TruncateID(addr.ConversationID)

	profile, err := identity.FromClaims(res.Claims)
	if err != nil {
		metrics.CallbackResults.WithLabelValues("identity_rejected").Inc()
		logging.Warn("Callback", "Rejected profile for conversation %s: %v", conv, err)
		return nil, err
	}

	if res.Token == nil || res.Token.AccessToken == "" {
		metrics.CallbackResults.WithLabelValues("no_token").Inc()
		return nil, errors.New("callback: provider returned no access token")
	}

	attempt, err := h.issuer.Issue(addr, profile, res.Token)
	if err != nil {
		metrics.CallbackResults.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("issue attempt: %w", err)
	}

	logging.Audit(logging.AuditEvent{
		Action:       "attempt_issued",
		Outcome:      "success",
		Transport:    addr.TransportID,
		Conversation: conv,
		Principal:    profile.PrincipalID,
	})

	code := ""
	if h.codeInChat {
		code = attempt.MagicCode
	}
	text := h.prompts.CodePrompt(profile.DisplayName, code, attempt.ExpiresAt.Sub(h.now()))

	delivered := true
	if err := h.messenger.Deliver(ctx, addr, text); err != nil {
		delivered = false
		logging.Error("Callback", err, "Failed to deliver code prompt to conversation %s", conv)
	}

	if h.notifier != nil {
		h.notifier.CodeDelivered(ctx, addr)
	}

	metrics.CallbackResults.WithLabelValues("success").Inc()
	logging.Info("Callback", "Issued sign-in attempt for conversation %s (delivered=%t)", conv, delivered)

	return &Confirmation{
		DisplayName: profile.DisplayName,
		MagicCode:   attempt.MagicCode,
		ExpiresAt:   attempt.ExpiresAt,
		Delivered:   delivered,
	}, nil
}
