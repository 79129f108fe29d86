package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"authbot/internal/address"
	"authbot/internal/callback"
	"authbot/internal/config"
	"authbot/internal/dialog"
	"authbot/internal/mailbox"
	"authbot/internal/messaging"
	"authbot/internal/pending"
	"authbot/internal/refresh"
	"authbot/internal/server"
	"authbot/internal/session"
	"authbot/pkg/logging"
)

// mailboxRetryMax bounds retries of the mail API on 5xx responses.
const mailboxRetryMax = 2

// Services holds every component the application wires together.
//
// Initialization order follows the dependencies:
//  1. Correlation codec, pending store and session store
//  2. Identity provider client and token refresher
//  3. Outbound messenger
//  4. Dialog machine and engine
//  5. Callback handler and HTTP server
//  6. Kafka consumer, when Kafka is the transport
type Services struct {
	Config *config.AuthbotConfig

	Codec     *address.Codec
	Pending   *pending.Store
	Sessions  session.Store
	Refresher *refresh.Refresher
	Engine    *dialog.Engine
	Callback  *callback.Handler
	Server    *server.Server

	Messenger messaging.Messenger

	// Consumer is nil unless the Kafka transport is configured.
	Consumer *messaging.KafkaConsumer
}

// InitializeServices creates every component from cfg.AuthbotConfig.
// Identity provider discovery happens here, so ctx bounds the network calls
// made at startup and must stay valid for the life of the services.
func InitializeServices(ctx context.Context, cfg *Config) (*Services, error) {
	ac := cfg.AuthbotConfig

	if err := server.ValidatePublicURL(ac.Server.PublicURL); err != nil {
		return nil, err
	}

	codec, err := address.NewCodec([]byte(ac.Correlation.SigningKey), ac.Correlation.LinkTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create correlation codec: %w", err)
	}

	sessions, err := OpenSessionStore(ac.Store)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: config.DefaultHTTPTimeout}

	var pkceKey []byte
	if !ac.OAuth.DisablePKCE {
		pkceKey = []byte(ac.Correlation.SigningKey)
	}

	auth, err := server.NewOIDCAuthenticator(ctx, server.OIDCConfig{
		IssuerURL:       ac.OAuth.IssuerURL,
		ClientID:        ac.OAuth.ClientID,
		ClientSecret:    ac.OAuth.ClientSecret,
		RedirectURL:     strings.TrimSuffix(ac.Server.PublicURL, "/") + ac.Server.CallbackPath,
		Scopes:          ac.OAuth.Scopes,
		TokenURL:        ac.OAuth.TokenURL,
		SkipIssuerCheck: ac.OAuth.SkipIssuerCheck,
		PKCEKey:         pkceKey,
		HTTPClient:      httpClient,
	})
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("failed to initialize identity provider: %w", err)
	}

	provider := refresh.NewOAuth2Provider(ac.OAuth.ClientID, ac.OAuth.ClientSecret, auth.TokenURL(), ac.OAuth.Scopes, httpClient)
	refresher := refresh.New(provider, sessions, refresh.Config{
		Skew:           ac.Refresh.Skew,
		Timeout:        ac.Refresh.Timeout,
		MaxAttempts:    ac.Refresh.MaxAttempts,
		InitialBackoff: ac.Refresh.InitialBackoff,
		MaxBackoff:     ac.Refresh.MaxBackoff,
	})

	messages, err := dialog.NewMessages(ac.Dialog.Messages)
	if err != nil {
		_ = sessions.Close()
		return nil, fmt.Errorf("invalid dialog messages: %w", err)
	}

	messenger := cfg.Messenger
	if messenger == nil {
		messenger, err = newMessenger(ac.Messaging)
		if err != nil {
			_ = sessions.Close()
			return nil, err
		}
	}

	store := pending.NewStore(
		pending.WithTTL(ac.Pending.TTL),
		pending.WithSweepInterval(ac.Pending.SweepInterval),
		pending.WithMaxFailures(ac.Dialog.MaxCodeAttempts),
	)

	mail := mailbox.NewClient(ac.Mailbox.BaseURL, ac.Mailbox.Timeout, mailboxRetryMax)

	link := func(addr address.Address) (string, error) {
		return codec.SignInURL(ac.Server.PublicURL, ac.Server.LoginPath, addr)
	}
	machine := dialog.NewMachine(store, refresher, link, messages,
		dialog.WithAction("email", "show the subject of your latest email", mail.Action()),
	)
	engine := dialog.NewEngine(machine, sessions, messenger)

	handler := callback.NewHandler(codec, store, messenger, messages,
		callback.WithCodeInChat(ac.Dialog.CodeInChat),
		callback.WithNotifier(engine),
	)

	srv := server.New(server.Config{
		ListenAddr:    ac.Server.ListenAddr(),
		LoginPath:     ac.Server.LoginPath,
		CallbackPath:  ac.Server.CallbackPath,
		MessagesPath:  ac.Server.MessagesPath,
		MessagesToken: ac.Messaging.Webhook.Token,
	}, auth, codec, handler, engine)

	var consumer *messaging.KafkaConsumer
	if cfg.Messenger == nil && ac.Messaging.Transport == config.TransportKafka {
		k := ac.Messaging.Kafka
		consumer = messaging.NewKafkaConsumer(k.Brokers, k.InboundTopic, k.GroupID, engine)
	}

	logging.Info("Bootstrap", "Services initialized (transport=%s store=%s)", ac.Messaging.Transport, ac.Store.Driver)

	return &Services{
		Config:    ac,
		Codec:     codec,
		Pending:   store,
		Sessions:  sessions,
		Refresher: refresher,
		Engine:    engine,
		Callback:  handler,
		Server:    srv,
		Messenger: messenger,
		Consumer:  consumer,
	}, nil
}

// OpenSessionStore opens the configured auth session store.
func OpenSessionStore(cfg config.StoreConfig) (session.Store, error) {
	switch cfg.Driver {
	case config.StoreDriverSQLite:
		store, err := session.OpenSQLite(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		return store, nil
	case config.StoreDriverMemory, "":
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session store driver %q", cfg.Driver)
	}
}

func newMessenger(cfg config.MessagingConfig) (messaging.Messenger, error) {
	switch cfg.Transport {
	case config.TransportWebhook:
		return messaging.NewWebhookMessenger(cfg.Webhook.URL, cfg.Webhook.Token, cfg.Webhook.RetryMax, cfg.Webhook.Timeout), nil
	case config.TransportKafka:
		return messaging.NewKafkaMessenger(cfg.Kafka.Brokers, cfg.Kafka.OutboundTopic), nil
	case config.TransportConsole:
		return nil, fmt.Errorf("the console transport is only available through 'authbot chat'")
	default:
		return nil, fmt.Errorf("unknown messaging transport %q", cfg.Transport)
	}
}
