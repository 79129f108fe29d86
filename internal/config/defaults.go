package config

import (
	"net"
	"strconv"
	"time"
)

const (
	DefaultHost         = "localhost"
	DefaultPort         = 3979
	DefaultLoginPath    = "/login"
	DefaultCallbackPath = "/oauth/callback"
	DefaultMessagesPath = "/api/messages"

	DefaultLinkTTL       = time.Hour
	DefaultPendingTTL    = 10 * time.Minute
	DefaultSweepInterval = time.Minute

	DefaultMaxCodeAttempts = 5

	DefaultRefreshSkew    = 30 * time.Second
	DefaultRefreshTimeout = 10 * time.Second
	DefaultRefreshTries   = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 5 * time.Second

	DefaultWebhookRetryMax = 3
	DefaultHTTPTimeout     = 10 * time.Second

	DefaultKafkaInboundTopic  = "authbot.turns"
	DefaultKafkaOutboundTopic = "authbot.replies"
	DefaultKafkaGroupID       = "authbot"

	DefaultMailboxURL = "https://outlook.office.com/api/v2.0"
	DefaultLogLevel   = "info"
)

// DefaultScopes are requested when the configuration names none.
var DefaultScopes = []string{"openid", "profile", "email", "offline_access"}

// GetDefaultConfig returns the default configuration.
func GetDefaultConfig() AuthbotConfig {
	return AuthbotConfig{
		Server: ServerConfig{
			Host:         DefaultHost,
			Port:         DefaultPort,
			LoginPath:    DefaultLoginPath,
			CallbackPath: DefaultCallbackPath,
			MessagesPath: DefaultMessagesPath,
		},
		OAuth: OAuthConfig{
			Scopes: append([]string(nil), DefaultScopes...),
		},
		Correlation: CorrelationConfig{
			LinkTTL: DefaultLinkTTL,
		},
		Pending: PendingConfig{
			TTL:           DefaultPendingTTL,
			SweepInterval: DefaultSweepInterval,
		},
		Dialog: DialogConfig{
			MaxCodeAttempts: DefaultMaxCodeAttempts,
		},
		Refresh: RefreshConfig{
			Skew:           DefaultRefreshSkew,
			Timeout:        DefaultRefreshTimeout,
			MaxAttempts:    DefaultRefreshTries,
			InitialBackoff: DefaultInitialBackoff,
			MaxBackoff:     DefaultMaxBackoff,
		},
		Store: StoreConfig{
			Driver: StoreDriverMemory,
		},
		Messaging: MessagingConfig{
			Transport: TransportWebhook,
			Webhook: WebhookConfig{
				RetryMax: DefaultWebhookRetryMax,
				Timeout:  DefaultHTTPTimeout,
			},
			Kafka: KafkaConfig{
				InboundTopic:  DefaultKafkaInboundTopic,
				OutboundTopic: DefaultKafkaOutboundTopic,
				GroupID:       DefaultKafkaGroupID,
			},
		},
		Mailbox: MailboxConfig{
			BaseURL: DefaultMailboxURL,
			Timeout: DefaultHTTPTimeout,
		},
		LogLevel: DefaultLogLevel,
	}
}

// ListenAddr returns host:port for the HTTP server.
func (c ServerConfig) ListenAddr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
