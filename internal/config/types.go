package config

import "time"

// AuthbotConfig is the top-level configuration structure for authbot.
type AuthbotConfig struct {
	Server      ServerConfig      `yaml:"server"`
	OAuth       OAuthConfig       `yaml:"oauth"`
	Correlation CorrelationConfig `yaml:"correlation"`
	Pending     PendingConfig     `yaml:"pending"`
	Dialog      DialogConfig      `yaml:"dialog"`
	Refresh     RefreshConfig     `yaml:"refresh"`
	Store       StoreConfig       `yaml:"store"`
	Messaging   MessagingConfig   `yaml:"messaging"`
	Mailbox     MailboxConfig     `yaml:"mailbox"`
	LogLevel    string            `yaml:"logLevel,omitempty" env:"AUTHBOT_LOG_LEVEL"`
}

// ServerConfig configures the HTTP front end that terminates the browser leg.
type ServerConfig struct {
	Host         string `yaml:"host,omitempty" env:"AUTHBOT_HOST"`           // Host to bind to (default: localhost)
	Port         int    `yaml:"port,omitempty" env:"AUTHBOT_PORT"`           // Port to listen on (default: 3979)
	PublicURL    string `yaml:"publicURL,omitempty" env:"AUTHBOT_PUBLIC_URL"` // Externally reachable base URL used in sign-in links
	LoginPath    string `yaml:"loginPath,omitempty"`
	CallbackPath string `yaml:"callbackPath,omitempty"`
	MessagesPath string `yaml:"messagesPath,omitempty"`
}

// OAuthConfig holds the identity provider client registration.
type OAuthConfig struct {
	IssuerURL    string   `yaml:"issuerURL,omitempty" env:"AUTHBOT_OAUTH_ISSUER_URL"`
	ClientID     string   `yaml:"clientID,omitempty" env:"AUTHBOT_OAUTH_CLIENT_ID"`
	ClientSecret string   `yaml:"clientSecret,omitempty" env:"AUTHBOT_OAUTH_CLIENT_SECRET"`
	Scopes       []string `yaml:"scopes,omitempty" env:"AUTHBOT_OAUTH_SCOPES" envSeparator:","`

	// TokenURL overrides the token endpoint found through discovery.
	TokenURL string `yaml:"tokenURL,omitempty" env:"AUTHBOT_OAUTH_TOKEN_URL"`

	// SkipIssuerCheck accepts ID tokens whose issuer differs from IssuerURL.
	// Needed for multi-tenant "common" endpoints.
	SkipIssuerCheck bool `yaml:"skipIssuerCheck,omitempty"`

	// DisablePKCE drops the S256 challenge for providers that reject it.
	DisablePKCE bool `yaml:"disablePKCE,omitempty" env:"AUTHBOT_OAUTH_DISABLE_PKCE"`
}

// CorrelationConfig configures the signed correlation token carried as OAuth state.
type CorrelationConfig struct {
	SigningKey string        `yaml:"signingKey,omitempty" env:"AUTHBOT_SIGNING_KEY"`
	LinkTTL    time.Duration `yaml:"linkTTL,omitempty"`
}

// PendingConfig configures the in-flight attempt store.
type PendingConfig struct {
	TTL           time.Duration `yaml:"ttl,omitempty"`
	SweepInterval time.Duration `yaml:"sweepInterval,omitempty"`
}

// DialogConfig configures the conversation state machine.
type DialogConfig struct {
	MaxCodeAttempts int `yaml:"maxCodeAttempts,omitempty"`

	// CodeInChat also sends the magic code into the conversation. Off by
	// default: the code is shown only in the browser, so whoever pastes it
	// back proves they completed the browser sign-in.
	CodeInChat bool `yaml:"codeInChat,omitempty" env:"AUTHBOT_CODE_IN_CHAT"`

	// Messages overrides individual message templates by name.
	Messages map[string]string `yaml:"messages,omitempty"`
}

// RefreshConfig configures access token refresh.
type RefreshConfig struct {
	Skew           time.Duration `yaml:"skew,omitempty"`
	Timeout        time.Duration `yaml:"timeout,omitempty"`
	MaxAttempts    int           `yaml:"maxAttempts,omitempty"`
	InitialBackoff time.Duration `yaml:"initialBackoff,omitempty"`
	MaxBackoff     time.Duration `yaml:"maxBackoff,omitempty"`
}

// StoreDriver selects where auth sessions are persisted.
type StoreDriver string

const (
	StoreDriverMemory StoreDriver = "memory"
	StoreDriverSQLite StoreDriver = "sqlite"
)

// StoreConfig configures auth session persistence.
type StoreConfig struct {
	Driver StoreDriver `yaml:"driver,omitempty" env:"AUTHBOT_STORE_DRIVER"`
	Path   string      `yaml:"path,omitempty" env:"AUTHBOT_STORE_PATH"`
}

// Transport names the messaging collaborator used to reach conversations.
type Transport string

const (
	TransportWebhook Transport = "webhook"
	TransportKafka   Transport = "kafka"
	TransportConsole Transport = "console"
)

// MessagingConfig configures how chat turns arrive and how replies leave.
type MessagingConfig struct {
	Transport Transport     `yaml:"transport,omitempty" env:"AUTHBOT_TRANSPORT"`
	Webhook   WebhookConfig `yaml:"webhook,omitempty"`
	Kafka     KafkaConfig   `yaml:"kafka,omitempty"`
}

// WebhookConfig configures outbound delivery through an HTTP connector.
type WebhookConfig struct {
	URL      string        `yaml:"url,omitempty" env:"AUTHBOT_WEBHOOK_URL"`
	Token    string        `yaml:"token,omitempty" env:"AUTHBOT_WEBHOOK_TOKEN"`
	RetryMax int           `yaml:"retryMax,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
}

// KafkaConfig configures the Kafka transport.
type KafkaConfig struct {
	Brokers       []string `yaml:"brokers,omitempty" env:"AUTHBOT_KAFKA_BROKERS" envSeparator:","`
	InboundTopic  string   `yaml:"inboundTopic,omitempty"`
	OutboundTopic string   `yaml:"outboundTopic,omitempty"`
	GroupID       string   `yaml:"groupID,omitempty"`
}

// MailboxConfig configures the "email" action backend.
type MailboxConfig struct {
	BaseURL string        `yaml:"baseURL,omitempty" env:"AUTHBOT_MAILBOX_URL"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}
