package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"authbot/pkg/logging"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/authbot"
	configFileName = "config.yaml"
)

// osUserHomeDir is swapped in tests.
var osUserHomeDir = os.UserHomeDir

// GetDefaultConfigPath returns ~/.config/authbot/config.yaml.
func GetDefaultConfigPath() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine user config directory: %w", err)
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

// Override adjusts a loaded configuration before it is validated.
type Override func(*AuthbotConfig)

// LoadConfig loads configuration from configFilePath. An empty path means the
// default location. A missing file is not an error: defaults are used.
// AUTHBOT_* environment variables override file values, then overrides run
// in order and the result is validated.
func LoadConfig(configFilePath string, overrides ...Override) (AuthbotConfig, error) {
	if configFilePath == "" {
		p, err := GetDefaultConfigPath()
		if err != nil {
			return AuthbotConfig{}, err
		}
		configFilePath = p
	}

	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
	case err != nil:
		return AuthbotConfig{}, NewConfigurationError(configFilePath, "io", err.Error())
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return AuthbotConfig{}, NewConfigurationError(configFilePath, "parse", err.Error())
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	}

	if err := env.Parse(&config); err != nil {
		return AuthbotConfig{}, NewConfigurationError(configFilePath, "env", err.Error())
	}

	for _, o := range overrides {
		o(&config)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return AuthbotConfig{}, err
	}
	return config, nil
}

// applyDefaults fills zero values a partial YAML file may have left behind.
func (c *AuthbotConfig) applyDefaults() {
	d := GetDefaultConfig()

	if c.Server.Host == "" {
		c.Server.Host = d.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = d.Server.Port
	}
	if c.Server.LoginPath == "" {
		c.Server.LoginPath = d.Server.LoginPath
	}
	if c.Server.CallbackPath == "" {
		c.Server.CallbackPath = d.Server.CallbackPath
	}
	if c.Server.MessagesPath == "" {
		c.Server.MessagesPath = d.Server.MessagesPath
	}
	if c.Server.PublicURL == "" {
		c.Server.PublicURL = fmt.Sprintf("http://%s", c.Server.ListenAddr())
	}
	if len(c.OAuth.Scopes) == 0 {
		c.OAuth.Scopes = d.OAuth.Scopes
	}
	if c.Correlation.LinkTTL <= 0 {
		c.Correlation.LinkTTL = d.Correlation.LinkTTL
	}
	if c.Pending.TTL <= 0 {
		c.Pending.TTL = d.Pending.TTL
	}
	if c.Pending.SweepInterval <= 0 {
		c.Pending.SweepInterval = d.Pending.SweepInterval
	}
	if c.Dialog.MaxCodeAttempts <= 0 {
		c.Dialog.MaxCodeAttempts = d.Dialog.MaxCodeAttempts
	}
	if c.Refresh.Skew <= 0 {
		c.Refresh.Skew = d.Refresh.Skew
	}
	if c.Refresh.Timeout <= 0 {
		c.Refresh.Timeout = d.Refresh.Timeout
	}
	if c.Refresh.MaxAttempts <= 0 {
		c.Refresh.MaxAttempts = d.Refresh.MaxAttempts
	}
	if c.Refresh.InitialBackoff <= 0 {
		c.Refresh.InitialBackoff = d.Refresh.InitialBackoff
	}
	if c.Refresh.MaxBackoff <= 0 {
		c.Refresh.MaxBackoff = d.Refresh.MaxBackoff
	}
	if c.Store.Driver == "" {
		c.Store.Driver = d.Store.Driver
	}
	if c.Messaging.Transport == "" {
		c.Messaging.Transport = d.Messaging.Transport
	}
	if c.Messaging.Webhook.RetryMax <= 0 {
		c.Messaging.Webhook.RetryMax = d.Messaging.Webhook.RetryMax
	}
	if c.Messaging.Webhook.Timeout <= 0 {
		c.Messaging.Webhook.Timeout = d.Messaging.Webhook.Timeout
	}
	if c.Messaging.Kafka.InboundTopic == "" {
		c.Messaging.Kafka.InboundTopic = d.Messaging.Kafka.InboundTopic
	}
	if c.Messaging.Kafka.OutboundTopic == "" {
		c.Messaging.Kafka.OutboundTopic = d.Messaging.Kafka.OutboundTopic
	}
	if c.Messaging.Kafka.GroupID == "" {
		c.Messaging.Kafka.GroupID = d.Messaging.Kafka.GroupID
	}
	if c.Mailbox.BaseURL == "" {
		c.Mailbox.BaseURL = d.Mailbox.BaseURL
	}
	if c.Mailbox.Timeout <= 0 {
		c.Mailbox.Timeout = d.Mailbox.Timeout
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}
