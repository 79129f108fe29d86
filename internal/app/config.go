package app

import (
	"io"

	"authbot/internal/config"
	"authbot/internal/messaging"
)

// Config holds the application configuration
type Config struct {
	// Debug forces debug logging regardless of the configured level.
	Debug bool

	// LogJSON switches log output to JSON lines.
	LogJSON bool

	// LogOutput receives log lines. Defaults to os.Stderr.
	LogOutput io.Writer

	// Custom configuration file path (optional)
	ConfigPath string

	// Overrides adjust the loaded configuration before validation.
	Overrides []config.Override

	// Messenger replaces the configured outbound transport. Used by the
	// interactive chat command.
	Messenger messaging.Messenger

	// AuthbotConfig is loaded from ConfigPath when nil.
	AuthbotConfig *config.AuthbotConfig
}

// NewConfig creates a new application configuration
func NewConfig(debug bool, configPath string) *Config {
	return &Config{
		Debug:      debug,
		ConfigPath: configPath,
	}
}
