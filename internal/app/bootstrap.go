package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"authbot/internal/config"
	"authbot/pkg/logging"
)

// Application bootstraps and runs authbot.
//
// Initialization happens in two phases:
//  1. Bootstrap: load configuration, initialize logging, build services
//  2. Execution: serve HTTP and consume turns until shutdown
//
// Example usage:
//
//	cfg := app.NewConfig(false, "")
//	application, err := app.NewApplication(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication creates and initializes a new application instance.
//
//  1. Loads the configuration from cfg.ConfigPath unless cfg.AuthbotConfig is set
//  2. Configures logging from the configured level, or debug when cfg.Debug is set
//  3. Initializes every service, including identity provider discovery
func NewApplication(ctx context.Context, cfg *Config) (*Application, error) {
	if cfg.AuthbotConfig == nil {
		authbotCfg, err := config.LoadConfig(cfg.ConfigPath, cfg.Overrides...)
		if err != nil {
			return nil, fmt.Errorf("failed to load authbot configuration: %w", err)
		}
		cfg.AuthbotConfig = &authbotCfg
	}

	level := logging.ParseLevel(cfg.AuthbotConfig.LogLevel)
	if cfg.Debug {
		level = logging.LevelDebug
	}
	var logOutput io.Writer = os.Stderr
	if cfg.LogOutput != nil {
		logOutput = cfg.LogOutput
	}
	format := logging.FormatText
	if cfg.LogJSON {
		format = logging.FormatJSON
	}
	logging.Init(level, format, logOutput)

	services, err := InitializeServices(ctx, cfg)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Services exposes the wired components.
func (a *Application) Services() *Services {
	return a.services
}

// Run serves until ctx is cancelled or SIGINT/SIGTERM arrives, then shuts
// down gracefully.
func (a *Application) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runServer(ctx, a.services)
}
