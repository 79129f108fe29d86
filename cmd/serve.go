package cmd

import (
	"context"
	"fmt"

	"authbot/internal/app"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sign-in front end and the configured chat transport",
		Long: `Starts the HTTP front end that serves sign-in links and the OAuth callback,
and connects the dialog to the configured messaging transport:

  webhook  replies are POSTed to messaging.webhook.url, turns arrive on server.messagesPath
  kafka    turns are consumed from messaging.kafka.inboundTopic, replies go to outboundTopic

The process runs until interrupted (Ctrl+C) or terminated (SIGTERM).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			cfg := app.NewConfig(debug, configPath)
			cfg.LogJSON = logJSON

			application, err := app.NewApplication(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			return application.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON lines")
	return cmd
}
