package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"authbot/internal/address"
	"authbot/internal/app"
	"authbot/internal/config"
	"authbot/internal/messaging"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
)

// consoleTransportID marks conversations typed into a local terminal.
const consoleTransportID = "console"

func newChatCmd() *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the bot from this terminal",
		Long: `Starts the HTTP front end and opens an interactive conversation with the bot
in this terminal. Sign-in links printed by the bot open the real identity
provider; after signing in, type the code shown in the browser.

Type 'exit' or press Ctrl+D to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return runChat(ctx, user)
		},
	}

	cmd.Flags().StringVar(&user, "user", os.Getenv("USER"), "User id for the local conversation")
	return cmd
}

func runChat(ctx context.Context, user string) error {
	if strings.TrimSpace(user) == "" {
		user = "local"
	}
	local := address.New(consoleTransportID, "terminal-"+user, user)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     filepath.Join(os.TempDir(), ".authbot_chat_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()

	cfg := app.NewConfig(debug, configPath)
	cfg.LogOutput = rl.Stderr()
	cfg.Messenger = messaging.NewConsoleMessenger(rl.Stdout(), local)
	cfg.Overrides = append(cfg.Overrides, func(c *config.AuthbotConfig) {
		c.Messaging.Transport = config.TransportConsole
	})

	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(ctx) }()

	fmt.Fprintf(rl.Stdout(), "Connected as %s. Say hello to start.\n", user)
	loopErr := chatLoop(ctx, rl, application.Services().Engine, local)

	cancel()
	return errors.Join(loopErr, <-runErr)
}

// lineReader is the part of *readline.Instance the chat loop uses.
type lineReader interface {
	Readline() (string, error)
}

// chatLoop forwards every non-empty line to the dialog until EOF, "exit" or
// cancellation. Turn failures are reported and the loop continues.
func chatLoop(ctx context.Context, in lineReader, turns messaging.TurnHandler, local address.Address) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := in.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" {
			return nil
		}

		if err := turns.HandleTurn(ctx, local, input); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}
