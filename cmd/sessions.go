package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"authbot/internal/app"
	"authbot/internal/config"
	"authbot/internal/session"
	"authbot/pkg/logging"
	"authbot/pkg/strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

func newSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List stored auth sessions",
		Long: `Lists the auth sessions in the configured session store, most recently
updated first. Token values are never printed.

Only persistent stores (store.driver: sqlite) hold sessions between runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			logging.InitForCLI(level, os.Stderr)

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}

			store, err := app.OpenSessionStore(cfg.Store)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			sessions, err := store.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}

			renderSessions(cmd.OutOrStdout(), sessions, time.Now())
			return nil
		},
	}
}

// renderSessions writes sessions as a table.
func renderSessions(w io.Writer, sessions []*session.Session, now time.Time) {
	if len(sessions) == 0 {
		fmt.Fprintln(w, text.FgYellow.Sprint("No sessions found"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"TRANSPORT", "CONVERSATION", "USER", "NAME", "STATUS", "TOKEN EXPIRES", "UPDATED"})

	for _, s := range sessions {
		t.AppendRow(table.Row{
			s.Address.TransportID,
			logging.TruncateID(s.Address.ConversationID),
			logging.TruncateID(s.Address.UserID),
			strings.Clip(s.DisplayName, strings.NameMaxLen),
			statusText(s.Status),
			expiresText(s.AccessTokenExpiresAt, now),
			s.UpdatedAt.Local().Format(time.DateTime),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Total", len(sessions)})
	t.Render()
}

func statusText(s session.Status) string {
	switch s {
	case session.StatusAuthenticated:
		return text.FgGreen.Sprint(s)
	case session.StatusRefreshing:
		return text.FgYellow.Sprint(s)
	case session.StatusLoggedOut:
		return text.FgRed.Sprint(s)
	default:
		return text.FgHiBlack.Sprint(s)
	}
}

func expiresText(expiresAt, now time.Time) string {
	switch {
	case expiresAt.IsZero():
		return "-"
	case !now.Before(expiresAt):
		return "expired"
	default:
		return "in " + expiresAt.Sub(now).Round(time.Second).String()
	}
}
