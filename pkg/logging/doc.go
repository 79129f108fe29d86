// Package logging provides the structured logging facade used across authbot.
//
// It is a thin layer over Go's log/slog that tags every entry with a
// subsystem and keeps printf-style call sites short:
//
//	logging.InitForCLI(logging.LevelInfo, os.Stdout)
//
//	logging.Info("Callback", "Issued attempt for conversation=%s", logging.TruncateID(convID))
//	logging.Warn("Dialog", "Unknown command %q", text)
//	logging.Error("Refresh", err, "Token refresh failed")
//
// # Secrets
//
// Access tokens, refresh tokens and magic codes are never logged. Conversation
// and user identifiers are passed through TruncateID so only a short prefix
// appears in output.
//
// # Audit Logging
//
// Sign-in completion, logout and forced re-authentication are emitted through
// Audit so that log pipelines can filter on the [AUDIT] prefix:
//
//	logging.Audit(logging.AuditEvent{
//	    Action:       "sign_in",
//	    Outcome:      "success",
//	    Conversation: logging.TruncateID(addr.ConversationID),
//	})
package logging
