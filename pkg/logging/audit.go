package logging

import (
	"context"
	"log/slog"
)

// AuditEvent describes a security relevant action in the sign-in flow.
// Identifiers must already be truncated by the caller.
type AuditEvent struct {
	Action       string
	Outcome      string
	Transport    string
	Conversation string
	Principal    string
	Detail       string
}

// Audit logs a security audit event at INFO level with an [AUDIT] prefix.
func Audit(event AuditEvent) {
	logger := Logger()

	attrs := []slog.Attr{
		slog.String("subsystem", "Audit"),
		slog.String("action", event.Action),
		slog.String("outcome", event.Outcome),
	}
	if event.Transport != "" {
		attrs = append(attrs, slog.String("transport", event.Transport))
	}
	if event.Conversation != "" {
		attrs = append(attrs, slog.String("conversation", event.Conversation))
	}
	if event.Principal != "" {
		attrs = append(attrs, slog.String("principal", event.Principal))
	}
	if event.Detail != "" {
		attrs = append(attrs, slog.String("detail", event.Detail))
	}

	logger.LogAttrs(context.Background(), slog.LevelInfo, "[AUDIT] "+event.Action, attrs...)
}
