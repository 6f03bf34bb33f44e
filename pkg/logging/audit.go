package logging

import (
	"context"
	"log/slog"
)

// AuditEvent describes a security relevant change to a stored session.
// It never carries token material.
type AuditEvent struct {
	// Action is what happened, e.g. "session_created" or "session_removed".
	Action string

	// Outcome is "success" or "failure".
	Outcome string

	// SessionID identifies the session; it is truncated before logging.
	SessionID string

	// Account is the account label the session belongs to.
	Account string

	// Reason is an optional free-form explanation.
	Reason string
}

// Audit logs an audit event at INFO level with an [AUDIT] prefix.
func Audit(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("subsystem", "Audit"),
		slog.String("action", event.Action),
		slog.String("outcome", event.Outcome),
	}
	if event.SessionID != "" {
		attrs = append(attrs, slog.String("session", TruncateSessionID(event.SessionID)))
	}
	if event.Account != "" {
		attrs = append(attrs, slog.String("account", event.Account))
	}
	if event.Reason != "" {
		attrs = append(attrs, slog.String("reason", event.Reason))
	}

	logger().LogAttrs(context.Background(), slog.LevelInfo, "[AUDIT] "+event.Action, attrs...)
}

// TruncateSessionID shortens a session id so that log lines cannot be used
// to correlate it with stored credentials.
func TruncateSessionID(id string) string {
	const keep = 8
	if len(id) <= keep {
		return id
	}
	return id[:keep] + "..."
}
