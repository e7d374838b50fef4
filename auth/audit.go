package auth

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent identifies the lifecycle transition being logged.
type AuditEvent string

const (
	AuditSessionCreated     AuditEvent = "session_created"
	AuditSessionValidated   AuditEvent = "session_validated"
	AuditSessionInvalidated AuditEvent = "session_invalidated"
	AuditSessionTerminated  AuditEvent = "session_terminated"
	AuditSessionRefreshed   AuditEvent = "session_refreshed"
	AuditRefreshFailed      AuditEvent = "refresh_failed"
	AuditSignInFailed       AuditEvent = "signin_failed"
	AuditSignUpFailed       AuditEvent = "signup_failed"
)

// auditLogger wraps slog.Logger for structured session lifecycle logging.
// One line per transition, carrying identity id, event name and timestamp,
// so the stream can be redirected to a durable audit sink without changing
// callers.
type auditLogger struct {
	logger *slog.Logger
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{
		logger: logger.With("component", "session_audit"),
	}
}

func (al *auditLogger) log(event AuditEvent, userID string, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("event", string(event)),
		slog.String("user_id", userID),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}
	attrs = append(attrs, extra...)
	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "session", attrs...)
}

func (al *auditLogger) logReason(event AuditEvent, userID, reason string) {
	al.log(event, userID, slog.String("reason", reason))
}
