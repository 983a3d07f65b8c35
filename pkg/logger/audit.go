package logger

import (
	"context"
	"log/slog"
	"time"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security events to the structured log under msg "audit".
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

func (al *AuditLogger) emit(ctx context.Context, auditType string, event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogAuthAttempt logs authentication attempts (password, OTP, magic link)
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	al.emit(ctx, "auth", event)
}

// LogPasswordChange logs password changes and resets
func (al *AuditLogger) LogPasswordChange(ctx context.Context, eventType, userID string, success bool) {
	al.emit(ctx, "password", AuditEvent{EventType: eventType, UserID: userID, Success: success})
}

// LogAccountAction logs general account actions
func (al *AuditLogger) LogAccountAction(ctx context.Context, eventType, userID string, metadata map[string]string) {
	al.emit(ctx, "account", AuditEvent{EventType: eventType, UserID: userID, Success: true, Metadata: metadata})
}

// LogTokenEvent logs refresh-token lifecycle events. Replays are logged
// with success=false so they surface at warn level.
func (al *AuditLogger) LogTokenEvent(ctx context.Context, eventType, userID string, success bool, metadata map[string]string) {
	al.emit(ctx, "token", AuditEvent{EventType: eventType, UserID: userID, Success: success, Metadata: metadata})
}
