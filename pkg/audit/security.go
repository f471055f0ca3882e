// Package audit provides security audit logging for SIEM consumption.
// It logs security-relevant events in structured JSON format for easy parsing
// and integration with security information and event management systems.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ekaya-inc/ekaya-rest/pkg/auth"
	"github.com/ekaya-inc/ekaya-rest/pkg/logging"
	"github.com/ekaya-inc/ekaya-rest/pkg/middleware"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventSQLInjectionAttempt is logged when libinjection flags a filter value.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
	// EventWriteDenied is logged when a write is refused for identity or ownership.
	EventWriteDenied SecurityEventType = "write_denied"
	// EventWriteExecuted is logged for completed writes (optional, can be high volume).
	EventWriteExecuted SecurityEventType = "write_executed"
)

// SecurityEvent represents an auditable security event with all relevant context
// for SIEM ingestion and analysis.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	ProjectID uuid.UUID         `json:"project_id"`
	RequestID string            `json:"request_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Role      string            `json:"role,omitempty"`
	ClientIP  string            `json:"client_ip,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// SQLInjectionDetails contains specifics of a flagged filter value.
type SQLInjectionDetails struct {
	Table       string `json:"table"`
	Column      string `json:"column"`
	Value       string `json:"value"`
	Fingerprint string `json:"fingerprint"` // libinjection fingerprint for pattern analysis
	Rejected    bool   `json:"rejected"`
}

// WriteDetails describes a denied or completed write.
type WriteDetails struct {
	Table        string `json:"table"`
	Operation    string `json:"operation"`
	Reason       string `json:"reason,omitempty"`
	RowsAffected int64  `json:"rows_affected,omitempty"`
}

// SecurityAuditor logs security events for SIEM consumption.
// Events are logged in structured JSON format with appropriate severity levels.
type SecurityAuditor struct {
	logger *zap.Logger
}

// NewSecurityAuditor creates a new security auditor with a dedicated logger namespace.
// The logger is automatically configured with "security_audit" namespace for easy
// filtering in SIEM systems.
func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{logger: logger.Named("security_audit")}
}

// LogInjectionAttempt records a filter value libinjection flagged. Rejected
// values are logged at ERROR with "critical" severity; values that were only
// flagged (and still bound as parameters) at WARN.
func (a *SecurityAuditor) LogInjectionAttempt(ctx context.Context, session *auth.Session, details SQLInjectionDetails) {
	details.Value = logging.TruncateString(details.Value, logging.MaxParamLogLength)

	severity, level := "warning", zap.WarnLevel
	if details.Rejected {
		severity, level = "critical", zap.ErrorLevel
	}

	event := a.event(ctx, session, EventSQLInjectionAttempt, details, severity)
	a.write(level, "SQL injection attempt detected", event,
		zap.String("table", details.Table),
		zap.String("column", details.Column),
		zap.String("fingerprint", details.Fingerprint),
		zap.Bool("rejected", details.Rejected))
}

// LogWriteDenied records a write refused by the ownership guard.
func (a *SecurityAuditor) LogWriteDenied(ctx context.Context, session *auth.Session, details WriteDetails) {
	event := a.event(ctx, session, EventWriteDenied, details, "warning")
	a.write(zap.WarnLevel, "Write denied", event,
		zap.String("table", details.Table),
		zap.String("operation", details.Operation),
		zap.String("reason", details.Reason))
}

// LogWriteExecuted records a completed write for the audit trail.
// Note: This can generate high log volume in production.
func (a *SecurityAuditor) LogWriteExecuted(ctx context.Context, session *auth.Session, details WriteDetails) {
	event := a.event(ctx, session, EventWriteExecuted, details, "info")
	a.write(zap.InfoLevel, "Write executed", event,
		zap.String("table", details.Table),
		zap.String("operation", details.Operation),
		zap.Int64("rows_affected", details.RowsAffected))
}

func (a *SecurityAuditor) event(ctx context.Context, session *auth.Session, eventType SecurityEventType, details any, severity string) SecurityEvent {
	event := SecurityEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		RequestID: middleware.RequestIDFromContext(ctx),
		ClientIP:  middleware.ClientIPFromContext(ctx),
		Details:   details,
		Severity:  severity,
	}
	if session != nil {
		event.ProjectID = session.ProjectID
		event.UserID = session.UserID
		event.Role = string(session.Role)
	}
	return event
}

// write logs event both as a JSON blob and as flat fields.
func (a *SecurityAuditor) write(level zapcore.Level, msg string, event SecurityEvent, fields ...zap.Field) {
	ce := a.logger.Check(level, msg)
	if ce == nil {
		return
	}

	// Ignoring error as marshaling known types should never fail
	eventJSON, _ := json.Marshal(event)

	ce.Write(append([]zap.Field{
		zap.String("event_json", string(eventJSON)),
		zap.String("project_id", event.ProjectID.String()),
		zap.String("request_id", event.RequestID),
		zap.String("client_ip", event.ClientIP),
		zap.String("user_id", event.UserID),
		zap.String("role", event.Role),
		zap.String("severity", event.Severity),
	}, fields...)...)
}
