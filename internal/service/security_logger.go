// internal/service/security_logger.go
package service

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/gurkanbulca/taskflow/internal/middleware"
	"github.com/gurkanbulca/taskflow/pkg/security"
)

// SecurityLogger provides convenience methods for logging security events
type SecurityLogger struct {
	logger *logrus.Logger
}

func NewSecurityLogger(logger *logrus.Logger) *SecurityLogger {
	return &SecurityLogger{logger: logger}
}

// LogFromContext logs a security event enriched with the caller's client info
func (sl *SecurityLogger) LogFromContext(ctx context.Context, eventType, description, severity string, fields logrus.Fields) {
	if !security.IsValidEventType(eventType) {
		fields = merge(fields, logrus.Fields{"original_event": eventType})
		eventType = security.EventTypeSecurityAlert
	}
	if _, err := security.ParseSeverity(severity); err != nil {
		severity = security.SeverityMedium
	}

	client := middleware.GetClientInfoFromContext(ctx)
	entry := sl.logger.WithFields(merge(fields, logrus.Fields{
		"event":      eventType,
		"severity":   severity,
		"ip":         client.IPAddress,
		"user_agent": client.UserAgent,
		"user":       client.UserID,
	}))

	switch severity {
	case security.SeverityHigh, security.SeverityCritical:
		entry.Error(description)
	case security.SeverityMedium:
		entry.Warn(description)
	default:
		entry.Info(description)
	}
}

func (sl *SecurityLogger) LogTransitionDenied(ctx context.Context, taskID, method, reason string) {
	sl.LogFromContext(ctx, security.EventTypeTransitionDenied, reason, security.SeverityMedium,
		logrus.Fields{"task_id": taskID, "method": method})
}

func (sl *SecurityLogger) LogIllegalTransition(ctx context.Context, taskID, method, reason string) {
	sl.LogFromContext(ctx, security.EventTypeIllegalTransition, reason, security.SeverityLow,
		logrus.Fields{"task_id": taskID, "method": method})
}

func (sl *SecurityLogger) LogTaskDeleted(ctx context.Context, taskID string) {
	sl.LogFromContext(ctx, security.EventTypeTaskDeleted, "Task deleted", security.SeverityLow,
		logrus.Fields{"task_id": taskID})
}

func (sl *SecurityLogger) LogWebhookSignatureInvalid(ctx context.Context, event string) {
	sl.LogFromContext(ctx, security.EventTypeWebhookSignatureInvalid, "Webhook signature verification failed",
		security.SeverityHigh, logrus.Fields{"github_event": event})
}

func (sl *SecurityLogger) LogWebhookActorUnresolved(ctx context.Context, taskID, login string) {
	sl.LogFromContext(ctx, security.EventTypeWebhookActorUnresolved, "Webhook closer is not linked to a user",
		security.SeverityLow, logrus.Fields{"task_id": taskID, "closed_by": login})
}

func (sl *SecurityLogger) LogWebhookTaskClosed(ctx context.Context, taskID, login string) {
	sl.LogFromContext(ctx, security.EventTypeWebhookTaskClosed, "Task closed from source control",
		security.SeverityLow, logrus.Fields{"task_id": taskID, "closed_by": login})
}

func merge(a, b logrus.Fields) logrus.Fields {
	out := make(logrus.Fields, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
