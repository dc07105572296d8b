// pkg/security/event_types.go
package security

import (
	"fmt"
	"slices"
)

// EventType constants for security relevant workflow outcomes
const (
	EventTypeAuthenticationFailed    = "authentication_failed"
	EventTypeTransitionDenied        = "transition_denied"
	EventTypeIllegalTransition       = "illegal_transition"
	EventTypeTaskDeleted             = "task_deleted"
	EventTypeWebhookSignatureInvalid = "webhook_signature_invalid"
	EventTypeWebhookActorUnresolved  = "webhook_actor_unresolved"
	EventTypeWebhookTaskClosed       = "webhook_task_closed"
	EventTypeSecurityAlert           = "security_alert"
)

// Severity constants
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// ValidEventTypes returns all valid event type strings
func ValidEventTypes() []string {
	return []string{
		EventTypeAuthenticationFailed,
		EventTypeTransitionDenied,
		EventTypeIllegalTransition,
		EventTypeTaskDeleted,
		EventTypeWebhookSignatureInvalid,
		EventTypeWebhookActorUnresolved,
		EventTypeWebhookTaskClosed,
		EventTypeSecurityAlert,
	}
}

// ValidSeverities returns all valid severity strings
func ValidSeverities() []string {
	return []string{
		SeverityLow,
		SeverityMedium,
		SeverityHigh,
		SeverityCritical,
	}
}

func IsValidEventType(eventType string) bool {
	return slices.Contains(ValidEventTypes(), eventType)
}

func IsValidSeverity(severity string) bool {
	return slices.Contains(ValidSeverities(), severity)
}

// ParseSeverity normalizes a severity, rejecting unknown values.
func ParseSeverity(severity string) (string, error) {
	if !IsValidSeverity(severity) {
		return "", fmt.Errorf("unknown severity: %s", severity)
	}
	return severity, nil
}
