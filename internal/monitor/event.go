// Package monitor implements security-event emission and anomaly
// detection: an append-only audit stream, metric recording, alert
// dispatch for high-severity events, and multi-signal anomaly scoring.
// It observes outcomes from the rest of the subsystem but depends on
// none of it.
package monitor

import (
	"time"

	"github.com/google/uuid"
)

// Severity orders security events from routine to incident-worthy.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// String returns the lowercase severity label.
func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// EventType classifies security events.
type EventType string

const (
	EventAuthFailure         EventType = "auth_failure"
	EventInvalidInput        EventType = "invalid_input"
	EventRateLimitExceeded   EventType = "rate_limit_exceeded"
	EventModerationRejected  EventType = "moderation_rejected"
	EventSecretAccess        EventType = "secret_access"
	EventSecretRotation      EventType = "secret_rotation"
	EventDecryptionFailure   EventType = "decryption_failure"
	EventSuspiciousActivity  EventType = "suspicious_activity"
)

// SecurityEvent is one immutable entry in the append-only audit stream.
// Events are never mutated and never deleted; they are the audit record.
type SecurityEvent struct {
	ID            string                 `json:"id"`
	Type          EventType              `json:"type"`
	Severity      Severity               `json:"-"`
	SeverityLabel string                 `json:"severity"`
	Source        string                 `json:"source"`
	Timestamp     time.Time              `json:"timestamp"`
	Details       map[string]interface{} `json:"details,omitempty"`
	ActorID       string                 `json:"actor_id,omitempty"`
	OriginAddress string                 `json:"origin_address,omitempty"`
}

// NewEvent builds an event with identity and timestamp assigned.
func NewEvent(eventType EventType, severity Severity, source string) SecurityEvent {
	return SecurityEvent{
		ID:            uuid.NewString(),
		Type:          eventType,
		Severity:      severity,
		SeverityLabel: severity.String(),
		Source:        source,
		Timestamp:     time.Now().UTC(),
	}
}

// AnomalyAssessment is the aggregate of the independent anomaly
// signals. Derived per call and carried only inside the triggering
// SecurityEvent's details.
type AnomalyAssessment struct {
	RiskScore float64  `json:"risk_score"`
	Reasons   []string `json:"reasons"`
	Anomalous bool     `json:"is_anomalous"`
}
