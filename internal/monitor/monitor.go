package monitor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/storyforge/shield/internal/logging"
)

// responseActions maps an event type to the recommended response steps
// included in alert notifications.
var responseActions = map[EventType][]string{
	EventAuthFailure: {
		"Review recent authentication attempts for the actor",
		"Check for credential-stuffing patterns from the origin address",
		"Consider locking the account after repeated failures",
	},
	EventRateLimitExceeded: {
		"Inspect traffic from the origin address",
		"Tighten the rate limit for the identifier if abuse continues",
	},
	EventSuspiciousActivity: {
		"Review the actor's recent activity against their baseline",
		"Require re-authentication for the session",
		"Escalate to the security on-call if the pattern repeats",
	},
	EventSecretRotation: {
		"Confirm the rotation was initiated by an authorized operator",
		"Verify dependent services picked up the new value",
	},
	EventDecryptionFailure: {
		"Check for ciphertext reuse across environments",
		"Verify the key-management key policy has not changed",
	},
}

// genericActions is the fallback for unrecognized event types.
var genericActions = []string{
	"Review the audit stream around the event timestamp",
	"Correlate with other events from the same actor and origin",
}

// ResponseActions returns the recommended actions for an event type.
func ResponseActions(eventType EventType) []string {
	if actions, ok := responseActions[eventType]; ok {
		return actions
	}
	return genericActions
}

// Monitor emits security events: every event is appended to the audit
// stream and recorded as a metric; high and critical events additionally
// dispatch an alert. Sink failures are logged, never propagated into
// the caller's request path.
type Monitor struct {
	audit     *AuditWriter
	metrics   MetricsSink
	notifier  NotificationSink
	namespace string
	topic     string
	source    string
	logger    *logging.Logger
}

// Config wires the monitor's sinks and identity.
type Config struct {
	Audit           *AuditWriter
	Metrics         MetricsSink
	Notifier        NotificationSink
	MetricNamespace string
	AlertTopic      string
	Source          string
}

// New creates a monitor.
func New(cfg Config, logger *logging.Logger) *Monitor {
	return &Monitor{
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		notifier:  cfg.Notifier,
		namespace: cfg.MetricNamespace,
		topic:     cfg.AlertTopic,
		source:    cfg.Source,
		logger:    logger,
	}
}

// Emit builds and logs an event from the monitor's source.
func (m *Monitor) Emit(ctx context.Context, eventType EventType, severity Severity, details map[string]interface{}) {
	event := NewEvent(eventType, severity, m.source)
	event.Details = details
	m.LogEvent(ctx, event)
}

// LogEvent records the event on every channel. The audit append, the
// metric put, and the alert dispatch are independent: a failing sink
// never suppresses the others.
func (m *Monitor) LogEvent(ctx context.Context, event SecurityEvent) {
	if event.ID == "" {
		filled := NewEvent(event.Type, event.Severity, event.Source)
		filled.Details = event.Details
		filled.ActorID = event.ActorID
		filled.OriginAddress = event.OriginAddress
		event = filled
	}
	if event.SeverityLabel == "" {
		event.SeverityLabel = event.Severity.String()
	}

	if m.audit != nil {
		if err := m.audit.Append(event); err != nil {
			m.logger.Error("audit append failed for event %s: %v", event.ID, err)
		}
	}

	recordEventMetric(event)
	if m.metrics != nil {
		dimensions := map[string]string{
			"EventType": string(event.Type),
			"Severity":  event.Severity.String(),
			"Source":    event.Source,
		}
		if err := m.metrics.PutMetric(ctx, m.namespace, "SecurityEvent", dimensions, 1, event.Timestamp); err != nil {
			m.logger.Error("metric put failed for event %s: %v", event.ID, err)
		}
	}

	if event.Severity >= SeverityHigh {
		m.dispatchAlert(ctx, event)
	}
}

func (m *Monitor) dispatchAlert(ctx context.Context, event SecurityEvent) {
	if m.notifier == nil {
		return
	}

	payload := map[string]interface{}{
		"event":               event,
		"recommended_actions": ResponseActions(event.Type),
	}
	message, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		m.logger.Error("failed to serialize alert for event %s: %v", event.ID, err)
		return
	}

	subject := fmt.Sprintf("[%s] security event: %s", event.Severity, event.Type)
	if err := m.notifier.Publish(ctx, m.topic, string(message), subject); err != nil {
		m.logger.Error("alert publish failed for event %s: %v", event.ID, err)
		return
	}
	recordAlertMetric(event)
}
