package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	securityEventsTotal *prometheus.CounterVec
	anomalyScore        *prometheus.HistogramVec
	alertsSentTotal     *prometheus.CounterVec

	metricsOnce       sync.Once
	metricsRegistered bool
)

// InitMetrics registers the Prometheus metrics. Call once at startup
// when the metrics endpoint is enabled; recording is a no-op otherwise.
func InitMetrics() {
	metricsOnce.Do(func() {
		securityEventsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shield_security_events_total",
				Help: "Total number of security events emitted",
			},
			[]string{"event_type", "severity", "source"},
		)

		anomalyScore = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shield_anomaly_risk_score",
				Help:    "Distribution of anomaly risk scores",
				Buckets: []float64{0.1, 0.25, 0.5, 0.7, 0.8, 0.9, 1},
			},
			[]string{"anomalous"},
		)

		alertsSentTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shield_alerts_sent_total",
				Help: "Total number of alerts dispatched to the notification sink",
			},
			[]string{"event_type", "severity"},
		)

		metricsRegistered = true
	})
}

func recordEventMetric(event SecurityEvent) {
	if !metricsRegistered || securityEventsTotal == nil {
		return
	}
	securityEventsTotal.WithLabelValues(string(event.Type), event.Severity.String(), event.Source).Inc()
}

func recordAnomalyMetric(assessment AnomalyAssessment) {
	if !metricsRegistered || anomalyScore == nil {
		return
	}
	label := "false"
	if assessment.Anomalous {
		label = "true"
	}
	anomalyScore.WithLabelValues(label).Observe(assessment.RiskScore)
}

func recordAlertMetric(event SecurityEvent) {
	if !metricsRegistered || alertsSentTotal == nil {
		return
	}
	alertsSentTotal.WithLabelValues(string(event.Type), event.Severity.String()).Inc()
}
