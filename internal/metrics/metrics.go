package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful healing attempts.
	OutcomeSuccess = "success"
	// OutcomeError labels failed healing attempts.
	OutcomeError = "error"
)

var (
	incidentsDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "octrix",
			Name:      "incidents_detected_total",
			Help:      "Total number of incidents created, partitioned by category and severity.",
		},
		[]string{"category", "severity"},
	)

	detectionsSuppressedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "octrix",
			Name:      "detections_suppressed_total",
			Help:      "Detections suppressed by an active cooldown.",
		},
	)

	healingAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "octrix",
			Name:      "healing_attempts_total",
			Help:      "Healing actions dispatched, partitioned by action and outcome.",
		},
		[]string{"action", "outcome"},
	)

	healingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "octrix",
			Name:      "healing_seconds",
			Help:      "Healing action latency in seconds.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	escalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "octrix",
			Name:      "escalations_total",
			Help:      "Incidents escalated to a human operator, partitioned by category.",
		},
		[]string{"category"},
	)

	automationFrozen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "octrix",
			Name:      "automation_frozen",
			Help:      "1 while automated healing is frozen cluster-wide.",
		},
	)
)

// Register attaches octrix collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		incidentsDetectedTotal,
		detectionsSuppressedTotal,
		healingAttemptsTotal,
		healingDurationSeconds,
		escalationsTotal,
		automationFrozen,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveDetection counts one created incident.
func ObserveDetection(category, severity string) {
	incidentsDetectedTotal.WithLabelValues(category, severity).Inc()
}

// ObserveSuppressed counts one cooldown-suppressed detection.
func ObserveSuppressed() {
	detectionsSuppressedTotal.Inc()
}

// ObserveHealing records a healing attempt duration and outcome label.
func ObserveHealing(action string, outcome string, duration time.Duration) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	healingAttemptsTotal.WithLabelValues(action, label).Inc()
	if duration < 0 {
		duration = 0
	}
	healingDurationSeconds.Observe(duration.Seconds())
}

// ObserveEscalation counts one escalation.
func ObserveEscalation(category string) {
	escalationsTotal.WithLabelValues(category).Inc()
}

// SetAutomationFrozen reflects the freeze switch on the gauge.
func SetAutomationFrozen(frozen bool) {
	if frozen {
		automationFrozen.Set(1)
	} else {
		automationFrozen.Set(0)
	}
}
