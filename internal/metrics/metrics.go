// Package metrics exposes Prometheus counters for the abuse-detection
// pipeline. All counters are registered on the default registry and served by
// Handler.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RateLimitChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "security_ratelimit_checks_total",
		Help: "Rate limit checks by outcome (allowed, blocked).",
	}, []string{"outcome"})

	RateLimitFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "security_ratelimit_store_fallbacks_total",
		Help: "Checks served by the local counter because the store was unavailable.",
	})

	EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "security_events_recorded_total",
		Help: "Security events persisted, by type and severity.",
	}, []string{"event_type", "severity"})

	EventRecordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "security_event_record_failures_total",
		Help: "Security events dropped because the event store rejected them.",
	})

	AnomalyEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "security_anomaly_evaluations_total",
		Help: "Anomaly evaluations by outcome (skipped, below_threshold, escalated, deduplicated, failed).",
	}, []string{"outcome"})

	BreachesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "security_breach_records_total",
		Help: "Breach records created by the automated escalation path.",
	}, []string{"breach_type"})
)

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
