package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reservas"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	bookingOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_operations_total",
			Help:      "Booking operations by operation and outcome code.",
		},
		[]string{"operation", "outcome"},
	)

	projectorEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "projector_events_total",
			Help:      "Catalog events seen by the projector, by type and result.",
		},
		[]string{"type", "result"},
	)

	publishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_publish_failures_total",
			Help:      "Catalog events that could not be written to the stream.",
		},
		[]string{"type"},
	)

	outboxTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_tasks_total",
			Help:      "Outbox republish attempts by result.",
		},
		[]string{"result"},
	)

	backups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_backups_total",
			Help:      "SQLite snapshots by result.",
		},
		[]string{"result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, bookingOutcomes, projectorEvents, publishFailures, outboxTasks, backups)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

// IncBooking records one create/modify/cancel outcome; outcome is "ok" or an error code.
func IncBooking(operation, outcome string) {
	bookingOutcomes.WithLabelValues(operation, outcome).Inc()
}

// IncProjector records applied, skipped, malformed or failed catalog events.
func IncProjector(eventType, result string) {
	projectorEvents.WithLabelValues(eventType, result).Inc()
}

func IncPublishFailure(eventType string) {
	publishFailures.WithLabelValues(eventType).Inc()
}

func IncOutbox(result string) {
	outboxTasks.WithLabelValues(result).Inc()
}

// IncBackup records one snapshot attempt; result is "ok" or "failed".
func IncBackup(result string) {
	backups.WithLabelValues(result).Inc()
}
