package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Booking results
const (
	ResultConfirmed       = "confirmed"
	ResultSlotUnavailable = "slot_unavailable"
	ResultPersistence     = "persistence_error"
	ResultValidation      = "validation_error"
)

// Metrics holds all application metrics
type Metrics struct {
	// Scheduler metrics
	BookingsTotal     *prometheus.CounterVec
	SlotQueries       prometheus.Counter
	SnapshotFallbacks prometheus.Counter
	MalformedRecords  prometheus.Counter

	// Repository metrics
	RepositoryOperations *prometheus.CounterVec
	RepositoryLatency    *prometheus.HistogramVec

	// Event metrics
	EventsPublished *prometheus.CounterVec
	EmailsSent      *prometheus.CounterVec
	EventsConsumed  *prometheus.CounterVec
}

// NewMetrics creates and registers all application metrics on reg, or on the
// default registerer when reg is nil.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		BookingsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "bookings_total",
			Help:      "Booking attempts by result",
		}, []string{"result"}),
		SlotQueries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "slot_queries_total",
			Help:      "Total number of availability grid computations",
		}),
		SnapshotFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "snapshot_fallbacks_total",
			Help:      "Availability queries served from a stale or empty snapshot",
		}),
		MalformedRecords: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "malformed_records_total",
			Help:      "Bookings skipped because they could not be parsed",
		}),

		RepositoryOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "repository_operations_total",
			Help:      "Total number of booking repository operations",
		}, []string{"operation", "status"}),
		RepositoryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "repository_operation_duration_seconds",
			Help:      "Duration of booking repository operations",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"operation"}),

		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_published_total",
			Help:      "Booking events published to the broker",
		}, []string{"channel", "status"}),
		EmailsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "emails_sent_total",
			Help:      "Front-desk confirmation emails",
		}, []string{"status"}),
		EventsConsumed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_consumed_total",
			Help:      "Booking events handled by the worker",
		}, []string{"type", "status"}),
	}
}

// Status returns the label for an operation outcome.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
