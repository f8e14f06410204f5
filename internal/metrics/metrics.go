// Package metrics exposes the Prometheus collectors for the reservation
// engine, the order orchestrator, and the event bus, grounded on the
// traffic-tacos-inventory-api's internal/observability metrics package.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector this core registers.
type Metrics struct {
	ReservationOpsTotal    *prometheus.CounterVec
	ReservationOpDuration  *prometheus.HistogramVec
	ReservationConflicts   *prometheus.CounterVec
	SweepExpiredTotal      prometheus.Counter
	SweepDuration          prometheus.Histogram

	OrderTransitionsTotal *prometheus.CounterVec
	OrderCreatedTotal     prometheus.Counter

	EventsPublishedTotal *prometheus.CounterVec
	EventsConsumedTotal  *prometheus.CounterVec
	EventDedupHitsTotal  *prometheus.CounterVec
	EventHandlerDuration *prometheus.HistogramVec
}

// New registers and returns the full collector set against
// prometheus.DefaultRegisterer. Use NewWithRegisterer in tests, where
// constructing more than one Metrics against the default registry would
// panic on duplicate registration.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers and returns the full collector set
// against reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ReservationOpsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_operations_total",
				Help: "Total number of reservation engine operations by outcome.",
			},
			[]string{"operation", "outcome"}, // reserve|confirm|release, success|unavailable|error
		),
		ReservationOpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reservation_operation_duration_seconds",
				Help:    "Duration of reservation engine transactions.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ReservationConflicts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reservation_conflicts_total",
				Help: "Total number of reserve attempts rejected for insufficient free quantity.",
			},
			[]string{"reason"},
		),
		SweepExpiredTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "reservation_sweep_expired_total",
				Help: "Total number of reservations expired by the background sweeper.",
			},
		),
		SweepDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "reservation_sweep_duration_seconds",
				Help:    "Duration of a single sweep pass.",
				Buckets: prometheus.DefBuckets,
			},
		),

		OrderTransitionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "order_transitions_total",
				Help: "Total number of order status transitions by destination status.",
			},
			[]string{"to_status"},
		),
		OrderCreatedTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "order_created_total",
				Help: "Total number of orders created.",
			},
		),

		EventsPublishedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_published_total",
				Help: "Total number of events published by routing key.",
			},
			[]string{"routing_key"},
		),
		EventsConsumedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_consumed_total",
				Help: "Total number of events consumed by routing key and outcome.",
			},
			[]string{"routing_key", "outcome"}, // ack|nack
		),
		EventDedupHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_dedup_hits_total",
				Help: "Total number of redelivered messages short-circuited by the dedup window.",
			},
			[]string{"routing_key"},
		),
		EventHandlerDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "eventbus_handler_duration_seconds",
				Help:    "Duration of handler dispatch per routing key.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"routing_key"},
		),
	}
}

// ObserveReservationOp records a completed reservation engine operation.
func (m *Metrics) ObserveReservationOp(operation, outcome string, d time.Duration) {
	m.ReservationOpsTotal.WithLabelValues(operation, outcome).Inc()
	m.ReservationOpDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveSweep records one sweeper pass.
func (m *Metrics) ObserveSweep(expiredCount int, d time.Duration) {
	m.SweepExpiredTotal.Add(float64(expiredCount))
	m.SweepDuration.Observe(d.Seconds())
}

// ObserveOrderTransition records an order reaching toStatus.
func (m *Metrics) ObserveOrderTransition(toStatus string) {
	m.OrderTransitionsTotal.WithLabelValues(toStatus).Inc()
}

// ObserveEventPublished records a successful publish.
func (m *Metrics) ObserveEventPublished(routingKey string) {
	m.EventsPublishedTotal.WithLabelValues(routingKey).Inc()
}

// ObserveEventConsumed records a handler's ack/nack outcome.
func (m *Metrics) ObserveEventConsumed(routingKey, outcome string, d time.Duration) {
	m.EventsConsumedTotal.WithLabelValues(routingKey, outcome).Inc()
	m.EventHandlerDuration.WithLabelValues(routingKey).Observe(d.Seconds())
}

// ObserveDedupHit records a redelivered message short-circuited by the
// dedup window.
func (m *Metrics) ObserveDedupHit(routingKey string) {
	m.EventDedupHitsTotal.WithLabelValues(routingKey).Inc()
}
