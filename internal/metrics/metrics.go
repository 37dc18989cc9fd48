package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Saga outcomes
const (
	OutcomePending   = "pending"
	OutcomeConfirmed = "confirmed"
	OutcomeConflict  = "conflict"
	OutcomePayment   = "payment_failed"
	OutcomeUpstream  = "upstream_error"
	OutcomeTimeout   = "timeout"
	OutcomeSystem    = "system_error"
)

// Delivery channels
const (
	ChannelBus          = "bus"
	ChannelNotification = "notification"
)

type Metrics struct {
	Registry *prometheus.Registry

	sagaOutcomes      *prometheus.CounterVec
	seatLockConflicts prometheus.Counter
	deliveries        *prometheus.CounterVec
	deadLettered      *prometheus.CounterVec
	callerRuns        prometheus.Counter
	reconcilerSweeps  *prometheus.CounterVec
	reconcilerEvents  *prometheus.CounterVec
	pollDuration      prometheus.Histogram
}

// New registers every collector on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		sagaOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_saga_outcomes_total",
			Help: "Booking saga step outcomes by phase.",
		}, []string{"phase", "outcome"}),
		seatLockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booking_seat_lock_conflicts_total",
			Help: "Seat lock acquisitions refused because the seat was already held.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_event_deliveries_total",
			Help: "Booking event delivery attempts by channel and result.",
		}, []string{"channel", "result"}),
		deadLettered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_events_dead_lettered_total",
			Help: "Booking events written to the dead letter store.",
		}, []string{"event_type"}),
		callerRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "booking_dispatch_caller_runs_total",
			Help: "Dispatches executed on the caller because the pool queue was full.",
		}),
		reconcilerSweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_dlq_sweeps_total",
			Help: "Dead letter reconciliation sweeps by result.",
		}, []string{"result"}),
		reconcilerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_dlq_events_total",
			Help: "Dead letter events handled by the reconciler by result.",
		}, []string{"result"}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "booking_payment_poll_seconds",
			Help:    "Time spent waiting for a terminal payment status.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
	}

	reg.MustRegister(
		m.sagaOutcomes,
		m.seatLockConflicts,
		m.deliveries,
		m.deadLettered,
		m.callerRuns,
		m.reconcilerSweeps,
		m.reconcilerEvents,
		m.pollDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

func (m *Metrics) SagaOutcome(phase, outcome string) {
	m.sagaOutcomes.WithLabelValues(phase, outcome).Inc()
}

func (m *Metrics) SeatLockConflict() {
	m.seatLockConflicts.Inc()
}

func (m *Metrics) Delivery(channel string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.deliveries.WithLabelValues(channel, result).Inc()
}

func (m *Metrics) DeadLettered(eventType string) {
	m.deadLettered.WithLabelValues(eventType).Inc()
}

func (m *Metrics) CallerRuns() {
	m.callerRuns.Inc()
}

func (m *Metrics) ReconcilerSweep(skipped bool) {
	result := "run"
	if skipped {
		result = "skipped"
	}
	m.reconcilerSweeps.WithLabelValues(result).Inc()
}

func (m *Metrics) ReconcilerEvent(result string) {
	m.reconcilerEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) PollDuration(seconds float64) {
	m.pollDuration.Observe(seconds)
}
