// Package metrics holds the Prometheus collectors for the subscription
// lifecycle. Collectors are registered on the Registerer passed to New so
// tests can use a private registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics tracks registration, confirmation and delivery outcomes. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registrations      *prometheus.CounterVec
	Confirmations      *prometheus.CounterVec
	Deliveries         *prometheus.CounterVec
	Compensations      *prometheus.CounterVec
	PublishFailures    prometheus.Counter
	SupervisorRestarts *prometheus.CounterVec
	RegisterDuration   prometheus.Histogram
	SendDuration       prometheus.Histogram
}

// New creates and registers all subscription metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "subscriptions_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		Confirmations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "subscriptions_confirmations_total",
			Help: "Confirmation attempts by outcome",
		}, []string{"outcome"}),
		Deliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "subscriptions_deliveries_total",
			Help: "Confirmation email deliveries by result (sent, failed, malformed)",
		}, []string{"result"}),
		Compensations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "subscriptions_compensations_total",
			Help: "Delivery failure compensations by result",
		}, []string{"result"}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "subscriptions_publish_failures_total",
			Help: "SubscriptionCreated events that could not be published after commit",
		}),
		SupervisorRestarts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "subscriptions_supervisor_restarts_total",
			Help: "Supervised task restarts by task name",
		}, []string{"task"}),
		RegisterDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "subscriptions_register_duration_seconds",
			Help:    "Duration of Register including event publication",
			Buckets: durationBuckets,
		}),
		SendDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "subscriptions_email_send_duration_seconds",
			Help:    "Duration of outbound confirmation email calls",
			Buckets: durationBuckets,
		}),
	}
}

// ObserveRegistration records one registration outcome and its duration.
func (m *Metrics) ObserveRegistration(outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Registrations.WithLabelValues(outcome).Inc()
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}

// IncrementConfirmation records one confirmation outcome.
func (m *Metrics) IncrementConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.Confirmations.WithLabelValues(outcome).Inc()
}

// IncrementDelivery records one delivery result.
func (m *Metrics) IncrementDelivery(result string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(result).Inc()
}

// ObserveSend records the duration of one Mailer call.
func (m *Metrics) ObserveSend(start time.Time) {
	if m == nil {
		return
	}
	m.SendDuration.Observe(time.Since(start).Seconds())
}

// IncrementCompensation records one compensation result.
func (m *Metrics) IncrementCompensation(result string) {
	if m == nil {
		return
	}
	m.Compensations.WithLabelValues(result).Inc()
}

// IncrementPublishFailure records an event that was lost after commit.
func (m *Metrics) IncrementPublishFailure() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

// IncrementSupervisorRestart records a restart of the named task.
func (m *Metrics) IncrementSupervisorRestart(task string) {
	if m == nil {
		return
	}
	m.SupervisorRestarts.WithLabelValues(task).Inc()
}
