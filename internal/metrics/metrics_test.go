package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRegistration("success", time.Now())
	m.ObserveRegistration("success", time.Now())
	m.IncrementConfirmation("token_not_found")
	m.IncrementDelivery("failed")
	m.IncrementCompensation("marked_failed")
	m.IncrementPublishFailure()
	m.IncrementSupervisorRestart("delivery")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Registrations.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Confirmations.WithLabelValues("token_not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Deliveries.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Compensations.WithLabelValues("marked_failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PublishFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SupervisorRestarts.WithLabelValues("delivery")))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRegistration("success", time.Now())
		m.IncrementConfirmation("success")
		m.IncrementDelivery("sent")
		m.ObserveSend(time.Now())
		m.IncrementCompensation("skipped_confirmed")
		m.IncrementPublishFailure()
		m.IncrementSupervisorRestart("delivery")
	})
}

func TestNew_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
