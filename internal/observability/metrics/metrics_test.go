package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulingMetrics(reg)
	m.ObserveBooking("created")
	m.ObserveBooking("created")
	m.ObserveBooking("conflict")
	m.ObserveTokenAction("confirm", "ok")
	m.ObserveReminder("email", "sent")
	m.ObserveReminderRun(0.25, 3)

	families, err := reg.Gather()
	require.NoError(t, err)

	byName := map[string]*dto.MetricFamily{}
	for _, f := range families {
		byName[f.GetName()] = f
	}

	bookings := byName["voiceops_scheduling_bookings_total"]
	require.NotNil(t, bookings)
	counts := map[string]float64{}
	for _, metric := range bookings.GetMetric() {
		counts[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, 2.0, counts["created"])
	assert.Equal(t, 1.0, counts["conflict"])

	due := byName["voiceops_reminders_due_appointments_total"]
	require.NotNil(t, due)
	assert.Equal(t, 3.0, due.GetMetric()[0].GetCounter().GetValue())

	run := byName["voiceops_reminders_run_duration_seconds"]
	require.NotNil(t, run)
	assert.Equal(t, uint64(1), run.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestSchedulingMetricsNilSafe(t *testing.T) {
	var m *SchedulingMetrics
	m.ObserveBooking("created")
	m.ObserveTokenAction("cancel", "terminal")
	m.ObserveReminder("sms", "failed")
	m.ObserveReminderRun(1, 1)
}
