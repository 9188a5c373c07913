package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking and reminder flows.
type SchedulingMetrics struct {
	bookingsTotal     *prometheus.CounterVec
	tokenActionsTotal *prometheus.CounterVec
	remindersTotal    *prometheus.CounterVec
	reminderRunTime   prometheus.Histogram
	reminderDue       prometheus.Counter
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceops",
			Subsystem: "scheduling",
			Name:      "bookings_total",
			Help:      "Appointment booking attempts by result",
		}, []string{"result"}),
		tokenActionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceops",
			Subsystem: "scheduling",
			Name:      "token_actions_total",
			Help:      "Attendee link actions by action and result",
		}, []string{"action", "result"}),
		remindersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceops",
			Subsystem: "reminders",
			Name:      "sent_total",
			Help:      "Reminder sends by channel and result",
		}, []string{"channel", "result"}),
		reminderRunTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voiceops",
			Subsystem: "reminders",
			Name:      "run_duration_seconds",
			Help:      "Duration of a full reminder dispatch run",
			Buckets:   prometheus.DefBuckets,
		}),
		reminderDue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voiceops",
			Subsystem: "reminders",
			Name:      "due_appointments_total",
			Help:      "Appointments found inside a reminder window",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.tokenActionsTotal, m.remindersTotal, m.reminderRunTime, m.reminderDue)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(result string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(result).Inc()
}

func (m *SchedulingMetrics) ObserveTokenAction(action, result string) {
	if m == nil {
		return
	}
	m.tokenActionsTotal.WithLabelValues(action, result).Inc()
}

// ObserveReminder counts one channel outcome: sent, failed or skipped.
func (m *SchedulingMetrics) ObserveReminder(channel, result string) {
	if m == nil {
		return
	}
	m.remindersTotal.WithLabelValues(channel, result).Inc()
}

func (m *SchedulingMetrics) ObserveReminderRun(seconds float64, due int) {
	if m == nil {
		return
	}
	m.reminderRunTime.Observe(seconds)
	m.reminderDue.Add(float64(due))
}
