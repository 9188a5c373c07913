package reminders

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/wolfman30/voice-agent-scheduling/internal/appointments"
	"github.com/wolfman30/voice-agent-scheduling/internal/businesshours"
	"github.com/wolfman30/voice-agent-scheduling/internal/observability/metrics"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

var tracer = otel.Tracer("voiceops.internal.reminders")

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelCall  = "call"
)

// AppointmentSource lists due appointments and claims per-channel stamps.
// A claim succeeds for exactly one caller while the stamp is still NULL.
type AppointmentSource interface {
	ListDue(ctx context.Context, q appointments.DueQuery) ([]appointments.Appointment, error)
	ClaimEmailReminder(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ClaimSMSReminder(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ReleaseSMSReminder(ctx context.Context, id uuid.UUID, claimedAt time.Time) error
	ClaimCallReminder(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ReleaseCallReminder(ctx context.Context, id uuid.UUID, claimedAt time.Time) error
}

// SettingsSource lists organizations with explicit reminder settings.
type SettingsSource interface {
	ListConfigured(ctx context.Context) ([]Settings, error)
}

// EmailReminder sends reminder emails.
type EmailReminder interface {
	SendReminder(ctx context.Context, appt *appointments.Appointment, leadHours int) error
}

// SMSReminder sends reminder texts.
type SMSReminder interface {
	SendReminderSMS(ctx context.Context, appt *appointments.Appointment) error
}

// CallReminder places reminder calls.
type CallReminder interface {
	InitiateReminderCall(ctx context.Context, appt *appointments.Appointment) error
}

// HoursSource resolves an organization's business hours.
type HoursSource interface {
	BusinessHours(ctx context.Context, orgID string) (businesshours.Config, error)
}

// AuditLogger records reminder outcomes.
type AuditLogger interface {
	LogReminder(ctx context.Context, orgID, appointmentID, channel string, sendErr error) error
}

// RunResult summarizes one orchestrator run. Processed counts due
// appointments examined, whether or not a channel was attempted; a phone-only
// appointment with no enabled phone channel is examined again on every run.
type RunResult struct {
	Processed      int       `json:"processed"`
	EmailsSent     int       `json:"emails_sent"`
	SMSSent        int       `json:"sms_sent"`
	CallsInitiated int       `json:"calls_initiated"`
	Errors         []string  `json:"errors"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
}

// Orchestrator runs one reminder pass over every organization.
type Orchestrator struct {
	appts       AppointmentSource
	settings    SettingsSource
	email       EmailReminder
	sms         SMSReminder
	calls       CallReminder
	hours       HoursSource
	audit       AuditLogger
	metrics     *metrics.SchedulingMetrics
	logger      *logging.Logger
	now         func() time.Time
	workers     int
	sendTimeout time.Duration
	tolerance   time.Duration
	batchSize   int
}

// NewOrchestrator creates an orchestrator. Channels with a nil transport are skipped.
func NewOrchestrator(appts AppointmentSource, settings SettingsSource, email EmailReminder, sms SMSReminder, calls CallReminder, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		appts:       appts,
		settings:    settings,
		email:       email,
		sms:         sms,
		calls:       calls,
		logger:      logger,
		now:         time.Now,
		workers:     4,
		sendTimeout: 10 * time.Second,
		tolerance:   15 * time.Minute,
		batchSize:   500,
	}
}

func (o *Orchestrator) WithHours(h HoursSource) *Orchestrator {
	o.hours = h
	return o
}

func (o *Orchestrator) WithAudit(a AuditLogger) *Orchestrator {
	o.audit = a
	return o
}

func (o *Orchestrator) WithMetrics(m *metrics.SchedulingMetrics) *Orchestrator {
	o.metrics = m
	return o
}

func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	if now != nil {
		o.now = now
	}
	return o
}

func (o *Orchestrator) WithWorkers(n int) *Orchestrator {
	if n > 0 {
		o.workers = n
	}
	return o
}

func (o *Orchestrator) WithSendTimeout(d time.Duration) *Orchestrator {
	if d > 0 {
		o.sendTimeout = d
	}
	return o
}

func (o *Orchestrator) WithTolerance(d time.Duration) *Orchestrator {
	if d > 0 {
		o.tolerance = d
	}
	return o
}

func (o *Orchestrator) WithBatchSize(n int) *Orchestrator {
	if n > 0 {
		o.batchSize = n
	}
	return o
}

// tally collects counters from concurrent workers.
type tally struct {
	mu  sync.Mutex
	res *RunResult
}

func (t *tally) add(fn func(r *RunResult)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.res)
}

func (t *tally) fail(format string, args ...any) {
	t.add(func(r *RunResult) { r.Errors = append(r.Errors, fmt.Sprintf(format, args...)) })
}

// Run processes configured organizations, then every organization without a
// settings row using the defaults. Per-appointment failures are collected in
// RunResult.Errors; only a failure to list settings aborts the run.
func (o *Orchestrator) Run(ctx context.Context) (RunResult, error) {
	ctx, span := tracer.Start(ctx, "reminders.run")
	defer span.End()

	res := RunResult{StartedAt: o.now().UTC(), Errors: []string{}}
	t := &tally{res: &res}
	due := 0

	configured, err := o.settings.ListConfigured(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, fmt.Errorf("reminders: run: %w", err)
	}

	for _, st := range configured {
		if !st.SendReminder {
			continue
		}
		due += o.processPartition(ctx, st, appointments.DueQuery{OrgID: st.OrgID}, t)
	}
	due += o.processPartition(ctx, DefaultSettings(), appointments.DueQuery{UnconfiguredOnly: true}, t)

	res.FinishedAt = o.now().UTC()
	span.SetAttributes(
		attribute.Int("voiceops.reminders.processed", res.Processed),
		attribute.Int("voiceops.reminders.errors", len(res.Errors)),
	)
	o.metrics.ObserveReminderRun(res.FinishedAt.Sub(res.StartedAt).Seconds(), due)
	o.logger.Info("reminders: run complete",
		"processed", res.Processed,
		"emails_sent", res.EmailsSent,
		"sms_sent", res.SMSSent,
		"calls_initiated", res.CallsInitiated,
		"errors", len(res.Errors),
	)
	return res, nil
}

// processPartition handles one organization, or the unconfigured partition
// when q.UnconfiguredOnly is set. It returns the number of due appointments.
func (o *Orchestrator) processPartition(ctx context.Context, st Settings, q appointments.DueQuery, t *tally) int {
	lead := st.HoursBefore
	if lead <= 0 {
		lead = DefaultHoursBefore
	}
	q.From, q.To = DueWindow(o.now().UTC(), lead, o.tolerance)
	q.Limit = o.batchSize

	label := st.OrgID
	if q.UnconfiguredOnly {
		label = "default"
	}
	ctx, span := tracer.Start(ctx, "reminders.partition", trace.WithAttributes(
		attribute.String("voiceops.org_id", label),
		attribute.Int("voiceops.reminders.hours_before", lead),
	))
	defer span.End()

	due, err := o.appts.ListDue(ctx, q)
	if err != nil {
		span.RecordError(err)
		o.logger.Error("reminders: list due failed", "partition", label, "error", err)
		t.fail("%s: list due: %v", label, err)
		return 0
	}
	if len(due) == 0 {
		return 0
	}
	o.logger.Info("reminders: processing due appointments", "partition", label, "count", len(due))

	hoursByOrg := map[string]*businesshours.Config{}
	var hoursMu sync.Mutex
	openNow := func(orgID string) bool {
		if o.hours == nil {
			return true
		}
		hoursMu.Lock()
		defer hoursMu.Unlock()
		cfg, ok := hoursByOrg[orgID]
		if !ok {
			loaded, err := o.hours.BusinessHours(ctx, orgID)
			if err != nil {
				o.logger.Warn("reminders: business hours unavailable", "org_id", orgID, "error", err)
				hoursByOrg[orgID] = nil
				return false
			}
			cfg = &loaded
			hoursByOrg[orgID] = cfg
		}
		return cfg != nil && businesshours.IsWithinBusinessHours(*cfg, "", o.now())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)
	for i := range due {
		appt := &due[i]
		g.Go(func() error {
			o.processAppointment(gctx, appt, st, lead, openNow, t)
			return nil
		})
	}
	_ = g.Wait()
	return len(due)
}

func (o *Orchestrator) processAppointment(ctx context.Context, appt *appointments.Appointment, st Settings, lead int, openNow func(string) bool, t *tally) {
	log := o.logger.WithOrg(appt.OrgID)
	t.add(func(r *RunResult) { r.Processed++ })

	if appt.Attendee.Email != "" && o.email != nil {
		o.sendEmail(ctx, appt, lead, log, t)
	}

	smsDelivered := appt.SMSReminderAt != nil
	if appt.Attendee.Phone != "" && st.SMSEnabled && o.sms != nil && appt.SMSReminderAt == nil {
		smsDelivered = o.sendSMS(ctx, appt, log, t)
	}

	if appt.Attendee.Phone != "" && st.CallEnabled && o.calls != nil && !smsDelivered && appt.CallReminderAt == nil {
		if st.CallsBusinessHoursOnly && !openNow(appt.OrgID) {
			log.Info("reminders: call held until business hours", "appointment_id", appt.ID)
			return
		}
		o.placeCall(ctx, appt, log, t)
	}
}

// sendEmail claims reminder_sent_at before sending. The stamp stays on
// failure so email is attempted at most once.
func (o *Orchestrator) sendEmail(ctx context.Context, appt *appointments.Appointment, lead int, log *logging.Logger, t *tally) {
	claimed, err := o.appts.ClaimEmailReminder(ctx, appt.ID, o.now().UTC())
	if err != nil {
		log.Error("reminders: email claim failed", "appointment_id", appt.ID, "error", err)
		t.fail("%s: email claim: %v", appt.ID, err)
		return
	}
	if !claimed {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
	err = o.email.SendReminder(sendCtx, appt, lead)
	cancel()
	o.recordSend(ctx, appt, ChannelEmail, err)
	if err != nil {
		log.Error("reminders: email send failed", "appointment_id", appt.ID, "error", err)
		t.fail("%s: email: %v", appt.ID, err)
		return
	}
	t.add(func(r *RunResult) { r.EmailsSent++ })
}

// sendSMS reports whether the text went out. A failed send releases the claim
// so a later run may retry.
func (o *Orchestrator) sendSMS(ctx context.Context, appt *appointments.Appointment, log *logging.Logger, t *tally) bool {
	claimedAt := o.now().UTC()
	claimed, err := o.appts.ClaimSMSReminder(ctx, appt.ID, claimedAt)
	if err != nil {
		log.Error("reminders: sms claim failed", "appointment_id", appt.ID, "error", err)
		t.fail("%s: sms claim: %v", appt.ID, err)
		return false
	}
	if !claimed {
		// Another run owns or already sent it.
		return true
	}

	sendCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
	err = o.sms.SendReminderSMS(sendCtx, appt)
	cancel()
	o.recordSend(ctx, appt, ChannelSMS, err)
	if err != nil {
		log.Error("reminders: sms send failed", "appointment_id", appt.ID, "error", err)
		t.fail("%s: sms: %v", appt.ID, err)
		if relErr := o.appts.ReleaseSMSReminder(context.WithoutCancel(ctx), appt.ID, claimedAt); relErr != nil {
			log.Error("reminders: sms release failed", "appointment_id", appt.ID, "error", relErr)
		}
		return false
	}
	t.add(func(r *RunResult) { r.SMSSent++ })
	return true
}

func (o *Orchestrator) placeCall(ctx context.Context, appt *appointments.Appointment, log *logging.Logger, t *tally) {
	claimedAt := o.now().UTC()
	claimed, err := o.appts.ClaimCallReminder(ctx, appt.ID, claimedAt)
	if err != nil {
		log.Error("reminders: call claim failed", "appointment_id", appt.ID, "error", err)
		t.fail("%s: call claim: %v", appt.ID, err)
		return
	}
	if !claimed {
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, o.sendTimeout)
	err = o.calls.InitiateReminderCall(sendCtx, appt)
	cancel()
	o.recordSend(ctx, appt, ChannelCall, err)
	if err != nil {
		log.Error("reminders: call failed", "appointment_id", appt.ID, "error", err)
		t.fail("%s: call: %v", appt.ID, err)
		if relErr := o.appts.ReleaseCallReminder(context.WithoutCancel(ctx), appt.ID, claimedAt); relErr != nil {
			log.Error("reminders: call release failed", "appointment_id", appt.ID, "error", relErr)
		}
		return
	}
	t.add(func(r *RunResult) { r.CallsInitiated++ })
}

func (o *Orchestrator) recordSend(ctx context.Context, appt *appointments.Appointment, channel string, sendErr error) {
	result := "sent"
	if sendErr != nil {
		result = "failed"
	}
	o.metrics.ObserveReminder(channel, result)
	if o.audit == nil {
		return
	}
	if err := o.audit.LogReminder(context.WithoutCancel(ctx), appt.OrgID, appt.ID.String(), channel, sendErr); err != nil {
		o.logger.Warn("reminders: audit write failed", "appointment_id", appt.ID, "channel", channel, "error", err)
	}
}
