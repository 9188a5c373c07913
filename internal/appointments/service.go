package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/voice-agent-scheduling/internal/actiontoken"
	"github.com/wolfman30/voice-agent-scheduling/internal/audit"
	"github.com/wolfman30/voice-agent-scheduling/internal/businesshours"
	"github.com/wolfman30/voice-agent-scheduling/internal/observability/metrics"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

var tracer = otel.Tracer("voiceops.internal.appointments")

const (
	defaultCancelReason = "Cancelled by attendee"
	orgCancelReason     = "Cancelled by organization"
	maxDurationMinutes  = 24 * 60
	notifyTimeout       = 15 * time.Second
)

// Repository is the persistence surface the service needs.
type Repository interface {
	Insert(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	List(ctx context.Context, f ListFilter) ([]Appointment, error)
	ListBlocking(ctx context.Context, orgID string, start, end time.Time, exclude uuid.UUID) ([]Interval, error)
	Confirm(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error)
	Complete(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	Reschedule(ctx context.Context, id uuid.UUID, expectedStart, start, end time.Time, notes string, at time.Time) (bool, error)
}

// ContactDirectory looks up CRM contacts for attendee back-fill.
type ContactDirectory interface {
	GetContact(ctx context.Context, orgID, contactID string) (*Contact, error)
}

// TokenVerifier validates attendee action tokens.
type TokenVerifier interface {
	Verify(token string) (*actiontoken.Claims, error)
}

// Notifier sends attendee emails. Failures never roll back a state change.
type Notifier interface {
	SendConfirmation(ctx context.Context, appt *Appointment) error
	SendCancellation(ctx context.Context, appt *Appointment) error
	SendRescheduled(ctx context.Context, appt *Appointment, previous time.Time) error
}

// AuditLogger records lifecycle events.
type AuditLogger interface {
	LogEvent(ctx context.Context, event audit.Event) error
}

// Service drives appointments through their lifecycle.
type Service struct {
	repo     Repository
	contacts ContactDirectory
	tokens   TokenVerifier
	notifier Notifier
	audit    AuditLogger
	metrics  *metrics.SchedulingMetrics
	logger   *logging.Logger
	now      func() time.Time
}

// NewService creates an appointment service.
func NewService(repo Repository, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) WithContacts(c ContactDirectory) *Service {
	s.contacts = c
	return s
}

func (s *Service) WithTokens(t TokenVerifier) *Service {
	s.tokens = t
	return s
}

func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

func (s *Service) WithAudit(a AuditLogger) *Service {
	s.audit = a
	return s
}

func (s *Service) WithMetrics(m *metrics.SchedulingMetrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// CreateRequest is a booking request from an agent or the public API.
type CreateRequest struct {
	OrgID            string `json:"-"`
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	ScheduledAt      string `json:"scheduled_at"`
	Duration         int    `json:"duration,omitempty"`
	TimeZone         string `json:"time_zone,omitempty"`
	MeetingType      string `json:"meeting_type,omitempty"`
	MeetingLink      string `json:"meeting_link,omitempty"`
	Location         string `json:"location,omitempty"`
	PhoneNumber      string `json:"phone_number,omitempty"`
	AttendeeName     string `json:"attendee_name,omitempty"`
	AttendeeEmail    string `json:"attendee_email,omitempty"`
	AttendeePhone    string `json:"attendee_phone,omitempty"`
	ContactID        string `json:"contact_id,omitempty"`
	AgentID          string `json:"agent_id,omitempty"`
	CallID           string `json:"call_id,omitempty"`
	Notes            string `json:"notes,omitempty"`
	SendConfirmation bool   `json:"send_confirmation,omitempty"`
}

// Create validates and books a new appointment.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.create")
	defer span.End()
	span.SetAttributes(attribute.String("voiceops.org_id", req.OrgID))

	appt, err := s.create(ctx, req)
	s.metrics.ObserveBooking(bookingResult(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("voiceops.appointment_id", appt.ID.String()))
	return appt, nil
}

func (s *Service) create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	now := s.now()
	if strings.TrimSpace(req.OrgID) == "" {
		return nil, invalid("organization", "is required")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, invalid("title", "is required")
	}
	if strings.TrimSpace(req.ScheduledAt) == "" {
		return nil, invalid("scheduled_at", "is required")
	}
	tz := strings.TrimSpace(req.TimeZone)
	if tz == "" {
		tz = businesshours.DefaultTimezone
	}
	start, err := parseInstant(req.ScheduledAt, businesshours.Location(tz))
	if err != nil {
		return nil, invalid("scheduled_at", "must be an ISO-8601 timestamp")
	}
	if !start.After(now) {
		return nil, invalid("scheduled_at", "must be in the future")
	}
	duration := req.Duration
	switch {
	case duration == 0:
		duration = DefaultDurationMinutes
	case duration < 0 || duration > maxDurationMinutes:
		return nil, invalid("duration", fmt.Sprintf("must be between 1 and %d minutes", maxDurationMinutes))
	}
	meetingType, err := ParseMeetingType(req.MeetingType)
	if err != nil {
		return nil, invalid("meeting_type", err.Error())
	}
	end := start.Add(time.Duration(duration) * time.Minute)

	if err := s.checkConflict(ctx, req.OrgID, start, end, uuid.Nil); err != nil {
		return nil, err
	}

	appt := &Appointment{
		ID:          uuid.New(),
		OrgID:       req.OrgID,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		ScheduledAt: start,
		EndAt:       end,
		Duration:    duration,
		TimeZone:    tz,
		MeetingType: meetingType,
		MeetingLink: strings.TrimSpace(req.MeetingLink),
		Location:    strings.TrimSpace(req.Location),
		PhoneNumber: strings.TrimSpace(req.PhoneNumber),
		Attendee: Attendee{
			Name:  strings.TrimSpace(req.AttendeeName),
			Email: strings.TrimSpace(req.AttendeeEmail),
			Phone: strings.TrimSpace(req.AttendeePhone),
		},
		ContactID: optional(req.ContactID),
		AgentID:   optional(req.AgentID),
		CallID:    optional(req.CallID),
		Status:    StatusScheduled,
		Notes:     strings.TrimSpace(req.Notes),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.backfillAttendee(ctx, appt)

	if err := s.repo.Insert(ctx, appt); err != nil {
		return nil, err
	}

	s.logger.Info("appointments: created",
		"org_id", appt.OrgID, "appointment_id", appt.ID, "scheduled_at", appt.ScheduledAt)
	s.record(ctx, appt, audit.EventAppointmentCreated, "system", nil)

	if req.SendConfirmation && appt.Attendee.Email != "" {
		s.notify(ctx, "confirmation", appt, func(ctx context.Context) error {
			return s.notifier.SendConfirmation(ctx, appt)
		})
	}
	return appt, nil
}

func (s *Service) checkConflict(ctx context.Context, orgID string, start, end time.Time, exclude uuid.UUID) error {
	existing, err := s.repo.ListBlocking(ctx, orgID, start, end, exclude)
	if err != nil {
		return fmt.Errorf("appointments: load existing: %w", err)
	}
	if hit, found := FindConflict(start, end, existing); found {
		return &ConflictError{
			Start:            start,
			End:              end,
			ConflictingID:    hit.ID,
			ConflictingTitle: hit.Title,
			ConflictingStart: hit.Start,
			ConflictingEnd:   hit.End,
		}
	}
	return nil
}

func (s *Service) backfillAttendee(ctx context.Context, appt *Appointment) {
	if appt.ContactID == nil || s.contacts == nil {
		return
	}
	if appt.Attendee.Name != "" && appt.Attendee.Email != "" && appt.Attendee.Phone != "" {
		return
	}
	contact, err := s.contacts.GetContact(ctx, appt.OrgID, *appt.ContactID)
	if err != nil {
		s.logger.Warn("appointments: contact lookup failed",
			"org_id", appt.OrgID, "contact_id", *appt.ContactID, "error", err)
		return
	}
	if appt.Attendee.Name == "" {
		appt.Attendee.Name = contact.Name
	}
	if appt.Attendee.Email == "" {
		appt.Attendee.Email = contact.Email
	}
	if appt.Attendee.Phone == "" {
		appt.Attendee.Phone = contact.Phone
	}
}

// Get returns an appointment scoped to orgID.
func (s *Service) Get(ctx context.Context, orgID string, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.OrgID != orgID {
		return nil, ErrNotFound
	}
	return appt, nil
}

// List returns an organization's appointments.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	if strings.TrimSpace(f.OrgID) == "" {
		return nil, invalid("organization", "is required")
	}
	return s.repo.List(ctx, f)
}

// GetForAction resolves a token to its appointment. Unknown, expired or
// tampered tokens yield ErrNotFound; an attendee email mismatch yields
// ErrUnauthorized.
func (s *Service) GetForAction(ctx context.Context, token string) (*Appointment, *actiontoken.Claims, error) {
	if s.tokens == nil {
		return nil, nil, ErrNotFound
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	id, err := uuid.Parse(claims.AppointmentID)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	appt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if actiontoken.NormalizeEmail(appt.Attendee.Email) != actiontoken.NormalizeEmail(claims.Email) {
		return nil, nil, ErrUnauthorized
	}
	return appt, claims, nil
}

// ActionRequest is the body of a token-authorized attendee action.
type ActionRequest struct {
	Action  actiontoken.Action `json:"action"`
	Reason  string             `json:"reason,omitempty"`
	NewDate string             `json:"newDate,omitempty"`
	NewTime string             `json:"newTime,omitempty"`
}

// ActionResult is the outcome of an attendee action. PreviousScheduledAt is
// set for reschedules.
type ActionResult struct {
	Appointment         *Appointment `json:"appointment"`
	PreviousScheduledAt *time.Time   `json:"previous_scheduled_at,omitempty"`
}

// Act applies a confirm, cancel or reschedule authorized by token.
func (s *Service) Act(ctx context.Context, token string, req ActionRequest) (*ActionResult, error) {
	ctx, span := tracer.Start(ctx, "appointments.act")
	defer span.End()
	span.SetAttributes(attribute.String("voiceops.action", string(req.Action)))

	res, err := s.act(ctx, token, req)
	s.metrics.ObserveTokenAction(string(req.Action), actionResult(err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return res, nil
}

func (s *Service) act(ctx context.Context, token string, req ActionRequest) (*ActionResult, error) {
	switch req.Action {
	case actiontoken.ActionConfirm, actiontoken.ActionCancel, actiontoken.ActionReschedule:
	default:
		return nil, invalid("action", "must be confirm, cancel or reschedule")
	}
	appt, claims, err := s.GetForAction(ctx, token)
	if err != nil {
		return nil, err
	}
	if !claims.Allows(req.Action) {
		return nil, ErrUnauthorized
	}
	switch req.Action {
	case actiontoken.ActionConfirm:
		appt, err = s.confirm(ctx, appt, "attendee")
		if err != nil {
			return nil, err
		}
		return &ActionResult{Appointment: appt}, nil
	case actiontoken.ActionCancel:
		appt, err = s.cancel(ctx, appt, req.Reason, defaultCancelReason, "attendee")
		if err != nil {
			return nil, err
		}
		return &ActionResult{Appointment: appt}, nil
	default:
		res, err := s.reschedule(ctx, appt, req.NewDate, req.NewTime)
		if err != nil {
			return nil, err
		}
		return &ActionResult{Appointment: res.Appointment, PreviousScheduledAt: &res.PreviousScheduledAt}, nil
	}
}

// Confirm confirms the appointment referenced by token.
func (s *Service) Confirm(ctx context.Context, token string) (*Appointment, error) {
	res, err := s.Act(ctx, token, ActionRequest{Action: actiontoken.ActionConfirm})
	if err != nil {
		return nil, err
	}
	return res.Appointment, nil
}

// Cancel cancels the appointment referenced by token.
func (s *Service) Cancel(ctx context.Context, token, reason string) (*Appointment, error) {
	res, err := s.Act(ctx, token, ActionRequest{Action: actiontoken.ActionCancel, Reason: reason})
	if err != nil {
		return nil, err
	}
	return res.Appointment, nil
}

// RescheduleResult carries the moved appointment and its previous start.
type RescheduleResult struct {
	Appointment         *Appointment
	PreviousScheduledAt time.Time
}

// Reschedule moves the appointment referenced by token to newDate/newTime,
// interpreted in the appointment's own time zone.
func (s *Service) Reschedule(ctx context.Context, token, newDate, newTime string) (*RescheduleResult, error) {
	res, err := s.Act(ctx, token, ActionRequest{Action: actiontoken.ActionReschedule, NewDate: newDate, NewTime: newTime})
	if err != nil {
		return nil, err
	}
	return &RescheduleResult{Appointment: res.Appointment, PreviousScheduledAt: *res.PreviousScheduledAt}, nil
}

// ConfirmByID confirms on behalf of the organization.
func (s *Service) ConfirmByID(ctx context.Context, orgID string, id uuid.UUID) (*Appointment, error) {
	appt, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	return s.confirm(ctx, appt, "organization")
}

// CancelByID cancels on behalf of the organization.
func (s *Service) CancelByID(ctx context.Context, orgID string, id uuid.UUID, reason string) (*Appointment, error) {
	appt, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, appt, reason, orgCancelReason, "organization")
}

// CompleteByID marks a confirmed appointment as completed.
func (s *Service) CompleteByID(ctx context.Context, orgID string, id uuid.UUID) (*Appointment, error) {
	appt, err := s.Get(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if appt.Status.IsTerminal() {
		return nil, &TerminalError{Status: appt.Status}
	}
	if !appt.Status.CanTransition(StatusCompleted) {
		return nil, invalid("status", fmt.Sprintf("cannot complete a %s appointment", appt.Status))
	}
	now := s.now()
	ok, err := s.repo.Complete(ctx, appt.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.lostUpdate(ctx, appt.ID)
	}
	appt.Status = StatusCompleted
	appt.CompletedAt = &now
	appt.UpdatedAt = now
	s.record(ctx, appt, audit.EventAppointmentCompleted, "organization", nil)
	return appt, nil
}

func (s *Service) confirm(ctx context.Context, appt *Appointment, actor string) (*Appointment, error) {
	if appt.Status.IsTerminal() {
		return nil, &TerminalError{Status: appt.Status}
	}
	now := s.now()
	ok, err := s.repo.Confirm(ctx, appt.ID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.lostUpdate(ctx, appt.ID)
	}
	appt.Status = StatusConfirmed
	appt.ConfirmedAt = &now
	appt.UpdatedAt = now
	s.logger.Info("appointments: confirmed", "org_id", appt.OrgID, "appointment_id", appt.ID, "actor", actor)
	s.record(ctx, appt, audit.EventAppointmentConfirmed, actor, nil)
	return appt, nil
}

func (s *Service) cancel(ctx context.Context, appt *Appointment, reason, fallback, actor string) (*Appointment, error) {
	if appt.Status.IsTerminal() {
		return nil, &TerminalError{Status: appt.Status}
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = fallback
	}
	now := s.now()
	ok, err := s.repo.Cancel(ctx, appt.ID, reason, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.lostUpdate(ctx, appt.ID)
	}
	appt.Status = StatusCancelled
	appt.CancelledAt = &now
	appt.CancelReason = reason
	appt.UpdatedAt = now
	s.logger.Info("appointments: cancelled", "org_id", appt.OrgID, "appointment_id", appt.ID, "actor", actor)
	s.record(ctx, appt, audit.EventAppointmentCancelled, actor, map[string]any{"reason": reason})

	if appt.Attendee.Email != "" {
		s.notify(ctx, "cancellation", appt, func(ctx context.Context) error {
			return s.notifier.SendCancellation(ctx, appt)
		})
	}
	return appt, nil
}

func (s *Service) reschedule(ctx context.Context, appt *Appointment, newDate, newTime string) (*RescheduleResult, error) {
	if appt.Status.IsTerminal() {
		return nil, &TerminalError{Status: appt.Status}
	}
	if strings.TrimSpace(newDate) == "" || strings.TrimSpace(newTime) == "" {
		return nil, invalid("newDate", "new date and time are both required")
	}
	tz := appt.TimeZone
	if strings.TrimSpace(tz) == "" {
		tz = businesshours.DefaultTimezone
	}
	start, err := parseLocalDateTime(newDate, newTime, businesshours.Location(tz))
	if err != nil {
		return nil, invalid("newTime", "expected date YYYY-MM-DD and time HH:MM")
	}
	now := s.now()
	if !start.After(now) {
		return nil, invalid("newDate", "must be in the future")
	}
	duration := appt.Duration
	if duration <= 0 {
		duration = DefaultDurationMinutes
	}
	end := start.Add(time.Duration(duration) * time.Minute)

	if err := s.checkConflict(ctx, appt.OrgID, start, end, appt.ID); err != nil {
		return nil, err
	}

	previous := appt.ScheduledAt
	notes := appendNote(appt.Notes, fmt.Sprintf("Rescheduled from %s by attendee", previous.UTC().Format(time.RFC3339)))
	ok, err := s.repo.Reschedule(ctx, appt.ID, previous, start, end, notes, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, s.lostUpdate(ctx, appt.ID)
	}
	appt.Status = StatusRescheduled
	appt.ScheduledAt = start
	appt.EndAt = end
	appt.Notes = notes
	appt.UpdatedAt = now
	appt.ReminderSentAt = nil
	appt.SMSReminderAt = nil
	appt.CallReminderAt = nil

	s.logger.Info("appointments: rescheduled",
		"org_id", appt.OrgID, "appointment_id", appt.ID, "from", previous, "to", start)
	s.record(ctx, appt, audit.EventAppointmentRescheduled, "attendee", map[string]any{
		"previous_scheduled_at": previous,
		"scheduled_at":          start,
	})
	if appt.Attendee.Email != "" {
		s.notify(ctx, "reschedule", appt, func(ctx context.Context) error {
			return s.notifier.SendRescheduled(ctx, appt, previous)
		})
	}
	return &RescheduleResult{Appointment: appt, PreviousScheduledAt: previous}, nil
}

// lostUpdate explains why a conditional update matched no row.
func (s *Service) lostUpdate(ctx context.Context, id uuid.UUID) error {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status.IsTerminal() {
		return &TerminalError{Status: current.Status}
	}
	return ErrConcurrentUpdate
}

func (s *Service) notify(ctx context.Context, kind string, appt *Appointment, send func(context.Context) error) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := send(ctx); err != nil {
		s.logger.Error("appointments: notification failed",
			"kind", kind, "org_id", appt.OrgID, "appointment_id", appt.ID, "error", err)
	}
}

func (s *Service) record(ctx context.Context, appt *Appointment, eventType audit.EventType, actor string, details map[string]any) {
	if s.audit == nil {
		return
	}
	event := audit.Event{
		Type:          eventType,
		OrgID:         appt.OrgID,
		AppointmentID: appt.ID.String(),
		Actor:         actor,
	}
	if len(details) > 0 {
		event.Details = audit.MustDetails(details)
	}
	if err := s.audit.LogEvent(ctx, event); err != nil {
		s.logger.Warn("appointments: audit log failed",
			"event", eventType, "appointment_id", appt.ID, "error", err)
	}
}

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04:05", "2006-01-02 15:04"}

// parseInstant accepts RFC 3339, or a local date-time without offset that is
// read in loc.
func parseInstant(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", raw)
}

func parseLocalDateTime(date, clock string, loc *time.Location) (time.Time, error) {
	date = strings.TrimSpace(date)
	clock = strings.ToUpper(strings.TrimSpace(clock))
	for _, layout := range []string{"15:04", "15:04:05", "3:04 PM", "3:04PM"} {
		if t, err := time.ParseInLocation("2006-01-02 "+layout, date+" "+clock, loc); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date/time %q %q", date, clock)
}

func appendNote(existing, line string) string {
	existing = strings.TrimRight(existing, "\n")
	if existing == "" {
		return line
	}
	return existing + "\n" + line
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func bookingResult(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func actionResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrAlreadyTerminal):
		return "terminal"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
