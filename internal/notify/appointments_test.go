package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/voice-agent-scheduling/internal/actiontoken"
	"github.com/wolfman30/voice-agent-scheduling/internal/appointments"
	"github.com/wolfman30/voice-agent-scheduling/internal/telnyx"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []EmailMessage
	err  error
}

func (c *captureSender) Send(_ context.Context, msg EmailMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return c.err
}

type staticBranding struct {
	b   Branding
	err error
}

func (s staticBranding) Branding(context.Context, string) (Branding, error) { return s.b, s.err }

func sampleAppointment() *appointments.Appointment {
	return &appointments.Appointment{
		ID:          uuid.MustParse("6f1c2b8e-8c1e-4d55-9b5a-0f6a1c2d3e4f"),
		OrgID:       "org-1",
		Title:       "Intro call",
		ScheduledAt: time.Date(2026, 3, 4, 15, 0, 0, 0, time.UTC),
		EndAt:       time.Date(2026, 3, 4, 15, 30, 0, 0, time.UTC),
		Duration:    30,
		TimeZone:    "America/New_York",
		MeetingType: appointments.MeetingVideo,
		MeetingLink: "https://meet.example.com/abc",
		Attendee:    appointments.Attendee{Name: "Dana", Email: "dana@example.com", Phone: "+15551230000"},
		Status:      appointments.StatusScheduled,
	}
}

func newSigner(t *testing.T) *actiontoken.Signer {
	t.Helper()
	s, err := actiontoken.NewSigner("secret", time.Hour)
	require.NoError(t, err)
	return s
}

func TestDetailsForUsesAppointmentZone(t *testing.T) {
	d := DetailsFor(sampleAppointment())
	assert.Equal(t, "Wednesday, March 4, 2026 at 10:00 AM EST", d.When)
	assert.Equal(t, "Video call", d.MeetingLabel)
	assert.Equal(t, "https://meet.example.com/abc", d.where())
}

func TestAppointmentMailer_Confirmation(t *testing.T) {
	sender := &captureSender{}
	mailer := NewAppointmentMailer(sender, newSigner(t), staticBranding{b: Branding{CompanyName: "Acme Dental"}}, "https://book.example.com/", nil)

	require.NoError(t, mailer.SendConfirmation(context.Background(), sampleAppointment()))
	require.Len(t, sender.msgs, 1)
	msg := sender.msgs[0]
	assert.Equal(t, "dana@example.com", msg.To)
	assert.Equal(t, "Your appointment is scheduled: Intro call", msg.Subject)
	assert.Contains(t, msg.Body, "Hi Dana,")
	assert.Contains(t, msg.Body, "Acme Dental")
	assert.Contains(t, msg.Body, "Confirm: https://book.example.com/appointments/action/")
	assert.Contains(t, msg.HTML, "#2563eb")
}

func TestAppointmentMailer_CancellationHasNoLinks(t *testing.T) {
	sender := &captureSender{}
	mailer := NewAppointmentMailer(sender, newSigner(t), nil, "https://book.example.com", nil)
	appt := sampleAppointment()
	appt.CancelReason = "Cancelled by attendee"

	require.NoError(t, mailer.SendCancellation(context.Background(), appt))
	msg := sender.msgs[0]
	assert.Contains(t, msg.Body, "Reason: Cancelled by attendee")
	assert.NotContains(t, msg.Body, "/appointments/action/")
}

func TestAppointmentMailer_ReminderAndReschedule(t *testing.T) {
	sender := &captureSender{}
	mailer := NewAppointmentMailer(sender, nil, staticBranding{err: errors.New("redis down")}, "", nil)

	require.NoError(t, mailer.SendReminder(context.Background(), sampleAppointment(), 24))
	assert.Equal(t, "Reminder: Intro call tomorrow", sender.msgs[0].Subject)
	assert.Contains(t, sender.msgs[0].Body, "Appointments")

	require.NoError(t, mailer.SendRescheduled(context.Background(), sampleAppointment(), time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)))
	assert.Contains(t, sender.msgs[1].Body, "has moved from Tuesday, March 3, 2026 at 10:00 AM EST")
}

func TestAppointmentMailer_Errors(t *testing.T) {
	appt := sampleAppointment()
	appt.Attendee.Email = ""
	mailer := NewAppointmentMailer(&captureSender{}, nil, nil, "", nil)
	assert.Error(t, mailer.SendConfirmation(context.Background(), appt))

	failing := NewAppointmentMailer(&captureSender{err: errors.New("bounce")}, nil, nil, "", nil)
	assert.Error(t, failing.SendReminder(context.Background(), sampleAppointment(), 2))

	assert.Error(t, NewAppointmentMailer(nil, nil, nil, "", nil).SendConfirmation(context.Background(), sampleAppointment()))
}

func TestLeadPhrase(t *testing.T) {
	assert.Equal(t, "tomorrow", leadPhrase(24))
	assert.Equal(t, "in 1 hour", leadPhrase(1))
	assert.Equal(t, "in 2 days", leadPhrase(48))
	assert.Equal(t, "in 3 hours", leadPhrase(3))
	assert.Equal(t, "soon", leadPhrase(0))
}

func TestRenderSMS(t *testing.T) {
	d := DetailsFor(sampleAppointment())
	d.Links.Manage = "https://book.example.com/appointments/action/tok"

	body := RenderSMS(SMSReminder, d, Branding{CompanyName: "Acme"})
	assert.True(t, strings.HasPrefix(body, `Reminder from Acme: "Intro call" is on Wednesday, March 4, 2026 at 10:00 AM EST.`))
	assert.Contains(t, body, "Video call: https://meet.example.com/abc.")
	assert.Contains(t, body, "Manage: https://book.example.com/appointments/action/tok")

	cancelled := RenderSMS(SMSCancellation, d, Branding{})
	assert.Equal(t, `Appointments: your appointment "Intro call" on Wednesday, March 4, 2026 at 10:00 AM EST has been cancelled.`, cancelled)
}

type fakeMessages struct {
	req telnyx.SendMessageRequest
	err error
}

func (f *fakeMessages) SendMessage(_ context.Context, req telnyx.SendMessageRequest) (*telnyx.MessageResponse, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &telnyx.MessageResponse{ID: "msg-1"}, nil
}

func TestSMSReminderSender(t *testing.T) {
	client := &fakeMessages{}
	sender := NewSMSReminderSender(client, SMSConfig{FromNumber: "+15550001111", PublicBaseURL: "https://book.example.com"}, newSigner(t), nil, nil)

	require.NoError(t, sender.SendReminderSMS(context.Background(), sampleAppointment()))
	assert.Equal(t, "+15551230000", client.req.To)
	assert.Equal(t, "+15550001111", client.req.From)
	assert.Contains(t, client.req.Body, "Manage: https://book.example.com/appointments/action/")

	client.err = errors.New("carrier rejected")
	assert.Error(t, sender.SendReminderSMS(context.Background(), sampleAppointment()))

	noPhone := sampleAppointment()
	noPhone.Attendee.Phone = ""
	assert.Error(t, sender.SendReminderSMS(context.Background(), noPhone))
}

type fakeDialer struct {
	req telnyx.DialRequest
	err error
}

func (f *fakeDialer) Dial(_ context.Context, req telnyx.DialRequest) (*telnyx.CallResponse, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &telnyx.CallResponse{CallControlID: "ctrl-1"}, nil
}

func TestReminderCaller(t *testing.T) {
	dialer := &fakeDialer{}
	caller := NewReminderCaller(dialer, "conn-1", "+15550001111", nil)
	appt := sampleAppointment()

	require.NoError(t, caller.InitiateReminderCall(context.Background(), appt))
	assert.Equal(t, "conn-1", dialer.req.ConnectionID)
	assert.Equal(t, ReminderClientState(appt.ID), dialer.req.ClientState)

	dialer.err = errors.New("busy")
	assert.Error(t, caller.InitiateReminderCall(context.Background(), appt))

	assert.Error(t, NewReminderCaller(nil, "", "", nil).InitiateReminderCall(context.Background(), appt))
}
