package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/voice-agent-scheduling/internal/appointments"
	"github.com/wolfman30/voice-agent-scheduling/internal/telnyx"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

// SMSType selects the SMS template.
type SMSType string

const (
	SMSReminder     SMSType = "reminder"
	SMSConfirmation SMSType = "confirmation"
	SMSCancellation SMSType = "cancellation"
)

// RenderSMS builds a single SMS body for kind.
func RenderSMS(kind SMSType, d AppointmentDetails, b Branding) string {
	b = b.withDefaults()
	var sb strings.Builder
	switch kind {
	case SMSConfirmation:
		fmt.Fprintf(&sb, "%s: your appointment \"%s\" is booked for %s.", b.CompanyName, d.Title, d.When)
	case SMSCancellation:
		fmt.Fprintf(&sb, "%s: your appointment \"%s\" on %s has been cancelled.", b.CompanyName, d.Title, d.When)
		return sb.String()
	default:
		fmt.Fprintf(&sb, "Reminder from %s: \"%s\" is on %s.", b.CompanyName, d.Title, d.When)
	}
	fmt.Fprintf(&sb, " %s %s", d.MeetingIcon, d.MeetingLabel)
	if w := d.where(); w != "" {
		sb.WriteString(": " + w)
	}
	sb.WriteString(".")
	if d.Links.Manage != "" {
		sb.WriteString(" Manage: " + d.Links.Manage)
	}
	return sb.String()
}

// AppointmentSMS is one outbound appointment text.
type AppointmentSMS struct {
	AppointmentID uuid.UUID
	Type          SMSType
	To            string
	Body          string
}

// MessageClient sends SMS through a provider.
type MessageClient interface {
	SendMessage(ctx context.Context, req telnyx.SendMessageRequest) (*telnyx.MessageResponse, error)
}

// SMSConfig holds sender identity for Telnyx messages.
type SMSConfig struct {
	FromNumber         string
	MessagingProfileID string
	PublicBaseURL      string
}

// SMSReminderSender delivers appointment texts through Telnyx.
type SMSReminderSender struct {
	client   MessageClient
	cfg      SMSConfig
	links    LinkIssuer
	branding BrandingSource
	logger   *logging.Logger
}

// NewSMSReminderSender creates an SMS sender. links and branding are optional.
func NewSMSReminderSender(client MessageClient, cfg SMSConfig, links LinkIssuer, branding BrandingSource, logger *logging.Logger) *SMSReminderSender {
	if logger == nil {
		logger = logging.Default()
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &SMSReminderSender{client: client, cfg: cfg, links: links, branding: branding, logger: logger}
}

// SendAppointmentSMS sends a pre-rendered text.
func (s *SMSReminderSender) SendAppointmentSMS(ctx context.Context, msg AppointmentSMS) error {
	if s.client == nil {
		return errors.New("notify: sms client not configured")
	}
	resp, err := s.client.SendMessage(ctx, telnyx.SendMessageRequest{
		From:               s.cfg.FromNumber,
		To:                 msg.To,
		Body:               msg.Body,
		MessagingProfileID: s.cfg.MessagingProfileID,
	})
	if err != nil {
		return fmt.Errorf("notify: send %s sms: %w", msg.Type, err)
	}
	s.logger.Info("notify: appointment sms sent",
		"appointment_id", msg.AppointmentID, "type", msg.Type, "message_id", resp.ID)
	return nil
}

// SendReminderSMS renders and sends the reminder text for appt.
func (s *SMSReminderSender) SendReminderSMS(ctx context.Context, appt *appointments.Appointment) error {
	to := strings.TrimSpace(appt.Attendee.Phone)
	if to == "" {
		return errors.New("notify: attendee has no phone number")
	}
	details := DetailsFor(appt)
	if s.links != nil && s.cfg.PublicBaseURL != "" && appt.Attendee.Email != "" {
		if links, err := s.links.Links(s.cfg.PublicBaseURL, appt.ID.String(), appt.Attendee.Email); err == nil {
			details.Links = links
		}
	}
	brand := resolveBranding(ctx, s.branding, appt.OrgID, s.logger)
	return s.SendAppointmentSMS(ctx, AppointmentSMS{
		AppointmentID: appt.ID,
		Type:          SMSReminder,
		To:            to,
		Body:          RenderSMS(SMSReminder, details, brand),
	})
}

// Dialer places outbound calls.
type Dialer interface {
	Dial(ctx context.Context, req telnyx.DialRequest) (*telnyx.CallResponse, error)
}

// ReminderCaller starts voice reminder calls on a Telnyx Call Control
// connection. The voice agent picks the call up from the client state.
type ReminderCaller struct {
	dialer       Dialer
	connectionID string
	fromNumber   string
	logger       *logging.Logger
}

// NewReminderCaller creates a reminder call initiator.
func NewReminderCaller(dialer Dialer, connectionID, fromNumber string, logger *logging.Logger) *ReminderCaller {
	if logger == nil {
		logger = logging.Default()
	}
	return &ReminderCaller{dialer: dialer, connectionID: connectionID, fromNumber: fromNumber, logger: logger}
}

// ReminderClientState tags a call so webhooks can be tied back to the appointment.
func ReminderClientState(id uuid.UUID) string {
	return "appointment_reminder:" + id.String()
}

// InitiateReminderCall dials the attendee for appt.
func (c *ReminderCaller) InitiateReminderCall(ctx context.Context, appt *appointments.Appointment) error {
	if c.dialer == nil {
		return errors.New("notify: call dialer not configured")
	}
	to := strings.TrimSpace(appt.Attendee.Phone)
	if to == "" {
		return errors.New("notify: attendee has no phone number")
	}
	resp, err := c.dialer.Dial(ctx, telnyx.DialRequest{
		ConnectionID: c.connectionID,
		From:         c.fromNumber,
		To:           to,
		ClientState:  ReminderClientState(appt.ID),
		TimeoutSecs:  30,
	})
	if err != nil {
		return fmt.Errorf("notify: reminder call: %w", err)
	}
	c.logger.Info("notify: reminder call initiated",
		"appointment_id", appt.ID, "call_control_id", resp.CallControlID)
	return nil
}
