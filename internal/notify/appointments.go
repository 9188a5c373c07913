package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/voice-agent-scheduling/internal/actiontoken"
	"github.com/wolfman30/voice-agent-scheduling/internal/appointments"
	"github.com/wolfman30/voice-agent-scheduling/internal/businesshours"
	"github.com/wolfman30/voice-agent-scheduling/pkg/logging"
)

const whenLayout = "Monday, January 2, 2006 at 3:04 PM MST"

// Branding is the organization identity rendered into attendee messages.
type Branding struct {
	CompanyName  string `json:"company_name"`
	LogoURL      string `json:"logo_url,omitempty"`
	PrimaryColor string `json:"primary_color,omitempty"`
	SupportEmail string `json:"support_email,omitempty"`
}

// DefaultBranding is used when an organization has none configured.
func DefaultBranding() Branding {
	return Branding{CompanyName: defaultFromName, PrimaryColor: "#2563eb"}
}

func (b Branding) withDefaults() Branding {
	d := DefaultBranding()
	if strings.TrimSpace(b.CompanyName) == "" {
		b.CompanyName = d.CompanyName
	}
	if strings.TrimSpace(b.PrimaryColor) == "" {
		b.PrimaryColor = d.PrimaryColor
	}
	return b
}

// BrandingSource resolves branding per organization.
type BrandingSource interface {
	Branding(ctx context.Context, orgID string) (Branding, error)
}

// LinkIssuer mints attendee action links.
type LinkIssuer interface {
	Links(baseURL, appointmentID, email string) (actiontoken.Links, error)
}

// AppointmentDetails is the rendered view of an appointment shared by email
// and SMS templates.
type AppointmentDetails struct {
	Title        string
	Description  string
	When         string
	Duration     int
	TimeZone     string
	MeetingLabel string
	MeetingIcon  string
	MeetingLink  string
	Location     string
	PhoneNumber  string
	CancelReason string
	Links        actiontoken.Links
}

// DetailsFor renders appt in its own time zone.
func DetailsFor(appt *appointments.Appointment) AppointmentDetails {
	return AppointmentDetails{
		Title:        appt.Title,
		Description:  appt.Description,
		When:         formatWhen(appt.ScheduledAt, appt.TimeZone),
		Duration:     appt.Duration,
		TimeZone:     appt.TimeZone,
		MeetingLabel: appt.MeetingType.Label(),
		MeetingIcon:  appt.MeetingType.Icon(),
		MeetingLink:  appt.MeetingLink,
		Location:     appt.Location,
		PhoneNumber:  appt.PhoneNumber,
		CancelReason: appt.CancelReason,
	}
}

func formatWhen(t time.Time, tz string) string {
	if strings.TrimSpace(tz) == "" {
		tz = businesshours.DefaultTimezone
	}
	return t.In(businesshours.Location(tz)).Format(whenLayout)
}

// where returns the single line describing how to join.
func (d AppointmentDetails) where() string {
	switch {
	case d.MeetingLink != "":
		return d.MeetingLink
	case d.Location != "":
		return d.Location
	case d.PhoneNumber != "":
		return d.PhoneNumber
	}
	return ""
}

type mailKind int

const (
	mailConfirmation mailKind = iota
	mailCancellation
	mailRescheduled
	mailReminder
)

// AppointmentMailer renders and sends attendee emails.
type AppointmentMailer struct {
	sender   EmailSender
	links    LinkIssuer
	branding BrandingSource
	baseURL  string
	logger   *logging.Logger
}

// NewAppointmentMailer creates a mailer. links and branding are optional.
func NewAppointmentMailer(sender EmailSender, links LinkIssuer, branding BrandingSource, baseURL string, logger *logging.Logger) *AppointmentMailer {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentMailer{
		sender:   sender,
		links:    links,
		branding: branding,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

// SendConfirmation tells the attendee the appointment is booked.
func (m *AppointmentMailer) SendConfirmation(ctx context.Context, appt *appointments.Appointment) error {
	return m.send(ctx, appt, mailConfirmation, 0, time.Time{})
}

// SendCancellation tells the attendee the appointment was cancelled.
func (m *AppointmentMailer) SendCancellation(ctx context.Context, appt *appointments.Appointment) error {
	return m.send(ctx, appt, mailCancellation, 0, time.Time{})
}

// SendRescheduled shows the attendee the old and new times.
func (m *AppointmentMailer) SendRescheduled(ctx context.Context, appt *appointments.Appointment, previous time.Time) error {
	return m.send(ctx, appt, mailRescheduled, 0, previous)
}

// SendReminder sends the lead-time reminder.
func (m *AppointmentMailer) SendReminder(ctx context.Context, appt *appointments.Appointment, leadHours int) error {
	return m.send(ctx, appt, mailReminder, leadHours, time.Time{})
}

func (m *AppointmentMailer) send(ctx context.Context, appt *appointments.Appointment, kind mailKind, leadHours int, previous time.Time) error {
	if m.sender == nil {
		return errors.New("notify: email sender not configured")
	}
	to := strings.TrimSpace(appt.Attendee.Email)
	if to == "" {
		return errors.New("notify: attendee has no email address")
	}

	brand := resolveBranding(ctx, m.branding, appt.OrgID, m.logger)
	details := DetailsFor(appt)
	if kind != mailCancellation && m.links != nil && m.baseURL != "" {
		links, err := m.links.Links(m.baseURL, appt.ID.String(), to)
		if err != nil {
			m.logger.Warn("notify: action links unavailable", "appointment_id", appt.ID, "error", err)
		} else {
			details.Links = links
		}
	}

	msg := renderEmail(kind, appt.Attendee.Name, details, brand, leadHours, previous)
	msg.To = to
	msg.ToName = appt.Attendee.Name
	if err := m.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("notify: send appointment email: %w", err)
	}
	return nil
}

func resolveBranding(ctx context.Context, src BrandingSource, orgID string, logger *logging.Logger) Branding {
	if src == nil {
		return DefaultBranding()
	}
	b, err := src.Branding(ctx, orgID)
	if err != nil {
		logger.Warn("notify: branding lookup failed", "org_id", orgID, "error", err)
		return DefaultBranding()
	}
	return b.withDefaults()
}

func leadPhrase(hours int) string {
	switch {
	case hours == 24:
		return "tomorrow"
	case hours == 1:
		return "in 1 hour"
	case hours > 0 && hours%24 == 0:
		return fmt.Sprintf("in %d days", hours/24)
	case hours > 0:
		return fmt.Sprintf("in %d hours", hours)
	}
	return "soon"
}

func renderEmail(kind mailKind, name string, d AppointmentDetails, b Branding, leadHours int, previous time.Time) EmailMessage {
	greeting := "Hi"
	if strings.TrimSpace(name) != "" {
		greeting = "Hi " + strings.TrimSpace(name)
	}

	var subject, intro string
	switch kind {
	case mailConfirmation:
		subject = "Your appointment is scheduled: " + d.Title
		intro = fmt.Sprintf("Your appointment with %s is scheduled.", b.CompanyName)
	case mailCancellation:
		subject = "Your appointment has been cancelled: " + d.Title
		intro = fmt.Sprintf("Your appointment with %s has been cancelled.", b.CompanyName)
	case mailRescheduled:
		subject = "Your appointment has been rescheduled: " + d.Title
		intro = fmt.Sprintf("Your appointment with %s has moved from %s.", b.CompanyName, formatWhen(previous, d.TimeZone))
	default:
		subject = fmt.Sprintf("Reminder: %s %s", d.Title, leadPhrase(leadHours))
		intro = fmt.Sprintf("This is a reminder of your appointment with %s %s.", b.CompanyName, leadPhrase(leadHours))
	}

	lines := []string{
		greeting + ",",
		"",
		intro,
		"",
		"What: " + d.Title,
		"When: " + d.When,
		fmt.Sprintf("How: %s %s", d.MeetingIcon, d.MeetingLabel),
	}
	if w := d.where(); w != "" {
		lines = append(lines, "Where: "+w)
	}
	if kind == mailCancellation && d.CancelReason != "" {
		lines = append(lines, "Reason: "+d.CancelReason)
	}
	actions := actionLines(kind, d.Links)
	if len(actions) > 0 {
		lines = append(lines, "")
		lines = append(lines, actions...)
	}
	lines = append(lines, "", "Thanks,", b.CompanyName)
	if b.SupportEmail != "" {
		lines = append(lines, b.SupportEmail)
	}

	return EmailMessage{
		Subject: subject,
		Body:    strings.Join(lines, "\n"),
		HTML:    renderHTML(intro, d, b, kind),
	}
}

func actionLines(kind mailKind, l actiontoken.Links) []string {
	if kind == mailCancellation {
		return nil
	}
	var out []string
	if l.Confirm != "" && kind != mailRescheduled {
		out = append(out, "Confirm: "+l.Confirm)
	}
	if l.Reschedule != "" {
		out = append(out, "Reschedule: "+l.Reschedule)
	}
	if l.Cancel != "" {
		out = append(out, "Cancel: "+l.Cancel)
	}
	return out
}

func renderHTML(intro string, d AppointmentDetails, b Branding, kind mailKind) string {
	var sb strings.Builder
	esc := html.EscapeString
	sb.WriteString(`<div style="font-family:Arial,sans-serif;max-width:560px;margin:0 auto">`)
	if b.LogoURL != "" {
		fmt.Fprintf(&sb, `<img src="%s" alt="%s" style="max-height:48px">`, esc(b.LogoURL), esc(b.CompanyName))
	}
	fmt.Fprintf(&sb, `<h2 style="color:%s">%s</h2>`, esc(b.PrimaryColor), esc(d.Title))
	fmt.Fprintf(&sb, `<p>%s</p>`, esc(intro))
	sb.WriteString(`<table cellpadding="4">`)
	fmt.Fprintf(&sb, `<tr><td><strong>When</strong></td><td>%s</td></tr>`, esc(d.When))
	fmt.Fprintf(&sb, `<tr><td><strong>How</strong></td><td>%s %s</td></tr>`, d.MeetingIcon, esc(d.MeetingLabel))
	if w := d.where(); w != "" {
		fmt.Fprintf(&sb, `<tr><td><strong>Where</strong></td><td>%s</td></tr>`, esc(w))
	}
	if kind == mailCancellation && d.CancelReason != "" {
		fmt.Fprintf(&sb, `<tr><td><strong>Reason</strong></td><td>%s</td></tr>`, esc(d.CancelReason))
	}
	sb.WriteString(`</table>`)
	if kind != mailCancellation {
		button := func(label, href string) {
			if href == "" {
				return
			}
			fmt.Fprintf(&sb, `<a href="%s" style="display:inline-block;margin:4px;padding:10px 16px;background:%s;color:#fff;text-decoration:none;border-radius:4px">%s</a>`,
				esc(href), esc(b.PrimaryColor), esc(label))
		}
		sb.WriteString(`<p>`)
		if kind != mailRescheduled {
			button("Confirm", d.Links.Confirm)
		}
		button("Reschedule", d.Links.Reschedule)
		button("Cancel", d.Links.Cancel)
		sb.WriteString(`</p>`)
	}
	fmt.Fprintf(&sb, `<p style="color:#666">%s</p></div>`, esc(b.CompanyName))
	return sb.String()
}
