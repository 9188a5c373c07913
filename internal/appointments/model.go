// Package appointments owns the appointment lifecycle: booking with conflict
// detection, attendee actions through signed tokens, and the persistence the
// reminder orchestrator reads from.
package appointments

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultDurationMinutes applies when a booking omits duration.
const DefaultDurationMinutes = 30

// Status is an appointment lifecycle state.
type Status string

const (
	StatusScheduled   Status = "scheduled"
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusCompleted   Status = "completed"
)

// BlockingStatuses are the states whose intervals block new bookings.
var BlockingStatuses = []Status{StatusScheduled, StatusConfirmed, StatusRescheduled}

// IsTerminal reports whether no further mutation is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusScheduled, StatusRescheduled:
		return next == StatusConfirmed || next == StatusCancelled || next == StatusRescheduled
	case StatusConfirmed:
		return next == StatusConfirmed || next == StatusCancelled || next == StatusRescheduled || next == StatusCompleted
	default:
		return false
	}
}

// MeetingType is the closed set of ways an appointment takes place.
type MeetingType string

const (
	MeetingPhone    MeetingType = "phone"
	MeetingVideo    MeetingType = "video"
	MeetingInPerson MeetingType = "in_person"
)

// ParseMeetingType accepts the canonical names plus a few common spellings.
// Empty input defaults to phone.
func ParseMeetingType(raw string) (MeetingType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "phone", "call":
		return MeetingPhone, nil
	case "video", "zoom", "meet":
		return MeetingVideo, nil
	case "in_person", "in-person", "inperson", "onsite":
		return MeetingInPerson, nil
	default:
		return "", fmt.Errorf("unknown meeting type %q", raw)
	}
}

// Valid reports whether m is one of the known meeting types.
func (m MeetingType) Valid() bool {
	switch m {
	case MeetingPhone, MeetingVideo, MeetingInPerson:
		return true
	}
	return false
}

// Label is the attendee-facing name.
func (m MeetingType) Label() string {
	switch m {
	case MeetingVideo:
		return "Video call"
	case MeetingInPerson:
		return "In person"
	default:
		return "Phone call"
	}
}

// Icon is a single-glyph marker used in emails and SMS.
func (m MeetingType) Icon() string {
	switch m {
	case MeetingVideo:
		return "🎥"
	case MeetingInPerson:
		return "📍"
	default:
		return "📞"
	}
}

// Attendee identifies the person the appointment is booked for.
type Attendee struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Appointment is a booked slot for one organization.
type Appointment struct {
	ID             uuid.UUID   `json:"id"`
	OrgID          string      `json:"organization_id"`
	Title          string      `json:"title"`
	Description    string      `json:"description,omitempty"`
	ScheduledAt    time.Time   `json:"scheduled_at"`
	EndAt          time.Time   `json:"end_at"`
	Duration       int         `json:"duration"`
	TimeZone       string      `json:"time_zone"`
	MeetingType    MeetingType `json:"meeting_type"`
	MeetingLink    string      `json:"meeting_link,omitempty"`
	Location       string      `json:"location,omitempty"`
	PhoneNumber    string      `json:"phone_number,omitempty"`
	Attendee       Attendee    `json:"attendee"`
	ContactID      *string     `json:"contact_id,omitempty"`
	AgentID        *string     `json:"agent_id,omitempty"`
	CallID         *string     `json:"call_id,omitempty"`
	Status         Status      `json:"status"`
	CancelReason   string      `json:"cancel_reason,omitempty"`
	Notes          string      `json:"notes,omitempty"`
	ConfirmedAt    *time.Time  `json:"confirmed_at,omitempty"`
	CancelledAt    *time.Time  `json:"cancelled_at,omitempty"`
	CompletedAt    *time.Time  `json:"completed_at,omitempty"`
	ReminderSentAt *time.Time  `json:"reminder_sent_at,omitempty"`
	SMSReminderAt  *time.Time  `json:"sms_reminder_sent_at,omitempty"`
	CallReminderAt *time.Time  `json:"call_reminder_sent_at,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// HasContactChannel reports whether the attendee can be reached at all.
func (a *Appointment) HasContactChannel() bool {
	return strings.TrimSpace(a.Attendee.Email) != "" || strings.TrimSpace(a.Attendee.Phone) != ""
}

// Interval returns the appointment's booked range.
func (a *Appointment) Interval() Interval {
	return Interval{ID: a.ID, Title: a.Title, Start: a.ScheduledAt, End: a.EndAt}
}

// Contact is the subset of a CRM contact used to back-fill attendee fields.
type Contact struct {
	ID    string
	Name  string
	Email string
	Phone string
}
