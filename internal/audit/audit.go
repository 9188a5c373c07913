// Package audit records an immutable trail of appointment lifecycle events.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// EventType identifies what happened to an appointment.
type EventType string

const (
	EventAppointmentCreated     EventType = "appointment.created"
	EventAppointmentConfirmed   EventType = "appointment.confirmed"
	EventAppointmentCancelled   EventType = "appointment.cancelled"
	EventAppointmentRescheduled EventType = "appointment.rescheduled"
	EventAppointmentCompleted   EventType = "appointment.completed"
	// EventReminderSent is logged once per delivered reminder channel.
	EventReminderSent EventType = "reminder.sent"
	// EventReminderFailed is logged when a channel send fails after its claim.
	EventReminderFailed EventType = "reminder.failed"
)

// Event is a single audit record.
type Event struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"event_type"`
	OrgID         string          `json:"org_id"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	Actor         string          `json:"actor,omitempty"`
	Details       json.RawMessage `json:"details,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// MustDetails marshals v for Event.Details. Values that cannot be encoded
// produce an empty object.
func MustDetails(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// Service writes and queries audit events.
type Service struct {
	db *sql.DB
}

// NewService creates a new audit service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// LogEvent records an audit event.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if len(event.Details) == 0 {
		event.Details = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO appointment_audit_events (
			id, event_type, org_id, appointment_id, actor, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.Type,
		event.OrgID,
		nullString(event.AppointmentID),
		nullString(event.Actor),
		[]byte(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

// LogReminder records the outcome of one reminder channel.
func (s *Service) LogReminder(ctx context.Context, orgID, appointmentID, channel string, sendErr error) error {
	details := map[string]any{"channel": channel}
	eventType := EventReminderSent
	if sendErr != nil {
		eventType = EventReminderFailed
		details["error"] = sendErr.Error()
	}
	return s.LogEvent(ctx, Event{
		Type:          eventType,
		OrgID:         orgID,
		AppointmentID: appointmentID,
		Actor:         "reminder-worker",
		Details:       MustDetails(details),
	})
}

// Filter specifies criteria for querying audit events.
type Filter struct {
	OrgID         string
	AppointmentID string
	EventTypes    []EventType
	StartTime     time.Time
	EndTime       time.Time
	Limit         int
	Offset        int
}

// QueryEvents retrieves audit events, newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, org_id, appointment_id, actor, details, created_at
		FROM appointment_audit_events
		WHERE org_id = $1
	`
	args := []interface{}{filter.OrgID}
	argIdx := 2

	if filter.AppointmentID != "" {
		query += fmt.Sprintf(" AND appointment_id = $%d", argIdx)
		args = append(args, filter.AppointmentID)
		argIdx++
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		query += fmt.Sprintf(" AND event_type = ANY($%d)", argIdx)
		args = append(args, pq.Array(types))
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var apptID, actor sql.NullString
		var details []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.OrgID, &apptID, &actor, &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.AppointmentID = apptID.String
		e.Actor = actor.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to read events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
