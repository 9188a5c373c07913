package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// exclusionViolation is raised by the appointments_no_overlap constraint.
const exclusionViolation = "23P01"

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists appointments in Postgres.
type Store struct {
	db DB
}

// NewStore creates a new appointment store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const appointmentColumns = `id, org_id, title, description, scheduled_at, end_at, duration_minutes, time_zone,
		meeting_type, meeting_link, location, phone_number, attendee_name, attendee_email, attendee_phone,
		contact_id, agent_id, call_id, status, cancel_reason, notes,
		confirmed_at, cancelled_at, completed_at, reminder_sent_at, sms_reminder_sent_at, call_reminder_sent_at,
		created_at, updated_at`

// Insert persists a new appointment. An overlap caught by the database
// constraint is reported as a *ConflictError.
func (s *Store) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21,
			$22, $23, $24, $25, $26, $27, $28, $29)`,
		a.ID, a.OrgID, a.Title, a.Description, a.ScheduledAt, a.EndAt, a.Duration, a.TimeZone,
		string(a.MeetingType), a.MeetingLink, a.Location, a.PhoneNumber,
		a.Attendee.Name, a.Attendee.Email, a.Attendee.Phone,
		a.ContactID, a.AgentID, a.CallID, string(a.Status), a.CancelReason, a.Notes,
		a.ConfirmedAt, a.CancelledAt, a.CompletedAt, a.ReminderSentAt, a.SMSReminderAt, a.CallReminderAt,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
			return &ConflictError{Start: a.ScheduledAt, End: a.EndAt}
		}
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// Get loads one appointment by id.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	rows, err := s.db.Query(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	defer rows.Close()
	list, err := scanAppointments(rows)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	return &list[0], nil
}

// ListFilter narrows List results.
type ListFilter struct {
	OrgID  string
	From   time.Time
	To     time.Time
	Status *Status
	Limit  int
}

// List returns an organization's appointments ordered by start time.
func (s *Store) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE org_id = $1`
	args := []any{f.OrgID}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += fmt.Sprintf(" AND scheduled_at >= $%d", len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += fmt.Sprintf(" AND scheduled_at < $%d", len(args))
	}
	if f.Status != nil {
		args = append(args, string(*f.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY scheduled_at ASC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListBlocking returns the organization's blocking intervals that intersect
// [start, end), skipping exclude.
func (s *Store) ListBlocking(ctx context.Context, orgID string, start, end time.Time, exclude uuid.UUID) ([]Interval, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, scheduled_at, end_at
		FROM appointments
		WHERE org_id = $1
		  AND status IN ('scheduled', 'confirmed', 'rescheduled')
		  AND scheduled_at < $3 AND end_at > $2
		  AND id <> $4
		ORDER BY scheduled_at ASC`, orgID, start, end, exclude)
	if err != nil {
		return nil, fmt.Errorf("appointments: list blocking: %w", err)
	}
	defer rows.Close()

	var out []Interval
	for rows.Next() {
		var iv Interval
		if err := rows.Scan(&iv.ID, &iv.Title, &iv.Start, &iv.End); err != nil {
			return nil, fmt.Errorf("appointments: scan interval: %w", err)
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// Confirm moves a non-terminal appointment to confirmed. False means the row
// was no longer mutable when the update ran.
func (s *Store) Confirm(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'confirmed', confirmed_at = $2, updated_at = $2
		WHERE id = $1 AND status IN ('scheduled', 'confirmed', 'rescheduled')`, id, at)
	if err != nil {
		return false, fmt.Errorf("appointments: confirm: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Cancel moves a non-terminal appointment to cancelled.
func (s *Store) Cancel(ctx context.Context, id uuid.UUID, reason string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'cancelled', cancelled_at = $2, cancel_reason = $3, updated_at = $2
		WHERE id = $1 AND status IN ('scheduled', 'confirmed', 'rescheduled')`, id, at, reason)
	if err != nil {
		return false, fmt.Errorf("appointments: cancel: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Complete marks a confirmed appointment as completed.
func (s *Store) Complete(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments SET status = 'completed', completed_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'confirmed'`, id, at)
	if err != nil {
		return false, fmt.Errorf("appointments: complete: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Reschedule moves a non-terminal appointment to a new slot and clears the
// reminder stamps so the new slot is reminded again. The expected start guards
// against two reschedules racing each other.
func (s *Store) Reschedule(ctx context.Context, id uuid.UUID, expectedStart, start, end time.Time, notes string, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'rescheduled', scheduled_at = $3, end_at = $4, notes = $5, updated_at = $6,
			reminder_sent_at = NULL, sms_reminder_sent_at = NULL, call_reminder_sent_at = NULL
		WHERE id = $1 AND scheduled_at = $2 AND status IN ('scheduled', 'confirmed', 'rescheduled')`,
		id, expectedStart, start, end, notes, at)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
			return false, &ConflictError{Start: start, End: end}
		}
		return false, fmt.Errorf("appointments: reschedule: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DueQuery selects reminder candidates for one organization, or for every
// organization without a reminder_settings row when UnconfiguredOnly is set.
type DueQuery struct {
	OrgID            string
	UnconfiguredOnly bool
	From             time.Time
	To               time.Time
	Limit            int
}

// ListDue returns reminder candidates whose start falls in [From, To].
func (s *Store) ListDue(ctx context.Context, q DueQuery) ([]Appointment, error) {
	if !q.UnconfiguredOnly && strings.TrimSpace(q.OrgID) == "" {
		return nil, errors.New("appointments: list due: org id required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE status IN ('scheduled', 'confirmed', 'rescheduled')
		  AND scheduled_at >= $1 AND scheduled_at <= $2
		  AND reminder_sent_at IS NULL
		  AND (attendee_email <> '' OR attendee_phone <> '')`
	args := []any{q.From, q.To}
	if q.UnconfiguredOnly {
		query += `
		  AND org_id NOT IN (SELECT org_id FROM reminder_settings)`
	} else {
		args = append(args, q.OrgID)
		query += fmt.Sprintf(`
		  AND org_id = $%d`, len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(`
		ORDER BY scheduled_at ASC
		LIMIT $%d`, len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list due: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ClaimEmailReminder stamps reminder_sent_at if it is still NULL. Only the
// caller that gets true may send the email.
func (s *Store) ClaimEmailReminder(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return s.claim(ctx, "reminder_sent_at", id, at)
}

// ClaimSMSReminder stamps sms_reminder_sent_at if it is still NULL.
func (s *Store) ClaimSMSReminder(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return s.claim(ctx, "sms_reminder_sent_at", id, at)
}

// ReleaseSMSReminder undoes a claim made at the given instant after a failed send.
func (s *Store) ReleaseSMSReminder(ctx context.Context, id uuid.UUID, claimedAt time.Time) error {
	return s.release(ctx, "sms_reminder_sent_at", id, claimedAt)
}

// ClaimCallReminder stamps call_reminder_sent_at if it is still NULL.
func (s *Store) ClaimCallReminder(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return s.claim(ctx, "call_reminder_sent_at", id, at)
}

// ReleaseCallReminder undoes a call claim after a failed initiation.
func (s *Store) ReleaseCallReminder(ctx context.Context, id uuid.UUID, claimedAt time.Time) error {
	return s.release(ctx, "call_reminder_sent_at", id, claimedAt)
}

func (s *Store) claim(ctx context.Context, column string, id uuid.UUID, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`
		UPDATE appointments SET %[1]s = $2
		WHERE id = $1 AND %[1]s IS NULL`, column), id, at)
	if err != nil {
		return false, fmt.Errorf("appointments: claim %s: %w", column, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) release(ctx context.Context, column string, id uuid.UUID, claimedAt time.Time) error {
	_, err := s.db.Exec(ctx, fmt.Sprintf(`
		UPDATE appointments SET %[1]s = NULL
		WHERE id = $1 AND %[1]s = $2`, column), id, claimedAt)
	if err != nil {
		return fmt.Errorf("appointments: release %s: %w", column, err)
	}
	return nil
}

// GetContact loads a CRM contact for attendee back-fill.
func (s *Store) GetContact(ctx context.Context, orgID, contactID string) (*Contact, error) {
	var c Contact
	err := s.db.QueryRow(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(email, ''), COALESCE(phone, '')
		FROM contacts
		WHERE org_id = $1 AND id = $2`, orgID, contactID).Scan(&c.ID, &c.Name, &c.Email, &c.Phone)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("appointments: get contact: %w", err)
	}
	return &c, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		var a Appointment
		var meetingType, status string
		err := rows.Scan(
			&a.ID, &a.OrgID, &a.Title, &a.Description, &a.ScheduledAt, &a.EndAt, &a.Duration, &a.TimeZone,
			&meetingType, &a.MeetingLink, &a.Location, &a.PhoneNumber,
			&a.Attendee.Name, &a.Attendee.Email, &a.Attendee.Phone,
			&a.ContactID, &a.AgentID, &a.CallID, &status, &a.CancelReason, &a.Notes,
			&a.ConfirmedAt, &a.CancelledAt, &a.CompletedAt, &a.ReminderSentAt, &a.SMSReminderAt, &a.CallReminderAt,
			&a.CreatedAt, &a.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan appointment: %w", err)
		}
		a.MeetingType = MeetingType(meetingType)
		a.Status = Status(status)
		result = append(result, a)
	}
	return result, rows.Err()
}
