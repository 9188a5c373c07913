// Package reminders dispatches appointment reminders over email, SMS and
// voice calls, at most once per channel per appointment.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultHoursBefore is the lead time used for organizations without settings.
const DefaultHoursBefore = 24

// MaxHoursBefore caps the configurable lead time at one week.
const MaxHoursBefore = 168

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Settings is an organization's reminder configuration.
type Settings struct {
	OrgID        string `json:"org_id"`
	SendReminder bool   `json:"send_reminder"`
	HoursBefore  int    `json:"hours_before"`
	SMSEnabled   bool   `json:"sms_enabled"`
	CallEnabled  bool   `json:"call_enabled"`

	// CallsBusinessHoursOnly holds reminder calls until the organization is
	// open. Off by default; a held call is only placed by a later run that
	// still finds the appointment inside its due window.
	CallsBusinessHoursOnly bool `json:"calls_business_hours_only"`

	Configured bool      `json:"configured"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DefaultSettings applies to organizations with no reminder_settings row.
func DefaultSettings() Settings {
	return Settings{SendReminder: true, HoursBefore: DefaultHoursBefore}
}

// Validate checks the lead time bounds.
func (s Settings) Validate() error {
	if strings.TrimSpace(s.OrgID) == "" {
		return errors.New("org_id required")
	}
	if s.HoursBefore < 1 || s.HoursBefore > MaxHoursBefore {
		return fmt.Errorf("hours_before must be between 1 and %d", MaxHoursBefore)
	}
	return nil
}

// DueWindow is the range of start times eligible for a reminder now:
// [now+lead-tolerance, now+lead+tolerance].
func DueWindow(now time.Time, leadHours int, tolerance time.Duration) (time.Time, time.Time) {
	lead := time.Duration(leadHours) * time.Hour
	return now.Add(lead - tolerance), now.Add(lead + tolerance)
}

// SettingsStore persists reminder_settings rows.
type SettingsStore struct {
	db DB
}

// NewSettingsStore creates a new settings store.
func NewSettingsStore(db DB) *SettingsStore {
	return &SettingsStore{db: db}
}

const settingsColumns = `org_id, send_reminder, hours_before, sms_enabled, call_enabled, calls_business_hours_only, updated_at`

// ListConfigured returns every organization with an explicit settings row.
func (s *SettingsStore) ListConfigured(ctx context.Context) ([]Settings, error) {
	rows, err := s.db.Query(ctx, `SELECT `+settingsColumns+` FROM reminder_settings ORDER BY org_id`)
	if err != nil {
		return nil, fmt.Errorf("reminders: list settings: %w", err)
	}
	defer rows.Close()

	var out []Settings
	for rows.Next() {
		var st Settings
		if err := rows.Scan(&st.OrgID, &st.SendReminder, &st.HoursBefore, &st.SMSEnabled, &st.CallEnabled, &st.CallsBusinessHoursOnly, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("reminders: scan settings: %w", err)
		}
		st.Configured = true
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reminders: list settings: %w", err)
	}
	return out, nil
}

// Get returns the organization's settings, or the defaults when none exist.
func (s *SettingsStore) Get(ctx context.Context, orgID string) (Settings, error) {
	var st Settings
	err := s.db.QueryRow(ctx, `SELECT `+settingsColumns+` FROM reminder_settings WHERE org_id = $1`, orgID).
		Scan(&st.OrgID, &st.SendReminder, &st.HoursBefore, &st.SMSEnabled, &st.CallEnabled, &st.CallsBusinessHoursOnly, &st.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		d := DefaultSettings()
		d.OrgID = orgID
		return d, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("reminders: get settings: %w", err)
	}
	st.Configured = true
	return st, nil
}

// Upsert creates or replaces the organization's settings.
func (s *SettingsStore) Upsert(ctx context.Context, st Settings) (Settings, error) {
	if err := st.Validate(); err != nil {
		return Settings{}, err
	}
	st.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(ctx, `
		INSERT INTO reminder_settings (org_id, send_reminder, hours_before, sms_enabled, call_enabled, calls_business_hours_only, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (org_id) DO UPDATE SET
			send_reminder = EXCLUDED.send_reminder,
			hours_before = EXCLUDED.hours_before,
			sms_enabled = EXCLUDED.sms_enabled,
			call_enabled = EXCLUDED.call_enabled,
			calls_business_hours_only = EXCLUDED.calls_business_hours_only,
			updated_at = EXCLUDED.updated_at`,
		st.OrgID, st.SendReminder, st.HoursBefore, st.SMSEnabled, st.CallEnabled, st.CallsBusinessHoursOnly, st.UpdatedAt,
	)
	if err != nil {
		return Settings{}, fmt.Errorf("reminders: upsert settings: %w", err)
	}
	st.Configured = true
	return st, nil
}
