// Package businesshours decides whether an organization is open at a given
// instant and renders its weekly schedule for agent prompts.
//
// Nothing in this package returns an error or panics on bad input: it is
// called inline while routing live calls, so malformed configuration degrades
// to "closed" instead.
package businesshours

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTimezone applies when neither the caller nor the config names a zone.
const DefaultTimezone = "America/New_York"

// NotConfiguredMessage is returned by FormatForPrompt when there is no schedule.
const NotConfiguredMessage = "Business hours not configured."

// TimeRange is a wall-clock opening window, "HH:MM" 24-hour, end exclusive.
type TimeRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WeeklySchedule holds one optional range per weekday. Nil means closed.
type WeeklySchedule struct {
	Sunday    *TimeRange `json:"sunday"`
	Monday    *TimeRange `json:"monday"`
	Tuesday   *TimeRange `json:"tuesday"`
	Wednesday *TimeRange `json:"wednesday"`
	Thursday  *TimeRange `json:"thursday"`
	Friday    *TimeRange `json:"friday"`
	Saturday  *TimeRange `json:"saturday"`
}

// Config is an organization's business hours configuration.
type Config struct {
	Timezone string          `json:"timezone,omitempty"`
	Schedule *WeeklySchedule `json:"schedule,omitempty"`
}

var dayNames = [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// Day returns the range configured for weekday (0=Sunday, 6=Saturday).
func (s *WeeklySchedule) Day(weekday time.Weekday) *TimeRange {
	if s == nil {
		return nil
	}
	switch weekday {
	case time.Sunday:
		return s.Sunday
	case time.Monday:
		return s.Monday
	case time.Tuesday:
		return s.Tuesday
	case time.Wednesday:
		return s.Wednesday
	case time.Thursday:
		return s.Thursday
	case time.Friday:
		return s.Friday
	case time.Saturday:
		return s.Saturday
	default:
		return nil
	}
}

// SetDay replaces the range for weekday. A nil range closes the day.
func (s *WeeklySchedule) SetDay(weekday time.Weekday, r *TimeRange) {
	switch weekday {
	case time.Sunday:
		s.Sunday = r
	case time.Monday:
		s.Monday = r
	case time.Tuesday:
		s.Tuesday = r
	case time.Wednesday:
		s.Wednesday = r
	case time.Thursday:
		s.Thursday = r
	case time.Friday:
		s.Friday = r
	case time.Saturday:
		s.Saturday = r
	}
}

// Clone returns a deep copy that shares no pointers with s.
func (s *WeeklySchedule) Clone() *WeeklySchedule {
	if s == nil {
		return nil
	}
	out := &WeeklySchedule{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if r := s.Day(d); r != nil {
			cp := *r
			out.SetDay(d, &cp)
		}
	}
	return out
}

// Clone returns a deep copy of the config.
func (c Config) Clone() Config {
	return Config{Timezone: c.Timezone, Schedule: c.Schedule.Clone()}
}

// Default returns Monday-Friday 09:00-17:00 in America/New_York, weekends closed.
// Every call builds a new value.
func Default() Config {
	weekday := func() *TimeRange { return &TimeRange{Start: "09:00", End: "17:00"} }
	return Config{
		Timezone: DefaultTimezone,
		Schedule: &WeeklySchedule{
			Monday:    weekday(),
			Tuesday:   weekday(),
			Wednesday: weekday(),
			Thursday:  weekday(),
			Friday:    weekday(),
		},
	}
}

// GetDaySchedule returns a copy of the range for day (0=Sunday … 6=Saturday),
// or nil when the day is out of range, the schedule is missing or the day is closed.
func GetDaySchedule(cfg Config, day int) *TimeRange {
	if day < 0 || day > 6 || cfg.Schedule == nil {
		return nil
	}
	r := cfg.Schedule.Day(time.Weekday(day))
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// ResolveTimezone picks override, then cfg.Timezone, then DefaultTimezone.
func ResolveTimezone(cfg Config, override string) string {
	if tz := strings.TrimSpace(override); tz != "" {
		return tz
	}
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		return tz
	}
	return DefaultTimezone
}

// Location loads an IANA zone. Unknown names resolve to UTC.
func Location(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// IsWithinBusinessHours reports whether instant falls inside the schedule of
// its local weekday, start inclusive and end exclusive.
func IsWithinBusinessHours(cfg Config, tzOverride string, instant time.Time) bool {
	if cfg.Schedule == nil {
		return false
	}
	local := instant.In(Location(ResolveTimezone(cfg, tzOverride)))
	r := cfg.Schedule.Day(local.Weekday())
	if r == nil {
		return false
	}
	open, ok := parseClock(r.Start)
	if !ok {
		return false
	}
	closeAt, ok := parseClock(r.End)
	if !ok || closeAt <= open {
		return false
	}
	now := local.Hour()*60 + local.Minute()
	return now >= open && now < closeAt
}

// NextOpen returns instant itself when open, otherwise the next opening within
// a week. The bool is false when the schedule never opens.
func NextOpen(cfg Config, tzOverride string, instant time.Time) (time.Time, bool) {
	if cfg.Schedule == nil {
		return time.Time{}, false
	}
	if IsWithinBusinessHours(cfg, tzOverride, instant) {
		return instant, true
	}
	loc := Location(ResolveTimezone(cfg, tzOverride))
	local := instant.In(loc)
	for i := 0; i <= 7; i++ {
		day := local.AddDate(0, 0, i)
		r := cfg.Schedule.Day(day.Weekday())
		if r == nil {
			continue
		}
		open, ok := parseClock(r.Start)
		if !ok {
			continue
		}
		if closeAt, ok := parseClock(r.End); !ok || closeAt <= open {
			continue
		}
		opensAt := time.Date(day.Year(), day.Month(), day.Day(), open/60, open%60, 0, 0, loc)
		if opensAt.After(instant) {
			return opensAt, true
		}
	}
	return time.Time{}, false
}

// FormatClock renders "HH:MM" as 12-hour time ("13:00" -> "1:00 PM").
// Unparseable input is returned unchanged.
func FormatClock(hhmm string) string {
	minutes, ok := parseClock(hhmm)
	if !ok {
		return hhmm
	}
	h, m := minutes/60, minutes%60
	suffix := "AM"
	if h >= 12 {
		suffix = "PM"
	}
	h %= 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, m, suffix)
}

// FormatForPrompt renders the schedule as a header plus one line per day,
// Sunday first.
func FormatForPrompt(cfg Config) string {
	if cfg.Schedule == nil {
		return NotConfiguredMessage
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Business hours (%s):", ResolveTimezone(cfg, ""))
	for d := time.Sunday; d <= time.Saturday; d++ {
		b.WriteString("\n")
		r := cfg.Schedule.Day(d)
		if r == nil {
			fmt.Fprintf(&b, "%s: Closed", dayNames[d])
			continue
		}
		fmt.Fprintf(&b, "%s: %s - %s", dayNames[d], FormatClock(r.Start), FormatClock(r.End))
	}
	return b.String()
}

// parseClock converts "HH:MM" to minutes after midnight.
func parseClock(s string) (int, bool) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
