package businesshours

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestGetDaySchedule_OutOfRange(t *testing.T) {
	cfg := Default()
	for _, day := range []int{-100, -1, 7, 8, 1000} {
		assert.Nil(t, GetDaySchedule(cfg, day), "day %d", day)
	}
}

func TestGetDaySchedule(t *testing.T) {
	cfg := Default()

	assert.Nil(t, GetDaySchedule(cfg, 0), "sunday closed")
	assert.Nil(t, GetDaySchedule(cfg, 6), "saturday closed")
	assert.Nil(t, GetDaySchedule(Config{}, 1), "missing schedule")

	monday := GetDaySchedule(cfg, 1)
	require.NotNil(t, monday)
	assert.Equal(t, TimeRange{Start: "09:00", End: "17:00"}, *monday)

	monday.Start = "06:00"
	assert.Equal(t, "09:00", cfg.Schedule.Monday.Start, "returned range must be a copy")
}

func TestIsWithinBusinessHours_DefaultConfig(t *testing.T) {
	cfg := Default()
	tests := []struct {
		name    string
		instant string
		want    bool
	}{
		{"monday opening minute", "2025-01-13T14:00:00Z", true},
		{"one minute before open", "2025-01-13T13:59:00Z", false},
		{"closing boundary is exclusive", "2025-01-13T22:00:00Z", false},
		{"last open minute", "2025-01-13T21:59:00Z", true},
		{"saturday closed", "2025-01-11T17:00:00Z", false},
		{"sunday closed", "2025-01-12T17:00:00Z", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsWithinBusinessHours(cfg, "", mustTime(t, tt.instant)))
		})
	}
}

func TestIsWithinBusinessHours_NoSchedule(t *testing.T) {
	cfg := Config{Timezone: "America/Chicago"}
	start := mustTime(t, "2025-01-13T00:00:00Z")
	for i := 0; i < 7*24; i++ {
		assert.False(t, IsWithinBusinessHours(cfg, "", start.Add(time.Duration(i)*time.Hour)))
	}
}

func TestIsWithinBusinessHours_TimezoneResolution(t *testing.T) {
	cfg := Default()
	cfg.Timezone = ""
	// 14:00Z on a Monday is 09:00 in New York by default.
	assert.True(t, IsWithinBusinessHours(cfg, "", mustTime(t, "2025-01-13T14:00:00Z")))

	// Override wins over the config: 14:00Z is 06:00 in Los Angeles.
	assert.False(t, IsWithinBusinessHours(cfg, "America/Los_Angeles", mustTime(t, "2025-01-13T14:00:00Z")))
	assert.True(t, IsWithinBusinessHours(cfg, "America/Los_Angeles", mustTime(t, "2025-01-13T17:00:00Z")))
}

func TestIsWithinBusinessHours_UnknownZoneFallsBackToUTC(t *testing.T) {
	cfg := Default()
	cfg.Timezone = "Mars/Olympus_Mons"
	assert.True(t, IsWithinBusinessHours(cfg, "", mustTime(t, "2025-01-13T09:00:00Z")))
	assert.False(t, IsWithinBusinessHours(cfg, "", mustTime(t, "2025-01-13T08:59:00Z")))
	assert.False(t, IsWithinBusinessHours(cfg, "", mustTime(t, "2025-01-13T17:00:00Z")))
}

func TestIsWithinBusinessHours_MalformedRange(t *testing.T) {
	cfg := Config{Timezone: "UTC", Schedule: &WeeklySchedule{
		Monday:  &TimeRange{Start: "9am", End: "17:00"},
		Tuesday: &TimeRange{Start: "17:00", End: "09:00"},
	}}
	assert.False(t, IsWithinBusinessHours(cfg, "", mustTime(t, "2025-01-13T12:00:00Z")))
	assert.False(t, IsWithinBusinessHours(cfg, "", mustTime(t, "2025-01-14T12:00:00Z")))
}

func TestIsWithinBusinessHours_DaylightSaving(t *testing.T) {
	cfg := Default()
	// After the March 2025 switch, 09:00 EDT is 13:00Z.
	assert.True(t, IsWithinBusinessHours(cfg, "", mustTime(t, "2025-03-10T13:00:00Z")))
	assert.False(t, IsWithinBusinessHours(cfg, "", mustTime(t, "2025-03-10T12:59:00Z")))
}

func TestFormatClock(t *testing.T) {
	tests := map[string]string{
		"00:00": "12:00 AM",
		"00:30": "12:30 AM",
		"09:00": "9:00 AM",
		"12:00": "12:00 PM",
		"13:00": "1:00 PM",
		"17:45": "5:45 PM",
		"23:59": "11:59 PM",
		"bogus": "bogus",
	}
	for in, want := range tests {
		assert.Equal(t, want, FormatClock(in), in)
	}
}

func TestFormatForPrompt(t *testing.T) {
	assert.Equal(t, "Business hours not configured.", FormatForPrompt(Config{}))

	cfg := Default()
	cfg.Schedule.Saturday = &TimeRange{Start: "00:00", End: "12:00"}
	got := FormatForPrompt(cfg)
	lines := strings.Split(got, "\n")
	require.Len(t, lines, 8)
	assert.Equal(t, "Business hours (America/New_York):", lines[0])
	assert.Equal(t, "Sunday: Closed", lines[1])
	assert.Equal(t, "Monday: 9:00 AM - 5:00 PM", lines[2])
	assert.Equal(t, "Friday: 9:00 AM - 5:00 PM", lines[6])
	assert.Equal(t, "Saturday: 12:00 AM - 12:00 PM", lines[7])
}

func TestFormatForPrompt_DefaultsTimezone(t *testing.T) {
	cfg := Config{Schedule: &WeeklySchedule{}}
	assert.True(t, strings.HasPrefix(FormatForPrompt(cfg), "Business hours (America/New_York):"))
}

func TestDefault_ReturnsIndependentCopies(t *testing.T) {
	a := Default()
	b := Default()
	a.Schedule.Monday.Start = "06:00"
	a.Schedule.Tuesday = nil
	a.Timezone = "UTC"

	assert.Equal(t, "09:00", b.Schedule.Monday.Start)
	assert.NotNil(t, b.Schedule.Tuesday)
	assert.Equal(t, DefaultTimezone, b.Timezone)
}

func TestConfigClone(t *testing.T) {
	a := Default()
	b := a.Clone()
	b.Schedule.Friday.End = "20:00"
	assert.Equal(t, "17:00", a.Schedule.Friday.End)
	assert.Nil(t, Config{}.Clone().Schedule)
}

func TestNextOpen(t *testing.T) {
	cfg := Default()
	ny := Location(DefaultTimezone)

	// Friday 20:00 ET -> Monday 09:00 ET.
	friday := time.Date(2025, 1, 10, 20, 0, 0, 0, ny)
	next, ok := NextOpen(cfg, "", friday)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 13, 9, 0, 0, 0, ny), next)

	// Monday 07:00 ET -> same day 09:00.
	early := time.Date(2025, 1, 13, 7, 0, 0, 0, ny)
	next, ok = NextOpen(cfg, "", early)
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 1, 13, 9, 0, 0, 0, ny), next)

	// Already open.
	open := time.Date(2025, 1, 13, 10, 0, 0, 0, ny)
	next, ok = NextOpen(cfg, "", open)
	require.True(t, ok)
	assert.True(t, next.Equal(open))

	_, ok = NextOpen(Config{Schedule: &WeeklySchedule{}}, "", open)
	assert.False(t, ok)
}
