package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Interval is a booked half-open range [Start, End).
type Interval struct {
	ID    uuid.UUID
	Title string
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start, end) intersects i. Touching ends do not overlap.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && i.Start.Before(end)
}

// HasConflict reports whether [start, end) overlaps any of existing.
// The caller supplies intervals already filtered to one organization and to
// BlockingStatuses.
func HasConflict(start, end time.Time, existing []Interval) bool {
	_, found := FindConflict(start, end, existing)
	return found
}

// FindConflict returns the first interval overlapping [start, end).
func FindConflict(start, end time.Time, existing []Interval) (Interval, bool) {
	for _, iv := range existing {
		if iv.Overlaps(start, end) {
			return iv, true
		}
	}
	return Interval{}, false
}
