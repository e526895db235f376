// Package slots holds the pure interval math the planner schedules with.
// No I/O happens here.
package slots

import (
	"sort"
	"time"

	"fitsched/internal/config"
)

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlap reports whether two half-open intervals intersect.
func Overlap(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// windowInterval materializes an hour window on a local calendar day.
func windowInterval(day time.Time, w config.HourWindow, loc *time.Location) Interval {
	return Interval{
		Start: time.Date(day.Year(), day.Month(), day.Day(), w.Start, 0, 0, 0, loc),
		End:   time.Date(day.Year(), day.Month(), day.Day(), w.End, 0, 0, 0, loc),
	}
}

// Canonicalize clips busy intervals to the given day, drops empties, sorts
// by start, and merges overlaps.
func Canonicalize(busy []Interval, day time.Time, loc *time.Location) []Interval {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.Add(24 * time.Hour)

	clipped := make([]Interval, 0, len(busy))
	for _, iv := range busy {
		start, end := iv.Start, iv.End
		if start.Before(dayStart) {
			start = dayStart
		}
		if end.After(dayEnd) {
			end = dayEnd
		}
		if !start.Before(end) {
			continue
		}
		clipped = append(clipped, Interval{Start: start, End: end})
	}

	sort.Slice(clipped, func(i, j int) bool {
		return clipped[i].Start.Before(clipped[j].Start)
	})

	merged := clipped[:0]
	for _, iv := range clipped {
		if n := len(merged); n > 0 && !iv.Start.After(merged[n-1].End) {
			if iv.End.After(merged[n-1].End) {
				merged[n-1].End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// FindFreeSlot searches the preferred window on day for the earliest gap of
// at least duration, then the alternate window when flexible. Returns the
// slot start and true, or the zero time and false when no slot exists.
func FindFreeSlot(day time.Time, duration time.Duration, preferred, alternate config.HourWindow, flexible bool, busy []Interval, loc *time.Location) (time.Time, bool) {
	canonical := Canonicalize(busy, day, loc)

	if start, ok := searchWindow(windowInterval(day, preferred, loc), duration, canonical); ok {
		return start, true
	}
	if flexible {
		if start, ok := searchWindow(windowInterval(day, alternate, loc), duration, canonical); ok {
			return start, true
		}
	}
	return time.Time{}, false
}

// searchWindow walks the window from its start; earliest gap wins.
func searchWindow(window Interval, duration time.Duration, busy []Interval) (time.Time, bool) {
	if duration <= 0 || !window.Start.Before(window.End) {
		return time.Time{}, false
	}
	cursor := window.Start
	for _, iv := range busy {
		if !iv.End.After(cursor) {
			continue
		}
		if !iv.Start.Before(window.End) {
			break
		}
		if iv.Start.Sub(cursor) >= duration {
			return cursor, true
		}
		if iv.End.After(cursor) {
			cursor = iv.End
		}
	}
	if !cursor.Add(duration).After(window.End) {
		return cursor, true
	}
	return time.Time{}, false
}
