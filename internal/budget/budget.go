// Package budget computes the remaining per-discipline quota for a week.
package budget

import (
	"time"

	"fitsched/internal/calendar"
	"fitsched/internal/config"
	"fitsched/internal/health"
)

// WeekStart returns the Monday 00:00 of the week containing t, in loc.
func WeekStart(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	daysSinceMonday := (int(local.Weekday()) + 6) % 7
	monday := local.AddDate(0, 0, -daysSinceMonday)
	return time.Date(monday.Year(), monday.Month(), monday.Day(), 0, 0, 0, 0, loc)
}

// Tally counts the sessions that already consume a week's quota.
type Tally struct {
	Scheduled map[config.Discipline]int
	Completed map[config.Discipline]int
}

// CountWeek tallies planner-owned future events and completed activities
// that fall inside the week starting at weekStart, relative to now.
func CountWeek(events []calendar.Event, activities []health.Activity, weekStart time.Time, now time.Time) Tally {
	weekEnd := weekStart.AddDate(0, 0, 7)
	tally := Tally{
		Scheduled: make(map[config.Discipline]int),
		Completed: make(map[config.Discipline]int),
	}
	for _, ev := range events {
		if !ev.PlannerOwned() {
			continue
		}
		d, ok := ev.Discipline()
		if !ok {
			continue
		}
		if ev.Start.Before(weekStart) || !ev.Start.Before(weekEnd) {
			continue
		}
		if ev.Start.Before(now) {
			// Past planner events count through their matched activity,
			// not twice.
			continue
		}
		tally.Scheduled[d]++
	}
	for _, act := range activities {
		if act.Timestamp.Before(weekStart) || !act.Timestamp.Before(weekEnd) {
			continue
		}
		if !act.Timestamp.Before(now) {
			continue
		}
		tally.Completed[act.Discipline]++
	}
	return tally
}

// Remaining computes max(0, goal - scheduled - completed) per discipline.
func Remaining(goals *config.Goals, tally Tally) map[config.Discipline]int {
	out := make(map[config.Discipline]int, len(config.Disciplines))
	for _, d := range config.Disciplines {
		rem := goals.Target(d) - tally.Scheduled[d] - tally.Completed[d]
		if rem < 0 {
			rem = 0
		}
		out[d] = rem
	}
	return out
}

// AllZero reports whether no quota remains in any discipline.
func AllZero(remaining map[config.Discipline]int) bool {
	for _, v := range remaining {
		if v > 0 {
			return false
		}
	}
	return true
}

// Removed lists planner-owned future events whose discipline now has a zero
// goal; the planner deletes these before scheduling (target_removed purge).
func Removed(goals *config.Goals, events []calendar.Event, now time.Time) []calendar.Event {
	var out []calendar.Event
	for _, ev := range events {
		if !ev.PlannerOwned() || ev.Start.Before(now) {
			continue
		}
		d, ok := ev.Discipline()
		if !ok {
			continue
		}
		if goals.Target(d) == 0 {
			out = append(out, ev)
		}
	}
	return out
}
