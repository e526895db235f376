package budget

import (
	"testing"
	"time"

	"fitsched/internal/calendar"
	"fitsched/internal/config"
	"fitsched/internal/health"
)

var chicago = mustLoad("America/Chicago")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func TestWeekStartIsLocalMonday(t *testing.T) {
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2026, 1, 6, 15, 0, 0, 0, chicago), time.Date(2026, 1, 5, 0, 0, 0, 0, chicago)},  // Tuesday
		{time.Date(2026, 1, 5, 0, 0, 0, 0, chicago), time.Date(2026, 1, 5, 0, 0, 0, 0, chicago)},   // Monday itself
		{time.Date(2026, 1, 11, 23, 0, 0, 0, chicago), time.Date(2026, 1, 5, 0, 0, 0, 0, chicago)}, // Sunday
	}
	for _, tc := range cases {
		if got := WeekStart(tc.in, chicago); !got.Equal(tc.want) {
			t.Fatalf("WeekStart(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func plannedEvent(id string, d config.Discipline, start time.Time) calendar.Event {
	return calendar.Event{
		ID:      id,
		Summary: calendar.SummaryPrefix + string(d) + ": workout",
		Start:   start,
		End:     start.Add(time.Hour),
		Tags:    []string{calendar.Tag(d)},
	}
}

func TestCountWeekAndRemaining(t *testing.T) {
	week := time.Date(2026, 1, 5, 0, 0, 0, 0, chicago)
	now := week.Add(36 * time.Hour) // Tuesday 12:00

	events := []calendar.Event{
		plannedEvent("e1", config.DisciplineRun, week.Add(50*time.Hour)),      // future run this week
		plannedEvent("e2", config.DisciplineStrength, week.Add(26*time.Hour)), // past planned event, not counted
		plannedEvent("e3", config.DisciplineRun, week.AddDate(0, 0, 8)),       // next week
		{ID: "e4", Summary: "Team standup", Start: week.Add(60 * time.Hour), End: week.Add(61 * time.Hour)},
	}
	activities := []health.Activity{
		{Timestamp: week.Add(8 * time.Hour), Discipline: config.DisciplineStrength},
		{Timestamp: week.Add(30 * time.Hour), Discipline: config.DisciplineRun},
		{Timestamp: week.AddDate(0, 0, -1), Discipline: config.DisciplineRun}, // previous week
	}

	tally := CountWeek(events, activities, week, now)
	if tally.Scheduled[config.DisciplineRun] != 1 {
		t.Fatalf("expected 1 scheduled run, got %d", tally.Scheduled[config.DisciplineRun])
	}
	if tally.Scheduled[config.DisciplineStrength] != 0 {
		t.Fatalf("past planned events must not count, got %d", tally.Scheduled[config.DisciplineStrength])
	}
	if tally.Completed[config.DisciplineRun] != 1 || tally.Completed[config.DisciplineStrength] != 1 {
		t.Fatalf("unexpected completed tally: %+v", tally.Completed)
	}

	goals := &config.Goals{
		Weekly: map[config.Discipline]int{
			config.DisciplineRun:      2,
			config.DisciplineStrength: 1,
		},
	}
	remaining := Remaining(goals, tally)
	if remaining[config.DisciplineRun] != 0 {
		t.Fatalf("run remaining = %d, want 0", remaining[config.DisciplineRun])
	}
	if remaining[config.DisciplineStrength] != 0 {
		t.Fatalf("strength remaining = %d, want 0", remaining[config.DisciplineStrength])
	}
	if remaining[config.DisciplineSwim] != 0 {
		t.Fatalf("swim remaining = %d, want 0", remaining[config.DisciplineSwim])
	}
	if !AllZero(remaining) {
		t.Fatal("expected all-zero remaining")
	}
}

func TestRemainingNeverNegative(t *testing.T) {
	goals := &config.Goals{Weekly: map[config.Discipline]int{config.DisciplineRun: 1}}
	tally := Tally{
		Scheduled: map[config.Discipline]int{config.DisciplineRun: 2},
		Completed: map[config.Discipline]int{config.DisciplineRun: 1},
	}
	if got := Remaining(goals, tally)[config.DisciplineRun]; got != 0 {
		t.Fatalf("remaining clamped at zero, got %d", got)
	}
}

func TestRemovedListsZeroTargetFutureEvents(t *testing.T) {
	now := time.Date(2026, 1, 6, 12, 0, 0, 0, chicago)
	goals := &config.Goals{Weekly: map[config.Discipline]int{
		config.DisciplineRun:  2,
		config.DisciplineSwim: 0,
	}}
	events := []calendar.Event{
		plannedEvent("keep", config.DisciplineRun, now.Add(24*time.Hour)),
		plannedEvent("purge1", config.DisciplineSwim, now.Add(24*time.Hour)),
		plannedEvent("purge2", config.DisciplineSwim, now.Add(48*time.Hour)),
		plannedEvent("past", config.DisciplineSwim, now.Add(-24*time.Hour)),
		{ID: "ext", Summary: "Swim meet", Start: now.Add(24 * time.Hour), End: now.Add(26 * time.Hour)},
	}
	removed := Removed(goals, events, now)
	if len(removed) != 2 {
		t.Fatalf("expected 2 removed events, got %d", len(removed))
	}
	for _, ev := range removed {
		if ev.ID != "purge1" && ev.ID != "purge2" {
			t.Fatalf("unexpected removed event %s", ev.ID)
		}
	}
}
