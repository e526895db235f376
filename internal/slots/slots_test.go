package slots

import (
	"testing"
	"time"

	"fitsched/internal/config"
)

var chicago = mustLoad("America/Chicago")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func day(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2026, 1, 6, 0, 0, 0, 0, chicago)
}

func at(d time.Time, hour, minute int) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, d.Location())
}

func TestOverlap(t *testing.T) {
	d := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"disjoint", Interval{d, d.Add(time.Hour)}, Interval{d.Add(2 * time.Hour), d.Add(3 * time.Hour)}, false},
		{"touching endpoints", Interval{d, d.Add(time.Hour)}, Interval{d.Add(time.Hour), d.Add(2 * time.Hour)}, false},
		{"partial", Interval{d, d.Add(2 * time.Hour)}, Interval{d.Add(time.Hour), d.Add(3 * time.Hour)}, true},
		{"contained", Interval{d, d.Add(4 * time.Hour)}, Interval{d.Add(time.Hour), d.Add(2 * time.Hour)}, true},
		{"identical", Interval{d, d.Add(time.Hour)}, Interval{d, d.Add(time.Hour)}, true},
	}
	for _, tc := range cases {
		if got := Overlap(tc.a, tc.b); got != tc.want {
			t.Fatalf("%s: Overlap = %t, want %t", tc.name, got, tc.want)
		}
		if got := Overlap(tc.b, tc.a); got != tc.want {
			t.Fatalf("%s: Overlap not symmetric", tc.name)
		}
	}
}

func TestCanonicalizeMergesAndClips(t *testing.T) {
	d := day(t)
	busy := []Interval{
		// Spans midnight into the day: clipped to day start.
		{at(d, 0, 0).Add(-2 * time.Hour), at(d, 1, 0)},
		{at(d, 8, 0), at(d, 9, 0)},
		{at(d, 7, 0), at(d, 8, 30)}, // overlaps previous once sorted
		{at(d, 9, 0), at(d, 9, 0)},  // empty, dropped
	}
	got := Canonicalize(busy, d, chicago)
	if len(got) != 2 {
		t.Fatalf("expected 2 canonical intervals, got %d: %+v", len(got), got)
	}
	if !got[0].Start.Equal(at(d, 0, 0)) || !got[0].End.Equal(at(d, 1, 0)) {
		t.Fatalf("unexpected first interval: %+v", got[0])
	}
	if !got[1].Start.Equal(at(d, 7, 0)) || !got[1].End.Equal(at(d, 9, 0)) {
		t.Fatalf("expected merged [07:00, 09:00), got %+v", got[1])
	}
}

func TestFindFreeSlotEmptyDay(t *testing.T) {
	d := day(t)
	start, ok := FindFreeSlot(d, time.Hour, config.HourWindow{Start: 6, End: 9}, config.HourWindow{Start: 17, End: 20}, true, nil, chicago)
	if !ok {
		t.Fatal("expected a slot on an empty day")
	}
	if !start.Equal(at(d, 6, 0)) {
		t.Fatalf("earliest start should win, got %s", start)
	}
}

func TestFindFreeSlotSkipsBusyStart(t *testing.T) {
	d := day(t)
	busy := []Interval{{at(d, 6, 0), at(d, 7, 30)}}
	start, ok := FindFreeSlot(d, time.Hour, config.HourWindow{Start: 6, End: 9}, config.HourWindow{Start: 17, End: 20}, false, busy, chicago)
	if !ok || !start.Equal(at(d, 7, 30)) {
		t.Fatalf("expected 07:30 slot, got %s ok=%t", start, ok)
	}
}

func TestFindFreeSlotGapTooSmall(t *testing.T) {
	d := day(t)
	busy := []Interval{
		{at(d, 6, 30), at(d, 7, 0)},
		{at(d, 7, 45), at(d, 9, 0)},
	}
	// 30 min gap at 06:00 fits a 30 min workout but not 60.
	start, ok := FindFreeSlot(d, 30*time.Minute, config.HourWindow{Start: 6, End: 9}, config.HourWindow{Start: 17, End: 20}, false, busy, chicago)
	if !ok || !start.Equal(at(d, 6, 0)) {
		t.Fatalf("expected 06:00 for 30 min, got %s ok=%t", start, ok)
	}
	start, ok = FindFreeSlot(d, time.Hour, config.HourWindow{Start: 6, End: 9}, config.HourWindow{Start: 17, End: 20}, false, busy, chicago)
	if ok {
		t.Fatalf("expected no 60 min slot, got %s", start)
	}
}

func TestFindFreeSlotFallsBackToAlternateWhenFlexible(t *testing.T) {
	d := day(t)
	busy := []Interval{{at(d, 6, 0), at(d, 9, 0)}}

	// Not flexible: morning blocked means no slot.
	if _, ok := FindFreeSlot(d, time.Hour, config.HourWindow{Start: 6, End: 9}, config.HourWindow{Start: 17, End: 20}, false, busy, chicago); ok {
		t.Fatal("non-flexible policy must not use the alternate window")
	}

	start, ok := FindFreeSlot(d, time.Hour, config.HourWindow{Start: 6, End: 9}, config.HourWindow{Start: 17, End: 20}, true, busy, chicago)
	if !ok || !start.Equal(at(d, 17, 0)) {
		t.Fatalf("expected evening fallback at 17:00, got %s ok=%t", start, ok)
	}
}

func TestFindFreeSlotCalendarFull(t *testing.T) {
	d := day(t)
	busy := []Interval{{at(d, 0, 0), at(d, 23, 59)}}
	if _, ok := FindFreeSlot(d, time.Hour, config.HourWindow{Start: 6, End: 9}, config.HourWindow{Start: 17, End: 20}, true, busy, chicago); ok {
		t.Fatal("expected no slot on a fully busy day")
	}
}

func TestFindFreeSlotExactFit(t *testing.T) {
	d := day(t)
	busy := []Interval{
		{at(d, 6, 0), at(d, 8, 0)},
	}
	// Exactly one hour remains in [8, 9).
	start, ok := FindFreeSlot(d, time.Hour, config.HourWindow{Start: 6, End: 9}, config.HourWindow{Start: 17, End: 20}, false, busy, chicago)
	if !ok || !start.Equal(at(d, 8, 0)) {
		t.Fatalf("expected exact-fit slot at 08:00, got %s ok=%t", start, ok)
	}
}
