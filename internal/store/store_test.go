package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"fitsched/internal/calendar"
	"fitsched/internal/config"
	"fitsched/internal/health"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.sqlite"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertSampleIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	sample := health.Sample{
		Timestamp:    time.Date(2026, 1, 6, 6, 30, 0, 0, time.UTC),
		Source:       "garmin",
		SleepHours:   7.2,
		SleepQuality: 82,
		RestingHR:    51,
		HRVScore:     63,
		StressLevel:  22,
		Recovery:     78,
		Steps:        9000,
		Raw:          []byte(`{"k":"v"}`),
	}
	inserted, err := s.UpsertSample(ctx, sample)
	if err != nil || !inserted {
		t.Fatalf("first insert: inserted=%t err=%v", inserted, err)
	}
	inserted, err = s.UpsertSample(ctx, sample)
	if err != nil {
		t.Fatalf("duplicate insert must be a no-op, got %v", err)
	}
	if inserted {
		t.Fatal("duplicate (timestamp, source) must not insert")
	}

	// Same timestamp, different source is a distinct row.
	sample.Source = "test"
	if inserted, err := s.UpsertSample(ctx, sample); err != nil || !inserted {
		t.Fatalf("different source should insert: inserted=%t err=%v", inserted, err)
	}
}

func TestLatestBeforeAndSamplesIn(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := s.UpsertSample(ctx, health.Sample{
			Timestamp:    base.AddDate(0, 0, i),
			Source:       "garmin",
			SleepQuality: float64(60 + i),
		})
		if err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	latest, err := s.LatestBefore(ctx, base.AddDate(0, 0, 3))
	if err != nil {
		t.Fatalf("latest before: %v", err)
	}
	if latest == nil || latest.SleepQuality != 62 {
		t.Fatalf("expected day-2 sample, got %+v", latest)
	}

	none, err := s.LatestBefore(ctx, base)
	if err != nil {
		t.Fatalf("latest before: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil before the first sample, got %+v", none)
	}

	window, err := s.SamplesIn(ctx, base.AddDate(0, 0, 1), base.AddDate(0, 0, 4))
	if err != nil {
		t.Fatalf("samples in: %v", err)
	}
	if len(window) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(window))
	}
	for i := 1; i < len(window); i++ {
		if window[i].Timestamp.Before(window[i-1].Timestamp) {
			t.Fatal("samples must ascend by timestamp")
		}
	}
}

func TestUpsertActivityIdempotentAndQuery(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2026, 1, 6, 7, 0, 0, 0, time.UTC)

	act := health.Activity{
		Timestamp:    ts,
		Discipline:   config.DisciplineRun,
		DurationMin:  45,
		DistanceKM:   8,
		AvgHR:        150,
		TrainingLoad: 90,
		Exertion:     6,
		Calories:     500,
	}
	if inserted, err := s.UpsertActivity(ctx, act); err != nil || !inserted {
		t.Fatalf("first insert: inserted=%t err=%v", inserted, err)
	}
	if inserted, err := s.UpsertActivity(ctx, act); err != nil || inserted {
		t.Fatalf("duplicate must be a no-op: inserted=%t err=%v", inserted, err)
	}

	got, err := s.ActivitiesIn(ctx, ts.Add(-time.Hour), ts.Add(time.Hour))
	if err != nil {
		t.Fatalf("activities in: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 activity, got %d", len(got))
	}
	if got[0].Discipline != config.DisciplineRun || got[0].DurationMin != 45 {
		t.Fatalf("round trip mismatch: %+v", got[0])
	}
}

func TestCalendarClientRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	client := s.Calendar()

	day := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	ev := calendar.Event{
		Summary:     calendar.SummaryPrefix + "run: Tempo",
		Description: "Option A\n\nworkout:run",
		Start:       day.Add(6 * time.Hour),
		End:         day.Add(7 * time.Hour),
		Tags:        []string{calendar.Tag(config.DisciplineRun)},
	}
	created, err := client.Upsert(ctx, ev)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if created.ID == "" {
		t.Fatal("upsert must assign an id")
	}

	listed, err := client.List(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 event, got %d", len(listed))
	}
	got := listed[0]
	if got.Summary != ev.Summary || !got.Start.Equal(ev.Start) || !got.End.Equal(ev.End) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if d, ok := got.Discipline(); !ok || d != config.DisciplineRun {
		t.Fatalf("discipline tag lost: %+v", got.Tags)
	}

	// An event overlapping the window start is returned too.
	early, err := client.List(ctx, day.Add(6*time.Hour+30*time.Minute), day.Add(8*time.Hour))
	if err != nil || len(early) != 1 {
		t.Fatalf("overlap listing failed: %d err=%v", len(early), err)
	}

	// Update by id.
	got.Summary = calendar.DonePrefix + got.Summary
	if _, err := client.Upsert(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	listed, _ = client.List(ctx, day, day.Add(24*time.Hour))
	if len(listed) != 1 || !listed[0].Completed() {
		t.Fatalf("update lost: %+v", listed)
	}

	// Unknown id classifies as not_found.
	if _, err := client.Upsert(ctx, calendar.Event{ID: "ghost", Summary: "x", Start: day, End: day.Add(time.Hour)}); !calendar.IsNotFound(err) {
		t.Fatalf("expected not_found, got %v", err)
	}
	if err := client.Delete(ctx, "ghost"); !calendar.IsNotFound(err) {
		t.Fatalf("expected not_found delete, got %v", err)
	}
	if err := client.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	listed, _ = client.List(ctx, day, day.Add(24*time.Hour))
	if len(listed) != 0 {
		t.Fatalf("event should be gone, got %d", len(listed))
	}
}

func TestMirrorEventUpsert(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)

	if err := s.MirrorEvent(ctx, "e1", "Standup", "", day.Add(15*time.Hour), day.Add(16*time.Hour), nil, "external"); err != nil {
		t.Fatalf("mirror: %v", err)
	}
	// Second mirror with new times replaces the row.
	if err := s.MirrorEvent(ctx, "e1", "Standup (moved)", "", day.Add(16*time.Hour), day.Add(17*time.Hour), nil, "external"); err != nil {
		t.Fatalf("mirror update: %v", err)
	}

	events, err := s.MirroredEventsIn(ctx, day, day.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("mirrored events: %v", err)
	}
	if len(events) != 1 || events[0].Summary != "Standup (moved)" {
		t.Fatalf("expected updated mirror row, got %+v", events)
	}
}

func TestRecordDeviation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC)
	if err := s.RecordDeviation(ctx, now.Add(-24*time.Hour), config.DisciplineRun, config.DisciplineBike, true, -10, now); err != nil {
		t.Fatalf("record deviation: %v", err)
	}
}
