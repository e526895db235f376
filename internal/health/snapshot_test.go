package health

import (
	"testing"
	"time"

	"fitsched/internal/config"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse time %q: %v", value, err)
	}
	return ts
}

func TestBuildSnapshotUsesLatestSample(t *testing.T) {
	ref := mustTime(t, "2026-01-06T12:00:00Z")
	samples := []Sample{
		{Timestamp: ref.Add(-30 * time.Hour), Source: "test", SleepQuality: 40, RestingHR: 60, HRVScore: 50, StressLevel: 50},
		{Timestamp: ref.Add(-5 * time.Hour), Source: "test", SleepHours: 7.5, SleepQuality: 85, RestingHR: 52, HRVScore: 60, StressLevel: 20},
		// A sample after ref+1d must be ignored.
		{Timestamp: ref.Add(30 * time.Hour), Source: "test", SleepQuality: 1, RestingHR: 90, StressLevel: 99},
	}
	snap := BuildSnapshot(samples, nil, ref)
	if snap.SleepQuality != 85 {
		t.Fatalf("expected latest sample to drive the snapshot, got quality %.0f", snap.SleepQuality)
	}
	if snap.Tier == TierUnknown {
		t.Fatal("fresh sample should not be unknown")
	}
	if snap.Tier != TierExcellent && snap.Tier != TierGood {
		t.Fatalf("well-rested snapshot should score good or better, got %s (%.1f)", snap.Tier, snap.Blended)
	}
}

func TestBuildSnapshotUnknownWhenStale(t *testing.T) {
	ref := mustTime(t, "2026-01-06T12:00:00Z")
	samples := []Sample{
		{Timestamp: ref.Add(-72 * time.Hour), Source: "test", SleepQuality: 90},
	}
	snap := BuildSnapshot(samples, nil, ref)
	if snap.Tier != TierUnknown {
		t.Fatalf("expected unknown tier for stale data, got %s", snap.Tier)
	}
	eff, flagged := snap.EffectiveTier()
	if eff != TierGood || !flagged {
		t.Fatalf("unknown should resolve to good with a flag, got %s flagged=%t", eff, flagged)
	}
}

func TestBuildSnapshotNoSamples(t *testing.T) {
	ref := mustTime(t, "2026-01-06T12:00:00Z")
	snap := BuildSnapshot(nil, nil, ref)
	if snap.Tier != TierUnknown {
		t.Fatalf("expected unknown tier, got %s", snap.Tier)
	}
}

func TestBuildSnapshotTrainingLoad48h(t *testing.T) {
	ref := mustTime(t, "2026-01-06T12:00:00Z")
	activities := []Activity{
		{Timestamp: ref.Add(-10 * time.Hour), TrainingLoad: 100},
		{Timestamp: ref.Add(-40 * time.Hour), TrainingLoad: 50},
		// Outside the 48-hour window.
		{Timestamp: ref.Add(-60 * time.Hour), TrainingLoad: 500},
	}
	snap := BuildSnapshot(nil, activities, ref)
	if snap.TrainingLoad48h != 150 {
		t.Fatalf("expected 150 load, got %.0f", snap.TrainingLoad48h)
	}
}

func TestBuildSnapshotBaselinesAreMedians(t *testing.T) {
	ref := mustTime(t, "2026-01-08T12:00:00Z")
	var samples []Sample
	rhrs := []float64{50, 52, 54, 56, 58}
	for i, rhr := range rhrs {
		samples = append(samples, Sample{
			Timestamp:   ref.Add(-time.Duration(i*24+2) * time.Hour),
			Source:      "test",
			RestingHR:   rhr,
			StressLevel: float64(10 * (i + 1)),
			HRVScore:    50,
		})
	}
	snap := BuildSnapshot(samples, nil, ref)
	if snap.BaselineRestingHR != 54 {
		t.Fatalf("expected median RHR 54, got %.0f", snap.BaselineRestingHR)
	}
	if snap.BaselineStress != 30 {
		t.Fatalf("expected median stress 30, got %.0f", snap.BaselineStress)
	}
}

func TestTierThresholds(t *testing.T) {
	cases := []struct {
		score float64
		want  RecoveryTier
	}{
		{85, TierExcellent},
		{80, TierExcellent},
		{79, TierGood},
		{60, TierGood},
		{59, TierFair},
		{40, TierFair},
		{39, TierPoor},
		{0, TierPoor},
	}
	for _, tc := range cases {
		if got := tierFor(tc.score); got != tc.want {
			t.Fatalf("tierFor(%.0f) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestTunedComponents(t *testing.T) {
	if got := tunedHigherBetter(60, 50); got <= 50 {
		t.Fatalf("above-baseline HRV should score above neutral, got %.1f", got)
	}
	if got := tunedHigherBetter(40, 50); got >= 50 {
		t.Fatalf("below-baseline HRV should score below neutral, got %.1f", got)
	}
	if got := tunedLowerBetter(48, 54); got <= 50 {
		t.Fatalf("below-baseline RHR should score above neutral, got %.1f", got)
	}
	if got := tunedHigherBetter(60, 0); got != 50 {
		t.Fatalf("no baseline should be neutral, got %.1f", got)
	}
}

func TestRecoveryWeightsTotal(t *testing.T) {
	sum := recoveryWeights.SleepQuality + recoveryWeights.HRV + recoveryWeights.RestingHR +
		recoveryWeights.Stress + recoveryWeights.TrainingLoad
	if sum < 1.049 || sum > 1.051 {
		t.Fatalf("recovery weights must sum to 1.05, got %.3f", sum)
	}
}

func TestNormalizeActivityType(t *testing.T) {
	cases := []struct {
		key  string
		want config.Discipline
	}{
		{"running", config.DisciplineRun},
		{"treadmill_running", config.DisciplineRun},
		{"lap_swimming", config.DisciplineSwim},
		{"indoor_cycling", config.DisciplineBike},
		{"strength_training", config.DisciplineStrength},
		{"WEIGHT_LIFTING", config.DisciplineStrength},
		{"yoga", config.DisciplineOther},
		{"", config.DisciplineOther},
	}
	for _, tc := range cases {
		if got := NormalizeActivityType(tc.key); got != tc.want {
			t.Fatalf("NormalizeActivityType(%q) = %s, want %s", tc.key, got, tc.want)
		}
	}
}
