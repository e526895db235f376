package garmin

import (
	"context"
	"testing"
	"time"

	"fitsched/internal/audit"
	"fitsched/internal/config"
	"fitsched/internal/health"
)

type memStore struct {
	samples    map[string]health.Sample
	activities map[string]health.Activity
}

func newMemStore() *memStore {
	return &memStore{
		samples:    make(map[string]health.Sample),
		activities: make(map[string]health.Activity),
	}
}

func (m *memStore) UpsertSample(ctx context.Context, sample health.Sample) (bool, error) {
	key := sample.Timestamp.UTC().Format(time.RFC3339) + "/" + sample.Source
	if _, ok := m.samples[key]; ok {
		return false, nil
	}
	m.samples[key] = sample
	return true, nil
}

func (m *memStore) UpsertActivity(ctx context.Context, act health.Activity) (bool, error) {
	key := act.Timestamp.UTC().Format(time.RFC3339) + "/" + string(act.Discipline)
	if _, ok := m.activities[key]; ok {
		return false, nil
	}
	m.activities[key] = act
	return true, nil
}

type memAudit struct {
	actions []audit.Action
}

func (m *memAudit) Append(ctx context.Context, a audit.Action) error {
	m.actions = append(m.actions, a)
	return nil
}

func fixedNow() time.Time {
	return time.Date(2026, 1, 6, 12, 0, 0, 0, time.UTC)
}

func TestOfflineConnectorIsDeterministic(t *testing.T) {
	c := NewOfflineConnector()
	from := fixedNow().AddDate(0, 0, -7)
	to := fixedNow()

	s1, err := c.Samples(context.Background(), from, to)
	if err != nil {
		t.Fatalf("samples: %v", err)
	}
	s2, _ := c.Samples(context.Background(), from, to)
	if len(s1) == 0 || len(s1) != len(s2) {
		t.Fatalf("expected stable sample count, got %d vs %d", len(s1), len(s2))
	}
	for i := range s1 {
		if !s1[i].Timestamp.Equal(s2[i].Timestamp) || s1[i].SleepQuality != s2[i].SleepQuality {
			t.Fatalf("samples differ at %d: %+v vs %+v", i, s1[i], s2[i])
		}
	}

	for _, s := range s1 {
		if s.SleepHours < 0 || s.SleepHours > 24 {
			t.Fatalf("sleep hours out of range: %f", s.SleepHours)
		}
		if s.SleepQuality < 0 || s.SleepQuality > 100 || s.StressLevel < 0 || s.StressLevel > 100 {
			t.Fatalf("bounded metrics out of range: %+v", s)
		}
		if len(s.Raw) == 0 {
			t.Fatal("raw payload must be retained")
		}
	}

	acts, err := c.Activities(context.Background(), from, to)
	if err != nil {
		t.Fatalf("activities: %v", err)
	}
	for _, a := range acts {
		switch a.Discipline {
		case config.DisciplineRun, config.DisciplineBike, config.DisciplineSwim, config.DisciplineStrength:
		default:
			t.Fatalf("unexpected discipline %s", a.Discipline)
		}
	}
}

func TestImportIsIdempotent(t *testing.T) {
	st := newMemStore()
	auditLog := &memAudit{}
	im := &Importer{
		Connector: NewOfflineConnector(),
		Store:     st,
		Audit:     auditLog,
		Now:       fixedNow,
	}

	first, err := im.Import(context.Background(), 7)
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	if first.SamplesInserted == 0 {
		t.Fatal("expected samples on first import")
	}
	if first.SamplesSkipped != 0 || first.ActivitiesSkipped != 0 {
		t.Fatalf("first import should skip nothing: %+v", first)
	}

	second, err := im.Import(context.Background(), 7)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if second.SamplesInserted != 0 || second.ActivitiesInserted != 0 {
		t.Fatalf("second import must insert nothing: %+v", second)
	}
	if second.SamplesSkipped != first.SamplesInserted {
		t.Fatalf("all rows should be skipped as duplicates: %+v", second)
	}

	// One skip_duplicate entry summarizes the duplicates.
	found := false
	for _, a := range auditLog.actions {
		if a.Type == audit.TypeSkipDuplicate {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a skip_duplicate audit entry")
	}
}
