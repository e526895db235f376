package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"fitsched/internal/config"
	"fitsched/internal/health"
)

// Store manages ingested health rows and the calendar mirror in SQLite.
// Each operation is its own short transaction; there are no cross-call
// transactions.
type Store struct {
	DBPath string
	db     *sql.DB
}

// Open opens or creates the state database.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve state db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}

	s := &Store{DBPath: absPath, db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS health_samples (
	timestamp TEXT NOT NULL,
	source TEXT NOT NULL,
	sleep_hours REAL NOT NULL,
	sleep_quality REAL NOT NULL,
	resting_hr REAL NOT NULL,
	hrv_score REAL NOT NULL,
	stress_level REAL NOT NULL,
	recovery_score REAL NOT NULL,
	steps INTEGER NOT NULL,
	raw_payload TEXT,
	PRIMARY KEY (timestamp, source)
);

CREATE TABLE IF NOT EXISTS activities (
	timestamp TEXT NOT NULL,
	discipline TEXT NOT NULL,
	duration_minutes REAL NOT NULL,
	distance_km REAL NOT NULL,
	avg_hr REAL NOT NULL,
	training_load REAL NOT NULL,
	perceived_exertion INTEGER NOT NULL,
	calories INTEGER NOT NULL,
	raw_payload TEXT,
	PRIMARY KEY (timestamp, discipline)
);

CREATE INDEX IF NOT EXISTS idx_activities_ts ON activities(timestamp);

CREATE TABLE IF NOT EXISTS calendar_events (
	external_id TEXT PRIMARY KEY,
	summary TEXT NOT NULL,
	description TEXT,
	start_at TEXT NOT NULL,
	end_at TEXT NOT NULL,
	tags TEXT,
	origin TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_start ON calendar_events(start_at);

CREATE TABLE IF NOT EXISTS deviations (
	date TEXT NOT NULL,
	planned_discipline TEXT NOT NULL,
	actual_discipline TEXT,
	matched INTEGER NOT NULL,
	duration_delta_min REAL NOT NULL,
	recorded_at TEXT NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create state schema: %w", err)
	}
	return nil
}

// UpsertSample inserts a health sample. Duplicate (timestamp, source) rows
// are idempotent no-ops; inserted reports whether a new row was written.
func (s *Store) UpsertSample(ctx context.Context, sample health.Sample) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO health_samples
			(timestamp, source, sleep_hours, sleep_quality, resting_hr, hrv_score, stress_level, recovery_score, steps, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (timestamp, source) DO NOTHING
	`,
		sample.Timestamp.UTC().Format(time.RFC3339),
		sample.Source,
		sample.SleepHours,
		sample.SleepQuality,
		sample.RestingHR,
		sample.HRVScore,
		sample.StressLevel,
		sample.Recovery,
		sample.Steps,
		string(sample.Raw),
	)
	if err != nil {
		return false, fmt.Errorf("insert health sample: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert health sample: %w", err)
	}
	return n > 0, nil
}

// UpsertActivity inserts an activity. Duplicates are idempotent no-ops.
func (s *Store) UpsertActivity(ctx context.Context, act health.Activity) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO activities
			(timestamp, discipline, duration_minutes, distance_km, avg_hr, training_load, perceived_exertion, calories, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (timestamp, discipline) DO NOTHING
	`,
		act.Timestamp.UTC().Format(time.RFC3339),
		string(act.Discipline),
		act.DurationMin,
		act.DistanceKM,
		act.AvgHR,
		act.TrainingLoad,
		act.Exertion,
		act.Calories,
		string(act.Raw),
	)
	if err != nil {
		return false, fmt.Errorf("insert activity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert activity: %w", err)
	}
	return n > 0, nil
}

// LatestBefore returns the newest sample with timestamp < before, or nil.
func (s *Store) LatestBefore(ctx context.Context, before time.Time) (*health.Sample, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT timestamp, source, sleep_hours, sleep_quality, resting_hr, hrv_score, stress_level, recovery_score, steps, raw_payload
		FROM health_samples
		WHERE timestamp < ?
		ORDER BY timestamp DESC
		LIMIT 1
	`, before.UTC().Format(time.RFC3339))

	sample, err := scanSample(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest sample: %w", err)
	}
	return sample, nil
}

// SamplesIn returns samples in [from, to) ascending by timestamp.
func (s *Store) SamplesIn(ctx context.Context, from, to time.Time) ([]health.Sample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, source, sleep_hours, sleep_quality, resting_hr, hrv_score, stress_level, recovery_score, steps, raw_payload
		FROM health_samples
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var out []health.Sample
	for rows.Next() {
		sample, err := scanSample(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		out = append(out, *sample)
	}
	return out, rows.Err()
}

// ActivitiesIn returns activities in [from, to) ascending by timestamp.
func (s *Store) ActivitiesIn(ctx context.Context, from, to time.Time) ([]health.Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, discipline, duration_minutes, distance_km, avg_hr, training_load, perceived_exertion, calories, raw_payload
		FROM activities
		WHERE timestamp >= ? AND timestamp < ?
		ORDER BY timestamp ASC
	`, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query activities: %w", err)
	}
	defer rows.Close()

	var out []health.Activity
	for rows.Next() {
		var act health.Activity
		var ts, discipline, raw string
		if err := rows.Scan(&ts, &discipline, &act.DurationMin, &act.DistanceKM, &act.AvgHR, &act.TrainingLoad, &act.Exertion, &act.Calories, &raw); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		act.Timestamp, err = time.Parse(time.RFC3339, ts)
		if err != nil {
			return nil, fmt.Errorf("parse activity timestamp: %w", err)
		}
		act.Discipline = config.Discipline(discipline)
		if raw != "" {
			act.Raw = json.RawMessage(raw)
		}
		out = append(out, act)
	}
	return out, rows.Err()
}

// MirrorEvent upserts a calendar event row into the local mirror.
func (s *Store) MirrorEvent(ctx context.Context, externalID, summary, description string, start, end time.Time, tags []string, origin string) error {
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calendar_events (external_id, summary, description, start_at, end_at, tags, origin)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (external_id) DO UPDATE SET
			summary = excluded.summary,
			description = excluded.description,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			tags = excluded.tags,
			origin = excluded.origin
	`, externalID, summary, description,
		start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339),
		string(tagsJSON), origin)
	if err != nil {
		return fmt.Errorf("mirror event: %w", err)
	}
	return nil
}

// DeleteMirroredEvent removes an event row from the local mirror.
func (s *Store) DeleteMirroredEvent(ctx context.Context, externalID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE external_id = ?`, externalID); err != nil {
		return fmt.Errorf("delete mirrored event: %w", err)
	}
	return nil
}

// MirroredEvent is one row of the calendar mirror.
type MirroredEvent struct {
	ExternalID  string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Tags        []string
	Origin      string
}

// MirroredEventsIn returns mirrored events starting in [from, to) ascending.
func (s *Store) MirroredEventsIn(ctx context.Context, from, to time.Time) ([]MirroredEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT external_id, summary, description, start_at, end_at, tags, origin
		FROM calendar_events
		WHERE start_at >= ? AND start_at < ?
		ORDER BY start_at ASC
	`, from.UTC().Format(time.RFC3339), to.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("query mirrored events: %w", err)
	}
	defer rows.Close()

	var out []MirroredEvent
	for rows.Next() {
		var ev MirroredEvent
		var start, end, tags, description sql.NullString
		if err := rows.Scan(&ev.ExternalID, &ev.Summary, &description, &start, &end, &tags, &ev.Origin); err != nil {
			return nil, fmt.Errorf("scan mirrored event: %w", err)
		}
		ev.Description = description.String
		if ev.Start, err = time.Parse(time.RFC3339, start.String); err != nil {
			return nil, fmt.Errorf("parse event start: %w", err)
		}
		if ev.End, err = time.Parse(time.RFC3339, end.String); err != nil {
			return nil, fmt.Errorf("parse event end: %w", err)
		}
		if tags.Valid && tags.String != "" {
			if err := json.Unmarshal([]byte(tags.String), &ev.Tags); err != nil {
				return nil, fmt.Errorf("parse event tags: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// RecordDeviation logs a planned-vs-actual discrepancy row for pattern learning.
func (s *Store) RecordDeviation(ctx context.Context, date time.Time, planned, actual config.Discipline, matched bool, durationDeltaMin float64, recordedAt time.Time) error {
	matchedInt := 0
	if matched {
		matchedInt = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deviations (date, planned_discipline, actual_discipline, matched, duration_delta_min, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, date.UTC().Format("2006-01-02"), string(planned), string(actual), matchedInt, durationDeltaMin,
		recordedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record deviation: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func unmarshalTags(raw string, out *[]string) error {
	return json.Unmarshal([]byte(raw), out)
}

func scanSample(row rowScanner) (*health.Sample, error) {
	var sample health.Sample
	var ts, raw string
	err := row.Scan(&ts, &sample.Source, &sample.SleepHours, &sample.SleepQuality,
		&sample.RestingHR, &sample.HRVScore, &sample.StressLevel, &sample.Recovery,
		&sample.Steps, &raw)
	if err != nil {
		return nil, err
	}
	sample.Timestamp, err = time.Parse(time.RFC3339, ts)
	if err != nil {
		return nil, fmt.Errorf("parse sample timestamp: %w", err)
	}
	if raw != "" {
		sample.Raw = json.RawMessage(raw)
	}
	return &sample, nil
}
