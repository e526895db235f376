// Package garmin is the wearable ingestion collaborator. The core only
// consumes its output through the store.
package garmin

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fitsched/internal/config"
	"fitsched/internal/health"
)

// Connector fetches wearable data for a date range.
type Connector interface {
	Samples(ctx context.Context, from, to time.Time) ([]health.Sample, error)
	Activities(ctx context.Context, from, to time.Time) ([]health.Activity, error)
}

// OfflineConnector synthesizes deterministic wearable data so imports and
// the daemon work without credentials. Values depend only on the date, so
// re-imports are idempotent.
type OfflineConnector struct {
	Source string
}

// NewOfflineConnector returns a connector reporting source "test".
func NewOfflineConnector() *OfflineConnector {
	return &OfflineConnector{Source: "test"}
}

// Samples implements Connector: one morning sample per day in [from, to).
func (c *OfflineConnector) Samples(ctx context.Context, from, to time.Time) ([]health.Sample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []health.Sample
	for day := startOfDay(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		seed := daySeed(day)
		ts := day.Add(6*time.Hour + 30*time.Minute)
		if ts.Before(from) || !ts.Before(to) {
			continue
		}
		sample := health.Sample{
			Timestamp:    ts,
			Source:       c.Source,
			SleepHours:   6.5 + float64(seed%4)*0.5,
			SleepQuality: 55 + float64(seed%40),
			RestingHR:    52 + float64(seed%10),
			HRVScore:     45 + float64(seed%35),
			StressLevel:  20 + float64(seed%45),
			Steps:        6000 + int(seed%7)*1200,
		}
		sample.Recovery = (sample.SleepQuality + (100 - sample.StressLevel)) / 2
		raw, err := json.Marshal(map[string]any{"synthetic": true, "day": day.Format("2006-01-02")})
		if err != nil {
			return nil, fmt.Errorf("marshal raw payload: %w", err)
		}
		sample.Raw = raw
		out = append(out, sample)
	}
	return out, nil
}

// Activities implements Connector: a workout every other day, cycling
// through the disciplines.
func (c *OfflineConnector) Activities(ctx context.Context, from, to time.Time) ([]health.Activity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cycle := []config.Discipline{
		config.DisciplineStrength,
		config.DisciplineRun,
		config.DisciplineBike,
		config.DisciplineSwim,
	}
	var out []health.Activity
	for day := startOfDay(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		seed := daySeed(day)
		if seed%2 == 1 {
			continue // rest day
		}
		ts := day.Add(7 * time.Hour)
		if ts.Before(from) || !ts.Before(to) {
			continue
		}
		disc := cycle[int(seed/2)%len(cycle)]
		act := health.Activity{
			Timestamp:    ts,
			Discipline:   disc,
			DurationMin:  40 + float64(seed%5)*10,
			AvgHR:        120 + float64(seed%30),
			TrainingLoad: 60 + float64(seed%60),
			Exertion:     4 + int(seed%4),
			Calories:     350 + int(seed%6)*50,
		}
		if disc == config.DisciplineRun || disc == config.DisciplineBike {
			act.DistanceKM = 5 + float64(seed%20)
		}
		raw, err := json.Marshal(map[string]any{"synthetic": true, "day": day.Format("2006-01-02")})
		if err != nil {
			return nil, fmt.Errorf("marshal raw payload: %w", err)
		}
		act.Raw = raw
		out = append(out, act)
	}
	return out, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// daySeed derives a small stable number from the calendar date.
func daySeed(day time.Time) int64 {
	return day.Unix() / 86400 % 97
}
