package daemon

import (
	"fmt"
	"time"
)

// Job types the scheduler enqueues.
const (
	JobRunCycle     = "run_cycle"
	JobImportGarmin = "import_garmin"
	JobWatchTick    = "watch_tick"
)

// cycleInterval is the unattended planning cadence.
const cycleInterval = 30 * time.Minute

// watchInterval is the config-watch polling cadence.
const watchInterval = 30 * time.Second

// Scheduler enqueues recurring jobs based on a persisted watermark.
type Scheduler struct {
	store    *Store
	location *time.Location
}

// NewScheduler creates a scheduler with the given timezone location.
func NewScheduler(store *Store, tzName string) (*Scheduler, error) {
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", tzName, err)
	}
	return &Scheduler{store: store, location: loc}, nil
}

// Tick schedules any jobs that became due since the last watermark.
func (s *Scheduler) Tick(now time.Time) error {
	watermarkStr, err := s.store.GetKV("scheduler_watermark")
	if err != nil {
		return fmt.Errorf("get scheduler watermark: %w", err)
	}

	var lastWatermark time.Time
	if watermarkStr != "" {
		lastWatermark, err = time.Parse(time.RFC3339, watermarkStr)
		if err != nil {
			return fmt.Errorf("parse watermark: %w", err)
		}
	}

	// First run: set the watermark and skip backfilling past jobs.
	if lastWatermark.IsZero() {
		if err := s.store.SetKV("scheduler_watermark", now.UTC().Format(time.RFC3339)); err != nil {
			return fmt.Errorf("set initial watermark: %w", err)
		}
		return nil
	}

	if err := s.scheduleEvery(lastWatermark, now, JobRunCycle, cycleInterval); err != nil {
		return fmt.Errorf("schedule run_cycle: %w", err)
	}
	if err := s.scheduleDailyAt(lastWatermark, now, JobImportGarmin, 5, 10); err != nil {
		return fmt.Errorf("schedule import_garmin: %w", err)
	}
	if err := s.scheduleEvery(lastWatermark, now, JobWatchTick, watchInterval); err != nil {
		return fmt.Errorf("schedule watch_tick: %w", err)
	}

	if err := s.store.SetKV("scheduler_watermark", now.UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("update watermark: %w", err)
	}
	return nil
}

// scheduleEvery enqueues a job for each interval boundary crossed since the
// watermark.
func (s *Scheduler) scheduleEvery(lastWatermark, now time.Time, jobType string, interval time.Duration) error {
	start := lastWatermark.Truncate(interval).Add(interval)
	for current := start; !current.After(now); current = current.Add(interval) {
		payload := map[string]any{
			"scheduled_time": current.UTC().Format(time.RFC3339),
		}
		if _, _, err := s.store.EnqueueUnique(jobType, current, payload); err != nil {
			return fmt.Errorf("enqueue %s at %s: %w", jobType, current, err)
		}
	}
	return nil
}

// scheduleDailyAt enqueues a job daily at the specified local hour and minute.
func (s *Scheduler) scheduleDailyAt(lastWatermark, now time.Time, jobType string, hour, minute int) error {
	wl := lastWatermark.In(s.location)
	start := time.Date(wl.Year(), wl.Month(), wl.Day(), 0, 0, 0, 0, s.location)

	for current := start; !current.After(now); current = current.AddDate(0, 0, 1) {
		scheduledTime := time.Date(
			current.Year(), current.Month(), current.Day(),
			hour, minute, 0, 0, s.location,
		)
		if scheduledTime.After(lastWatermark) && !scheduledTime.After(now) {
			payload := map[string]any{
				"scheduled_time": scheduledTime.Format(time.RFC3339),
			}
			if _, _, err := s.store.EnqueueUnique(jobType, scheduledTime, payload); err != nil {
				return fmt.Errorf("enqueue %s at %s: %w", jobType, scheduledTime, err)
			}
		}
	}
	return nil
}
