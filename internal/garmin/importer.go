package garmin

import (
	"context"
	"fmt"
	"time"

	"fitsched/internal/audit"
	"fitsched/internal/health"
)

// IngestStore is the write capability the importer needs.
type IngestStore interface {
	UpsertSample(ctx context.Context, sample health.Sample) (bool, error)
	UpsertActivity(ctx context.Context, act health.Activity) (bool, error)
}

// Importer pulls wearable data into the store. Duplicate rows are
// idempotent no-ops recorded as skip_duplicate.
type Importer struct {
	Connector Connector
	Store     IngestStore
	Audit     audit.Appender
	Now       func() time.Time
}

// ImportResult counts one import run.
type ImportResult struct {
	SamplesInserted    int
	SamplesSkipped     int
	ActivitiesInserted int
	ActivitiesSkipped  int
}

// Import fetches and stores the trailing days of samples and activities.
func (im *Importer) Import(ctx context.Context, days int) (*ImportResult, error) {
	if days <= 0 {
		days = 7
	}
	now := im.Now()
	from := now.AddDate(0, 0, -days)

	res := &ImportResult{}

	samples, err := im.Connector.Samples(ctx, from, now)
	if err != nil {
		return res, fmt.Errorf("fetch samples: %w", err)
	}
	for _, sample := range samples {
		inserted, err := im.Store.UpsertSample(ctx, sample)
		if err != nil {
			return res, fmt.Errorf("store sample %s: %w", sample.Timestamp.Format(time.RFC3339), err)
		}
		if inserted {
			res.SamplesInserted++
		} else {
			res.SamplesSkipped++
		}
	}

	activities, err := im.Connector.Activities(ctx, from, now)
	if err != nil {
		return res, fmt.Errorf("fetch activities: %w", err)
	}
	for _, act := range activities {
		inserted, err := im.Store.UpsertActivity(ctx, act)
		if err != nil {
			return res, fmt.Errorf("store activity %s: %w", act.Timestamp.Format(time.RFC3339), err)
		}
		if inserted {
			res.ActivitiesInserted++
		} else {
			res.ActivitiesSkipped++
		}
	}

	if im.Audit != nil && (res.SamplesSkipped > 0 || res.ActivitiesSkipped > 0) {
		_ = im.Audit.Append(ctx, audit.Action{
			Agent:      "importer",
			Type:       audit.TypeSkipDuplicate,
			Timestamp:  now.UTC(),
			Confidence: 1,
			Reasoning: fmt.Sprintf("skipped %d duplicate samples and %d duplicate activities",
				res.SamplesSkipped, res.ActivitiesSkipped),
			DataSources: []string{"garmin"},
		})
	}
	return res, nil
}
