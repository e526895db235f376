// Package cycle is the top-level orchestrator: ingest, reconcile, plan,
// write, under the safety limits.
package cycle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"fitsched/internal/audit"
	"fitsched/internal/budget"
	"fitsched/internal/calendar"
	"fitsched/internal/config"
	"fitsched/internal/garmin"
	"fitsched/internal/genai"
	"fitsched/internal/health"
	"fitsched/internal/planner"
	"fitsched/internal/reconcile"
)

// ErrAborted is returned when the cycle deadline or a cancellation cut the
// run short.
var ErrAborted = errors.New("cycle aborted by deadline or cancellation")

// StateStore is the persistence capability bundle the orchestrator needs.
// *store.Store satisfies it.
type StateStore interface {
	UpsertSample(ctx context.Context, sample health.Sample) (bool, error)
	UpsertActivity(ctx context.Context, act health.Activity) (bool, error)
	SamplesIn(ctx context.Context, from, to time.Time) ([]health.Sample, error)
	ActivitiesIn(ctx context.Context, from, to time.Time) ([]health.Activity, error)
	MirrorEvent(ctx context.Context, externalID, summary, description string, start, end time.Time, tags []string, origin string) error
	RecordDeviation(ctx context.Context, date time.Time, planned, actual config.Discipline, matched bool, durationDeltaMin float64, recordedAt time.Time) error
}

// Deps is the explicit dependency bundle handed to the orchestrator.
type Deps struct {
	Goals     *config.Goals
	Templates *config.Templates
	Calendar  calendar.Client
	LM        genai.LMClient
	Store     StateStore
	Audit     audit.Appender
	Wearable  garmin.Connector // optional; nil skips ingestion
	Now       func() time.Time
	Logger    *zap.Logger
	LockPath  string
	DryRun    bool
}

// Summary is the per-cycle outcome line.
type Summary struct {
	Created     int
	Updated     int
	Deleted     int
	Skipped     int
	Degraded    int
	Buffered    int
	Completed   int
	Missed      int
	Rescheduled int
	Cancelled   int
	Aborted     bool
}

func (s Summary) String() string {
	return fmt.Sprintf("created=%d updated=%d deleted=%d skipped=%d degraded=%d buffered=%d completed=%d missed=%d rescheduled=%d cancelled=%d aborted=%t",
		s.Created, s.Updated, s.Deleted, s.Skipped, s.Degraded, s.Buffered,
		s.Completed, s.Missed, s.Rescheduled, s.Cancelled, s.Aborted)
}

// Orchestrator drives one full cycle to completion.
type Orchestrator struct {
	Deps Deps
	// TrailingDays bounds reconciliation; zero means 7.
	TrailingDays int
	// HorizonDays overrides the config horizon when positive.
	HorizonDays int
}

// Run executes ingest, reconcile, plan, and write once. A second concurrent
// cycle fails fast with ErrAlreadyRunning. Panics inside components convert
// to a cycle_aborted audit entry.
func (o *Orchestrator) Run(ctx context.Context) (summary *Summary, err error) {
	deps := o.Deps
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	if deps.LockPath != "" {
		release, lockErr := acquireLock(deps.LockPath)
		if lockErr != nil {
			return nil, lockErr
		}
		defer release()
	}

	deadline := deps.Goals.CycleDeadline
	if deadline <= 0 {
		deadline = config.DefaultCycleDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	summary = &Summary{}

	defer func() {
		if rec := recover(); rec != nil {
			fingerprint := stackFingerprint(debug.Stack())
			logger.Error("cycle panicked", zap.Any("panic", rec), zap.String("stack_fingerprint", fingerprint))
			o.appendAbort(now, fmt.Sprintf("panic %v (stack %s)", rec, fingerprint), summary)
			summary.Aborted = true
			err = ErrAborted
		}
	}()

	view := calendar.NewView(deps.Calendar, calendar.Options{
		MaxMutations: deps.Goals.MaxMutationsPerCycle,
		DryRun:       deps.DryRun,
	})

	trailing := o.TrailingDays
	if trailing <= 0 {
		trailing = 7
	}
	horizon := o.HorizonDays
	if horizon <= 0 {
		horizon = deps.Goals.HorizonDays
	}

	// Phase 1: ingestion. Failures here degrade to stale data rather than
	// aborting the cycle.
	if deps.Wearable != nil {
		importer := &garmin.Importer{
			Connector: deps.Wearable,
			Store:     deps.Store,
			Audit:     deps.Audit,
			Now:       now,
		}
		if _, ingestErr := importer.Import(ctx, trailing); ingestErr != nil {
			if abortErr := o.checkAborted(ctx, now, summary, "ingest"); abortErr != nil {
				return summary, abortErr
			}
			logger.Warn("wearable ingestion failed; planning on stored data", zap.Error(ingestErr))
		}
	}
	if mirrorErr := o.mirrorCalendar(ctx, view, now, trailing, horizon); mirrorErr != nil {
		if abortErr := o.checkAborted(ctx, now, summary, "mirror"); abortErr != nil {
			return summary, abortErr
		}
		logger.Warn("calendar mirror failed", zap.Error(mirrorErr))
	}

	// Phase 2: reconcile the trailing window.
	rec := &reconcile.Reconciler{
		Goals:      deps.Goals,
		View:       view,
		Health:     deps.Store,
		Audit:      deps.Audit,
		Deviations: deps.Store,
		Now:        now,
	}
	recRes, recErr := rec.Run(ctx, trailing)
	if recRes != nil {
		summary.Completed = recRes.Completed
		summary.Missed = recRes.Missed
		summary.Rescheduled = recRes.Rescheduled
		summary.Cancelled = recRes.Cancelled
	}
	if recErr != nil {
		if abortErr := o.checkAborted(ctx, now, summary, "reconcile"); abortErr != nil {
			return summary, abortErr
		}
		return summary, fmt.Errorf("reconcile: %w", recErr)
	}

	// Phase 3: plan the forward horizon.
	pl := &planner.Planner{
		Goals:     deps.Goals,
		Templates: deps.Templates,
		View:      view,
		Health:    deps.Store,
		Gen: &genai.Generator{
			Client: deps.LM,
			Models: deps.Goals.Models,
		},
		Audit:       deps.Audit,
		Now:         now,
		Concurrency: deps.Goals.LMConcurrency,
	}
	planRes, planErr := pl.PlanHorizon(ctx, horizon)
	if planRes != nil {
		summary.Created = planRes.Created
		summary.Updated = planRes.Updated
		summary.Deleted += planRes.Deleted
		summary.Skipped = planRes.Skipped
		summary.Degraded = planRes.Degraded
		summary.Buffered = planRes.Buffered
	}
	if planErr != nil {
		if abortErr := o.checkAborted(ctx, now, summary, "plan"); abortErr != nil {
			return summary, abortErr
		}
		return summary, fmt.Errorf("plan: %w", planErr)
	}

	logger.Info("cycle complete",
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("deleted", summary.Deleted),
		zap.Int("skipped", summary.Skipped),
		zap.Int("degraded", summary.Degraded),
		zap.Int("completed", summary.Completed),
		zap.Int("missed", summary.Missed),
		zap.Bool("dry_run", deps.DryRun),
	)
	return summary, nil
}

// checkAborted converts a context expiry into the cycle_aborted protocol.
func (o *Orchestrator) checkAborted(ctx context.Context, now func() time.Time, summary *Summary, phase string) error {
	if ctx.Err() == nil {
		return nil
	}
	o.appendAbort(now, fmt.Sprintf("deadline exceeded during %s", phase), summary)
	summary.Aborted = true
	return ErrAborted
}

func (o *Orchestrator) appendAbort(now func() time.Time, reason string, summary *Summary) {
	// A fresh context: the cycle context is already dead.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = o.Deps.Audit.Append(ctx, audit.Action{
		Agent:     "orchestrator",
		Type:      audit.TypeCycleAborted,
		Timestamp: now().UTC(),
		Reasoning: reason,
		After:     summary,
	})
}

// mirrorCalendar snapshots the remote window into the local store.
func (o *Orchestrator) mirrorCalendar(ctx context.Context, view *calendar.View, now func() time.Time, trailing, horizon int) error {
	loc := o.Deps.Goals.Location
	t := now().In(loc)
	start := budget.WeekStart(t, loc).AddDate(0, 0, -trailing)
	end := t.AddDate(0, 0, horizon+7)
	events, err := view.ListRange(ctx, start, end)
	if err != nil {
		return err
	}
	for _, ev := range events {
		origin := string(ev.Origin())
		if err := o.Deps.Store.MirrorEvent(ctx, ev.ID, ev.Summary, ev.Description, ev.Start, ev.End, ev.Tags, origin); err != nil {
			return err
		}
	}
	return nil
}

// stackFingerprint reduces a panic stack to a short stable identifier.
func stackFingerprint(stack []byte) string {
	sum := sha256.Sum256(stack)
	return hex.EncodeToString(sum[:])[:12]
}
