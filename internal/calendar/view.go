package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"fitsched/internal/config"
)

// maxListRange bounds a single windowed read.
const maxListRange = 90 * 24 * time.Hour

const (
	retryAttempts     = 3
	retryBase         = time.Second
	retryMultiplier   = 2
	retryJitterFactor = 0.2
)

// Options configures a View.
type Options struct {
	// MaxMutations caps Upsert+Delete calls per View lifetime (one cycle).
	// Zero means unlimited.
	MaxMutations int
	// DryRun suppresses all writes; mutations still count against the cap.
	DryRun bool
}

// View wraps a Client with retry, mutation budgeting, and the slot-key
// upsert protocol. A View is scoped to one cycle.
type View struct {
	client Client
	opts   Options

	mu        sync.Mutex
	mutations int
	changes   []Change

	retryBase time.Duration // overridable in tests
}

// NewView wraps client for one cycle.
func NewView(client Client, opts Options) *View {
	return &View{client: client, opts: opts, retryBase: retryBase}
}

// Mutations returns the number of mutations attempted so far.
func (v *View) Mutations() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mutations
}

// DryRun reports whether writes are suppressed.
func (v *View) DryRun() bool {
	return v.opts.DryRun
}

// Changes returns the would-be mutations a dry-run View collected.
func (v *View) Changes() []Change {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Change(nil), v.changes...)
}

func (v *View) recordChange(op string, before, after *Event) {
	if !v.opts.DryRun {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.changes = append(v.changes, Change{
		Op:     op,
		Before: before,
		After:  after,
		Diff:   renderDiff(before, after),
	})
}

// ListRange returns events in [start, end), ascending by start. Ranges above
// 90 days are rejected.
func (v *View) ListRange(ctx context.Context, start, end time.Time) ([]Event, error) {
	if end.Sub(start) > maxListRange {
		return nil, fmt.Errorf("list range %s exceeds 90 days", end.Sub(start))
	}
	var events []Event
	err := v.retry(ctx, "list", func() error {
		var err error
		events, err = v.client.List(ctx, start, end)
		return err
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// EventsOn returns events overlapping the local calendar day containing day.
func (v *View) EventsOn(ctx context.Context, day time.Time, loc *time.Location) ([]Event, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return v.ListRange(ctx, dayStart, dayStart.Add(24*time.Hour))
}

// UpsertSlot writes a planner-owned event for the (day, discipline) slot.
// When ev.ID is empty an existing planned event for the slot is located and
// updated so duplicate upserts are idempotent. applied reports whether the
// remote calendar was actually mutated.
func (v *View) UpsertSlot(ctx context.Context, ev Event, day time.Time, d config.Discipline, loc *time.Location) (out Event, applied bool, err error) {
	if ev.ID == "" {
		existing, err := v.findSlot(ctx, day, d, loc)
		if err != nil {
			return Event{}, false, err
		}
		if existing != nil {
			if sameEvent(*existing, ev) {
				// Nothing to change; no mutation spent.
				return *existing, false, nil
			}
			ev.ID = existing.ID
		}
		return v.upsert(ctx, ev, existing)
	}
	return v.upsert(ctx, ev, nil)
}

// Upsert writes an event that already carries its external id.
func (v *View) Upsert(ctx context.Context, ev Event) (Event, bool, error) {
	before := ev
	return v.upsert(ctx, ev, &before)
}

func (v *View) upsert(ctx context.Context, ev Event, before *Event) (Event, bool, error) {
	if err := v.spendMutation(); err != nil {
		return Event{}, false, err
	}
	if v.opts.DryRun {
		op := "update"
		if ev.ID == "" {
			ev.ID = "dry-run"
			op = "create"
		}
		v.recordChange(op, before, &ev)
		return ev, false, nil
	}
	var out Event
	err := v.retry(ctx, "upsert", func() error {
		var err error
		out, err = v.client.Upsert(ctx, ev)
		return err
	})
	if err != nil {
		return Event{}, false, err
	}
	return out, true, nil
}

// Delete removes an event. A not_found result is treated as already deleted.
func (v *View) Delete(ctx context.Context, id string) (applied bool, err error) {
	if err := v.spendMutation(); err != nil {
		return false, err
	}
	if v.opts.DryRun {
		v.recordChange("delete", &Event{ID: id}, nil)
		return false, nil
	}
	err = v.retry(ctx, "delete", func() error {
		return v.client.Delete(ctx, id)
	})
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (v *View) findSlot(ctx context.Context, day time.Time, d config.Discipline, loc *time.Location) (*Event, error) {
	events, err := v.EventsOn(ctx, day, loc)
	if err != nil {
		return nil, err
	}
	for i := range events {
		ev := events[i]
		if !ev.PlannerOwned() {
			continue
		}
		evd, ok := ev.Discipline()
		if !ok || evd != d {
			continue
		}
		return &ev, nil
	}
	return nil, nil
}

func (v *View) spendMutation() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.mutations++
	if v.opts.MaxMutations > 0 && v.mutations > v.opts.MaxMutations {
		return ErrMutationBudget
	}
	return nil
}

// retry runs op, retrying transient failures with exponential backoff and
// jitter. Non-transient errors surface immediately.
func (v *View) retry(ctx context.Context, op string, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = v.retryBase
	b.Multiplier = retryMultiplier
	b.RandomizationFactor = retryJitterFactor
	b.MaxElapsedTime = 0

	attempts := 0
	wrapped := func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if Classify(err) != KindTransient || attempts >= retryAttempts {
			return backoff.Permanent(err)
		}
		return err
	}
	if err := backoff.Retry(wrapped, backoff.WithContext(b, ctx)); err != nil {
		return fmt.Errorf("calendar %s: %w", op, err)
	}
	return nil
}

func sameEvent(a, b Event) bool {
	return a.Summary == b.Summary &&
		a.Description == b.Description &&
		a.Start.Equal(b.Start) &&
		a.End.Equal(b.End)
}
