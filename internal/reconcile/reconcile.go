// Package reconcile closes the loop between planned events and the activity
// the wearable actually recorded.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fitsched/internal/audit"
	"fitsched/internal/calendar"
	"fitsched/internal/config"
	"fitsched/internal/health"
	"fitsched/internal/slots"
)

// AgentName identifies reconciler decisions in the audit log.
const AgentName = "reconciler"

// Match windows around a planned event when looking for the recorded
// activity.
const (
	matchBefore = 30 * time.Minute
	matchAfter  = 90 * time.Minute
)

// HealthStore is the read capability the reconciler needs.
type HealthStore interface {
	ActivitiesIn(ctx context.Context, from, to time.Time) ([]health.Activity, error)
}

// DeviationRecorder persists planned-vs-actual discrepancies for pattern
// learning. Optional.
type DeviationRecorder interface {
	RecordDeviation(ctx context.Context, date time.Time, planned, actual config.Discipline, matched bool, durationDeltaMin float64, recordedAt time.Time) error
}

// Reconciler compares past planned events with performed activities and
// keeps future planned events consistent with the calendar and config.
type Reconciler struct {
	Goals      *config.Goals
	View       *calendar.View
	Health     HealthStore
	Audit      audit.Appender
	Deviations DeviationRecorder
	Now        func() time.Time
}

// Result summarizes one reconciliation pass.
type Result struct {
	Completed   int
	Missed      int
	Rescheduled int
	Cancelled   int
	Skipped     int
}

// Run reconciles a trailing window of trailingDays and all future
// planner-owned events inside the forward horizon.
func (r *Reconciler) Run(ctx context.Context, trailingDays int) (*Result, error) {
	if trailingDays <= 0 {
		trailingDays = 7
	}
	loc := r.Goals.Location
	now := r.Now().In(loc)

	res := &Result{}

	start := now.AddDate(0, 0, -trailingDays)
	end := now.AddDate(0, 0, r.Goals.HorizonDays+1)
	events, err := r.View.ListRange(ctx, start, end)
	if err != nil {
		return res, fmt.Errorf("read reconcile window: %w", err)
	}

	activities, err := r.Health.ActivitiesIn(ctx, start.Add(-matchBefore), now)
	if err != nil {
		return res, fmt.Errorf("read activities: %w", err)
	}

	for _, ev := range events {
		if !ev.PlannerOwned() || ev.MatchesKeyword(r.Goals.ProtectedKeywords) {
			continue
		}
		if ev.End.Before(now) {
			if ev.Reconciled() {
				continue
			}
			if err := r.reconcilePast(ctx, ev, activities, now, res); err != nil {
				return res, err
			}
			continue
		}
		if ev.Start.After(now) {
			if err := r.reconcileFuture(ctx, ev, events, now, res); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}

// reconcilePast marks a finished planned event completed or missed.
func (r *Reconciler) reconcilePast(ctx context.Context, ev calendar.Event, activities []health.Activity, now time.Time, res *Result) error {
	disc, ok := ev.Discipline()
	if !ok {
		return nil
	}

	var matches []health.Activity
	windowStart := ev.Start.Add(-matchBefore)
	windowEnd := ev.End.Add(matchAfter)
	for _, act := range activities {
		if act.Timestamp.Before(windowStart) || act.Timestamp.After(windowEnd) {
			continue
		}
		if act.Discipline != disc {
			continue
		}
		matches = append(matches, act)
	}

	if len(matches) == 0 {
		updated := ev
		updated.Summary = calendar.MissedPrefix + trimOwnPrefix(ev.Summary)
		_, applied, err := r.View.Upsert(ctx, updated)
		if err == calendar.ErrMutationBudget {
			res.Skipped++
			return nil
		}
		if err != nil {
			return fmt.Errorf("mark missed: %w", err)
		}
		res.Missed++
		r.recordDeviation(ctx, ev, disc, nil, now)
		r.append(ctx, audit.Action{
			Agent:       AgentName,
			Type:        audit.TypeMissed,
			Confidence:  0.9,
			Before:      eventState(ev),
			After:       eventState(updated),
			Reasoning:   fmt.Sprintf("no %s activity recorded near the planned slot; kept for pattern learning", disc),
			DataSources: []string{"calendar", "activities"},
			Executed:    applied,
		})
		return nil
	}

	match := matches[0]
	multi := len(matches) > 1
	if multi {
		match = bestOverlap(matches, ev)
	}

	updated := ev
	updated.Summary = calendar.DonePrefix + trimOwnPrefix(ev.Summary)
	updated.Description = appendObserved(ev.Description, match)
	_, applied, err := r.View.Upsert(ctx, updated)
	if err == calendar.ErrMutationBudget {
		res.Skipped++
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	res.Completed++
	r.recordDeviation(ctx, ev, disc, &match, now)
	r.append(ctx, audit.Action{
		Agent:      AgentName,
		Type:       audit.TypeMarkCompleted,
		Confidence: 0.95,
		Before:     eventState(ev),
		After: map[string]any{
			"event_id":        updated.ID,
			"summary":         updated.Summary,
			"multi_candidate": multi,
			"actual_duration": match.DurationMin,
		},
		Reasoning:   fmt.Sprintf("matched %s activity at %s", disc, match.Timestamp.Format(time.RFC3339)),
		DataSources: []string{"calendar", "activities"},
		Executed:    applied,
	})
	return nil
}

// reconcileFuture reschedules or cancels an imminent planned event that a
// newer external event now overlaps, and purges disciplines removed from the
// config.
func (r *Reconciler) reconcileFuture(ctx context.Context, ev calendar.Event, events []calendar.Event, now time.Time, res *Result) error {
	disc, ok := ev.Discipline()
	if !ok {
		return nil
	}

	if r.Goals.Target(disc) == 0 {
		applied, err := r.View.Delete(ctx, ev.ID)
		if err == calendar.ErrMutationBudget {
			res.Skipped++
			return nil
		}
		if err != nil {
			return fmt.Errorf("delete removed-target event: %w", err)
		}
		res.Cancelled++
		r.append(ctx, audit.Action{
			Agent:       AgentName,
			Type:        audit.TypeCancel,
			Confidence:  1,
			Before:      eventState(ev),
			Reasoning:   fmt.Sprintf("target_removed: %s no longer in goals", disc),
			DataSources: []string{"goals_config", "calendar"},
			Executed:    applied,
		})
		return nil
	}

	if ev.Start.After(now.Add(r.Goals.MinNotice)) {
		return nil
	}

	conflict, hasConflict := findConflict(ev, events, r.Goals.ProtectedKeywords)
	if !hasConflict {
		return nil
	}

	// Try to move the workout elsewhere on the same day.
	duration := ev.End.Sub(ev.Start)
	loc := r.Goals.Location
	day := time.Date(ev.Start.In(loc).Year(), ev.Start.In(loc).Month(), ev.Start.In(loc).Day(), 0, 0, 0, 0, loc)

	busy := []slots.Interval{{Start: day, End: now}}
	for _, other := range events {
		if other.ID == ev.ID {
			continue
		}
		if other.Start.Before(day.AddDate(0, 0, 1)) && day.Before(other.End) {
			busy = append(busy, slots.Interval{Start: other.Start, End: other.End})
		}
	}
	primary, alternate := r.Goals.Windows()
	slotStart, found := slots.FindFreeSlot(day, duration, primary, alternate, r.Goals.Flexible(), busy, loc)

	if found {
		moved := ev
		moved.Start = slotStart
		moved.End = slotStart.Add(duration)
		_, applied, err := r.View.Upsert(ctx, moved)
		if err == calendar.ErrMutationBudget {
			res.Skipped++
			return nil
		}
		if err != nil {
			return fmt.Errorf("reschedule event: %w", err)
		}
		res.Rescheduled++
		r.append(ctx, audit.Action{
			Agent:       AgentName,
			Type:        audit.TypeReschedule,
			Confidence:  0.8,
			Before:      eventState(ev),
			After:       eventState(moved),
			Reasoning:   fmt.Sprintf("overlapped by %q; moved to %s", conflict.Summary, slotStart.Format("15:04")),
			DataSources: []string{"calendar"},
			Executed:    applied,
		})
		return nil
	}

	applied, err := r.View.Delete(ctx, ev.ID)
	if err == calendar.ErrMutationBudget {
		res.Skipped++
		return nil
	}
	if err != nil {
		return fmt.Errorf("cancel conflicting event: %w", err)
	}
	res.Cancelled++
	r.append(ctx, audit.Action{
		Agent:       AgentName,
		Type:        audit.TypeCancel,
		Confidence:  0.9,
		Before:      eventState(ev),
		Reasoning:   fmt.Sprintf("overlapped by %q and no alternate slot found", conflict.Summary),
		DataSources: []string{"calendar"},
		Executed:    applied,
	})
	return nil
}

func (r *Reconciler) recordDeviation(ctx context.Context, ev calendar.Event, planned config.Discipline, match *health.Activity, now time.Time) {
	if r.Deviations == nil {
		return
	}
	actual := config.Discipline("")
	matched := false
	delta := -ev.End.Sub(ev.Start).Minutes()
	if match != nil {
		actual = match.Discipline
		matched = true
		delta = match.DurationMin - ev.End.Sub(ev.Start).Minutes()
	}
	_ = r.Deviations.RecordDeviation(ctx, ev.Start, planned, actual, matched, delta, now)
}

func (r *Reconciler) append(ctx context.Context, a audit.Action) {
	a.Timestamp = r.Now().UTC()
	_ = r.Audit.Append(ctx, a)
}

// findConflict returns the first non-workout event overlapping ev.
// Protected events still count as conflicts; they are simply never mutated.
func findConflict(ev calendar.Event, events []calendar.Event, protected []string) (calendar.Event, bool) {
	for _, other := range events {
		if other.ID == ev.ID || other.PlannerOwned() {
			continue
		}
		if slots.Overlap(
			slots.Interval{Start: ev.Start, End: ev.End},
			slots.Interval{Start: other.Start, End: other.End},
		) {
			return other, true
		}
	}
	return calendar.Event{}, false
}

func bestOverlap(matches []health.Activity, ev calendar.Event) health.Activity {
	best := matches[0]
	bestDur := overlapDuration(best, ev)
	for _, act := range matches[1:] {
		if d := overlapDuration(act, ev); d > bestDur {
			best, bestDur = act, d
		}
	}
	return best
}

func overlapDuration(act health.Activity, ev calendar.Event) time.Duration {
	start := act.Timestamp
	if ev.Start.After(start) {
		start = ev.Start
	}
	end := act.End()
	if ev.End.Before(end) {
		end = ev.End
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

func trimOwnPrefix(summary string) string {
	for _, prefix := range []string{calendar.DonePrefix, calendar.MissedPrefix} {
		summary = strings.TrimPrefix(summary, prefix)
	}
	return summary
}

func appendObserved(description string, act health.Activity) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(description, "\n"))
	b.WriteString("\n\nObserved:\n")
	fmt.Fprintf(&b, "- duration: %.0f min\n", act.DurationMin)
	if act.DistanceKM > 0 {
		fmt.Fprintf(&b, "- distance: %.1f km\n", act.DistanceKM)
	}
	if act.AvgHR > 0 {
		fmt.Fprintf(&b, "- avg HR: %.0f bpm\n", act.AvgHR)
	}
	return b.String()
}

func eventState(ev calendar.Event) map[string]any {
	return map[string]any{
		"event_id": ev.ID,
		"summary":  ev.Summary,
		"start":    ev.Start.Format(time.RFC3339),
		"end":      ev.End.Format(time.RFC3339),
	}
}
