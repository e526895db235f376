package calendar

import (
	"fmt"
	"strings"
	"time"

	"fitsched/internal/config"
)

// Origin distinguishes planner-created events from everything else.
type Origin string

const (
	OriginPlanned  Origin = "planned"
	OriginExternal Origin = "external"
)

// Summary prefixes owned by the planner and reconciler.
const (
	SummaryPrefix = "[AI Workout] "
	DonePrefix    = "[✓ Done] "
	MissedPrefix  = "[✗ Missed] "
)

// tagPrefix marks the machine-readable discipline tag. It appears both in
// the event tag set and on the last line of the description so either
// surface round-trips ownership.
const tagPrefix = "workout:"

// Event is an entry in the remote calendar.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
	Tags        []string
}

// Tag returns the discipline tag for planner-owned events.
func Tag(d config.Discipline) string {
	return tagPrefix + string(d)
}

// PlannerOwned reports whether the planner created this event. Recognition
// accepts either the summary prefix or the discipline tag; writes always
// emit both.
func (e Event) PlannerOwned() bool {
	for _, prefix := range []string{SummaryPrefix, DonePrefix, MissedPrefix} {
		if strings.HasPrefix(e.Summary, prefix) {
			return true
		}
	}
	_, ok := e.Discipline()
	return ok
}

// Discipline extracts the discipline tag from the event's tags or
// description.
func (e Event) Discipline() (config.Discipline, bool) {
	for _, tag := range e.Tags {
		if d, ok := parseTag(tag); ok {
			return d, true
		}
	}
	for _, line := range strings.Split(e.Description, "\n") {
		if d, ok := parseTag(strings.TrimSpace(line)); ok {
			return d, true
		}
	}
	return "", false
}

func parseTag(s string) (config.Discipline, bool) {
	if !strings.HasPrefix(s, tagPrefix) {
		return "", false
	}
	d := config.Discipline(strings.TrimSpace(strings.TrimPrefix(s, tagPrefix)))
	switch d {
	case config.DisciplineRun, config.DisciplineBike, config.DisciplineSwim,
		config.DisciplineStrength, config.DisciplineOther:
		return d, true
	}
	return "", false
}

// Origin classifies the event by ownership.
func (e Event) Origin() Origin {
	if e.PlannerOwned() {
		return OriginPlanned
	}
	return OriginExternal
}

// Completed reports whether the reconciler already marked this event.
func (e Event) Completed() bool {
	return strings.HasPrefix(e.Summary, DonePrefix)
}

// Missed reports whether the reconciler marked this event as skipped.
func (e Event) Missed() bool {
	return strings.HasPrefix(e.Summary, MissedPrefix)
}

// Reconciled reports whether a past event no longer needs reconciliation.
func (e Event) Reconciled() bool {
	return e.Completed() || e.Missed()
}

// SlotKey derives the stable idempotency key for a planner-owned slot.
// Keyed by (local date, discipline) so duplicate upserts collapse.
func SlotKey(day time.Time, d config.Discipline) string {
	return fmt.Sprintf("%s/%s", day.Format("2006-01-02"), d)
}

// MatchesKeyword reports whether the summary contains any protected keyword,
// case-insensitively.
func (e Event) MatchesKeyword(keywords []string) bool {
	summary := strings.ToLower(e.Summary)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(summary, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
