package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"fitsched/internal/audit"
	"fitsched/internal/budget"
	"fitsched/internal/calendar"
	"fitsched/internal/config"
	"fitsched/internal/genai"
	"fitsched/internal/health"
	"fitsched/internal/slots"
)

// AgentName identifies planner decisions in the audit log.
const AgentName = "planner"

// HealthStore is the read capability the planner needs from the ingested
// health rows.
type HealthStore interface {
	SamplesIn(ctx context.Context, from, to time.Time) ([]health.Sample, error)
	ActivitiesIn(ctx context.Context, from, to time.Time) ([]health.Activity, error)
}

// Generator produces workout content for one plan request.
type Generator interface {
	Generate(ctx context.Context, req genai.Request) (genai.WorkoutPlan, genai.Meta, error)
}

// Planner makes the per-day scheduling decisions over the forward horizon.
type Planner struct {
	Goals       *config.Goals
	Templates   *config.Templates
	View        *calendar.View
	Health      HealthStore
	Gen         Generator
	Audit       audit.Appender
	Now         func() time.Time
	Concurrency int
}

// Result summarizes one planning pass.
type Result struct {
	Created  int
	Updated  int
	Deleted  int
	Skipped  int
	Degraded int
	Buffered int
}

// decision is one candidate day that made it through slot selection.
type decision struct {
	date        time.Time
	discipline  config.Discipline
	tier        config.IntensityTier
	slotStart   time.Time
	duration    time.Duration
	req        genai.Request
	healthFlag bool
	plan       genai.WorkoutPlan
	meta       genai.Meta
}

// PlanHorizon runs the per-day decision loop for days forward from today in
// the user timezone, generates content with bounded fan-out, and applies
// mutations in ascending date order.
func (p *Planner) PlanHorizon(ctx context.Context, days int) (*Result, error) {
	if days <= 0 {
		days = p.Goals.HorizonDays
	}
	loc := p.Goals.Location
	now := p.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	res := &Result{}

	// All reads happen before any mutation: one calendar window covering
	// the current week through the end of the horizon's week.
	readStart := budget.WeekStart(now, loc)
	readEnd := budget.WeekStart(today.AddDate(0, 0, days+7), loc)
	events, err := p.View.ListRange(ctx, readStart, readEnd)
	if err != nil {
		return res, fmt.Errorf("read calendar window: %w", err)
	}

	samples, err := p.Health.SamplesIn(ctx, now.AddDate(0, 0, -8), now.Add(24*time.Hour))
	if err != nil {
		return res, fmt.Errorf("read health samples: %w", err)
	}
	activities, err := p.Health.ActivitiesIn(ctx, now.AddDate(0, 0, -8), now)
	if err != nil {
		return res, fmt.Errorf("read activities: %w", err)
	}

	snap := health.BuildSnapshot(samples, activities, now)
	recent := renderRecentSummary(activities, now)

	// Config-change reconciliation first: purge planner-owned future events
	// whose discipline target dropped to zero.
	events, purged, err := p.purgeRemoved(ctx, events, now)
	if err != nil {
		return res, err
	}
	res.Deleted += purged

	decisions := p.decide(ctx, events, activities, snap, recent, today, now, days, res)

	if err := p.generate(ctx, decisions); err != nil {
		return res, err
	}

	sort.Slice(decisions, func(i, j int) bool { return decisions[i].date.Before(decisions[j].date) })
	for i := range decisions {
		if err := p.apply(ctx, &decisions[i], res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (p *Planner) purgeRemoved(ctx context.Context, events []calendar.Event, now time.Time) ([]calendar.Event, int, error) {
	removed := budget.Removed(p.Goals, events, now)
	if len(removed) == 0 {
		return events, 0, nil
	}

	deleted := make(map[string]struct{}, len(removed))
	count := 0
	for _, ev := range removed {
		if ev.MatchesKeyword(p.Goals.ProtectedKeywords) {
			continue
		}
		applied, err := p.View.Delete(ctx, ev.ID)
		if err == calendar.ErrMutationBudget {
			p.append(ctx, audit.Action{
				Agent:     AgentName,
				Type:      audit.TypeCancel,
				Before:    eventState(ev),
				Reasoning: "target_removed purge deferred: mutation budget exhausted",
				Executed:  false,
			})
			continue
		}
		if err != nil {
			return events, count, fmt.Errorf("purge removed discipline event: %w", err)
		}
		deleted[ev.ID] = struct{}{}
		count++
		d, _ := ev.Discipline()
		p.append(ctx, audit.Action{
			Agent:       AgentName,
			Type:        audit.TypeCancel,
			Confidence:  1,
			Before:      eventState(ev),
			Reasoning:   fmt.Sprintf("target_removed: weekly goal for %s is now zero", d),
			DataSources: []string{"goals_config", "calendar"},
			Executed:    applied,
		})
	}

	kept := events[:0]
	for _, ev := range events {
		if _, gone := deleted[ev.ID]; !gone {
			kept = append(kept, ev)
		}
	}
	return kept, count, nil
}

func (p *Planner) decide(ctx context.Context, events []calendar.Event, activities []health.Activity, snap health.Snapshot, recent string, today, now time.Time, days int, res *Result) []decision {
	loc := p.Goals.Location
	var decisions []decision

	// Sessions decided earlier in this pass count against later days of the
	// same week.
	pending := make(map[time.Time]map[config.Discipline]int)

	for i := 0; i < days; i++ {
		date := today.AddDate(0, 0, i)
		if date.AddDate(0, 0, 1).Before(now) {
			continue // already past in user TZ
		}

		if ev, ok := plannedEventOn(events, date, loc); ok && !ev.Reconciled() {
			res.Skipped++
			p.append(ctx, audit.Action{
				Agent:       AgentName,
				Type:        audit.TypeSkipDuplicate,
				Confidence:  1,
				Before:      eventState(ev),
				Reasoning:   fmt.Sprintf("a planned workout already exists on %s", date.Format("2006-01-02")),
				DataSources: []string{"calendar"},
			})
			continue
		}

		week := budget.WeekStart(date, loc)
		tally := budget.CountWeek(events, activities, week, now)
		for d, n := range pending[week] {
			tally.Scheduled[d] += n
		}
		remaining := budget.Remaining(p.Goals, tally)

		if budget.AllZero(remaining) {
			res.Skipped++
			p.append(ctx, audit.Action{
				Agent:       AgentName,
				Type:        audit.TypeSkipTargetMet,
				Confidence:  1,
				Reasoning:   fmt.Sprintf("all weekly targets met for %s", date.Format("2006-01-02")),
				DataSources: []string{"goals_config", "calendar", "activities"},
			})
			continue
		}

		prev := disciplineOn(events, activities, date.AddDate(0, 0, -1), loc)
		for _, dec := range decisions {
			if dec.date.Equal(date.AddDate(0, 0, -1)) {
				prev = dec.discipline
			}
		}
		disc, ok := chooseDiscipline(remaining, p.Goals.Priority, prev)
		if !ok {
			res.Skipped++
			p.append(ctx, audit.Action{
				Agent:      AgentName,
				Type:       audit.TypeSkipTargetMet,
				Confidence: 1,
				Reasoning:  fmt.Sprintf("no schedulable discipline remains for %s", date.Format("2006-01-02")),
			})
			continue
		}

		effTier, healthFlag := snap.EffectiveTier()
		tier := intensityFor(effTier, disc, snap.TrainingLoad48h, p.Goals.TrainingLoadCeiling)

		tpl, err := p.Templates.For(disc)
		if err != nil {
			res.Skipped++
			p.append(ctx, audit.Action{
				Agent:     AgentName,
				Type:      audit.TypeSkipNoSlot,
				Reasoning: fmt.Sprintf("no template for %s: %v", disc, err),
			})
			continue
		}
		duration := time.Duration(tpl.Set(tier).DurationMin) * time.Minute

		busy := busyIntervals(events, date, loc, disc)
		if date.Equal(today) {
			// Never place a slot earlier than now on the current day.
			busy = append(busy, slots.Interval{Start: date, End: now})
		}
		primary, alternate := p.Goals.Windows()
		slotStart, found := slots.FindFreeSlot(date, duration, primary, alternate, p.Goals.Flexible(), busy, loc)
		if !found {
			res.Skipped++
			p.append(ctx, audit.Action{
				Agent:       AgentName,
				Type:        audit.TypeSkipNoSlot,
				Confidence:  1,
				Reasoning:   fmt.Sprintf("no_slot: no free %s gap on %s in either window", duration, date.Format("2006-01-02")),
				DataSources: []string{"calendar", "goals_config"},
			})
			continue
		}

		if pending[week] == nil {
			pending[week] = make(map[config.Discipline]int)
		}
		pending[week][disc]++

		decisions = append(decisions, decision{
			date:       date,
			discipline: disc,
			tier:       tier,
			slotStart:  slotStart,
			duration:   duration,
			healthFlag: healthFlag,
			req: genai.Request{
				Date:          date,
				Discipline:    disc,
				Tier:          tier,
				Window:        primary,
				SlotStart:     slotStart,
				Goals:         p.Goals,
				Template:      tpl,
				Snapshot:      snap,
				RecentSummary: recent,
			},
		})
	}
	return decisions
}

// generate fills in workout content with bounded fan-out across days.
func (p *Planner) generate(ctx context.Context, decisions []decision) error {
	limit := p.Concurrency
	if limit <= 0 {
		limit = config.DefaultLMConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range decisions {
		dec := &decisions[i]
		g.Go(func() error {
			plan, meta, err := p.Gen.Generate(gctx, dec.req)
			if err != nil {
				return err
			}
			dec.plan, dec.meta = plan, meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("generate workout content: %w", err)
	}
	return nil
}

func (p *Planner) apply(ctx context.Context, dec *decision, res *Result) error {
	loc := p.Goals.Location
	end := dec.slotStart.Add(dec.duration)

	ev := calendar.Event{
		Summary:     calendar.SummaryPrefix + dec.plan.Title(dec.discipline),
		Description: strings.TrimRight(dec.plan.Description, "\n") + "\n\n" + calendar.Tag(dec.discipline),
		Start:       dec.slotStart,
		End:         end,
		Tags:        []string{calendar.Tag(dec.discipline)},
	}

	action := audit.Action{
		Agent:       AgentName,
		Type:        audit.TypePlan,
		Confidence:  planConfidence(dec),
		After:       planState(dec, ev),
		Reasoning:   planReasoning(dec),
		DataSources: []string{"goals_config", "calendar", "health_samples", "activities"},
		Degraded:    dec.meta.Degraded,
	}

	out, applied, err := p.View.UpsertSlot(ctx, ev, dec.date, dec.discipline, loc)
	if err == calendar.ErrMutationBudget {
		res.Buffered++
		action.Executed = false
		action.Reasoning += "; buffered: mutation budget exhausted"
		p.append(ctx, action)
		return nil
	}
	if err != nil {
		return fmt.Errorf("upsert plan for %s: %w", dec.date.Format("2006-01-02"), err)
	}

	if dec.meta.Degraded {
		res.Degraded++
	}
	if applied {
		res.Created++
	} else if !p.View.DryRun() {
		res.Updated++
	}

	action.Executed = applied
	action.After = planState(dec, out)
	p.append(ctx, action)
	return nil
}

func (p *Planner) append(ctx context.Context, a audit.Action) {
	a.Timestamp = p.Now().UTC()
	// Audit failures never fail a planning pass.
	_ = p.Audit.Append(ctx, a)
}

// chooseDiscipline picks the discipline with the largest remaining quota,
// breaking ties by config priority, and never repeats the previous day's
// discipline unless nothing else remains.
func chooseDiscipline(remaining map[config.Discipline]int, priority []config.Discipline, prev config.Discipline) (config.Discipline, bool) {
	best := func(exclude config.Discipline) (config.Discipline, bool) {
		var out config.Discipline
		bestRemaining := 0
		for _, d := range priority {
			r := remaining[d]
			if d == exclude || r <= 0 {
				continue
			}
			if r > bestRemaining {
				out, bestRemaining = d, r
			}
		}
		return out, bestRemaining > 0
	}
	if d, ok := best(prev); ok {
		return d, true
	}
	return best("")
}

func plannedEventOn(events []calendar.Event, date time.Time, loc *time.Location) (calendar.Event, bool) {
	for _, ev := range events {
		if !ev.PlannerOwned() {
			continue
		}
		if sameLocalDay(ev.Start, date, loc) {
			return ev, true
		}
	}
	return calendar.Event{}, false
}

// disciplineOn finds the discipline trained (or planned) on a given day.
func disciplineOn(events []calendar.Event, activities []health.Activity, date time.Time, loc *time.Location) config.Discipline {
	for _, act := range activities {
		if sameLocalDay(act.Timestamp, date, loc) {
			return act.Discipline
		}
	}
	for _, ev := range events {
		if !ev.PlannerOwned() || !sameLocalDay(ev.Start, date, loc) {
			continue
		}
		if d, ok := ev.Discipline(); ok {
			return d
		}
	}
	return ""
}

func busyIntervals(events []calendar.Event, date time.Time, loc *time.Location, disc config.Discipline) []slots.Interval {
	var out []slots.Interval
	dayEnd := date.AddDate(0, 0, 1)
	for _, ev := range events {
		if !ev.Start.Before(dayEnd) || !date.Before(ev.End) {
			continue
		}
		if ev.PlannerOwned() {
			if d, ok := ev.Discipline(); ok && d == disc && sameLocalDay(ev.Start, date, loc) {
				// The slot being re-upserted does not block itself.
				continue
			}
		}
		out = append(out, slots.Interval{Start: ev.Start, End: ev.End})
	}
	return out
}

func sameLocalDay(t, day time.Time, loc *time.Location) bool {
	lt := t.In(loc)
	return lt.Year() == day.Year() && lt.Month() == day.Month() && lt.Day() == day.Day()
}

func planConfidence(dec *decision) float64 {
	switch {
	case dec.meta.Degraded:
		return 0.5
	case dec.healthFlag:
		return 0.6
	default:
		return 0.85
	}
}

func planReasoning(dec *decision) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s at %s (%s tier)", dec.discipline, dec.date.Format("2006-01-02"), dec.slotStart.Format("15:04"), dec.tier)
	if dec.healthFlag {
		b.WriteString("; recovery unknown, treated as good")
	}
	if dec.meta.Degraded {
		b.WriteString("; degraded: template-only content, all models failed")
	} else if dec.meta.Model != "" {
		fmt.Fprintf(&b, "; model=%s", dec.meta.Model)
	}
	return b.String()
}

func planState(dec *decision, ev calendar.Event) map[string]any {
	return map[string]any{
		"event_id":   ev.ID,
		"date":       dec.date.Format("2006-01-02"),
		"discipline": dec.discipline,
		"tier":       dec.tier,
		"start":      dec.slotStart.Format(time.RFC3339),
		"end":        dec.slotStart.Add(dec.duration).Format(time.RFC3339),
		"model":      dec.meta.Model,
		"degraded":   dec.meta.Degraded,
	}
}

func eventState(ev calendar.Event) map[string]any {
	return map[string]any{
		"event_id": ev.ID,
		"summary":  ev.Summary,
		"start":    ev.Start.Format(time.RFC3339),
		"end":      ev.End.Format(time.RFC3339),
	}
}

// renderRecentSummary digests the trailing week of activity for the prompt.
func renderRecentSummary(activities []health.Activity, now time.Time) string {
	cutoff := now.AddDate(0, 0, -7)
	var b strings.Builder
	for _, act := range activities {
		if act.Timestamp.Before(cutoff) || act.Timestamp.After(now) {
			continue
		}
		fmt.Fprintf(&b, "- %s %s, %.0f min", act.Timestamp.Format("Mon 2006-01-02"), act.Discipline, act.DurationMin)
		if act.DistanceKM > 0 {
			fmt.Fprintf(&b, ", %.1f km", act.DistanceKM)
		}
		if act.TrainingLoad > 0 {
			fmt.Fprintf(&b, ", load %.0f", act.TrainingLoad)
		}
		b.WriteString("\n")
	}
	return b.String()
}
