package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type rawGoals struct {
	WeeklyStructure   *rawWeekly     `yaml:"weekly_structure"`
	Preferences       *rawPrefs      `yaml:"preferences"`
	ProtectedKeywords []string       `yaml:"protected_keywords"`
	Safety            *rawSafety     `yaml:"safety"`
	Planner           *rawPlanner    `yaml:"planner"`
	LLM               *rawLLM        `yaml:"llm"`
}

type rawWeekly struct {
	SwimSessions     *int `yaml:"swim_sessions"`
	BikeSessions     *int `yaml:"bike_sessions"`
	RunSessions      *int `yaml:"run_sessions"`
	StrengthSessions *int `yaml:"strength_sessions"`
}

type rawPrefs struct {
	PreferredWorkoutTime string `yaml:"preferred_workout_time"`
	MorningHours         []int  `yaml:"morning_hours"`
	EveningHours         []int  `yaml:"evening_hours"`
	UserTimezone         string `yaml:"user_timezone"`
}

type rawSafety struct {
	MaxMutationsPerCycle *int `yaml:"max_mutations_per_cycle"`
	MinNoticeHours       *int `yaml:"min_notice_hours"`
}

type rawPlanner struct {
	HorizonDays          *int     `yaml:"horizon_days"`
	DisciplinePriority   []string `yaml:"discipline_priority"`
	TrainingLoadCeiling  *float64 `yaml:"training_load_ceiling"`
	CycleDeadlineMinutes *int     `yaml:"cycle_deadline_minutes"`
}

type rawLLM struct {
	Concurrency *int       `yaml:"concurrency"`
	Models      []rawModel `yaml:"models"`
}

type rawModel struct {
	Name           string `yaml:"name"`
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds *int   `yaml:"timeout_seconds"`
}

// ValidationError captures a single field-specific validation issue.
type ValidationError struct {
	File    string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.File, e.Field, e.Message)
}

// ValidationErrors aggregates multiple validation problems.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

// ParseAndValidateGoals unmarshals and validates a YAML goals document.
// Unknown keys are ignored; missing required keys fail with field errors.
func ParseAndValidateGoals(data []byte, source string) (*Goals, error) {
	var raw rawGoals
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ValidationErrors{{
			File:    source,
			Field:   "yaml",
			Message: err.Error(),
		}}
	}
	return validateRawGoals(raw, source)
}

func validateRawGoals(raw rawGoals, source string) (*Goals, error) {
	var errs ValidationErrors

	addErr := func(field, msg string) {
		errs = append(errs, ValidationError{File: source, Field: field, Message: msg})
	}

	goals := &Goals{
		Weekly:               make(map[Discipline]int, 4),
		MaxMutationsPerCycle: DefaultMaxMutationsPerCycle,
		MinNotice:            DefaultMinNoticeHours * time.Hour,
		HorizonDays:          DefaultHorizonDays,
		CycleDeadline:        DefaultCycleDeadline,
		TrainingLoadCeiling:  DefaultTrainingLoadCeiling,
		LMConcurrency:        DefaultLMConcurrency,
		Source:               source,
	}

	if raw.WeeklyStructure == nil {
		addErr("weekly_structure", "section is required")
	} else {
		sessions := []struct {
			field string
			d     Discipline
			v     *int
		}{
			{"weekly_structure.swim_sessions", DisciplineSwim, raw.WeeklyStructure.SwimSessions},
			{"weekly_structure.bike_sessions", DisciplineBike, raw.WeeklyStructure.BikeSessions},
			{"weekly_structure.run_sessions", DisciplineRun, raw.WeeklyStructure.RunSessions},
			{"weekly_structure.strength_sessions", DisciplineStrength, raw.WeeklyStructure.StrengthSessions},
		}
		for _, s := range sessions {
			if s.v == nil {
				addErr(s.field, "value is required")
				continue
			}
			if *s.v < 0 {
				addErr(s.field, fmt.Sprintf("must be non-negative, got %d", *s.v))
				continue
			}
			goals.Weekly[s.d] = *s.v
		}
	}

	if raw.Preferences == nil {
		addErr("preferences", "section is required")
	} else {
		policy := TimePolicy(strings.TrimSpace(raw.Preferences.PreferredWorkoutTime))
		switch policy {
		case PolicyMorning, PolicyEvening, PolicyFlexible:
			goals.PreferredTime = policy
		case "":
			addErr("preferences.preferred_workout_time", "value is required")
		default:
			addErr("preferences.preferred_workout_time",
				fmt.Sprintf("must be one of morning, evening, flexible; got %q", policy))
		}

		goals.Morning = parseWindow(raw.Preferences.MorningHours, "preferences.morning_hours", addErr)
		goals.Evening = parseWindow(raw.Preferences.EveningHours, "preferences.evening_hours", addErr)

		tz := strings.TrimSpace(raw.Preferences.UserTimezone)
		if tz == "" {
			addErr("preferences.user_timezone", "value is required")
		} else if loc, err := time.LoadLocation(tz); err != nil {
			addErr("preferences.user_timezone", fmt.Sprintf("unknown IANA zone %q", tz))
		} else {
			goals.TimezoneName = tz
			goals.Location = loc
		}
	}

	for _, kw := range raw.ProtectedKeywords {
		kw = strings.TrimSpace(kw)
		if kw != "" {
			goals.ProtectedKeywords = append(goals.ProtectedKeywords, kw)
		}
	}

	if raw.Safety != nil {
		if v := raw.Safety.MaxMutationsPerCycle; v != nil {
			if *v < 0 {
				addErr("safety.max_mutations_per_cycle", fmt.Sprintf("must be non-negative, got %d", *v))
			} else {
				goals.MaxMutationsPerCycle = *v
			}
		}
		if v := raw.Safety.MinNoticeHours; v != nil {
			if *v < 0 {
				addErr("safety.min_notice_hours", fmt.Sprintf("must be non-negative, got %d", *v))
			} else {
				goals.MinNotice = time.Duration(*v) * time.Hour
			}
		}
	}

	if raw.Planner != nil {
		if v := raw.Planner.HorizonDays; v != nil {
			if *v < 1 {
				addErr("planner.horizon_days", fmt.Sprintf("must be at least 1, got %d", *v))
			} else {
				goals.HorizonDays = *v
			}
		}
		if v := raw.Planner.TrainingLoadCeiling; v != nil {
			if *v <= 0 {
				addErr("planner.training_load_ceiling", "must be positive")
			} else {
				goals.TrainingLoadCeiling = *v
			}
		}
		if v := raw.Planner.CycleDeadlineMinutes; v != nil {
			if *v < 1 {
				addErr("planner.cycle_deadline_minutes", fmt.Sprintf("must be at least 1, got %d", *v))
			} else {
				goals.CycleDeadline = time.Duration(*v) * time.Minute
			}
		}
		goals.Priority = parsePriority(raw.Planner.DisciplinePriority, addErr)
	}
	if len(goals.Priority) == 0 {
		goals.Priority = append([]Discipline(nil), Disciplines...)
	}

	if raw.LLM != nil {
		if v := raw.LLM.Concurrency; v != nil {
			if *v < 1 {
				addErr("llm.concurrency", fmt.Sprintf("must be at least 1, got %d", *v))
			} else {
				goals.LMConcurrency = *v
			}
		}
		for idx, m := range raw.LLM.Models {
			ref, ok := parseModel(m, fmt.Sprintf("llm.models[%d]", idx), addErr)
			if ok {
				goals.Models = append(goals.Models, ref)
			}
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return goals, nil
}

func parseWindow(hours []int, field string, addErr func(field, msg string)) HourWindow {
	if len(hours) != 2 {
		addErr(field, fmt.Sprintf("must be a [start, end) pair of hours, got %v", hours))
		return HourWindow{}
	}
	w := HourWindow{Start: hours[0], End: hours[1]}
	if w.Start < 0 || w.End > 24 || w.Start >= w.End {
		addErr(field, fmt.Sprintf("requires 0 <= start < end <= 24, got [%d, %d)", w.Start, w.End))
		return HourWindow{}
	}
	return w
}

func parsePriority(names []string, addErr func(field, msg string)) []Discipline {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[Discipline]struct{}, len(names))
	out := make([]Discipline, 0, len(names))
	for idx, name := range names {
		d := Discipline(strings.TrimSpace(strings.ToLower(name)))
		switch d {
		case DisciplineRun, DisciplineBike, DisciplineSwim, DisciplineStrength:
		default:
			addErr(fmt.Sprintf("planner.discipline_priority[%d]", idx), fmt.Sprintf("unknown discipline %q", name))
			continue
		}
		if _, dup := seen[d]; dup {
			addErr(fmt.Sprintf("planner.discipline_priority[%d]", idx), fmt.Sprintf("discipline %q listed twice", name))
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	// Disciplines missing from an explicit priority list rank after it.
	for _, d := range Disciplines {
		if _, ok := seen[d]; !ok {
			out = append(out, d)
		}
	}
	return out
}

func parseModel(m rawModel, field string, addErr func(field, msg string)) (ModelRef, bool) {
	name := strings.TrimSpace(m.Name)
	if name == "" {
		addErr(field+".name", "value is required")
		return ModelRef{}, false
	}
	provider := strings.TrimSpace(strings.ToLower(m.Provider))
	if provider == "" {
		provider = "openai"
	}
	ref := ModelRef{
		Name:     name,
		Provider: provider,
		BaseURL:  strings.TrimSpace(m.BaseURL),
	}
	switch {
	case m.TimeoutSeconds != nil && *m.TimeoutSeconds > 0:
		ref.Timeout = time.Duration(*m.TimeoutSeconds) * time.Second
	case m.TimeoutSeconds != nil:
		addErr(field+".timeout_seconds", "must be positive")
		return ModelRef{}, false
	case provider == "ollama":
		ref.Timeout = DefaultLocalModelTimeout
	default:
		ref.Timeout = DefaultCloudModelTimeout
	}
	return ref, true
}
