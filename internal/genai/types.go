package genai

import (
	"time"

	"fitsched/internal/config"
	"fitsched/internal/health"
)

// Request carries everything the generator needs to produce one workout.
type Request struct {
	Date       time.Time
	Discipline config.Discipline
	Tier       config.IntensityTier
	Window     config.HourWindow
	SlotStart  time.Time
	Goals      *config.Goals
	Template   config.Template
	Snapshot   health.Snapshot
	// RecentSummary is a rendered digest of the last 7 days of activity.
	RecentSummary string
}

// Option is one of the two labeled workout alternatives.
type Option struct {
	Title string
	Body  string
}

// WorkoutPlan is the parsed generator output.
type WorkoutPlan struct {
	OptionA Option
	OptionB Option
	Backup  string
	// Description is the full sanitized text persisted to the calendar.
	Description string
	DurationMin int
}

// Title returns the calendar summary line for the plan.
func (p WorkoutPlan) Title(d config.Discipline) string {
	return string(d) + ": " + p.OptionA.Title
}

// Meta reports how the plan was obtained.
type Meta struct {
	Model    string
	Degraded bool
	// Attempts lists each model tried and the failure reason, if any.
	Attempts []Attempt
}

// Attempt records one model invocation in the fallback chain.
type Attempt struct {
	Model string
	Err   string
}
