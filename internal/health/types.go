package health

import (
	"encoding/json"
	"strings"
	"time"

	"fitsched/internal/config"
)

// Sample is a timestamped measurement from one wearable source.
// Samples are created by ingestion and never mutated.
type Sample struct {
	Timestamp    time.Time
	Source       string
	SleepHours   float64
	SleepQuality float64
	RestingHR    float64
	HRVScore     float64
	StressLevel  float64
	Recovery     float64
	Steps        int
	Raw          json.RawMessage
}

// Activity is a completed workout as reported by the wearable.
type Activity struct {
	Timestamp    time.Time
	Discipline   config.Discipline
	DurationMin  float64
	DistanceKM   float64
	AvgHR        float64
	TrainingLoad float64
	Exertion     int
	Calories     int
	Raw          json.RawMessage
}

// End returns the activity's finish time.
func (a Activity) End() time.Time {
	return a.Timestamp.Add(time.Duration(a.DurationMin * float64(time.Minute)))
}

// activityTypeMap folds wearable activity type keys onto the five disciplines.
var activityTypeMap = map[string]config.Discipline{
	"running":             config.DisciplineRun,
	"treadmill_running":   config.DisciplineRun,
	"trail_running":       config.DisciplineRun,
	"cycling":             config.DisciplineBike,
	"indoor_cycling":      config.DisciplineBike,
	"virtual_ride":        config.DisciplineBike,
	"swimming":            config.DisciplineSwim,
	"lap_swimming":        config.DisciplineSwim,
	"open_water_swimming": config.DisciplineSwim,
	"strength_training":   config.DisciplineStrength,
	"indoor_cardio":       config.DisciplineStrength,
}

// NormalizeActivityType maps a wearable activity type key to a discipline.
// Unrecognized keys fold onto substring matches, then to other.
func NormalizeActivityType(key string) config.Discipline {
	key = strings.ToLower(strings.TrimSpace(key))
	if d, ok := activityTypeMap[key]; ok {
		return d
	}
	switch {
	case strings.Contains(key, "run"):
		return config.DisciplineRun
	case strings.Contains(key, "cycl"), strings.Contains(key, "bike"):
		return config.DisciplineBike
	case strings.Contains(key, "swim"):
		return config.DisciplineSwim
	case strings.Contains(key, "strength"), strings.Contains(key, "weight"), strings.Contains(key, "lift"):
		return config.DisciplineStrength
	default:
		return config.DisciplineOther
	}
}
