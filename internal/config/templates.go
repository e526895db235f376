package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetSpec is one main-set variant of a workout template.
type SetSpec struct {
	Description string
	DurationMin int
	TargetZone  string
}

// Template is the per-discipline structured workout recipe.
type Template struct {
	Discipline Discipline
	Warmup     string
	Cooldown   string
	Sets       map[IntensityTier]SetSpec
}

// Set returns the main-set variant for a tier, falling back to normal.
func (t Template) Set(tier IntensityTier) SetSpec {
	if s, ok := t.Sets[tier]; ok {
		return s
	}
	return t.Sets[TierNormal]
}

// Templates holds the loaded recipes keyed by discipline.
type Templates struct {
	byDiscipline map[Discipline]Template
	Source       string
}

// For returns the template for a discipline.
func (ts *Templates) For(d Discipline) (Template, error) {
	if ts == nil || ts.byDiscipline == nil {
		return Template{}, fmt.Errorf("no templates loaded")
	}
	t, ok := ts.byDiscipline[d]
	if !ok {
		return Template{}, fmt.Errorf("no template for discipline %s", d)
	}
	return t, nil
}

type rawTemplates struct {
	Disciplines map[string]rawTemplate `yaml:"disciplines"`
}

type rawTemplate struct {
	Warmup   string            `yaml:"warmup"`
	Cooldown string            `yaml:"cooldown"`
	MainSets map[string]rawSet `yaml:"main_sets"`
}

type rawSet struct {
	Description     string `yaml:"description"`
	DurationMinutes *int   `yaml:"duration_minutes"`
	TargetZone      string `yaml:"target_zone"`
}

// ParseAndValidateTemplates unmarshals and validates a YAML templates document.
func ParseAndValidateTemplates(data []byte, source string) (*Templates, error) {
	var raw rawTemplates
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, ValidationErrors{{
			File:    source,
			Field:   "yaml",
			Message: err.Error(),
		}}
	}

	var errs ValidationErrors
	addErr := func(field, msg string) {
		errs = append(errs, ValidationError{File: source, Field: field, Message: msg})
	}

	if len(raw.Disciplines) == 0 {
		addErr("disciplines", "section is required")
		return nil, errs
	}

	out := &Templates{
		byDiscipline: make(map[Discipline]Template, len(raw.Disciplines)),
		Source:       source,
	}
	for name, rt := range raw.Disciplines {
		d := Discipline(strings.TrimSpace(strings.ToLower(name)))
		switch d {
		case DisciplineRun, DisciplineBike, DisciplineSwim, DisciplineStrength, DisciplineOther:
		default:
			addErr(fmt.Sprintf("disciplines.%s", name), "unknown discipline")
			continue
		}
		tpl := Template{
			Discipline: d,
			Warmup:     strings.TrimSpace(rt.Warmup),
			Cooldown:   strings.TrimSpace(rt.Cooldown),
			Sets:       make(map[IntensityTier]SetSpec, len(rt.MainSets)),
		}
		for tierName, rs := range rt.MainSets {
			tier := IntensityTier(strings.TrimSpace(strings.ToLower(tierName)))
			switch tier {
			case TierNormal, TierReduced, TierBackup:
			default:
				addErr(fmt.Sprintf("disciplines.%s.main_sets.%s", name, tierName), "tier must be normal, reduced, or backup")
				continue
			}
			field := fmt.Sprintf("disciplines.%s.main_sets.%s", name, tierName)
			if strings.TrimSpace(rs.Description) == "" {
				addErr(field+".description", "value is required")
				continue
			}
			if rs.DurationMinutes == nil || *rs.DurationMinutes <= 0 {
				addErr(field+".duration_minutes", "must be a positive minute count")
				continue
			}
			tpl.Sets[tier] = SetSpec{
				Description: strings.TrimSpace(rs.Description),
				DurationMin: *rs.DurationMinutes,
				TargetZone:  strings.TrimSpace(rs.TargetZone),
			}
		}
		if _, ok := tpl.Sets[TierNormal]; !ok {
			addErr(fmt.Sprintf("disciplines.%s.main_sets", name), "a normal variant is required")
			continue
		}
		out.byDiscipline[d] = tpl
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return out, nil
}

// DefaultTemplates returns the built-in recipes used when no templates file exists.
func DefaultTemplates() *Templates {
	mk := func(d Discipline, warmup, cooldown string, normal, reduced, backup SetSpec) Template {
		return Template{
			Discipline: d,
			Warmup:     warmup,
			Cooldown:   cooldown,
			Sets: map[IntensityTier]SetSpec{
				TierNormal:  normal,
				TierReduced: reduced,
				TierBackup:  backup,
			},
		}
	}
	ts := &Templates{
		byDiscipline: map[Discipline]Template{},
		Source:       "builtin",
	}
	ts.byDiscipline[DisciplineRun] = mk(DisciplineRun,
		"10 min easy jog with 4x20s strides",
		"5 min walk, light leg stretching",
		SetSpec{Description: "40 min steady run, conversational pace", DurationMin: 55, TargetZone: "Zone 2 (130-145 bpm)"},
		SetSpec{Description: "25 min easy run, walk breaks as needed", DurationMin: 40, TargetZone: "Zone 1-2 (<135 bpm)"},
		SetSpec{Description: "20 min brisk walk or walk-jog", DurationMin: 30, TargetZone: "Zone 1"},
	)
	ts.byDiscipline[DisciplineBike] = mk(DisciplineBike,
		"10 min easy spin, high cadence",
		"5 min easy spin",
		SetSpec{Description: "45 min endurance ride with 3x5 min tempo", DurationMin: 60, TargetZone: "Zone 2-3"},
		SetSpec{Description: "30 min easy spin, flat route", DurationMin: 45, TargetZone: "Zone 1-2"},
		SetSpec{Description: "20 min recovery spin", DurationMin: 30, TargetZone: "Zone 1"},
	)
	ts.byDiscipline[DisciplineSwim] = mk(DisciplineSwim,
		"200m easy freestyle, 4x50m drills",
		"100m easy backstroke",
		SetSpec{Description: "Main set 10x100m freestyle on 20s rest", DurationMin: 50, TargetZone: "moderate effort"},
		SetSpec{Description: "Main set 6x100m freestyle on 30s rest", DurationMin: 40, TargetZone: "easy effort"},
		SetSpec{Description: "600m continuous easy swim, any stroke", DurationMin: 30, TargetZone: "easy effort"},
	)
	ts.byDiscipline[DisciplineStrength] = mk(DisciplineStrength,
		"5 min row or bike, dynamic mobility",
		"5 min stretching, focus on worked muscles",
		SetSpec{Description: "Squat 4x6, bench 4x6, row 4x8, core circuit", DurationMin: 60, TargetZone: ""},
		SetSpec{Description: "Squat 3x8 light, push-ups 3x12, row 3x10", DurationMin: 45, TargetZone: ""},
		SetSpec{Description: "Bodyweight circuit: squats, push-ups, planks, 3 rounds", DurationMin: 30, TargetZone: ""},
	)
	return ts
}
