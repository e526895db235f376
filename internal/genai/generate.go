package genai

import (
	"context"
	"fmt"
	"strings"

	"fitsched/internal/config"
)

// Generator produces workout content from a PlanRequest, walking the
// configured model chain and degrading to template-only output when every
// model fails.
type Generator struct {
	Client LMClient
	Models []config.ModelRef
}

// Generate renders the prompt, tries each model in order, and returns the
// parsed plan. Meta records the model used, per-model failures, and whether
// the template fallback was taken. Generate only returns an error when the
// context is cancelled; all model failures degrade instead.
func (g *Generator) Generate(ctx context.Context, req Request) (WorkoutPlan, Meta, error) {
	prompt := renderPrompt(req)
	meta := Meta{}

	for _, model := range g.Models {
		if err := ctx.Err(); err != nil {
			return WorkoutPlan{}, meta, err
		}
		raw, err := g.Client.Generate(ctx, model, prompt)
		if err != nil {
			// The cycle deadline aborts outright; a per-model timeout only
			// advances the chain.
			if ctx.Err() != nil {
				return WorkoutPlan{}, meta, ctx.Err()
			}
			meta.Attempts = append(meta.Attempts, Attempt{Model: model.Name, Err: err.Error()})
			continue
		}
		plan, err := parsePlan(raw, req)
		if err != nil {
			meta.Attempts = append(meta.Attempts, Attempt{Model: model.Name, Err: err.Error()})
			continue
		}
		meta.Model = model.Name
		return plan, meta, nil
	}

	// Every model failed (or none configured): deterministic template-only
	// fallback so a plan is always produced.
	meta.Degraded = true
	return TemplatePlan(req), meta, nil
}

// TemplatePlan renders the discipline template verbatim into the required
// two-option shape, with the variant one tier lower as Option B (backup
// when the tier is already backup).
func TemplatePlan(req Request) WorkoutPlan {
	set := req.Template.Set(req.Tier)
	altTier := req.Tier.Downshift()
	altSet := req.Template.Set(altTier)
	backup := templateBackupLine(req)

	var b strings.Builder
	fmt.Fprintf(&b, "Option A: %s %s\n", req.Discipline, req.Tier)
	fmt.Fprintf(&b, "- warmup: %s\n", req.Template.Warmup)
	fmt.Fprintf(&b, "- main set: %s\n", set.Description)
	if set.TargetZone != "" {
		fmt.Fprintf(&b, "- target: %s\n", set.TargetZone)
	}
	fmt.Fprintf(&b, "- cooldown: %s\n", req.Template.Cooldown)
	b.WriteString("\n")
	fmt.Fprintf(&b, "Option B: %s %s\n", req.Discipline, altTier)
	fmt.Fprintf(&b, "- warmup: %s\n", req.Template.Warmup)
	fmt.Fprintf(&b, "- main set: %s\n", altSet.Description)
	if altSet.TargetZone != "" {
		fmt.Fprintf(&b, "- target: %s\n", altSet.TargetZone)
	}
	fmt.Fprintf(&b, "- cooldown: %s\n", req.Template.Cooldown)
	b.WriteString("\n")
	b.WriteString(backup)
	b.WriteString("\n")

	return WorkoutPlan{
		OptionA:     Option{Title: fmt.Sprintf("%s %s", req.Discipline, req.Tier), Body: set.Description},
		OptionB:     Option{Title: fmt.Sprintf("%s %s", req.Discipline, altTier), Body: altSet.Description},
		Backup:      backup,
		Description: b.String(),
		DurationMin: set.DurationMin,
	}
}
