package genai

import (
	"fmt"
	"strings"
)

// renderPrompt builds the model prompt in a stable section order: role,
// goals, health snapshot, recent activity, template, output instructions.
func renderPrompt(req Request) string {
	var b strings.Builder

	b.WriteString("You are a workout planning assistant for an endurance athlete doing hybrid training.\n")
	b.WriteString("Plan exactly one workout and nothing else.\n\n")

	b.WriteString("## Weekly goals\n")
	for _, d := range req.Goals.Priority {
		if n := req.Goals.Target(d); n > 0 {
			fmt.Fprintf(&b, "- %s: %d sessions per week\n", d, n)
		}
	}
	fmt.Fprintf(&b, "- preferred time: %s (window %02d:00-%02d:00)\n\n",
		req.Goals.PreferredTime, req.Window.Start, req.Window.End)

	b.WriteString("## Today's health\n")
	snap := req.Snapshot
	if snap.Tier == "unknown" {
		b.WriteString("- no recent wearable data; assume moderate recovery\n")
	} else {
		fmt.Fprintf(&b, "- recovery tier: %s (score %.0f/100)\n", snap.Tier, snap.Blended)
		fmt.Fprintf(&b, "- sleep: %.1f h, quality %.0f/100\n", snap.SleepHours, snap.SleepQuality)
		fmt.Fprintf(&b, "- resting HR: %.0f (7-day baseline %.0f)\n", snap.RestingHR, snap.BaselineRestingHR)
		fmt.Fprintf(&b, "- stress: %.0f/100\n", snap.StressLevel)
	}
	fmt.Fprintf(&b, "- training load last 48h: %.0f\n\n", snap.TrainingLoad48h)

	b.WriteString("## Recent activity (7 days)\n")
	if strings.TrimSpace(req.RecentSummary) == "" {
		b.WriteString("none recorded\n")
	} else {
		b.WriteString(req.RecentSummary)
		if !strings.HasSuffix(req.RecentSummary, "\n") {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	set := req.Template.Set(req.Tier)
	fmt.Fprintf(&b, "## Assignment\nDate: %s (%s)\nDiscipline: %s\nIntensity: %s\nDuration: about %d minutes\n\n",
		req.Date.Format("2006-01-02"), req.Date.Weekday(), req.Discipline, req.Tier, set.DurationMin)
	fmt.Fprintf(&b, "Base template:\n- warmup: %s\n- main set: %s\n- cooldown: %s\n", req.Template.Warmup, set.Description, req.Template.Cooldown)
	if set.TargetZone != "" {
		fmt.Fprintf(&b, "- target: %s\n", set.TargetZone)
	}
	b.WriteString("\n")

	b.WriteString("## Required output\n")
	b.WriteString("Respond with plain text in exactly this structure:\n\n")
	b.WriteString("Option A: <short title>\n<warmup, main set, cooldown as bullet lines>\n\n")
	b.WriteString("Option B: <short title for a different variant at the same intensity>\n<bullet lines>\n\n")
	b.WriteString("Backup (low energy): <one-line fallback workout>\n\n")
	b.WriteString("Do not add commentary before Option A or after the backup line.\n")

	return b.String()
}
