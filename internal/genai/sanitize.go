package genai

import (
	"fmt"
	"regexp"
	"strings"
)

// maxDescriptionLen is the hard ceiling on persisted workout text.
const maxDescriptionLen = 8000

var (
	optionARe = regexp.MustCompile(`(?mi)^\s*(?:#+\s*|\*\*)?option\s*a\b`)
	optionBRe = regexp.MustCompile(`(?mi)^\s*(?:#+\s*|\*\*)?option\s*b\b`)
	backupRe  = regexp.MustCompile(`(?mi)^\s*(?:#+\s*|\*\*)?backup\b`)
	headingRe = regexp.MustCompile(`(?m)^#\s`)
)

// errUnparseable marks a model body that violates the parse contract; the
// caller moves on to the next model in the chain.
type errUnparseable struct {
	reason string
}

func (e errUnparseable) Error() string {
	return fmt.Sprintf("unparseable model output: %s", e.reason)
}

// sanitize normalizes a raw model body: strip enclosing Markdown fences,
// drop any preamble before the first Option A (or heading), enforce the
// length ceiling.
func sanitize(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	text = stripFences(text)

	start := -1
	if loc := optionARe.FindStringIndex(text); loc != nil {
		start = loc[0]
	} else if loc := headingRe.FindStringIndex(text); loc != nil {
		start = loc[0]
	}
	if start < 0 {
		return "", errUnparseable{reason: "no Option A section"}
	}
	text = strings.TrimSpace(text[start:])
	// A preamble before the opening fence leaves the closing fence dangling.
	if idx := strings.LastIndex(text, "\n```"); idx >= 0 && strings.TrimSpace(text[idx:]) == "```" {
		text = strings.TrimSpace(text[:idx])
	}

	if len(text) > maxDescriptionLen {
		text = text[:maxDescriptionLen] + "…"
	}
	return text, nil
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	if len(lines) < 2 {
		return text
	}
	// Drop the opening fence line and a matching closing fence.
	lines = lines[1:]
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(lines[i]), "```") {
			lines = lines[:i]
		}
		break
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// parsePlan enforces the parse contract: both options present, backup
// appended from the template when absent.
func parsePlan(raw string, req Request) (WorkoutPlan, error) {
	text, err := sanitize(raw)
	if err != nil {
		return WorkoutPlan{}, err
	}

	aLoc := optionARe.FindStringIndex(text)
	bLoc := optionBRe.FindStringIndex(text)
	if aLoc == nil {
		return WorkoutPlan{}, errUnparseable{reason: "missing Option A"}
	}
	if bLoc == nil || bLoc[0] <= aLoc[0] {
		return WorkoutPlan{}, errUnparseable{reason: "missing Option B"}
	}

	backupLoc := backupRe.FindStringIndex(text)

	aEnd := bLoc[0]
	bEnd := len(text)
	if backupLoc != nil && backupLoc[0] > bLoc[0] {
		bEnd = backupLoc[0]
	}

	optionA := parseOption(text[aLoc[0]:aEnd])
	optionB := parseOption(text[bLoc[0]:bEnd])
	if optionA.Body == "" && optionA.Title == "" {
		return WorkoutPlan{}, errUnparseable{reason: "empty Option A"}
	}

	backup := ""
	if backupLoc != nil && backupLoc[0] > bLoc[0] {
		backup = strings.TrimSpace(text[backupLoc[0]:])
	}
	if backup == "" {
		backup = templateBackupLine(req)
		text = strings.TrimSpace(text) + "\n\n" + backup
		if len(text) > maxDescriptionLen {
			text = text[:maxDescriptionLen] + "…"
		}
	}

	set := req.Template.Set(req.Tier)
	return WorkoutPlan{
		OptionA:     optionA,
		OptionB:     optionB,
		Backup:      backup,
		Description: text,
		DurationMin: set.DurationMin,
	}, nil
}

// parseOption splits "Option X: title" from the body lines beneath it.
func parseOption(section string) Option {
	section = strings.TrimSpace(section)
	lines := strings.SplitN(section, "\n", 2)

	title := lines[0]
	if idx := strings.Index(title, ":"); idx >= 0 {
		title = title[idx+1:]
	} else {
		// "Option A" with no colon: whole first line is the label.
		title = ""
	}
	title = strings.Trim(strings.TrimSpace(title), "*# ")

	body := ""
	if len(lines) > 1 {
		body = strings.TrimSpace(lines[1])
	}
	return Option{Title: title, Body: body}
}

func templateBackupLine(req Request) string {
	backupSet := req.Template.Set("backup")
	return "Backup (low energy): " + backupSet.Description
}
