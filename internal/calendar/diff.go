package calendar

import (
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// Change is one would-be mutation recorded by a dry-run View.
type Change struct {
	Op     string // "create", "update", "delete"
	Before *Event
	After  *Event
	Diff   string
}

// renderDiff produces a unified diff of the event text for dry-run preview.
func renderDiff(before, after *Event) string {
	a, b := "", ""
	aName, bName := "none", "none"
	if before != nil {
		a = before.Summary + "\n\n" + before.Description + "\n"
		aName = "calendar/" + before.ID
	}
	if after != nil {
		b = after.Summary + "\n\n" + after.Description + "\n"
		bName = "planned"
	}
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: aName,
		ToFile:   bName,
		Context:  2,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return fmt.Sprintf("diff unavailable: %v", err)
	}
	return text
}
