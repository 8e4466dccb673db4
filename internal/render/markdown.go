// File path: internal/render/markdown.go

// Package render turns a completed report into its output representations.
// Rendering only reads the report's public shape; it never recomputes
// findings or mutates the report.
package render

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/auditkit/sopcheck/internal/compliance"
)

var statusMarkers = map[compliance.Status]string{
	compliance.StatusCompliant:          "✅",
	compliance.StatusPartiallyCompliant: "🟡",
	compliance.StatusNonCompliant:       "❌",
	compliance.StatusNotApplicable:      "➖",
}

// Markdown renders the report as a human-readable compliance document:
// summary table first, then sections in SOP order with their findings, then
// accumulated warnings.
func Markdown(r compliance.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Compliance Report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n", r.RunID)
	fmt.Fprintf(&b, "- Mode: %s\n", r.Mode)
	fmt.Fprintf(&b, "- Generated: %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))

	b.WriteString("## Summary\n\n")
	b.WriteString("| Status | Findings |\n|---|---|\n")
	for _, status := range compliance.Statuses() {
		fmt.Fprintf(&b, "| %s %s | %d |\n", statusMarkers[status], status, r.Summary.Count(status))
	}
	b.WriteString("\n")

	for _, sr := range r.Sections {
		heading := sr.Section.Heading
		if heading == "" {
			heading = sr.Section.ID
		}
		fmt.Fprintf(&b, "## %d. %s\n\n", sr.Section.Order+1, heading)
		for _, f := range sr.Findings {
			writeFinding(&b, sr.Section, f)
		}
	}

	if len(r.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "- **%s** `%s`: %s\n", w.Scope, w.RefID, w.Message)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeFinding(b *strings.Builder, section compliance.SOPSection, f compliance.Finding) {
	fmt.Fprintf(b, "### %s %s", statusMarkers[f.Status], f.Status)
	if f.ClauseID != "" {
		fmt.Fprintf(b, " — clause `%s` (similarity %.2f)", shortID(f.ClauseID), f.SimilarityScore)
	}
	b.WriteString("\n\n")
	fmt.Fprintf(b, "%s\n\n", f.Rationale)
	if f.SuggestedAdjustment != "" {
		b.WriteString("**Suggested adjustment:**\n\n")
		fmt.Fprintf(b, "%s\n\n", f.SuggestedAdjustment)
		if diff := adjustmentDiff(section.Text, f.SuggestedAdjustment); diff != "" {
			b.WriteString("<details><summary>Change against current section</summary>\n\n")
			fmt.Fprintf(b, "%s\n\n</details>\n\n", diff)
		}
	}
}

// adjustmentDiff renders a word-level diff between the current section text
// and the suggested replacement, deletions struck through and insertions
// bolded. An adjustment with no overlap with the original produces a diff
// that is all churn, so those render as nothing.
func adjustmentDiff(current, suggested string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(current, suggested, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	changed := 0
	total := 0
	var b strings.Builder
	for _, d := range diffs {
		total += len(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			changed += len(d.Text)
			fmt.Fprintf(&b, "~~%s~~", strings.TrimSpace(d.Text))
			b.WriteString(" ")
		case diffmatchpatch.DiffInsert:
			changed += len(d.Text)
			fmt.Fprintf(&b, "**%s**", strings.TrimSpace(d.Text))
			b.WriteString(" ")
		case diffmatchpatch.DiffEqual:
			b.WriteString(d.Text)
		}
	}
	if total == 0 || float64(changed)/float64(total) > 0.9 {
		return ""
	}
	return strings.TrimSpace(b.String())
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
