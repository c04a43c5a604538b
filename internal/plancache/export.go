package plancache

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ticketops/tickctl/internal/api"
)

// Markdown renders a comparison as a human-readable document, suitable
// for saving next to the plan or pasting into a review.
func Markdown(cmp *api.PlanComparison) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Plan Comparison: v%d to v%d\n\n", cmp.FromVersion, cmp.ToVersion)

	if cmp.Summary != "" {
		b.WriteString("## Summary\n\n")
		b.WriteString(cmp.Summary)
		b.WriteString("\n\n")
	}

	writeSection(&b, "Added", cmp.Changes.Added)
	writeSection(&b, "Modified", cmp.Changes.Modified)
	writeSection(&b, "Removed", cmp.Changes.Removed)

	if len(cmp.ChangedSections) > 0 {
		writeSection(&b, "Changed Sections", cmp.ChangedSections)
	}

	if cmp.UnifiedDiff != "" {
		b.WriteString("## Diff\n\n```diff\n")
		b.WriteString(cmp.UnifiedDiff)
		if !strings.HasSuffix(cmp.UnifiedDiff, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("```\n")
	}

	return b.String()
}

func writeSection(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

// JSON renders a comparison as indented JSON.
func JSON(cmp *api.PlanComparison) ([]byte, error) {
	return json.MarshalIndent(cmp, "", "  ")
}
