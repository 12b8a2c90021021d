package gateway

import (
	"fmt"
	"strings"

	"coordinator/pkg/forge"
)

// RenderSummary renders a markdown summary of open work. Split out from the
// gateway so it can be tested without a live client.
func RenderSummary(repoPath string, issues []forge.Issue, prs []forge.PullRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Open work in %s\n\n", repoPath)

	fmt.Fprintf(&b, "## Issues (%d)\n\n", len(issues))
	if len(issues) == 0 {
		b.WriteString("_none_\n")
	} else {
		b.WriteString("| # | Title | Labels | Milestone |\n")
		b.WriteString("|---|-------|--------|----------|\n")
		for i := range issues {
			issue := &issues[i]
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n",
				issue.Number, escapeCell(issue.Title),
				strings.Join(issue.Labels, ", "), issue.Milestone)
		}
	}

	fmt.Fprintf(&b, "\n## Pull requests (%d)\n\n", len(prs))
	if len(prs) == 0 {
		b.WriteString("_none_\n")
	} else {
		b.WriteString("| # | Title | Head | Base |\n")
		b.WriteString("|---|-------|------|------|\n")
		for i := range prs {
			pr := &prs[i]
			fmt.Fprintf(&b, "| %d | %s | %s | %s |\n",
				pr.Number, escapeCell(pr.Title), pr.HeadBranch, pr.BaseBranch)
		}
	}

	return b.String()
}

// escapeCell keeps pipes in titles from breaking the table.
func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
