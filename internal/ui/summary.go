package ui

import (
	"fmt"
	"strings"

	"github.com/qaflow/qastatus/internal/reconcile"
)

// maxReasonLen bounds the detail line printed under a pair.
const maxReasonLen = 100

// RenderSummary renders a run result for the terminal: one line per pair
// followed by the totals. With icons false, ASCII markers replace the icons.
func RenderSummary(result *reconcile.Result, icons bool) string {
	var b strings.Builder

	title := "QA status"
	if result.DryRun {
		title += " (dry run)"
	}
	b.WriteString(RenderHeader(title))
	b.WriteString("  ")
	b.WriteString(RenderMuted(fmt.Sprintf("%s @ %s", result.Repository, result.Branch)))
	if result.Project != "" {
		b.WriteString(RenderMuted(" → "))
		b.WriteString(RenderAccent(result.Project))
	}
	b.WriteString("\n")
	b.WriteString(RenderSeparator())
	b.WriteString("\n")

	if len(result.Pairs) == 0 {
		info := accentStyle.Render("i")
		if icons {
			info = accentStyle.Render(IconInfo)
		}
		fmt.Fprintf(&b, "%s No issue references processed (%d merged pull requests)\n",
			info, result.Stats.PullRequests)
	}

	for _, p := range result.Pairs {
		target := p.Issue
		if target == "" {
			target = p.Reference
		}
		fmt.Fprintf(&b, "%s PR #%d %s %s  %s\n",
			marker(kindOf(p.Outcome), icons),
			p.PR,
			RenderMuted("→"),
			target,
			renderOutcome(p.Outcome))
		if p.Reason != "" {
			fmt.Fprintf(&b, "%s%s\n", detailIndent, RenderMuted(TreeLast+truncate(p.Reason, maxReasonLen)))
		}
	}

	for _, w := range result.Warnings {
		fmt.Fprintf(&b, "%s %s\n", marker(kindWarn, icons), RenderWarn(truncate(w, maxReasonLen)))
	}

	s := result.Stats
	b.WriteString(RenderSeparator())
	b.WriteString("\n")
	failed := RenderMuted("0")
	if s.Failed > 0 {
		failed = RenderFail(fmt.Sprint(s.Failed))
	}
	fmt.Fprintf(&b, "%s transitioned  %s commented  %s skipped  %s failed  %s\n",
		RenderPass(fmt.Sprint(s.Transitioned)),
		RenderPass(fmt.Sprint(s.Commented)),
		RenderMuted(fmt.Sprint(s.Skipped)),
		failed,
		RenderMuted(fmt.Sprintf("(%d references in %d pull requests)", s.Pairs, s.PullRequests)))
	return b.String()
}

// truncate collapses whitespace and shortens s to at most max runes, marking
// the cut with "...".
func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
