// Package ui renders qastatus output for terminals: the run summary and the
// configuration report. Colors come from the Ayu palette and adapt to light
// and dark backgrounds; see terminal.go for when color is dropped.
package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/qaflow/qastatus/internal/reconcile"
)

// Ayu palette, light and dark variants.
var (
	colorPass   = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn   = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail   = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorMuted  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
	colorAccent = lipgloss.AdaptiveColor{Light: "#399ee6", Dark: "#59c2ff"}
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(colorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(colorFail)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	accentStyle = lipgloss.NewStyle().Foreground(colorAccent)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
)

// Status icons, used when the terminal can show them.
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
	IconInfo = "ℹ"
)

// TreeLast prefixes a detail line under an entry.
const TreeLast = "└─ "

const detailIndent = "  "

var separator = strings.Repeat("─", 42)

func RenderPass(s string) string { return passStyle.Render(s) }
func RenderWarn(s string) string { return warnStyle.Render(s) }
func RenderFail(s string) string { return failStyle.Render(s) }
func RenderMuted(s string) string { return mutedStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderHeader renders a section title in bold uppercase.
func RenderHeader(s string) string {
	return headerStyle.Render(strings.ToUpper(s))
}

// RenderSeparator renders a muted horizontal rule.
func RenderSeparator() string {
	return mutedStyle.Render(separator)
}

// outcomeKind groups outcomes for display.
type outcomeKind int

const (
	kindSkip outcomeKind = iota
	kindPass
	kindWarn
	kindFail
)

// kindOf classifies o. Warnings are skips that point at something an operator
// should look at: a bad reference, a missing board item, a race with a close
// or an unreadable comment list.
func kindOf(o reconcile.Outcome) outcomeKind {
	switch {
	case o.Succeeded():
		return kindPass
	case o.Failed():
		return kindFail
	}
	switch o {
	case reconcile.OutcomeResolveFailed, reconcile.OutcomeItemNotFound,
		reconcile.OutcomeClosedBeforeWrite, reconcile.OutcomeCommentCheckFailed:
		return kindWarn
	}
	return kindSkip
}

// marker returns the styled marker for kind: an icon when icons is set, an
// ASCII character otherwise.
func marker(kind outcomeKind, icons bool) string {
	icon, ascii, style := IconSkip, "-", mutedStyle
	switch kind {
	case kindPass:
		icon, ascii, style = IconPass, "+", passStyle
	case kindWarn:
		icon, ascii, style = IconWarn, "!", warnStyle
	case kindFail:
		icon, ascii, style = IconFail, "x", failStyle
	}
	if icons {
		return style.Render(icon)
	}
	return style.Render(ascii)
}

// renderOutcome colors an outcome name by its kind. Warnings stay muted in the
// label; the marker carries the warning color.
func renderOutcome(o reconcile.Outcome) string {
	switch kindOf(o) {
	case kindPass:
		return RenderPass(string(o))
	case kindFail:
		return RenderFail(string(o))
	default:
		return RenderMuted(string(o))
	}
}

// RenderCheck renders a one-line verdict: a pass or fail marker followed by msg.
func RenderCheck(ok bool, msg string, icons bool) string {
	if ok {
		return marker(kindPass, icons) + " " + RenderPass(msg)
	}
	return marker(kindFail, icons) + " " + RenderFail(msg)
}
