// Package report renders a reconciliation result as JSON, YAML or a Markdown
// job summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/qaflow/qastatus/internal/reconcile"
)

// Format is a machine-readable report encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatForPath picks the encoding from a file extension; anything other than
// .yaml or .yml is JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Write encodes result to w.
func Write(w io.Writer, result *reconcile.Result, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

// WriteFile writes result to path, or to stdout when path is "-". The format
// follows the file extension.
func WriteFile(path string, result *reconcile.Result) error {
	if path == "-" {
		return Write(os.Stdout, result, FormatJSON)
	}
	f, err := os.Create(path) // #nosec G304 - path comes from the --report flag
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := Write(f, result, FormatForPath(path)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Markdown renders result as a job summary: headline counts followed by one
// table row per processed pair.
func Markdown(result *reconcile.Result) string {
	var b strings.Builder

	title := "QA status reconciliation"
	if result.DryRun {
		title += " (dry run)"
	}
	fmt.Fprintf(&b, "### %s\n\n", title)
	fmt.Fprintf(&b, "Repository `%s`, branch `%s`", result.Repository, result.Branch)
	if result.Project != "" {
		fmt.Fprintf(&b, ", project **%s**", escapeCell(result.Project))
	}
	b.WriteString("\n\n")

	s := result.Stats
	fmt.Fprintf(&b, "| Pull requests | References | Transitioned | Commented | Skipped | Failed |\n")
	fmt.Fprintf(&b, "|---:|---:|---:|---:|---:|---:|\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d | %d |\n\n",
		s.PullRequests, s.Pairs, s.Transitioned, s.Commented, s.Skipped, s.Failed)

	if len(result.Pairs) == 0 {
		b.WriteString("No issue references were processed.\n")
	} else {
		writePairs(&b, result.Pairs)
	}
	for _, w := range result.Warnings {
		fmt.Fprintf(&b, "\n> [!WARNING]\n> %s\n", strings.ReplaceAll(w, "\n", " "))
	}
	return b.String()
}

func writePairs(b *strings.Builder, pairs []reconcile.PairResult) {
	b.WriteString("| PR | Reference | Issue | Outcome | Details |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, p := range pairs {
		pr := fmt.Sprintf("#%d", p.PR)
		if p.PRURL != "" {
			pr = fmt.Sprintf("[#%d](%s)", p.PR, p.PRURL)
		}
		fmt.Fprintf(b, "| %s | `%s` | %s | %s | %s |\n",
			pr, p.Reference, escapeCell(p.Issue), p.Outcome, escapeCell(p.Reason))
	}
}

// AppendStepSummary appends the Markdown summary to the file named by
// $GITHUB_STEP_SUMMARY. It is a no-op outside GitHub Actions.
func AppendStepSummary(result *reconcile.Result) error {
	path := os.Getenv("GITHUB_STEP_SUMMARY")
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) // #nosec G302 G304 - runner-provided file
	if err != nil {
		return fmt.Errorf("failed to open step summary: %w", err)
	}
	if _, err := io.WriteString(f, Markdown(result)); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write step summary: %w", err)
	}
	return f.Close()
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}
