package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/qaflow/qastatus/internal/reconcile"
)

func sampleResult() *reconcile.Result {
	return &reconcile.Result{
		Repository: "acme/app",
		Branch:     "dev",
		Project:    "Sprint | Board",
		StartedAt:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 5, 1, 10, 0, 3, 0, time.UTC),
		Stats:      reconcile.Stats{PullRequests: 1, Pairs: 2, Transitioned: 1, Skipped: 1},
		Pairs: []reconcile.PairResult{
			{PR: 42, PRURL: "https://github.com/acme/app/pull/42", Reference: "#10", Issue: "acme/app#10", IssueNumber: 10, Outcome: reconcile.OutcomeTransitioned, PrevStatus: "In Progress"},
			{PR: 42, Reference: "#11", Issue: "acme/app#11", Outcome: reconcile.OutcomeNotOpen, Reason: "issue state CLOSED"},
		},
	}
}

func TestFormatForPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatForPath("out/report.yaml"))
	assert.Equal(t, FormatYAML, FormatForPath("REPORT.YML"))
	assert.Equal(t, FormatJSON, FormatForPath("report.json"))
	assert.Equal(t, FormatJSON, FormatForPath("report"))
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleResult(), FormatJSON))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "acme/app", decoded["repository"])
	pairs := decoded["pairs"].([]interface{})
	require.Len(t, pairs, 2)
	first := pairs[0].(map[string]interface{})
	assert.Equal(t, "transitioned", first["outcome"])
	assert.Equal(t, "In Progress", first["previous_status"])
	stats := decoded["stats"].(map[string]interface{})
	assert.EqualValues(t, 1, stats["transitioned"])
}

func TestWrite_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleResult(), FormatYAML))

	var decoded struct {
		Repository string `yaml:"repository"`
		Stats      struct {
			Pairs int `yaml:"pairs"`
		} `yaml:"stats"`
		Pairs []struct {
			Reference string `yaml:"reference"`
			Outcome   string `yaml:"outcome"`
		} `yaml:"pairs"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "acme/app", decoded.Repository)
	assert.Equal(t, 2, decoded.Stats.Pairs)
	require.Len(t, decoded.Pairs, 2)
	assert.Equal(t, "#11", decoded.Pairs[1].Reference)
	assert.Equal(t, "not_open", decoded.Pairs[1].Outcome)
}

func TestWrite_UnknownFormat(t *testing.T) {
	assert.Error(t, Write(&bytes.Buffer{}, sampleResult(), Format("xml")))
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "run.json")
	require.NoError(t, WriteFile(jsonPath, sampleResult()))
	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	yamlPath := filepath.Join(dir, "run.yaml")
	require.NoError(t, WriteFile(yamlPath, sampleResult()))
	data, err = os.ReadFile(yamlPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "repository: acme/app")

	assert.Error(t, WriteFile(filepath.Join(dir, "missing", "run.json"), sampleResult()))
}

func TestMarkdown(t *testing.T) {
	md := Markdown(sampleResult())

	assert.True(t, strings.HasPrefix(md, "### QA status reconciliation\n"))
	assert.Contains(t, md, "project **Sprint \\| Board**")
	assert.Contains(t, md, "| 1 | 2 | 1 | 0 | 1 | 0 |")
	assert.Contains(t, md, "| [#42](https://github.com/acme/app/pull/42) | `#10` | acme/app#10 | transitioned |  |")
	assert.Contains(t, md, "| #42 | `#11` | acme/app#11 | not_open | issue state CLOSED |")
}

func TestMarkdown_DryRunAndEmpty(t *testing.T) {
	r := &reconcile.Result{Repository: "acme/app", Branch: "dev", DryRun: true, Warnings: []string{"listing incomplete"}}
	md := Markdown(r)

	assert.Contains(t, md, "(dry run)")
	assert.Contains(t, md, "No issue references were processed.")
	assert.NotContains(t, md, "project **")
	assert.Contains(t, md, "> listing incomplete")
}

func TestAppendStepSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summary.md")
	require.NoError(t, os.WriteFile(path, []byte("existing\n"), 0o600))
	t.Setenv("GITHUB_STEP_SUMMARY", path)

	require.NoError(t, AppendStepSummary(sampleResult()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "existing\n### QA status reconciliation"))
}

func TestAppendStepSummary_Unset(t *testing.T) {
	t.Setenv("GITHUB_STEP_SUMMARY", "")
	assert.NoError(t, AppendStepSummary(sampleResult()))
}
