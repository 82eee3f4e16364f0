package report

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-a-khan/ptf/packages/core/results"
)

func sampleRun() *results.RunResult {
	run := &results.RunResult{
		RunID:       "run-abc",
		Environment: "staging",
		StartedAt:   time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
		Duration:    3200 * time.Millisecond,
		Workers:     4,
		Suites: []*results.SuiteResult{
			{
				Name: "login.spec",
				Suites: []*results.SuiteResult{
					{
						Name:     "Login",
						Duration: 900 * time.Millisecond,
						Tests: []*results.TestResult{
							{
								Name:     "valid credentials",
								Status:   results.StatusPassed,
								Duration: 420 * time.Millisecond,
								Steps: []results.Step{
									{Name: "open page", Passed: true},
									{Name: "submit", Passed: true},
								},
							},
							{
								Name:     "wrong password",
								Status:   results.StatusFailed,
								Error:    "element not found: #error-banner",
								Duration: 480 * time.Millisecond,
								Attempts: 2,
								Artifacts: results.Artifacts{
									Screenshots: []string{"results/wrong-password.png"},
								},
							},
							{
								Name:       "sso redirect",
								Status:     results.StatusSkipped,
								SkipReason: "sso disabled in staging",
							},
						},
					},
				},
			},
		},
	}
	run.Recount()
	return run
}

func TestNewRejectsUnknownReporter(t *testing.T) {
	_, err := New("teamcity", t.TempDir(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown reporter")
}

func TestConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(WithWriter(&buf), WithNoColor(true))
	require.NoError(t, c.Write(sampleRun()))

	out := buf.String()
	assert.Contains(t, out, "Run run-abc (staging) [4 workers]")
	assert.Contains(t, out, "Login")
	assert.Contains(t, out, "✓ valid credentials")
	assert.Contains(t, out, "✗ wrong password")
	assert.Contains(t, out, "element not found: #error-banner")
	assert.Contains(t, out, "screenshot: results/wrong-password.png")
	assert.Contains(t, out, "- sso redirect (sso disabled in staging)")
	assert.Contains(t, out, "(took 2 attempts)")
	assert.Contains(t, out, "Durations:")
	assert.NotContains(t, out, "partial")
}

func TestConsoleVerboseShowsSteps(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(WithWriter(&buf), WithNoColor(true), WithVerbose(true))
	require.NoError(t, c.Write(sampleRun()))

	out := buf.String()
	assert.Contains(t, out, "✓ open page")
	assert.Contains(t, out, "✓ submit")
}

func TestConsoleFlagsIncompleteRun(t *testing.T) {
	run := sampleRun()
	run.Incomplete = true

	var buf bytes.Buffer
	c := NewConsole(WithWriter(&buf), WithNoColor(true))
	require.NoError(t, c.Write(run))
	assert.Contains(t, buf.String(), "results are partial")
}

func TestDurationPercentilesExcludeSkips(t *testing.T) {
	run := sampleRun()
	p50, _, p99, ok := durationPercentiles(run)
	require.True(t, ok)
	// Two executed tests at 420ms and 480ms; the skip must not pull the
	// distribution toward zero.
	assert.GreaterOrEqual(t, p50, int64(400))
	assert.LessOrEqual(t, p99, int64(500))
}

func TestJSONReporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	require.NoError(t, NewJSON(path).Write(sampleRun()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded results.RunResult
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "run-abc", decoded.RunID)
	assert.Equal(t, 3, decoded.Summary.Total)
	require.Len(t, decoded.Suites, 1)
	assert.Equal(t, "login.spec", decoded.Suites[0].Name)
}

func TestJUnitReporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junit.xml")
	require.NoError(t, NewJUnit(path).Write(sampleRun()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc junitTestSuites
	require.NoError(t, xml.Unmarshal(raw, &doc))
	assert.Equal(t, 3, doc.Tests)
	assert.Equal(t, 1, doc.Failures)
	assert.Equal(t, 1, doc.Skipped)

	// Only suite nodes holding tests become testsuite elements; the unit
	// wrapper contributes to the classname instead.
	require.Len(t, doc.Suites, 1)
	suite := doc.Suites[0]
	assert.Equal(t, "login.spec/Login", suite.Name)
	require.Len(t, suite.Cases, 3)

	failed := suite.Cases[1]
	assert.Equal(t, "wrong password", failed.Name)
	assert.Equal(t, "login.spec/Login", failed.ClassName)
	require.NotNil(t, failed.Failure)
	assert.Equal(t, "element not found: #error-banner", failed.Failure.Message)

	skipped := suite.Cases[2]
	require.NotNil(t, skipped.Skipped)
	assert.Equal(t, "sso disabled in staging", skipped.Skipped.Message)
}

func TestJUnitMarksTimeouts(t *testing.T) {
	run := sampleRun()
	run.Suites[0].Suites[0].Tests[1].TimedOut = true

	path := filepath.Join(t.TempDir(), "junit.xml")
	require.NoError(t, NewJUnit(path).Write(run))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc junitTestSuites
	require.NoError(t, xml.Unmarshal(raw, &doc))
	assert.Equal(t, "Timeout", doc.Suites[0].Cases[1].Failure.Type)
}

func TestHTMLReporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.html")
	require.NoError(t, NewHTML(path).Write(sampleRun()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	html := string(raw)
	assert.Contains(t, html, "run-abc")
	assert.Contains(t, html, "valid credentials")
	assert.Contains(t, html, "wrong password")
}

func TestWriteAllKeepsGoingAfterFailure(t *testing.T) {
	dir := t.TempDir()
	run := sampleRun()

	err := WriteAll([]string{"bogus", "json"}, dir, true, run)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reporter bogus")

	// The json reporter after the broken one still ran.
	_, statErr := os.Stat(filepath.Join(dir, "results.json"))
	assert.NoError(t, statErr)
}
